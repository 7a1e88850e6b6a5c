// Package config handles loading and validating lumid configuration.
//
// Configuration is layered: hardcoded defaults, then an optional YAML file,
// then LUMI_* environment variables. Secrets (MQTT password, InfluxDB token)
// should be supplied through the environment.
//
// The ledger section must be identical on every executor that follows the
// same chain, otherwise state roots diverge.
//
// Usage:
//
//	cfg, err := config.Load("configs/lumi.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Ledger.Administrator)
package config
