// Package logging provides structured logging for lumid.
//
// It wraps log/slog with JSON (default) or text output, level filtering
// and service/version fields on every entry. Components tag their output
// with Component:
//
//	logger := logging.New(cfg.Logging, version)
//	dispatcherLog := logger.Component("dispatcher")
//	dispatcherLog.Info("operation applied", "op", "toggle-light", "code", "OK")
//
// Never log MQTT passwords or InfluxDB tokens.
package logging
