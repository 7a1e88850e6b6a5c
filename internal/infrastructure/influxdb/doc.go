// Package influxdb writes ledger telemetry to InfluxDB v2.
//
// The Client is a dispatcher observer: every committed operation becomes a
// ledger_operation point tagged by op and result code, and every device it
// changed becomes a device_state point. Writes are batched and
// non-blocking; failures arrive on the SetOnError callback and never
// affect the ledger.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	d.AddObserver(client)
package influxdb
