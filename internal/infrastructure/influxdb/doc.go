// Package influxdb writes doorbell health telemetry to InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Only connection and
// loop health, executed remote commands and volume changes are written;
// motion events are never recorded.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB, cfg.Device.Hostname)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteConnection("reconnected", 4)
//
// # Thread Safety
//
// All methods are safe for concurrent use. Writes are non-blocking and
// batched (batch_size, flush_interval); async write failures are reported
// through SetOnError.
package influxdb
