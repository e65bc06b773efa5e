// Package influxdb records broker telemetry in InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library. The broker writes one
// point per decoder state change, per session status transition and per
// finished network test, giving a history of what the layout did.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteDeviceStatus("Bench", "online", time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use. Writes are non-blocking and
// batched according to batch_size and flush_interval; write errors are
// delivered asynchronously to the callback set with SetOnError.
package influxdb
