// Package influxdb provides the optional time-series telemetry sink for
// the Raptor-X control plane.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, non-blocking batched writes, and health monitoring.
//
// # Purpose
//
// Benchmark sessions produce timing data worth keeping beyond the run
// record: run durations per device and workflow, inference latency per
// backend, and proxy call latency per operation. Writing these to
// InfluxDB lets the lab chart regressions across driver drops without
// touching the control plane's SQLite store.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteRunDuration("dev-7f3a", "cyberpunk-benchmark", "completed", 312.5)
//
// # Thread Safety
//
// All methods are safe for concurrent use. Writes are non-blocking and
// batched according to config (batch_size, flush_interval); async write
// errors are delivered via the SetOnError callback.
package influxdb
