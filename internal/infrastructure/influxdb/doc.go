// Package influxdb writes identity service telemetry to InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library: one non-blocking,
// batched WriteAPI per process, an async error callback, and a ping-based
// health check.
//
// # What is written
//
//   - auth_events: one point per account flow (kind, outcome tags)
//   - rate_limited: one point per request rejected by the limiter
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteAuthEvent(influxdb.AuthEvent{Kind: "login", Outcome: "success"})
//
// # Thread Safety
//
// All methods are safe for concurrent use. Writes on a closed or never
// connected client are silently discarded.
package influxdb
