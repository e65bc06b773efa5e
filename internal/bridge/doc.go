// Package bridge connects the broker's domain events to outside systems.
//
// Each bridge is a device.Observer. The broker wraps slow ones in an
// AsyncObserver so the domain goroutine never waits on the network.
//
//   - MQTTBridge publishes retained device status and decoder state, task
//     progress, and accepts state commands on {prefix}/decoder/+/+/set,
//     answering each on the matching ack topic.
//   - HealthReporter publishes a retained health report periodically.
//   - TelemetryObserver writes state changes, status transitions and
//     finished tasks to a time-series store (InfluxDB).
//   - MetricsObserver feeds Prometheus gauges and counters.
//
// # MQTT payloads
//
// All published payloads are JSON. A command payload may be a bare state
// word ("on", "ACTIVE", "thrown", "1") or a JSON object {"state": "on"}.
package bridge
