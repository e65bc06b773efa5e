// Package config loads the broker configuration and the devices file.
//
// This package manages:
//   - Loading config.yaml with defaults and DCCLITE_* environment overrides
//   - Validation of required fields, reporting every problem at once
//   - Loading devices.yaml, the list of registered devices and decoders
//
// Credentials (MQTT password, InfluxDB token) should come from the
// environment rather than the file.
//
// Usage:
//
//	cfg, err := config.Load("config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	devices, err := config.LoadDevices(cfg.Broker.DevicesFile)
package config
