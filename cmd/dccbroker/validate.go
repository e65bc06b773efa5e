package main

import (
	"fmt"
	"io"

	"github.com/bcsanches/DCCLite-sub001/internal/broker"
	"github.com/bcsanches/DCCLite-sub001/internal/device"
	"github.com/bcsanches/DCCLite-sub001/internal/infrastructure/config"
)

// runValidate loads the configuration and builds every registered device
// the way run does, without opening sockets or the database.
func runValidate(configPath string, out io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	devices, err := config.LoadDevices(cfg.Broker.DevicesFile)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	svc, err := broker.New(broker.Config{
		Timing: cfg.Broker.Timing.Merge(device.DefaultTiming()),
	}, broker.Deps{Sender: discardSender{}})
	if err != nil {
		return err
	}
	if err := svc.LoadDevices(devices); err != nil {
		return err
	}

	decoders := 0
	for _, d := range svc.Registry().Devices() {
		decoders += len(d.Decoders())
	}
	fmt.Fprintf(out, "VALID: %d device(s), %d decoder(s) from %s\n", len(devices), decoders, cfg.Broker.DevicesFile)
	return nil
}
