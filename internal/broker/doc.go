// Package broker runs the DCCLite domain goroutine.
//
// A Service owns the device registry and the timer queue. Its Run loop is
// the only goroutine that touches domain state: it drains validated
// datagrams from the network dispatcher, executes commands posted by the
// HTTP API and the MQTT bridge, and fires expired timers on every tick.
//
// Other goroutines talk to the Service only through its exported command
// methods. Each command is a plain value carrying stable identifiers (device
// name, decoder address, task ID) plus a reply channel; the domain goroutine
// resolves them against the registry when the command runs.
//
//	svc, err := broker.New(broker.Config{TickInterval: 5 * time.Millisecond}, broker.Deps{
//	    Sender: dispatcher,
//	    Events: dispatcher.Events(),
//	    Store:  store,
//	})
//	go svc.Run(ctx)
//
//	err = svc.SetDecoderState(ctx, 10, decoder.StateActive)
//
// HandlePacket and Tick are exported for deterministic tests that drive the
// domain with a fake clock instead of Run.
package broker
