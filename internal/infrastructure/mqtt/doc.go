// Package mqtt provides the MQTT client used by the broker's state bridge.
//
// This package manages:
//   - Connection to an MQTT broker with auto-reconnect
//   - Publishing with QoS and retained state topics
//   - Subscriptions that survive reconnects
//   - A retained broker status with Last Will and Testament
//   - The topic tree (Topics) shared by the bridge and its clients
//
// Layout controllers, dashboards and home automation systems follow decoder
// state on retained topics and request output changes by publishing to the
// decoder's set topic:
//
//	dcclite/decoder/Bench/led/state   <- "active" (retained)
//	dcclite/decoder/Bench/led/set     -> "inactive"
//	dcclite/decoder/Bench/led/ack     <- {"ok":true,...}
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(client.Topics().AllDecoderCommands(), client.QoS(), handler)
package mqtt
