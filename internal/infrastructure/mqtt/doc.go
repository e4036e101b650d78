// Package mqtt provides MQTT client connectivity for the Inky display agent.
//
// This package manages:
//   - Connection to the broker with auto-reconnect and capped backoff
//   - Message publishing with QoS guarantees
//   - Topic subscriptions restored across reconnects
//   - Last Will and Testament for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// The agent uses MQTT as its only control channel: the coordinator
// publishes display commands and registration acknowledgments, the
// agent publishes registrations and per-command status reports.
//
//	Coordinator ↔ MQTT Broker ↔ Inky Agent
//
// This package is transport-level only; device topics, payload schemas
// and delivery semantics live in internal/bus.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.Presence{
//	    Topic:    "inky/kitchen-display/availability",
//	    DeviceID: "kitchen-display",
//	})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe("inky/kitchen-display/command", 1,
//	    func(topic string, payload []byte) error {
//	        // decode and dispatch
//	        return nil
//	    })
package mqtt
