// Package mqtt provides MQTT connectivity for the Raptor-X control plane.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// MQTT is the outbound event bus of the control plane. Device liveness
// transitions, run lifecycle changes, and queue health are published so
// lab dashboards and external collectors can follow a benchmark session
// without polling the HTTP API.
//
//	Raptor-X Core → MQTT Broker → Dashboards / Collectors
//
// Publishing is optional: when the broker is not configured the control
// plane runs without it and events are only delivered over WebSocket.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{}.RunStatus("run-abc123")
//	client.Publish(topic, []byte(`{"status":"running"}`), 1, false)
package mqtt
