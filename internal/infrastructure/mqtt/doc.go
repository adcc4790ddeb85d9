// Package mqtt provides MQTT client connectivity for the message bridge.
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
// The bridge treats MQTT as its upstream message bus: every topic the
// registry holds is subscribed here, and inbound payloads flow to the
// relay's decode/store pipeline through a single shared handler.
//
//	External producers ↔ MQTT Broker ↔ msgbridge ↔ API consumers
//
// The client itself is state-light: it tracks only connection status.
// The desired subscription set lives in the relay's topic registry, which
// re-subscribes from the OnConnect callback after every (re)connection.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.Broker)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe("sensors/+", 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
package mqtt
