// Package mqtt provides MQTT client connectivity for PlantPulse Core.
//
// This package manages:
//   - Connection to the broker with observable lifecycle state
//   - Message publishing with QoS guarantees (no store-and-forward)
//   - Topic subscriptions with wildcard support and idempotent registration
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// PlantPulse runs two independent broker sessions built from this
// package: the primary telemetry session (auto-reconnect on, retries
// indefinitely in the background) and the correlator's AAS event
// session (auto-reconnect off, supervised by a bounded retry loop).
// They share no state beyond this code.
//
//	devices/agents → MQTT Broker → Client → telemetry pipeline
//	AAS services   → MQTT Broker → Client → event correlator
//
// # Connection State
//
// Every client reports one of disconnected, connecting, connected,
// reconnecting or failed via State()/Status(). Tracked subscriptions
// are re-issued automatically each time the session reaches connected.
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(mqtt.Config{
//	    BrokerHost:    "localhost",
//	    BrokerPort:    1883,
//	    QoS:           1,
//	    AutoReconnect: true,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe("iiot/+/data", 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
package mqtt
