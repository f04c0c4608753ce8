// Package mqtt provides MQTT client connectivity for DoorHub Core.
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
// DoorHub uses MQTT as the only channel between the manager and the
// door controller fleet. Controllers publish heartbeats, boot
// notifications, access events, and card scans; the manager publishes
// credential and door commands back.
//
//	DoorHub Core ↔ MQTT Broker ↔ Door Controllers
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	topics := mqtt.NewTopics(cfg.Fleet.TopicPrefix)
//	client, err := mqtt.Connect(cfg.MQTT, topics)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to everything the fleet sends
//	err = client.Subscribe(topics.AllDeviceSends(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish a command
//	client.Publish(topics.DeviceCommand("front-door"), payload, 1, false)
package mqtt
