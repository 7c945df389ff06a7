// Package mqtt provides MQTT connectivity for autobright.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions, restored after every reconnect
//   - Last Will and Testament (LWT) on autobright/status
//
// MQTT is optional. When enabled it carries remote lux readings in,
// and retained state, feedback events and the online status out. Remote
// controls send increase/decrease/set_level/enable/disable commands on
// autobright/command.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.Command(), 1,
//	    func(topic string, payload []byte) error {
//	        return handleCommand(payload)
//	    })
//
//	client.PublishJSON(mqtt.Topics{}.State(), snapshot, true)
package mqtt
