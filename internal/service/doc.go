// Package service supervises the brightness control loop.
//
// The Supervisor is the single owner of the loop's on/off state. It starts
// and stops the loop on request (HTTP API, MQTT commands, auto start),
// records why the loop last stopped, forwards screen power changes and
// runs periodic history maintenance.
//
// Remote commands arrive on autobright/command as JSON:
//
//	{"command": "increase"}
//	{"command": "set_level", "level": 70}
//	{"command": "set_sense_interval", "interval_ms": 1500}
//
// A bare command name ("decrease", "enable", "disable") is accepted too.
package service
