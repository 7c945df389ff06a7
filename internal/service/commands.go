package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sgnexus/autobright/internal/infrastructure/mqtt"
	"github.com/sgnexus/autobright/internal/state"
)

// Command names accepted on the command topic.
const (
	CommandIncrease         = "increase"
	CommandDecrease         = "decrease"
	CommandSetLevel         = "set_level"
	CommandSetSenseInterval = "set_sense_interval"
	CommandEnable           = "enable"
	CommandDisable          = "disable"
)

// commandTimeout bounds the work done for one remote command.
const commandTimeout = 5 * time.Second

// Command is a decoded remote command.
type Command struct {
	Name       string `json:"command"`
	Level      *int   `json:"level,omitempty"`
	IntervalMs *int   `json:"interval_ms,omitempty"`
}

// Subscriber is the part of the MQTT client the supervisor needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// ParseCommand decodes a JSON command object or a bare command name.
func ParseCommand(payload []byte) (Command, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return Command{}, fmt.Errorf("%w: empty payload", ErrInvalidCommand)
	}

	var cmd Command
	if trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &cmd); err != nil {
			return Command{}, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
		}
	} else {
		cmd.Name = string(trimmed)
	}
	cmd.Name = strings.ToLower(strings.TrimSpace(cmd.Name))

	switch cmd.Name {
	case CommandIncrease, CommandDecrease, CommandEnable, CommandDisable:
	case CommandSetLevel:
		if cmd.Level == nil {
			return Command{}, fmt.Errorf("%w: set_level needs level", ErrInvalidCommand)
		}
	case CommandSetSenseInterval:
		if cmd.IntervalMs == nil || *cmd.IntervalMs <= 0 || int64(*cmd.IntervalMs) > state.MaxSenseInterval.Milliseconds() {
			return Command{}, fmt.Errorf("%w: set_sense_interval needs interval_ms in (0, %d]",
				ErrInvalidCommand, state.MaxSenseInterval.Milliseconds())
		}
	case "":
		return Command{}, fmt.Errorf("%w: missing command", ErrInvalidCommand)
	default:
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Name)
	}
	return cmd, nil
}

// Execute runs a decoded command.
func (s *Supervisor) Execute(ctx context.Context, cmd Command) error {
	switch cmd.Name {
	case CommandIncrease:
		return s.Increase(ctx)
	case CommandDecrease:
		return s.Decrease(ctx)
	case CommandSetLevel:
		return s.SetLevel(ctx, *cmd.Level)
	case CommandSetSenseInterval:
		return s.SetSenseInterval(ctx, time.Duration(*cmd.IntervalMs)*time.Millisecond)
	case CommandEnable:
		return s.Enable(ctx)
	case CommandDisable:
		s.Disable()
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Name)
	}
}

// HandleCommand is the MQTT handler for the command topic.
func (s *Supervisor) HandleCommand(topic string, payload []byte) error {
	cmd, err := ParseCommand(payload)
	if err != nil {
		return err
	}

	_, logger := s.get()
	logger.Info("remote command received", "topic", topic, "command", cmd.Name)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := s.Execute(ctx, cmd); err != nil {
		return fmt.Errorf("executing %s: %w", cmd.Name, err)
	}
	return nil
}

// CommandClient is the part of the MQTT client CommandCheck inspects.
type CommandClient interface {
	HealthCheck(ctx context.Context) error
	HasSubscription(topic string) bool
}

// CommandCheck is a health check that fails when the broker is unreachable
// or the command topic subscription has been lost.
type CommandCheck struct {
	Client CommandClient
}

// HealthCheck implements api.HealthChecker.
func (c CommandCheck) HealthCheck(ctx context.Context) error {
	if err := c.Client.HealthCheck(ctx); err != nil {
		return err
	}
	if topic := (mqtt.Topics{}).Command(); !c.Client.HasSubscription(topic) {
		return fmt.Errorf("%w: %s", ErrNotSubscribed, topic)
	}
	return nil
}

// SubscribeCommands subscribes HandleCommand to the command topic.
func (s *Supervisor) SubscribeCommands(sub Subscriber, qos byte) error {
	topic := mqtt.Topics{}.Command()
	if err := sub.Subscribe(topic, qos, s.HandleCommand); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	return nil
}
