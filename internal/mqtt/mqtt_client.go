package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"

	"smartgateway/internal/automation"
	"smartgateway/internal/models"
)

const (
	qos          = 1
	publishWait  = 5 * time.Second
	disconnectMs = 250
)

// Bridge publishes gateway activity and feeds device events from the broker
type Bridge struct {
	client MQTT.Client
	prefix string
	now    func() time.Time
	logger *slog.Logger
}

// NewBridge wraps a connected client. Topics live under prefix.
func NewBridge(client MQTT.Client, prefix string, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		client: client,
		prefix: prefix,
		now:    time.Now,
		logger: logger.With("component", "mqtt"),
	}
}

func (b *Bridge) topic(name string) string { return b.prefix + "/" + name }

// Notify publishes a notification action
func (b *Bridge) Notify(ctx context.Context, message string) error {
	return b.publish(ctx, b.topic("notifications"), map[string]any{
		"message": message,
		"sentAt":  b.now(),
	})
}

// RecordExecution publishes a finished rule execution
func (b *Bridge) RecordExecution(ctx context.Context, rule *models.AutomationRule, exec models.RuleExecution) error {
	payload := struct {
		models.RuleExecution
		RuleName string `json:"ruleName"`
	}{RuleExecution: exec}
	if rule != nil {
		payload.RuleName = rule.Name
	}
	return b.publish(ctx, b.topic("executions"), payload)
}

// DeviceEventMessage is the JSON body expected on the events topic
type DeviceEventMessage struct {
	DeviceID   string               `json:"deviceId"`
	DeviceType string               `json:"deviceType"`
	State      map[string]any       `json:"state"`
	Context    *models.EventContext `json:"context,omitempty"`
}

// SubscribeEvents delivers device reports from the events topic to handle
func (b *Bridge) SubscribeEvents(handle func(models.AutomationEvent)) error {
	topic := b.topic("events")
	token := b.client.Subscribe(topic, qos, func(_ MQTT.Client, msg MQTT.Message) {
		var m DeviceEventMessage
		if err := json.Unmarshal(msg.Payload(), &m); err != nil {
			b.logger.Warn("malformed device event", "topic", msg.Topic(), "error", err)
			return
		}
		if m.DeviceID == "" {
			b.logger.Warn("device event without deviceId", "topic", msg.Topic())
			return
		}
		handle(automation.ProcessDeviceUpdate(m.DeviceID, m.DeviceType, m.State, m.Context))
	})
	if !token.WaitTimeout(publishWait) {
		return fmt.Errorf("subscribe %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	b.logger.Info("subscribed", "topic", topic)
	return nil
}

// Close disconnects from the broker
func (b *Bridge) Close() {
	b.client.Disconnect(disconnectMs)
}

func (b *Bridge) publish(ctx context.Context, topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", topic, err)
	}
	token := b.client.Publish(topic, qos, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(publishWait):
		return fmt.Errorf("publish %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}
