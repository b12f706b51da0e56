// Package notify provides notification-channel implementations for
// deployments without SNS.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/sproutgrid/greenhouse-engine/internal/domain"
)

// MQTTNotifier publishes alert events to an MQTT topic so local
// dashboards and relays can subscribe directly to the broker.
type MQTTNotifier struct {
	client mqtt.Client
	topic  string
}

// NewMQTTNotifier connects to the broker and returns a notifier
// publishing on topic.
func NewMQTTNotifier(broker, topic string) (*MQTTNotifier, error) {
	opts := mqtt.NewClientOptions().AddBroker(broker)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return &MQTTNotifier{client: client, topic: topic}, nil
}

// PublishAlert sends the event as JSON with QoS 1.
func (n *MQTTNotifier) PublishAlert(ctx context.Context, ev domain.AlertEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal alert event: %w", err)
	}
	token := n.client.Publish(n.topic, 1, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish: %w", err)
	}
	return nil
}

// Close disconnects from the broker.
func (n *MQTTNotifier) Close() { n.client.Disconnect(250) }

// LogNotifier writes alert events to the log only. Last-resort fallback
// when no broker or topic is configured.
type LogNotifier struct {
	Log zerolog.Logger
}

func (n LogNotifier) PublishAlert(_ context.Context, ev domain.AlertEvent) error {
	n.Log.Warn().
		Str("device", ev.DeviceID).
		Str("channel", string(ev.Channel)).
		Str("status", ev.Status).
		Str("message", ev.Message).
		Msg("alert (no notification channel configured)")
	return nil
}
