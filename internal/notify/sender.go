package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/mqtt"
)

// Publisher is the subset of the MQTT client used to publish notifications.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// MQTTSender publishes each message as JSON to {prefix}/notify/{kind}.
type MQTTSender struct {
	pub    Publisher
	topics mqtt.Topics
	qos    byte
}

// NewMQTTSender creates a sender publishing through pub.
func NewMQTTSender(pub Publisher, topics mqtt.Topics, qos byte) *MQTTSender {
	return &MQTTSender{pub: pub, topics: topics, qos: qos}
}

// Send publishes msg. Notifications are events, never retained.
func (s *MQTTSender) Send(_ context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}
	if err := s.pub.Publish(s.topics.Notify(string(msg.Kind)), payload, s.qos, false); err != nil {
		return fmt.Errorf("publishing notification: %w", err)
	}
	return nil
}

// LogSender writes notifications to the log. Tokens are not logged.
type LogSender struct {
	logger *logging.Logger
}

// NewLogSender creates a sender that only logs.
func NewLogSender(logger *logging.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send logs msg.
func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("notification",
		"kind", msg.Kind,
		"user_id", msg.UserID,
		"email", msg.Email,
		"has_link", msg.Link != "",
	)
	return nil
}
