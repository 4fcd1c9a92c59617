package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/mqtt"
)

// recordingSender captures delivered messages.
type recordingSender struct {
	mu    sync.Mutex
	msgs  []Message
	err   error
	block chan struct{}
}

func (s *recordingSender) Send(_ context.Context, msg Message) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return s.err
}

func (s *recordingSender) delivered() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.msgs...)
}

// recordingPublisher captures MQTT publishes.
type recordingPublisher struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
	err      error
}

func (p *recordingPublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	p.topic, p.payload, p.qos, p.retained = topic, payload, qos, retained
	return p.err
}

func TestLinks_For(t *testing.T) {
	links := Links{
		ConfirmURL: "https://app.example.com/confirm",
		ResetURL:   "https://app.example.com/reset?lang=en",
	}

	tests := []struct {
		name  string
		kind  Kind
		token string
		want  string
	}{
		{name: "confirm", kind: KindConfirmationRequested, token: "abc", want: "https://app.example.com/confirm?token=abc"},
		{name: "reset keeps query", kind: KindPasswordResetRequested, token: "abc", want: "https://app.example.com/reset?lang=en&token=abc"},
		{name: "no token", kind: KindConfirmationRequested, token: "", want: ""},
		{name: "unknown kind", kind: Kind("other"), token: "abc", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := links.For(tt.kind, tt.token); got != tt.want {
				t.Errorf("For() = %q, want %q", got, tt.want)
			}
		})
	}

	if got := (Links{}).For(KindConfirmationRequested, "abc"); got != "" {
		t.Errorf("For() without base URL = %q, want empty", got)
	}
}

func TestQueue_DeliversWithLink(t *testing.T) {
	sender := &recordingSender{}
	q := NewQueue(sender, Links{ConfirmURL: "https://x/confirm"}, 4, logging.Discard())
	q.Start(context.Background())

	ok := q.Enqueue(Message{Kind: KindConfirmationRequested, UserID: "usr-1", Email: "a@b.c", Token: "tok"})
	if !ok {
		t.Fatal("Enqueue() = false, want true")
	}
	q.Close()

	got := sender.delivered()
	if len(got) != 1 {
		t.Fatalf("delivered %d messages, want 1", len(got))
	}
	if got[0].Link != "https://x/confirm?token=tok" {
		t.Errorf("Link = %q", got[0].Link)
	}
	if got[0].Timestamp.IsZero() {
		t.Error("Timestamp not set")
	}
}

func TestQueue_DropsWhenFull(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter(config.LoggingConfig{Level: "debug", Format: "json"}, "test", &buf)

	// Not started: nothing drains the buffer.
	q := NewQueue(&recordingSender{}, Links{}, 1, logger)

	if !q.Enqueue(Message{Kind: KindPasswordResetRequested, UserID: "usr-1"}) {
		t.Fatal("first Enqueue() = false, want true")
	}
	if q.Enqueue(Message{Kind: KindPasswordResetRequested, UserID: "usr-2"}) {
		t.Error("second Enqueue() = true, want false when full")
	}
	if q.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", q.Pending())
	}
	if !strings.Contains(buf.String(), "notification queue full") {
		t.Errorf("expected drop warning, log = %s", buf.String())
	}
}

func TestQueue_EnqueueDoesNotBlock(t *testing.T) {
	sender := &recordingSender{block: make(chan struct{})}
	q := NewQueue(sender, Links{}, 1, logging.Discard())
	q.Start(context.Background())

	done := make(chan struct{})
	go func() {
		for range 10 {
			q.Enqueue(Message{Kind: KindConfirmationRequested})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a stalled sender")
	}

	close(sender.block)
	q.Close()
}

func TestQueue_SendErrorIsLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, "test", &buf)

	sender := &recordingSender{err: errors.New("smtp down")}
	q := NewQueue(sender, Links{}, 4, logger)
	q.Start(context.Background())

	q.Enqueue(Message{Kind: KindConfirmationRequested, UserID: "usr-1"})
	q.Close()

	if !strings.Contains(buf.String(), "notification delivery failed") {
		t.Errorf("expected delivery failure log, got %s", buf.String())
	}
}

func TestQueue_DrainsOnCancel(t *testing.T) {
	sender := &recordingSender{}
	q := NewQueue(sender, Links{}, 8, logging.Discard())

	for range 3 {
		q.Enqueue(Message{Kind: KindConfirmationRequested})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	q.Start(ctx)
	q.Close()

	if n := len(sender.delivered()); n != 3 {
		t.Errorf("delivered %d messages after cancel, want 3", n)
	}
}

func TestQueue_EnqueueAfterClose(t *testing.T) {
	q := NewQueue(&recordingSender{}, Links{}, 4, logging.Discard())
	q.Start(context.Background())
	q.Close()

	if q.Enqueue(Message{Kind: KindConfirmationRequested}) {
		t.Error("Enqueue() after Close = true, want false")
	}
	q.Close() // second Close is a no-op
}

func TestMQTTSender_Send(t *testing.T) {
	pub := &recordingPublisher{}
	sender := NewMQTTSender(pub, mqtt.NewTopics("identity"), 1)

	msg := Message{
		Kind:      KindPasswordResetRequested,
		UserID:    "usr-1",
		Email:     "a@b.c",
		Token:     "tok",
		Link:      "https://x/reset?token=tok",
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := sender.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if pub.topic != "identity/notify/password_reset_requested" {
		t.Errorf("topic = %q", pub.topic)
	}
	if pub.qos != 1 || pub.retained {
		t.Errorf("qos = %d retained = %v, want 1 false", pub.qos, pub.retained)
	}

	var decoded map[string]any
	if err := json.Unmarshal(pub.payload, &decoded); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	for _, key := range []string{"kind", "user_id", "email", "token", "link", "timestamp"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("payload missing %q: %s", key, pub.payload)
		}
	}
}

func TestMQTTSender_PublishError(t *testing.T) {
	pub := &recordingPublisher{err: mqtt.ErrNotConnected}
	sender := NewMQTTSender(pub, mqtt.NewTopics(""), 0)

	err := sender.Send(context.Background(), Message{Kind: KindConfirmationRequested})
	if !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("Send() error = %v, want ErrNotConnected", err)
	}
}

func TestLogSender_OmitsToken(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, "test", &buf)

	err := NewLogSender(logger).Send(context.Background(), Message{
		Kind:  KindConfirmationRequested,
		Email: "a@b.c",
		Token: "secret-token-value",
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if strings.Contains(buf.String(), "secret-token-value") {
		t.Error("LogSender wrote the token to the log")
	}
	if !strings.Contains(buf.String(), "a@b.c") {
		t.Errorf("log = %s, want email", buf.String())
	}
}
