package audit

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Publisher is the part of *nats.Conn the sink uses.
type Publisher interface {
	Publish(subject string, data []byte) error
}

var _ Publisher = (*nats.Conn)(nil)

// NATSSink publishes each event as JSON on subject. Subscribers receive
// events at most once; publish failures are logged and dropped.
type NATSSink struct {
	conn    Publisher
	subject string
	log     zerolog.Logger
}

// NewNATSSink builds a sink over conn. An empty subject defaults to
// "phoneauth.events".
func NewNATSSink(conn Publisher, subject string, log zerolog.Logger) *NATSSink {
	if subject == "" {
		subject = "phoneauth.events"
	}
	return &NATSSink{conn: conn, subject: subject, log: log}
}

// Subject returns the subject events are published on, suffixed with the
// event type.
func (s *NATSSink) Subject(eventType string) string {
	if eventType == "" {
		return s.subject
	}
	return s.subject + "." + eventType
}

func (s *NATSSink) Emit(_ context.Context, event Event) {
	if s == nil || s.conn == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := s.conn.Publish(s.Subject(event.EventType), data); err != nil {
		s.log.Warn().Err(err).Str("event_type", event.EventType).Msg("audit publish failed")
	}
}
