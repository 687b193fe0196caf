// Package natsmail delivers verification codes by handing them to a mail
// worker over NATS request/reply.
//
// Request payload: {"to":"…","code":"…","template":"…"}.
// Reply payload: {"ok":true} or {"ok":false,"error":"…"}.
package natsmail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	nats "github.com/nats-io/nats.go"

	"github.com/MrEthical07/phoneauth/provider"
)

// Requester is the subset of *nats.Conn the sender uses.
type Requester interface {
	RequestWithContext(ctx context.Context, subject string, data []byte) (*nats.Msg, error)
}

// Sender implements provider.EmailSender.
type Sender struct {
	conn     Requester
	subject  string
	template string
}

var _ provider.EmailSender = (*Sender)(nil)

// New returns a Sender publishing on subject. template names the message
// the mail worker renders; empty means "verification_code".
func New(conn Requester, subject, template string) (*Sender, error) {
	if conn == nil {
		return nil, errors.New("natsmail: nats connection is nil")
	}
	if subject == "" {
		return nil, errors.New("natsmail: subject required")
	}
	if template == "" {
		template = "verification_code"
	}
	return &Sender{conn: conn, subject: subject, template: template}, nil
}

type sendRequest struct {
	To       string `json:"to"`
	Code     string `json:"code"`
	Template string `json:"template"`
}

type sendResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// Send publishes the request and waits for the worker's ack. A negative
// ack returns accepted=false without error.
func (s *Sender) Send(ctx context.Context, to, code string) (bool, error) {
	data, err := json.Marshal(sendRequest{To: to, Code: code, Template: s.template})
	if err != nil {
		return false, err
	}

	msg, err := s.conn.RequestWithContext(ctx, s.subject, data)
	if err != nil {
		return false, err
	}
	if msg == nil {
		return false, fmt.Errorf("natsmail: empty response from %s", s.subject)
	}

	var resp sendResponse
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return false, fmt.Errorf("natsmail: decode reply: %w", err)
	}
	return resp.OK, nil
}
