package sidecar

import (
	"time"

	"github.com/google/uuid"

	"wabridge/pkg/channel"
)

// Frame types emitted by the sidecar.
const (
	frameQR            = "qr"
	frameAuthenticated = "authenticated"
	frameReady         = "ready"
	frameMessage       = "message"
	frameSendResult    = "send_result"
	frameAuthFailure   = "auth_failure"
	frameDisconnected  = "disconnected"

	commandSend = "send"
)

// inboundFrame is one line read from the sidecar's stdout.
type inboundFrame struct {
	Type    string       `json:"type"`
	QR      string       `json:"qr,omitempty"`
	Message *wireMessage `json:"message,omitempty"`
	ID      string       `json:"id,omitempty"`
	Error   string       `json:"error,omitempty"`
	Reason  string       `json:"reason,omitempty"`
}

// wireMessage is the sidecar's view of a chat message.
type wireMessage struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Author    string `json:"author"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"`
	FromMe    bool   `json:"fromMe"`
}

// outboundFrame is one line written to the sidecar's stdin.
type outboundFrame struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	ChatID  string `json:"chat_id"`
	Message string `json:"message"`
}

func (m *wireMessage) toInbound() *channel.InboundMessage {
	id := m.ID
	if id == "" {
		id = uuid.NewString()
	}
	sender := m.Author
	if sender == "" {
		sender = m.From
	}
	ts := time.Now()
	if m.Timestamp > 0 {
		ts = time.Unix(m.Timestamp, 0)
	}
	return &channel.InboundMessage{
		ID:        id,
		ChatID:    m.From,
		SenderID:  sender,
		Body:      m.Body,
		Timestamp: ts,
		FromMe:    m.FromMe,
	}
}
