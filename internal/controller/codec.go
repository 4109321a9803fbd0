package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"wabridge/pkg/channel"
)

// NewlinePolicy decides what happens to line breaks inside a forwarded
// body, which the one-frame-per-line framing cannot carry.
type NewlinePolicy string

const (
	// NewlineEscape rewrites CR, LF and backslash as two-character escapes.
	NewlineEscape NewlinePolicy = "escape"
	// NewlineReject refuses bodies that contain CR or LF.
	NewlineReject NewlinePolicy = "reject"
)

var bodyEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`, "\r", `\r`)

// EncodeForward builds the payload of a bridge -> controller frame. The
// returned bytes never contain a line break.
func EncodeForward(body string, policy NewlinePolicy) ([]byte, error) {
	if policy == NewlineReject {
		if strings.ContainsAny(body, "\r\n") {
			return nil, ErrEmbeddedNewline
		}
		return []byte(body), nil
	}
	return []byte(bodyEscaper.Replace(body)), nil
}

// wireRequest uses pointers so absent fields can be told apart from
// empty ones.
type wireRequest struct {
	ChatID  *string `json:"chat_id"`
	Message *string `json:"message"`
}

// DecodeSendRequest parses one controller line. Any failure is returned as
// a *MalformedRequestError carrying the raw line.
func DecodeSendRequest(line []byte) (channel.SendRequest, error) {
	var w wireRequest
	if err := json.Unmarshal(line, &w); err != nil {
		return channel.SendRequest{}, malformed(line, "invalid json", err)
	}

	switch {
	case w.ChatID == nil:
		return channel.SendRequest{}, malformed(line, "missing chat_id", nil)
	case strings.TrimSpace(*w.ChatID) == "":
		return channel.SendRequest{}, malformed(line, "empty chat_id", nil)
	case w.Message == nil:
		return channel.SendRequest{}, malformed(line, "missing message", nil)
	case *w.Message == "":
		return channel.SendRequest{}, malformed(line, "empty message", nil)
	}

	return channel.SendRequest{ChatID: *w.ChatID, Message: *w.Message}, nil
}

// EncodeSendRequest is the inverse of DecodeSendRequest, used by tools
// that act as a controller.
func EncodeSendRequest(req channel.SendRequest) ([]byte, error) {
	if req.ChatID == "" || req.Message == "" {
		return nil, errors.New("controller: chat_id and message are required")
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal send request: %w", err)
	}
	return data, nil
}

func malformed(line []byte, reason string, cause error) error {
	return &MalformedRequestError{
		Line:   string(line),
		Reason: reason,
		Cause:  cause,
	}
}
