// Package controller implements the line-delimited channel between the
// bridge and its external controller process.
package controller

import (
	"context"
)

// TransportType represents the type of controller transport.
type TransportType string

const (
	// TransportStdio exchanges lines over the process stdin/stdout.
	TransportStdio TransportType = "stdio"
	// TransportWebSocket exchanges lines as websocket text messages.
	TransportWebSocket TransportType = "websocket"
)

// Transport carries controller frames. Each Send is exactly one frame and
// each Receive returns exactly one frame, without the line terminator.
type Transport interface {
	// Send writes one frame.
	Send(ctx context.Context, data []byte) error

	// Receive blocks until the next frame arrives. It returns io.EOF once
	// the controller side is closed.
	Receive(ctx context.Context) ([]byte, error)

	// Close closes the transport and releases resources.
	Close() error
}
