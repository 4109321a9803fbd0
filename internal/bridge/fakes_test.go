package bridge

import (
	"context"
	"errors"
	"io"
	"sync"

	"wabridge/pkg/channel"
)

type sentMessage struct {
	ChatID string
	Body   string
}

// fakeSession is an in-memory channel.SessionClient.
type fakeSession struct {
	events chan channel.Event

	mu      sync.Mutex
	sent    []sentMessage
	sendErr error
	sentCh  chan sentMessage

	initErr   error
	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		events: make(chan channel.Event, 16),
		sentCh: make(chan sentMessage, 16),
		closed: make(chan struct{}),
	}
}

func (f *fakeSession) Initialize(ctx context.Context) error { return f.initErr }

func (f *fakeSession) Events() <-chan channel.Event { return f.events }

func (f *fakeSession) SendMessage(ctx context.Context, chatID, body string) error {
	f.mu.Lock()
	err := f.sendErr
	if err == nil {
		f.sent = append(f.sent, sentMessage{ChatID: chatID, Body: body})
	}
	f.mu.Unlock()
	if err == nil {
		f.sentCh <- sentMessage{ChatID: chatID, Body: body}
	}
	return err
}

func (f *fakeSession) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeSession) Sent() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func (f *fakeSession) setSendErr(err error) {
	f.mu.Lock()
	f.sendErr = err
	f.mu.Unlock()
}

// memTransport is an in-memory controller.Transport.
type memTransport struct {
	in chan []byte

	mu     sync.Mutex
	frames [][]byte
	out    chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newMemTransport() *memTransport {
	return &memTransport{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (m *memTransport) Send(ctx context.Context, data []byte) error {
	select {
	case <-m.closed:
		return errors.New("closed")
	default:
	}
	cp := append([]byte(nil), data...)
	m.mu.Lock()
	m.frames = append(m.frames, cp)
	m.mu.Unlock()
	m.out <- cp
	return nil
}

func (m *memTransport) Receive(ctx context.Context) ([]byte, error) {
	select {
	case line, ok := <-m.in:
		if !ok {
			return nil, io.EOF
		}
		return line, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-m.closed:
		return nil, io.EOF
	}
}

func (m *memTransport) Close() error {
	m.closeOnce.Do(func() { close(m.closed) })
	return nil
}

func (m *memTransport) Frames() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.frames...)
}
