package bridge

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wabridge/internal/controller"
	"wabridge/internal/session"
	"wabridge/pkg/channel"
)

type harness struct {
	bridge    *Bridge
	session   *fakeSession
	transport *memTransport
	qr        *bytes.Buffer
	cancel    context.CancelFunc
	done      chan error
}

func startBridge(t *testing.T, opts Options) *harness {
	t.Helper()

	if opts.Filter.Mode == "" {
		opts.Filter = exactFilter(t)
	}
	h := &harness{
		session:   newFakeSession(),
		transport: newMemTransport(),
		qr:        &bytes.Buffer{},
		done:      make(chan error, 1),
	}
	opts.QROutput = h.qr

	b, err := New(h.session, h.transport, opts)
	require.NoError(t, err)
	h.bridge = b

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- b.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(2 * time.Second):
			t.Error("bridge did not stop")
		}
	})
	return h
}

func (h *harness) ready(t *testing.T) {
	t.Helper()
	h.session.events <- channel.Event{Type: channel.EventReady}
	select {
	case <-h.bridge.Lifecycle().ReadyC():
	case <-time.After(2 * time.Second):
		t.Fatal("bridge never became ready")
	}
}

func (h *harness) message(origin, body string) {
	h.session.events <- channel.Event{
		Type:    channel.EventMessage,
		Message: &channel.InboundMessage{ID: "id-" + body, ChatID: origin, Body: body},
	}
}

func (h *harness) nextFrame(t *testing.T) string {
	t.Helper()
	select {
	case f := <-h.transport.out:
		return string(f)
	case <-time.After(2 * time.Second):
		t.Fatal("no frame forwarded")
		return ""
	}
}

func (h *harness) nextSend(t *testing.T) sentMessage {
	t.Helper()
	select {
	case m := <-h.session.sentCh:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no send issued")
		return sentMessage{}
	}
}

func TestBridge_ForwardsMonitoredGroup(t *testing.T) {
	h := startBridge(t, Options{})
	h.ready(t)

	h.message("49123456789@c.us", "private")
	h.message(monitoredGroup, "hello")

	assert.Equal(t, "hello", h.nextFrame(t))
	assert.Len(t, h.transport.Frames(), 1)
	assert.Empty(t, h.session.Sent())

	st := h.bridge.Status()
	assert.Equal(t, "ready", st.State)
	assert.Equal(t, int64(1), st.Stats.Forwarded)
	assert.Equal(t, int64(1), st.Stats.Dropped)
}

func TestBridge_ControllerSend(t *testing.T) {
	h := startBridge(t, Options{})
	h.ready(t)

	h.transport.in <- []byte(`not json`)
	h.transport.in <- []byte(`{"chat_id":"120363392877482908@g.us","message":"hi"}`)

	assert.Equal(t, sentMessage{ChatID: monitoredGroup, Body: "hi"}, h.nextSend(t))
	assert.Eventually(t, func() bool {
		return h.bridge.Status().Stats.Malformed == 1
	}, time.Second, 10*time.Millisecond)
}

func TestBridge_EchoAck(t *testing.T) {
	h := startBridge(t, Options{Strategy: StrategyEchoAck})
	h.ready(t)

	h.message(monitoredGroup, "whatever")

	assert.Equal(t, sentMessage{ChatID: monitoredGroup, Body: DefaultAckMessage}, h.nextSend(t))
	assert.Empty(t, h.transport.Frames())
}

func TestBridge_DropsBeforeReady(t *testing.T) {
	h := startBridge(t, Options{})

	h.session.events <- channel.Event{Type: channel.EventQR, QR: "2@pairing"}
	h.message(monitoredGroup, "early")
	h.transport.in <- []byte(`{"chat_id":"x@c.us","message":"early"}`)

	assert.Eventually(t, func() bool {
		st := h.bridge.Status().Stats
		return st.Dropped == 1 && st.DispatchFailed == 1
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, "awaiting_auth", h.bridge.Status().State)
	assert.Empty(t, h.transport.Frames())
	assert.Empty(t, h.session.Sent())
	assert.Contains(t, h.qr.String(), "2@pairing")
}

func TestBridge_DuplicateReady(t *testing.T) {
	h := startBridge(t, Options{})
	h.ready(t)
	since := h.bridge.Lifecycle().Since()

	h.session.events <- channel.Event{Type: channel.EventReady}
	h.message(monitoredGroup, "after")
	h.nextFrame(t)

	assert.Equal(t, session.Ready, h.bridge.Lifecycle().State())
	assert.Equal(t, since, h.bridge.Lifecycle().Since())
}

func TestBridge_FatalEventTerminates(t *testing.T) {
	h := startBridge(t, Options{})
	h.ready(t)

	h.session.events <- channel.Event{Type: channel.EventDisconnected, Reason: "NAVIGATION"}

	select {
	case err := <-h.done:
		assert.ErrorIs(t, err, ErrSessionFatal)
		h.done <- err
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not terminate")
	}
	assert.Equal(t, session.Terminated, h.bridge.Lifecycle().State())

	select {
	case <-h.session.closed:
	default:
		t.Error("session client not closed")
	}
}

func TestBridge_ControllerEOFKeepsRunning(t *testing.T) {
	h := startBridge(t, Options{})
	h.ready(t)

	close(h.transport.in)
	h.message(monitoredGroup, "still here")

	assert.Equal(t, "still here", h.nextFrame(t))
	assert.Equal(t, session.Ready, h.bridge.Lifecycle().State())
}

func TestBridge_CancelStopsCleanly(t *testing.T) {
	h := startBridge(t, Options{})
	h.ready(t)

	h.cancel()
	select {
	case err := <-h.done:
		assert.NoError(t, err)
		h.done <- err
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not stop")
	}
	assert.Equal(t, session.Terminated, h.bridge.Lifecycle().State())
}

func TestBridge_AuthTimeout(t *testing.T) {
	h := startBridge(t, Options{AuthTimeout: 30 * time.Millisecond})

	select {
	case err := <-h.done:
		assert.ErrorIs(t, err, ErrAuthTimeout)
		assert.ErrorIs(t, err, ErrSessionFatal)
		h.done <- err
	case <-time.After(2 * time.Second):
		t.Fatal("auth timeout did not fire")
	}
}

func TestBridge_InitializeFailure(t *testing.T) {
	s := newFakeSession()
	s.initErr = errors.New("node: not found")

	b, err := New(s, nil, Options{Filter: exactFilter(t)})
	require.NoError(t, err)

	err = b.Run(context.Background())
	assert.ErrorIs(t, err, ErrSessionFatal)
	assert.Equal(t, session.Terminated, b.Lifecycle().State())
}

func TestBridge_OnReadySend(t *testing.T) {
	s := newFakeSession()
	req := channel.SendRequest{ChatID: monitoredGroup, Message: "one-shot"}

	b, err := New(s, nil, Options{
		Filter: exactFilter(t),
		OnReady: func(ctx context.Context, b *Bridge) error {
			return b.Send(ctx, req)
		},
	})
	require.NoError(t, err)

	s.events <- channel.Event{Type: channel.EventReady}
	require.NoError(t, b.Run(context.Background()))
	assert.Equal(t, []sentMessage{{ChatID: monitoredGroup, Body: "one-shot"}}, s.Sent())
}

func TestBridge_SendNotReady(t *testing.T) {
	b, err := New(newFakeSession(), nil, Options{Filter: exactFilter(t)})
	require.NoError(t, err)

	err = b.Send(context.Background(), channel.SendRequest{ChatID: "x@c.us", Message: "y"})
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, nil, Options{})
	assert.Error(t, err)

	_, err = New(newFakeSession(), nil, Options{Strategy: "both"})
	assert.Error(t, err)
}

func TestBridge_OwnMessagesNotForwarded(t *testing.T) {
	h := startBridge(t, Options{})
	h.ready(t)

	h.session.events <- channel.Event{
		Type:    channel.EventMessage,
		Message: &channel.InboundMessage{ID: "own", ChatID: monitoredGroup, Body: "controller reply", FromMe: true},
	}
	h.message(monitoredGroup, "from a member")

	assert.Equal(t, "from a member", h.nextFrame(t))
	assert.Len(t, h.transport.Frames(), 1)
	assert.Equal(t, int64(1), h.bridge.Status().Stats.Dropped)
}

func TestBridge_OversizedControllerLineSkipped(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	fs := newFakeSession()
	tr := controller.NewStdioTransportWithIO(pr, &bytes.Buffer{}, 64)
	b, err := New(fs, tr, Options{Filter: exactFilter(t), QROutput: &bytes.Buffer{}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	fs.events <- channel.Event{Type: channel.EventReady}
	select {
	case <-b.Lifecycle().ReadyC():
	case <-time.After(2 * time.Second):
		t.Fatal("bridge never became ready")
	}

	go func() {
		_, _ = pw.Write([]byte(strings.Repeat("x", 100) + "\n"))
		_, _ = pw.Write([]byte(`{"chat_id":"120363392877482908@g.us","message":"hi"}` + "\n"))
	}()

	select {
	case m := <-fs.sentCh:
		assert.Equal(t, sentMessage{ChatID: monitoredGroup, Body: "hi"}, m)
	case <-time.After(2 * time.Second):
		t.Fatal("valid line after an oversized one was never dispatched")
	}

	assert.Eventually(t, func() bool { return b.Status().Stats.Dispatched == 1 }, 2*time.Second, 10*time.Millisecond)
	st := b.Status()
	assert.Equal(t, "ready", st.State)
	assert.Equal(t, int64(1), st.Stats.Malformed)
}
