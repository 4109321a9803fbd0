// Package bridge connects a chat session to an external controller. It
// owns the session client and runs three listeners: session events, the
// controller line reader and the outbound dispatcher.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"wabridge/internal/controller"
	"wabridge/internal/session"
	"wabridge/pkg/channel"
	"wabridge/pkg/logger"
)

// errStopped ends the listener group after OnReady returns.
var errStopped = errors.New("bridge: stopped")

// Options configures a Bridge.
type Options struct {
	Filter     channel.Filter
	Strategy   Strategy
	AckMessage string
	Newline    controller.NewlinePolicy

	QueueSize   int
	SendTimeout time.Duration

	// AuthTimeout > 0 ends the bridge with ErrAuthTimeout if the session
	// is not Ready in time. Zero waits forever.
	AuthTimeout time.Duration

	// QROutput receives pairing challenges. Defaults to stderr.
	QROutput io.Writer

	// OnReady, if set, runs once the session is Ready. The bridge stops
	// when it returns, with its error.
	OnReady func(ctx context.Context, b *Bridge) error
}

// Status is a snapshot for the status endpoint and heartbeat.
type Status struct {
	State      string        `json:"state"`
	StateSince time.Time     `json:"state_since"`
	Filter     string        `json:"filter"`
	Strategy   Strategy      `json:"strategy"`
	Uptime     string        `json:"uptime"`
	Pending    int           `json:"pending"`
	Stats      StatsSnapshot `json:"stats"`
}

// Bridge owns the session handle and wires it to the controller.
type Bridge struct {
	client    channel.SessionClient
	transport controller.Transport
	opts      Options

	lifecycle  *session.Lifecycle
	gate       *AuthGate
	forwarder  *Forwarder
	dispatcher *Dispatcher
	stats      *Stats

	startedAt time.Time
	log       zerolog.Logger
}

// New creates a bridge. transport may be nil when no controller is
// attached (pairing and one-shot sends).
func New(client channel.SessionClient, transport controller.Transport, opts Options) (*Bridge, error) {
	if client == nil {
		return nil, errors.New("bridge: session client is required")
	}
	if opts.Strategy == "" {
		opts.Strategy = StrategyForward
	}
	if opts.Strategy != StrategyForward && opts.Strategy != StrategyEchoAck {
		return nil, fmt.Errorf("bridge: unknown strategy %q", opts.Strategy)
	}

	b := &Bridge{
		client:    client,
		transport: transport,
		opts:      opts,
		lifecycle: session.NewLifecycle(),
		stats:     &Stats{},
		startedAt: time.Now(),
		log:       *logger.Component("bridge"),
	}
	b.gate = NewAuthGate(b.lifecycle, opts.QROutput)
	b.dispatcher = NewDispatcher(client, b.lifecycle.IsReady, opts.QueueSize, opts.SendTimeout, b.stats)

	var out FrameWriter
	if transport != nil {
		out = transport
	}
	b.forwarder = NewForwarder(opts.Filter, opts.Strategy, opts.AckMessage, opts.Newline, out, b.dispatcher, b.stats)
	return b, nil
}

// Lifecycle exposes the session state machine.
func (b *Bridge) Lifecycle() *session.Lifecycle {
	return b.lifecycle
}

// Status returns the current state and counters.
func (b *Bridge) Status() Status {
	return Status{
		State:      b.lifecycle.State().String(),
		StateSince: b.lifecycle.Since(),
		Filter:     b.opts.Filter.String(),
		Strategy:   b.opts.Strategy,
		Uptime:     time.Since(b.startedAt).Round(time.Second).String(),
		Pending:    b.dispatcher.Pending(),
		Stats:      b.stats.Snapshot(),
	}
}

// Send delivers one request synchronously, bypassing the queue.
func (b *Bridge) Send(ctx context.Context, req channel.SendRequest) error {
	if !b.lifecycle.IsReady() {
		return &DispatchFailedError{Request: req, Source: SourceController, Cause: ErrNotReady}
	}
	if b.opts.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.SendTimeout)
		defer cancel()
	}
	if err := b.client.SendMessage(ctx, req.ChatID, req.Message); err != nil {
		b.stats.dispatchFailed.Add(1)
		return &DispatchFailedError{Request: req, Source: SourceController, Cause: err}
	}
	b.stats.dispatched.Add(1)
	b.log.Info().Str("chat_id", req.ChatID).Msg("Message sent")
	return nil
}

// Run initializes the session and runs until ctx is canceled or the
// session fails. Cancellation returns nil; a session failure returns a
// *SessionFatalError.
func (b *Bridge) Run(ctx context.Context) error {
	if err := b.lifecycle.Begin(); err != nil {
		return err
	}

	b.log.Info().
		Str("filter", b.opts.Filter.String()).
		Str("strategy", string(b.opts.Strategy)).
		Bool("controller", b.transport != nil).
		Msg("Starting bridge")

	if err := b.client.Initialize(ctx); err != nil {
		fatal := &SessionFatalError{Reason: "initialize", Cause: err}
		b.shutdown(fatal)
		return fatal
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return b.eventLoop(gctx) })
	g.Go(func() error { return b.dispatcher.Run(gctx) })

	if b.transport != nil {
		g.Go(func() error { return b.readLoop(gctx) })
	}
	if b.opts.AuthTimeout > 0 {
		g.Go(func() error { return b.watchAuth(gctx) })
	}
	if b.opts.OnReady != nil {
		g.Go(func() error { return b.runOnReady(gctx) })
	}

	err := g.Wait()
	if errors.Is(err, errStopped) {
		err = nil
	}
	b.shutdown(err)
	return err
}

func (b *Bridge) shutdown(cause error) {
	if b.lifecycle.Terminate(cause) {
		if cause != nil {
			b.log.Error().Err(cause).Msg("Bridge terminated")
		} else {
			b.log.Info().Msg("Bridge stopped")
		}
	}
	if err := b.client.Close(); err != nil {
		b.log.Warn().Err(err).Msg("Close session client")
	}
	if b.transport != nil {
		_ = b.transport.Close()
	}
}

func (b *Bridge) eventLoop(ctx context.Context) error {
	events := b.client.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return &SessionFatalError{Reason: "session event stream closed"}
			}
			if err := b.handleEvent(ctx, ev); err != nil {
				return err
			}
		}
	}
}

func (b *Bridge) handleEvent(ctx context.Context, ev channel.Event) error {
	if ev.Fatal() {
		return &SessionFatalError{Reason: fmt.Sprintf("%s: %s", ev.Type, ev.Reason)}
	}

	switch ev.Type {
	case channel.EventQR:
		b.gate.Challenge(ev.QR)
	case channel.EventAuthenticated:
		b.gate.Authenticated()
	case channel.EventReady:
		b.gate.Ready()
	case channel.EventMessage:
		if ev.Message == nil {
			return nil
		}
		if !b.lifecycle.IsReady() {
			b.stats.dropped.Add(1)
			b.log.Warn().
				Str("from", ev.Message.ChatID).
				Str("state", b.lifecycle.State().String()).
				Msg("Message before ready, dropped")
			return nil
		}
		// per-message failures are already logged
		_ = b.forwarder.Handle(ctx, ev.Message)
	default:
		b.log.Debug().Str("type", string(ev.Type)).Msg("Unhandled session event")
	}
	return nil
}

// readLoop ends on controller EOF without stopping the bridge.
func (b *Bridge) readLoop(ctx context.Context) error {
	for {
		line, err := b.transport.Receive(ctx)
		if err != nil && ctx.Err() == nil && errors.Is(err, controller.ErrMalformedRequest) {
			b.dispatcher.Reject(err)
			continue
		}
		if err != nil {
			switch {
			case ctx.Err() != nil:
			case errors.Is(err, io.EOF):
				b.log.Info().Msg("Controller closed its input, no further requests")
			default:
				b.log.Error().Err(err).Msg("Controller read failed, no further requests")
			}
			return nil
		}
		if len(line) == 0 {
			continue
		}
		// malformed or not-ready lines are logged and skipped
		if err := b.dispatcher.HandleLine(ctx, line); err != nil && ctx.Err() != nil {
			return nil
		}
	}
}

func (b *Bridge) watchAuth(ctx context.Context) error {
	timer := time.NewTimer(b.opts.AuthTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil
	case <-b.lifecycle.ReadyC():
		return nil
	case <-timer.C:
		return &SessionFatalError{Reason: b.opts.AuthTimeout.String(), Cause: ErrAuthTimeout}
	}
}

func (b *Bridge) runOnReady(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case <-b.lifecycle.ReadyC():
	}
	if err := b.opts.OnReady(ctx, b); err != nil {
		return err
	}
	return errStopped
}
