package bridge

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"wabridge/internal/controller"
	"wabridge/pkg/channel"
	"wabridge/pkg/logger"
)

// DefaultQueueSize bounds the number of send requests waiting for the
// session client.
const DefaultQueueSize = 256

// Source identifies who produced a send request.
type Source string

const (
	SourceController Source = "controller"
	SourceAck        Source = "ack"
)

// Sender is the part of the session client the dispatcher needs.
type Sender interface {
	SendMessage(ctx context.Context, chatID, body string) error
}

type job struct {
	req    channel.SendRequest
	source Source
}

// Dispatcher hands send requests to the session client one at a time, in
// the order they were submitted. Submission does not wait for delivery.
type Dispatcher struct {
	sender      Sender
	ready       func() bool
	sendTimeout time.Duration

	queue chan job
	stats *Stats
	log   zerolog.Logger
}

// NewDispatcher creates a dispatcher. ready gates every send; requests
// made while it returns false fail with ErrNotReady.
func NewDispatcher(sender Sender, ready func() bool, queueSize int, sendTimeout time.Duration, stats *Stats) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if ready == nil {
		ready = func() bool { return true }
	}
	if stats == nil {
		stats = &Stats{}
	}
	return &Dispatcher{
		sender:      sender,
		ready:       ready,
		sendTimeout: sendTimeout,
		queue:       make(chan job, queueSize),
		stats:       stats,
		log:         *logger.Component("dispatcher"),
	}
}

// HandleLine decodes one controller line and queues it. Malformed lines
// and requests made before the session is Ready are reported and dropped;
// the caller keeps reading either way.
func (d *Dispatcher) HandleLine(ctx context.Context, line []byte) error {
	req, err := controller.DecodeSendRequest(line)
	if err != nil {
		d.Reject(err)
		return err
	}

	if !d.ready() {
		err := &DispatchFailedError{Request: req, Source: SourceController, Cause: ErrNotReady}
		d.stats.dispatchFailed.Add(1)
		d.log.Error().Err(err).Str("chat_id", req.ChatID).Msg("Dispatch failed")
		return err
	}

	return d.Submit(ctx, req, SourceController)
}

// Reject reports a controller line that never became a request, either
// undecodable or rejected by the transport.
func (d *Dispatcher) Reject(err error) {
	d.stats.malformed.Add(1)
	d.log.Error().Err(err).Msg("Malformed request")
}

// Submit queues a request, waiting for space if the queue is full.
func (d *Dispatcher) Submit(ctx context.Context, req channel.SendRequest, source Source) error {
	select {
	case d.queue <- job{req: req, source: source}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySubmit queues a request or returns ErrQueueFull immediately.
func (d *Dispatcher) TrySubmit(req channel.SendRequest, source Source) error {
	select {
	case d.queue <- job{req: req, source: source}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending returns the number of queued requests.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

// Run sends queued requests until ctx is done. Requests still queued at
// that point are discarded.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			if n := len(d.queue); n > 0 {
				d.log.Warn().Int("pending", n).Msg("Discarding queued requests")
			}
			return nil
		case j := <-d.queue:
			_ = d.dispatch(ctx, j)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, j job) error {
	log := d.log.With().
		Str("chat_id", j.req.ChatID).
		Str("source", string(j.source)).
		Logger()

	if !d.ready() {
		return d.fail(log, j, ErrNotReady)
	}

	sendCtx := ctx
	if d.sendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, d.sendTimeout)
		defer cancel()
	}

	start := time.Now()
	if err := d.sender.SendMessage(sendCtx, j.req.ChatID, j.req.Message); err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return err
		}
		return d.fail(log, j, err)
	}

	d.stats.dispatched.Add(1)
	log.Info().Dur("duration", time.Since(start)).Msg("Message sent")
	return nil
}

func (d *Dispatcher) fail(log zerolog.Logger, j job, cause error) error {
	err := &DispatchFailedError{Request: j.req, Source: j.source, Cause: cause}
	d.stats.dispatchFailed.Add(1)
	log.Error().Err(err).Str("message", j.req.Message).Msg("Dispatch failed")
	return err
}
