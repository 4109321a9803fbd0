package bridge

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"wabridge/internal/controller"
	"wabridge/pkg/channel"
	"wabridge/pkg/logger"
)

// Strategy selects what the forwarder does with a matched message.
type Strategy string

const (
	// StrategyForward writes the body to the controller and sends nothing.
	StrategyForward Strategy = "forward"
	// StrategyEchoAck sends a fixed acknowledgment into the originating
	// conversation and writes nothing to the controller.
	StrategyEchoAck Strategy = "echo-ack"
)

// DefaultAckMessage is the acknowledgment body used by StrategyEchoAck.
const DefaultAckMessage = "✅ Message received"

// ParseStrategy validates a configured strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyForward, "":
		return StrategyForward, nil
	case StrategyEchoAck:
		return StrategyEchoAck, nil
	default:
		return "", fmt.Errorf("unknown forward strategy %q", s)
	}
}

// FrameWriter accepts frames bound for the controller.
type FrameWriter interface {
	Send(ctx context.Context, data []byte) error
}

// ackQueue accepts acknowledgment sends without blocking.
type ackQueue interface {
	TrySubmit(req channel.SendRequest, source Source) error
}

// Forwarder applies the monitored-group predicate to inbound messages and
// runs the configured strategy on matches.
type Forwarder struct {
	filter   channel.Filter
	strategy Strategy
	ack      string
	newline  controller.NewlinePolicy

	out   FrameWriter
	acks  ackQueue
	stats *Stats
	log   zerolog.Logger
}

// NewForwarder creates a forwarder. out may be nil when no controller is
// attached; matched messages are then only logged.
func NewForwarder(filter channel.Filter, strategy Strategy, ack string, newline controller.NewlinePolicy, out FrameWriter, acks ackQueue, stats *Stats) *Forwarder {
	if ack == "" {
		ack = DefaultAckMessage
	}
	if newline == "" {
		newline = controller.NewlineEscape
	}
	if stats == nil {
		stats = &Stats{}
	}
	return &Forwarder{
		filter:   filter,
		strategy: strategy,
		ack:      ack,
		newline:  newline,
		out:      out,
		acks:     acks,
		stats:    stats,
		log:      *logger.Component("forwarder"),
	}
}

// Handle processes one inbound message. Errors are per-message and must
// not stop the event loop.
func (f *Forwarder) Handle(ctx context.Context, msg *channel.InboundMessage) error {
	f.log.Info().
		Str("from", msg.ChatID).
		Str("sender", msg.SenderID).
		Str("body", msg.Body).
		Bool("group", msg.IsGroup()).
		Msg("Message received")

	// the session's own sends, including acknowledgments and controller
	// replies, are never relayed
	if msg.FromMe {
		f.stats.dropped.Add(1)
		f.log.Debug().Str("id", msg.ID).Msg("Own message, skipped")
		return nil
	}

	if !f.filter.Match(msg.ChatID) {
		f.stats.dropped.Add(1)
		f.log.Debug().Str("from", msg.ChatID).Str("filter", f.filter.String()).Msg("Not from monitored group")
		return nil
	}

	switch f.strategy {
	case StrategyEchoAck:
		return f.acknowledge(msg)
	default:
		return f.forward(ctx, msg)
	}
}

func (f *Forwarder) forward(ctx context.Context, msg *channel.InboundMessage) error {
	if f.out == nil {
		f.log.Debug().Str("id", msg.ID).Msg("No controller attached, not forwarding")
		return nil
	}

	frame, err := controller.EncodeForward(msg.Body, f.newline)
	if err != nil {
		f.stats.dropped.Add(1)
		f.log.Error().Err(err).Str("id", msg.ID).Msg("Forward rejected")
		return err
	}
	if err := f.out.Send(ctx, frame); err != nil {
		f.log.Error().Err(err).Str("id", msg.ID).Msg("Forward failed")
		return fmt.Errorf("forward message %s: %w", msg.ID, err)
	}

	f.stats.forwarded.Add(1)
	f.log.Debug().Str("id", msg.ID).Int("bytes", len(frame)).Msg("Forwarded to controller")
	return nil
}

func (f *Forwarder) acknowledge(msg *channel.InboundMessage) error {
	if f.acks == nil {
		return nil
	}

	req := channel.SendRequest{ChatID: msg.ChatID, Message: f.ack}
	if err := f.acks.TrySubmit(req, SourceAck); err != nil {
		f.log.Warn().Err(err).Str("chat_id", msg.ChatID).Msg("Acknowledgment dropped")
		return err
	}
	f.stats.acked.Add(1)
	return nil
}
