package bridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wabridge/internal/controller"
	"wabridge/pkg/channel"
)

const monitoredGroup = "120363392877482908@g.us"

type recordingQueue struct {
	reqs []channel.SendRequest
	err  error
}

func (q *recordingQueue) TrySubmit(req channel.SendRequest, source Source) error {
	if q.err != nil {
		return q.err
	}
	q.reqs = append(q.reqs, req)
	return nil
}

func exactFilter(t *testing.T) channel.Filter {
	t.Helper()
	f, err := channel.NewFilter(channel.MatchExact, monitoredGroup, "")
	require.NoError(t, err)
	return f
}

func TestForwarder_ForwardStrategy(t *testing.T) {
	tests := []struct {
		name       string
		origin     string
		body       string
		wantFrames []string
	}{
		{"monitored group", monitoredGroup, "hello", []string{"hello"}},
		{"private chat", "49123456789@c.us", "hello", nil},
		{"other group", "999@g.us", "hello", nil},
		{"multi-line body escaped", monitoredGroup, "a\nb", []string{`a\nb`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := newMemTransport()
			acks := &recordingQueue{}
			stats := &Stats{}
			f := NewForwarder(exactFilter(t), StrategyForward, "", controller.NewlineEscape, out, acks, stats)

			err := f.Handle(context.Background(), &channel.InboundMessage{ID: "1", ChatID: tt.origin, Body: tt.body})
			require.NoError(t, err)

			var got []string
			for _, fr := range out.Frames() {
				got = append(got, string(fr))
			}
			assert.Equal(t, tt.wantFrames, got)
			assert.Empty(t, acks.reqs, "forward strategy never sends")
			assert.Equal(t, int64(len(tt.wantFrames)), stats.Snapshot().Forwarded)
		})
	}
}

func TestForwarder_EchoAckStrategy(t *testing.T) {
	out := newMemTransport()
	acks := &recordingQueue{}
	f := NewForwarder(exactFilter(t), StrategyEchoAck, "", controller.NewlineEscape, out, acks, nil)

	for _, body := range []string{"hello", "anything else", ""} {
		require.NoError(t, f.Handle(context.Background(), &channel.InboundMessage{ChatID: monitoredGroup, Body: body}))
	}
	require.NoError(t, f.Handle(context.Background(), &channel.InboundMessage{ChatID: "49123456789@c.us", Body: "x"}))

	require.Len(t, acks.reqs, 3)
	for _, req := range acks.reqs {
		assert.Equal(t, monitoredGroup, req.ChatID)
		assert.Equal(t, DefaultAckMessage, req.Message)
	}
	assert.Empty(t, out.Frames(), "echo-ack writes nothing to the controller")
}

func TestForwarder_SkipsOwnMessages(t *testing.T) {
	for _, strategy := range []Strategy{StrategyForward, StrategyEchoAck} {
		t.Run(string(strategy), func(t *testing.T) {
			out := newMemTransport()
			acks := &recordingQueue{}
			stats := &Stats{}
			f := NewForwarder(exactFilter(t), strategy, "pong", controller.NewlineEscape, out, acks, stats)

			msg := &channel.InboundMessage{ID: "own", ChatID: monitoredGroup, Body: "controller reply", FromMe: true}
			require.NoError(t, f.Handle(context.Background(), msg))

			assert.Empty(t, out.Frames(), "own message relayed to the controller")
			assert.Empty(t, acks.reqs, "own message acknowledged")
			assert.Equal(t, int64(1), stats.Snapshot().Dropped)
			assert.Zero(t, stats.Snapshot().Forwarded)
		})
	}
}

func TestForwarder_EchoAckQueueFull(t *testing.T) {
	acks := &recordingQueue{err: ErrQueueFull}
	f := NewForwarder(exactFilter(t), StrategyEchoAck, "", "", nil, acks, nil)

	err := f.Handle(context.Background(), &channel.InboundMessage{ChatID: monitoredGroup, Body: "x"})
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestForwarder_SuffixMode(t *testing.T) {
	filter, err := channel.NewFilter(channel.MatchSuffix, "", "")
	require.NoError(t, err)

	out := newMemTransport()
	f := NewForwarder(filter, StrategyForward, "", "", out, nil, nil)

	require.NoError(t, f.Handle(context.Background(), &channel.InboundMessage{ChatID: "111@g.us", Body: "one"}))
	require.NoError(t, f.Handle(context.Background(), &channel.InboundMessage{ChatID: "222@g.us", Body: "two"}))
	require.NoError(t, f.Handle(context.Background(), &channel.InboundMessage{ChatID: "333@c.us", Body: "three"}))

	require.Len(t, out.Frames(), 2)
	assert.Equal(t, "one", string(out.Frames()[0]))
	assert.Equal(t, "two", string(out.Frames()[1]))
}

func TestForwarder_RejectNewlines(t *testing.T) {
	out := newMemTransport()
	stats := &Stats{}
	f := NewForwarder(exactFilter(t), StrategyForward, "", controller.NewlineReject, out, nil, stats)

	err := f.Handle(context.Background(), &channel.InboundMessage{ChatID: monitoredGroup, Body: "a\nb"})
	assert.ErrorIs(t, err, controller.ErrEmbeddedNewline)
	assert.Empty(t, out.Frames())
	assert.Equal(t, int64(1), stats.Snapshot().Dropped)
}

func TestForwarder_NoController(t *testing.T) {
	f := NewForwarder(exactFilter(t), StrategyForward, "", "", nil, nil, nil)
	assert.NoError(t, f.Handle(context.Background(), &channel.InboundMessage{ChatID: monitoredGroup, Body: "x"}))
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    Strategy
		wantErr bool
	}{
		{"", StrategyForward, false},
		{"forward", StrategyForward, false},
		{"echo-ack", StrategyEchoAck, false},
		{"both", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStrategy(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
