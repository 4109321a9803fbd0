package bridge

import "sync/atomic"

// Stats counts what the bridge has done since start.
type Stats struct {
	forwarded      atomic.Int64
	dropped        atomic.Int64
	acked          atomic.Int64
	dispatched     atomic.Int64
	malformed      atomic.Int64
	dispatchFailed atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Forwarded      int64 `json:"forwarded"`
	Dropped        int64 `json:"dropped"`
	Acked          int64 `json:"acks"`
	Dispatched     int64 `json:"dispatched"`
	Malformed      int64 `json:"malformed"`
	DispatchFailed int64 `json:"dispatch_failed"`
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Forwarded:      s.forwarded.Load(),
		Dropped:        s.dropped.Load(),
		Acked:          s.acked.Load(),
		Dispatched:     s.dispatched.Load(),
		Malformed:      s.malformed.Load(),
		DispatchFailed: s.dispatchFailed.Load(),
	}
}
