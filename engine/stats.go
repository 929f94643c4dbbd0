package engine

import "go.uber.org/atomic"

// Stats are the coordinator's lock-free running counters, sampled by
// the CLI for its completion summary.
type Stats struct {
	bitfieldsReceived atomic.Int64
	piecesCompleted   atomic.Int64
	bytesFlushed      atomic.Int64
}

// Snapshot is a point-in-time copy of Stats, safe to log or print.
type Snapshot struct {
	BitfieldsReceived int64
	PiecesCompleted   int64
	BytesFlushed      int64
}

// Snapshot reads every counter.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		BitfieldsReceived: s.bitfieldsReceived.Load(),
		PiecesCompleted:   s.piecesCompleted.Load(),
		BytesFlushed:      s.bytesFlushed.Load(),
	}
}
