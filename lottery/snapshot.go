package lottery

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Snapshot is the persistable state of a lottery. Field types are chosen to
// be RLP friendly: times are unix nanoseconds and the optional pending id is
// guarded by HasPending.
type Snapshot struct {
	State          uint8
	Players        []common.Address
	LastTimestamp  uint64
	HasPending     bool
	PendingRequest *big.Int
	RequestedAt    uint64
	RecentWinner   common.Address
	Round          uint64
	LogIndex       uint64
}

// Snapshot captures the current state.
func (l *Lottery) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshot()
}

// SnapshotWith captures the current state and runs fn with it before any
// other call can change the lottery. Ledger reads made inside fn agree with
// the snapshot, since every move of the lottery's funds happens under the
// same lock. fn must not call back into the lottery.
func (l *Lottery) SnapshotWith(fn func(Snapshot)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(l.snapshot())
}

// snapshot is Snapshot for callers holding mu.
func (l *Lottery) snapshot() Snapshot {
	s := Snapshot{
		State:          uint8(l.state),
		Players:        append([]common.Address(nil), l.players...),
		LastTimestamp:  unixNano(l.lastTimestamp),
		PendingRequest: new(big.Int),
		RecentWinner:   l.recentWinner,
		Round:          l.round,
		LogIndex:       uint64(l.logIndex),
	}
	if l.pending != nil {
		s.HasPending = true
		s.PendingRequest.Set(l.pending)
		s.RequestedAt = unixNano(l.requestedAt)
	}
	return s
}

// Restore replaces the current state with s. A snapshot that breaks the
// state/pending-request pairing is refused and nothing changes.
func (l *Lottery) Restore(s Snapshot) error {
	state := State(s.State)
	if !state.valid() {
		return fmt.Errorf("restore: invalid state %d", s.State)
	}
	if s.HasPending != (state == StateCalculating) {
		return fmt.Errorf("restore: state %s with pending=%v", state, s.HasPending)
	}
	if s.HasPending && s.PendingRequest == nil {
		return fmt.Errorf("restore: pending request id missing")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.state = state
	l.players = append([]common.Address(nil), s.Players...)
	l.lastTimestamp = time.Unix(0, int64(s.LastTimestamp))
	l.pending = nil
	l.requestedAt = time.Time{}
	if s.HasPending {
		l.pending = new(big.Int).Set(s.PendingRequest)
		l.requestedAt = time.Unix(0, int64(s.RequestedAt))
	}
	l.recentWinner = s.RecentWinner
	l.round = s.Round
	l.logIndex = uint(s.LogIndex)
	return nil
}

func unixNano(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	return uint64(t.UnixNano())
}
