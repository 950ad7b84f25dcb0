// Package store persists lottery snapshots and the emitted event log in a
// bbolt database so a node can resume a round after a restart.
package store

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/Fantom-foundation/lachesis-base/common/bigendian"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
	bolt "go.etcd.io/bbolt"

	"github.com/rony4d/go-lottery/ledger"
	"github.com/rony4d/go-lottery/lottery"
)

var (
	snapshotBucket = []byte("snapshot")
	eventsBucket   = []byte("events")

	headKey = []byte("head")
)

// ErrNotFound is returned by LoadSnapshot on a fresh database.
var ErrNotFound = errors.New("not found")

// Snapshot is everything needed to resume a node: the lottery aggregate and
// the balances it settles against.
type Snapshot struct {
	Lottery  lottery.Snapshot
	Accounts []ledger.Account
}

// eventRecord is the on-disk form of a lottery.Event. The log itself is
// RLP encoded through types.Log, which keeps only address, topics and data,
// so the positional fields travel alongside it.
type eventRecord struct {
	Log   *types.Log
	Round uint64
	Index uint64
	Time  uint64
	Prize *big.Int
}

// Store is a bbolt backed snapshot and event store.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{snapshotBucket, eventsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init store %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Path is the database file location.
func (s *Store) Path() string { return s.db.Path() }

// SaveSnapshot replaces the stored snapshot.
func (s *Store) SaveSnapshot(snap Snapshot) error {
	enc, err := rlp.EncodeToBytes(&snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(snapshotBucket).Put(headKey, enc)
	})
}

// LoadSnapshot returns the last saved snapshot or ErrNotFound.
func (s *Store) LoadSnapshot() (Snapshot, error) {
	var snap Snapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(snapshotBucket).Get(headKey)
		if raw == nil {
			return ErrNotFound
		}
		// raw is only valid inside the transaction; DecodeBytes copies.
		return rlp.DecodeBytes(raw, &snap)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Snapshot{}, err
		}
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// AppendEvent stores ev under the next sequence number and returns it.
// Sequence numbers start at 1.
func (s *Store) AppendEvent(ev lottery.Event) (uint64, error) {
	rec := eventRecord{
		Log:   &ev.Log,
		Round: ev.Round,
		Index: uint64(ev.Log.Index),
		Time:  uint64(ev.Time.UnixNano()),
		Prize: ev.Prize,
	}
	enc, err := rlp.EncodeToBytes(&rec)
	if err != nil {
		return 0, fmt.Errorf("encode event: %w", err)
	}
	var seq uint64
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(eventsBucket)
		next, err := b.NextSequence()
		if err != nil {
			return err
		}
		seq = next
		return b.Put(bigendian.Uint64ToBytes(seq), enc)
	})
	if err != nil {
		return 0, err
	}
	return seq, nil
}

// Events returns every stored event with sequence >= from, in order.
func (s *Store) Events(from uint64) ([]lottery.Event, error) {
	var events []lottery.Event
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(eventsBucket).Cursor()
		for k, v := c.Seek(bigendian.Uint64ToBytes(from)); k != nil; k, v = c.Next() {
			var rec eventRecord
			if err := rlp.DecodeBytes(v, &rec); err != nil {
				return fmt.Errorf("decode event %d: %w", bigendian.BytesToUint64(k), err)
			}
			rec.Log.BlockNumber = rec.Round
			rec.Log.Index = uint(rec.Index)
			ev, err := lottery.ParseLog(*rec.Log)
			if err != nil {
				return fmt.Errorf("event %d: %w", bigendian.BytesToUint64(k), err)
			}
			ev.Time = time.Unix(0, int64(rec.Time))
			if ev.Kind == lottery.EventWinnerPicked {
				ev.Prize = rec.Prize
			}
			events = append(events, ev)
		}
		return nil
	})
	return events, err
}

// Close releases the database file.
func (s *Store) Close() error {
	return s.db.Close()
}
