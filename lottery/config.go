package lottery

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// DefaultRequestConfirmations is how many blocks the oracle waits before
	// answering when the config leaves it unset.
	DefaultRequestConfirmations uint16 = 3

	// DefaultNumWords is the number of random words asked for per round.
	// Only the first one is used to pick the winner.
	DefaultNumWords uint32 = 1
)

// Config describes one lottery instance. It is fixed at construction time;
// nothing in this package mutates it afterwards.
type Config struct {
	// Address is the lottery's own account in the ledger. Entrance fees are
	// collected into it and the prize is paid out of it.
	Address common.Address

	// EntranceFee is the minimum payment (in wei) for a single entry.
	EntranceFee *big.Int

	// Interval is the minimum time a round stays open before it can settle.
	Interval time.Duration

	// Randomness request parameters, passed through to the coordinator.
	KeyHash              common.Hash
	SubscriptionID       uint64
	CallbackGasLimit     uint32
	RequestConfirmations uint16
	NumWords             uint32

	// RequestTimeout lets a round stuck in CALCULATING re-request randomness
	// once the pending request is older than this. Zero disables it and the
	// round waits for the oracle indefinitely.
	RequestTimeout time.Duration
}

// withDefaults fills the optional request parameters.
func (c Config) withDefaults() Config {
	if c.RequestConfirmations == 0 {
		c.RequestConfirmations = DefaultRequestConfirmations
	}
	if c.NumWords == 0 {
		c.NumWords = DefaultNumWords
	}
	return c
}

// Validate reports the first problem found in the config.
func (c Config) Validate() error {
	if c.Address == (common.Address{}) {
		return errors.New("lottery address is zero")
	}
	if c.EntranceFee == nil || c.EntranceFee.Sign() < 0 {
		return fmt.Errorf("invalid entrance fee %v", c.EntranceFee)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("invalid interval %v", c.Interval)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("invalid request timeout %v", c.RequestTimeout)
	}
	return nil
}

// Copy returns a deep copy; EntranceFee is a pointer and must not be shared.
func (c Config) Copy() Config {
	cp := c
	if c.EntranceFee != nil {
		cp.EntranceFee = new(big.Int).Set(c.EntranceFee)
	}
	return cp
}
