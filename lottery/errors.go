package lottery

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Every error aborts the call that caused it and leaves the lottery exactly
// as it was. Callers match them with errors.Is.
var (
	ErrNotOpen         = errors.New("lottery not open")
	ErrNotEnoughPaid   = errors.New("not enough paid to enter")
	ErrInvalidPlayer   = errors.New("invalid player address")
	ErrUpkeepNotNeeded = errors.New("upkeep not needed")
	ErrUnknownRequest  = errors.New("unknown randomness request")
	ErrTransferFailed  = errors.New("prize transfer failed")
	ErrIndexOutOfRange = errors.New("player index out of range")
	ErrNoPlayers       = errors.New("settlement reached with no players")
	ErrNoRandomWords   = errors.New("no random words delivered")
)

// UpkeepNotNeededError carries the snapshot an operator needs to see why a
// trigger was refused.
type UpkeepNotNeededError struct {
	State   State
	Balance *big.Int
	Players int
}

func (e *UpkeepNotNeededError) Error() string {
	return fmt.Sprintf("%v (state=%s balance=%s players=%d)", ErrUpkeepNotNeeded, e.State, e.Balance, e.Players)
}

// Is makes errors.Is(err, ErrUpkeepNotNeeded) hold.
func (e *UpkeepNotNeededError) Is(target error) bool { return target == ErrUpkeepNotNeeded }

// TransferError reports a payout the ledger refused. It matches
// ErrTransferFailed and unwraps to the ledger's own error.
type TransferError struct {
	Winner common.Address
	Amount *big.Int
	Err    error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%v: %s to %s: %v", ErrTransferFailed, e.Amount, e.Winner.Hex(), e.Err)
}

func (e *TransferError) Is(target error) bool { return target == ErrTransferFailed }

func (e *TransferError) Unwrap() error { return e.Err }
