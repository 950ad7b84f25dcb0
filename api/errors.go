package api

import (
	"errors"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/rony4d/go-lottery/lottery"
	"github.com/rony4d/go-lottery/vrf"
)

// revertErrorCode is the JSON-RPC code Ethereum nodes use for reverted calls.
const revertErrorCode = 3

// revertError is an execution failure as reported over JSON-RPC: the
// message is human readable and the data names the failure the way the
// lottery's custom errors do.
type revertError struct {
	error
	reason string
	data   map[string]interface{}
}

// ErrorCode satisfies rpc.Error.
func (e *revertError) ErrorCode() int { return revertErrorCode }

// ErrorData satisfies rpc.DataError.
func (e *revertError) ErrorData() interface{} {
	out := map[string]interface{}{"reason": e.reason}
	for k, v := range e.data {
		out[k] = v
	}
	return out
}

func (e *revertError) Unwrap() error { return e.error }

// toRPCError maps domain failures onto revert errors. Anything it does not
// recognise is returned unchanged and surfaces as a generic server error.
func toRPCError(err error) error {
	if err == nil {
		return nil
	}
	var (
		upkeep   *lottery.UpkeepNotNeededError
		transfer *lottery.TransferError
	)
	switch {
	case errors.As(err, &upkeep):
		return &revertError{err, "Lottery__UpkeepNotNeeded", map[string]interface{}{
			"currentBalance": (*hexutil.Big)(upkeep.Balance),
			"numPlayers":     hexutil.Uint64(upkeep.Players),
			"lotteryState":   hexutil.Uint64(upkeep.State),
		}}
	case errors.As(err, &transfer):
		return &revertError{err, "Lottery__TransferFailed", map[string]interface{}{
			"winner": transfer.Winner,
			"amount": (*hexutil.Big)(transfer.Amount),
		}}
	case errors.Is(err, lottery.ErrNotOpen):
		return &revertError{err, "Lottery__NotOpen", nil}
	case errors.Is(err, lottery.ErrNotEnoughPaid):
		return &revertError{err, "Lottery__NotEnoughEthEntered", nil}
	case errors.Is(err, lottery.ErrInvalidPlayer):
		return &revertError{err, "Lottery__InvalidPlayer", nil}
	case errors.Is(err, lottery.ErrUnknownRequest):
		return &revertError{err, "Lottery__UnknownRequest", nil}
	case errors.Is(err, lottery.ErrIndexOutOfRange):
		return &revertError{err, "Lottery__IndexOutOfRange", nil}
	case errors.Is(err, vrf.ErrNonexistentRequest):
		return &revertError{err, "nonexistent request", nil}
	case errors.Is(err, vrf.ErrInvalidSubscription):
		return &revertError{err, "InvalidSubscription", nil}
	case errors.Is(err, vrf.ErrInvalidConsumer):
		return &revertError{err, "InvalidConsumer", nil}
	case errors.Is(err, vrf.ErrInsufficientBalance):
		return &revertError{err, "InsufficientBalance", nil}
	}
	return err
}
