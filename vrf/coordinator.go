// Package vrf describes the verifiable-randomness oracle the lottery talks to.
//
// The oracle is an external service reached through two narrow surfaces:
//   - Coordinator: outbound, the consumer asks for random words and gets back
//     a request identifier straight away.
//   - Consumer: inbound, the coordinator later delivers the words for that
//     identifier on its own schedule.
//
// Nothing in between blocks. The gap between request and delivery is the
// oracle's latency and is never waited on by the consumer.
//
// The package also ships MockCoordinator (a local stand-in that behaves like
// the coordinator mock used on development chains) and Responder (which
// fulfils mock requests after a simulated confirmation delay).
package vrf

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrInvalidSubscription is returned when a subscription id is unknown.
	ErrInvalidSubscription = errors.New("vrf: invalid subscription")

	// ErrInvalidConsumer is returned when the caller is not registered as a
	// consumer of the subscription it bills the request to.
	ErrInvalidConsumer = errors.New("vrf: invalid consumer")

	// ErrInvalidNumWords is returned for requests asking for zero words or
	// more than MaxNumWords.
	ErrInvalidNumWords = errors.New("vrf: invalid number of words")

	// ErrNonexistentRequest is returned when fulfilling an id that was never
	// requested or has already been fulfilled.
	ErrNonexistentRequest = errors.New("vrf: nonexistent request")

	// ErrInsufficientBalance is returned when the subscription cannot pay for
	// a fulfilment.
	ErrInsufficientBalance = errors.New("vrf: insufficient subscription balance")
)

// MaxNumWords caps the number of random words per request.
const MaxNumWords = 500

// RandomWordsRequest carries the parameters of one randomness request.
type RandomWordsRequest struct {
	KeyHash          common.Hash    // gas lane / oracle key identity
	SubID            uint64         // subscription billed for the request
	MinConfirmations uint16         // blocks the oracle waits before answering
	CallbackGasLimit uint32         // budget for the consumer callback
	NumWords         uint32         // number of random words requested
	Sender           common.Address // consumer address the words go back to
}

// Coordinator is the outbound side of the oracle.
type Coordinator interface {
	// RequestRandomWords registers a request and returns its identifier.
	// Implementations must not call back into the consumer before returning.
	RequestRandomWords(req RandomWordsRequest) (*big.Int, error)
}

// Consumer is the inbound side of the oracle: whoever asked for randomness.
type Consumer interface {
	FulfillRandomWords(requestID *big.Int, randomWords []*big.Int) error
}
