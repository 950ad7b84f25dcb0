package vrf

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"
)

// Mock coordinator economics, matching the values the development chain
// deploys the coordinator mock with.
var (
	// DefaultBaseFee is the flat LINK fee per fulfilment (0.25 LINK).
	DefaultBaseFee = new(big.Int).Div(big.NewInt(1e18), big.NewInt(4))

	// DefaultGasPriceLink is the LINK price of one unit of callback gas.
	DefaultGasPriceLink = big.NewInt(1e9)
)

var wordArgs abi.Arguments

func init() {
	uint256Ty, err := abi.NewType("uint256", "", nil)
	if err != nil {
		panic(err)
	}
	wordArgs = abi.Arguments{{Type: uint256Ty}, {Type: uint256Ty}}
}

// Subscription is a funded billing account for randomness requests.
type Subscription struct {
	ID        uint64
	Balance   *big.Int
	Consumers []common.Address
}

// RandomWordsRequested is published for every accepted request.
type RandomWordsRequested struct {
	KeyHash          common.Hash
	RequestID        *big.Int
	PreSeed          *big.Int
	SubID            uint64
	MinConfirmations uint16
	CallbackGasLimit uint32
	NumWords         uint32
	Sender           common.Address
}

// RandomWordsFulfilled is published after every delivery attempt. Success is
// false when the consumer refused the words; the request is consumed anyway.
type RandomWordsFulfilled struct {
	RequestID  *big.Int
	OutputSeed *big.Int
	Payment    *big.Int
	Success    bool
	Err        error
}

type subscription struct {
	balance   *big.Int
	consumers map[common.Address]bool
}

type mockRequest struct {
	subID            uint64
	callbackGasLimit uint32
	numWords         uint32
	sender           common.Address
}

// MockCoordinator is an in-process coordinator for development networks. It
// never answers on its own: something (a test, the Responder, an operator via
// RPC) has to call FulfillRandomWords.
type MockCoordinator struct {
	baseFee      *big.Int
	gasPriceLink *big.Int

	mu            sync.Mutex
	nextSubID     uint64
	nextRequestID uint64
	subs          map[uint64]*subscription
	requests      map[uint64]mockRequest
	callbacks     map[common.Address]Consumer

	requestedFeed event.Feed
	fulfilledFeed event.Feed
	scope         event.SubscriptionScope
}

// NewMockCoordinator creates a coordinator charging baseFee plus
// gasPriceLink per unit of callback gas limit for each fulfilment.
func NewMockCoordinator(baseFee, gasPriceLink *big.Int) *MockCoordinator {
	return &MockCoordinator{
		baseFee:       new(big.Int).Set(baseFee),
		gasPriceLink:  new(big.Int).Set(gasPriceLink),
		nextSubID:     1,
		nextRequestID: 1,
		subs:          make(map[uint64]*subscription),
		requests:      make(map[uint64]mockRequest),
		callbacks:     make(map[common.Address]Consumer),
	}
}

// CreateSubscription opens an empty subscription and returns its id.
func (c *MockCoordinator) CreateSubscription() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSubID
	c.nextSubID++
	c.subs[id] = &subscription{balance: new(big.Int), consumers: make(map[common.Address]bool)}
	return id
}

// FundSubscription adds amount (LINK juels) to a subscription.
func (c *MockCoordinator) FundSubscription(subID uint64, amount *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub, ok := c.subs[subID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrInvalidSubscription, subID)
	}
	sub.balance = new(big.Int).Add(sub.balance, amount)
	return nil
}

// AddConsumer authorises addr to bill requests to subID. consumer is where
// the words for addr's requests are delivered.
func (c *MockCoordinator) AddConsumer(subID uint64, addr common.Address, consumer Consumer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub, ok := c.subs[subID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrInvalidSubscription, subID)
	}
	sub.consumers[addr] = true
	c.callbacks[addr] = consumer
	return nil
}

// RemoveConsumer revokes addr's right to bill subID.
func (c *MockCoordinator) RemoveConsumer(subID uint64, addr common.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub, ok := c.subs[subID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrInvalidSubscription, subID)
	}
	if !sub.consumers[addr] {
		return fmt.Errorf("%w: %s", ErrInvalidConsumer, addr.Hex())
	}
	delete(sub.consumers, addr)
	return nil
}

// GetSubscription returns a copy of the subscription.
func (c *MockCoordinator) GetSubscription(subID uint64) (Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub, ok := c.subs[subID]
	if !ok {
		return Subscription{}, fmt.Errorf("%w: %d", ErrInvalidSubscription, subID)
	}
	out := Subscription{ID: subID, Balance: new(big.Int).Set(sub.balance)}
	for addr := range sub.consumers {
		out.Consumers = append(out.Consumers, addr)
	}
	return out, nil
}

// RequestRandomWords implements Coordinator.
func (c *MockCoordinator) RequestRandomWords(req RandomWordsRequest) (*big.Int, error) {
	c.mu.Lock()
	sub, ok := c.subs[req.SubID]
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %d", ErrInvalidSubscription, req.SubID)
	}
	if !sub.consumers[req.Sender] {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrInvalidConsumer, req.Sender.Hex())
	}
	if req.NumWords == 0 || req.NumWords > MaxNumWords {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %d", ErrInvalidNumWords, req.NumWords)
	}
	id := c.nextRequestID
	c.nextRequestID++
	c.requests[id] = mockRequest{
		subID:            req.SubID,
		callbackGasLimit: req.CallbackGasLimit,
		numWords:         req.NumWords,
		sender:           req.Sender,
	}
	c.mu.Unlock()

	requestID := new(big.Int).SetUint64(id)
	c.requestedFeed.Send(RandomWordsRequested{
		KeyHash:          req.KeyHash,
		RequestID:        requestID,
		PreSeed:          new(big.Int).SetUint64(id),
		SubID:            req.SubID,
		MinConfirmations: req.MinConfirmations,
		CallbackGasLimit: req.CallbackGasLimit,
		NumWords:         req.NumWords,
		Sender:           req.Sender,
	})
	return new(big.Int).Set(requestID), nil
}

// FulfillRandomWords delivers deterministic words for requestID to the
// consumer registered under addr: word i is keccak256(abi.encode(id, i)).
func (c *MockCoordinator) FulfillRandomWords(requestID *big.Int, addr common.Address) (RandomWordsFulfilled, error) {
	return c.FulfillRandomWordsWithOverride(requestID, addr, nil)
}

// FulfillRandomWordsWithOverride is FulfillRandomWords with caller-chosen
// words. A nil words slice falls back to the derived ones.
func (c *MockCoordinator) FulfillRandomWordsWithOverride(requestID *big.Int, addr common.Address, words []*big.Int) (RandomWordsFulfilled, error) {
	if requestID == nil || !requestID.IsUint64() {
		return RandomWordsFulfilled{}, fmt.Errorf("%w: %v", ErrNonexistentRequest, requestID)
	}
	id := requestID.Uint64()

	c.mu.Lock()
	req, ok := c.requests[id]
	if !ok {
		c.mu.Unlock()
		return RandomWordsFulfilled{}, fmt.Errorf("%w: %d", ErrNonexistentRequest, id)
	}
	if req.sender != addr {
		c.mu.Unlock()
		return RandomWordsFulfilled{}, fmt.Errorf("%w: request %d belongs to %s", ErrInvalidConsumer, id, req.sender.Hex())
	}
	consumer := c.callbacks[addr]
	sub := c.subs[req.subID]
	payment := new(big.Int).Mul(c.gasPriceLink, new(big.Int).SetUint64(uint64(req.callbackGasLimit)))
	payment.Add(payment, c.baseFee)
	if sub == nil || sub.balance.Cmp(payment) < 0 {
		c.mu.Unlock()
		return RandomWordsFulfilled{}, fmt.Errorf("%w: need %s", ErrInsufficientBalance, payment)
	}
	if words == nil {
		derived, err := deriveWords(requestID, req.numWords)
		if err != nil {
			c.mu.Unlock()
			return RandomWordsFulfilled{}, err
		}
		words = derived
	}
	// The request is consumed before the callback runs; a failing consumer
	// does not get a second delivery.
	delete(c.requests, id)
	sub.balance = new(big.Int).Sub(sub.balance, payment)
	c.mu.Unlock()

	res := RandomWordsFulfilled{
		RequestID:  new(big.Int).Set(requestID),
		OutputSeed: new(big.Int).Set(requestID),
		Payment:    payment,
		Success:    true,
	}
	if consumer == nil {
		res.Success = false
		res.Err = fmt.Errorf("%w: no callback for %s", ErrInvalidConsumer, addr.Hex())
	} else if err := consumer.FulfillRandomWords(new(big.Int).Set(requestID), words); err != nil {
		res.Success = false
		res.Err = err
	}
	c.fulfilledFeed.Send(res)
	return res, nil
}

// PendingRequests returns the number of unfulfilled requests.
func (c *MockCoordinator) PendingRequests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

// SubscribeRandomWordsRequested streams accepted requests.
func (c *MockCoordinator) SubscribeRandomWordsRequested(ch chan<- RandomWordsRequested) event.Subscription {
	return c.scope.Track(c.requestedFeed.Subscribe(ch))
}

// SubscribeRandomWordsFulfilled streams delivery outcomes.
func (c *MockCoordinator) SubscribeRandomWordsFulfilled(ch chan<- RandomWordsFulfilled) event.Subscription {
	return c.scope.Track(c.fulfilledFeed.Subscribe(ch))
}

// Close ends every subscription.
func (c *MockCoordinator) Close() {
	c.scope.Close()
}

func deriveWords(requestID *big.Int, n uint32) ([]*big.Int, error) {
	words := make([]*big.Int, n)
	for i := uint32(0); i < n; i++ {
		packed, err := wordArgs.Pack(requestID, new(big.Int).SetUint64(uint64(i)))
		if err != nil {
			return nil, fmt.Errorf("encode word %d: %w", i, err)
		}
		words[i] = new(big.Int).SetBytes(crypto.Keccak256(packed))
	}
	return words, nil
}
