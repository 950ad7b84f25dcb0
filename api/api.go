// Package api exposes the lottery node over go-ethereum's JSON-RPC server.
//
// Three namespaces are served:
//   - lottery: the contract surface (entry, upkeep, getters, event stream)
//   - bank: native balances
//   - vrf: mock coordinator controls, development networks only
package api

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/rony4d/go-lottery/lottery"
	"github.com/rony4d/go-lottery/vrf"
)

// Balances is the read side of the ledger.
type Balances interface {
	BalanceOf(addr common.Address) *big.Int
}

// Backend is what the RPC services are built on. Coordinator is nil on live
// networks, which leaves the vrf namespace unregistered.
type Backend struct {
	Lottery     *lottery.Lottery
	Balances    Balances
	Coordinator *vrf.MockCoordinator
}

// APIs lists the services for b.
func (b *Backend) APIs() []rpc.API {
	apis := []rpc.API{
		{
			Namespace: "lottery",
			Version:   "1.0",
			Service:   &PublicLotteryAPI{lottery: b.Lottery},
			Public:    true,
		},
		{
			Namespace: "bank",
			Version:   "1.0",
			Service:   &PublicBankAPI{balances: b.Balances},
			Public:    true,
		},
	}
	if b.Coordinator != nil {
		apis = append(apis, rpc.API{
			Namespace: "vrf",
			Version:   "1.0",
			Service:   &PrivateVRFAPI{coordinator: b.Coordinator},
			Public:    false,
		})
	}
	return apis
}

// NewServer returns an RPC server with every API of b registered.
func NewServer(b *Backend) (*rpc.Server, error) {
	srv := rpc.NewServer()
	for _, api := range b.APIs() {
		if err := srv.RegisterName(api.Namespace, api.Service); err != nil {
			srv.Stop()
			return nil, err
		}
	}
	return srv, nil
}

// ----------------------------------------------------------------------------
// lottery namespace
// ----------------------------------------------------------------------------

// PublicLotteryAPI mirrors the lottery contract's external functions.
type PublicLotteryAPI struct {
	lottery *lottery.Lottery
}

// EnterLottery pays value from player into the current round.
func (api *PublicLotteryAPI) EnterLottery(player common.Address, value *hexutil.Big) error {
	return toRPCError(api.lottery.EnterLottery(player, (*big.Int)(value)))
}

// CheckUpkeepResult is the return tuple of checkUpkeep.
type CheckUpkeepResult struct {
	UpkeepNeeded bool          `json:"upkeepNeeded"`
	PerformData  hexutil.Bytes `json:"performData"`
}

// CheckUpkeep evaluates the settlement predicate.
func (api *PublicLotteryAPI) CheckUpkeep(checkData *hexutil.Bytes) CheckUpkeepResult {
	var data []byte
	if checkData != nil {
		data = *checkData
	}
	needed, performData := api.lottery.CheckUpkeep(data)
	return CheckUpkeepResult{UpkeepNeeded: needed, PerformData: performData}
}

// PerformUpkeep starts settlement and returns the randomness request id.
func (api *PublicLotteryAPI) PerformUpkeep(performData *hexutil.Bytes) (*hexutil.Big, error) {
	var data []byte
	if performData != nil {
		data = *performData
	}
	id, err := api.lottery.PerformUpkeep(data)
	if err != nil {
		return nil, toRPCError(err)
	}
	return (*hexutil.Big)(id), nil
}

func (api *PublicLotteryAPI) GetLotteryState() hexutil.Uint64 {
	return hexutil.Uint64(api.lottery.State())
}

func (api *PublicLotteryAPI) GetEntranceFee() *hexutil.Big {
	return (*hexutil.Big)(api.lottery.EntranceFee())
}

// GetInterval returns the round interval in seconds.
func (api *PublicLotteryAPI) GetInterval() hexutil.Uint64 {
	return hexutil.Uint64(api.lottery.Interval().Seconds())
}

// GetLastTimeStamp returns the round start as a unix timestamp.
func (api *PublicLotteryAPI) GetLastTimeStamp() hexutil.Uint64 {
	return hexutil.Uint64(api.lottery.LastTimestamp().Unix())
}

func (api *PublicLotteryAPI) GetRecentWinner() common.Address {
	return api.lottery.RecentWinner()
}

func (api *PublicLotteryAPI) GetNumberOfPlayers() hexutil.Uint64 {
	return hexutil.Uint64(api.lottery.NumberOfPlayers())
}

func (api *PublicLotteryAPI) GetPlayer(index hexutil.Uint64) (common.Address, error) {
	addr, err := api.lottery.Player(int(index))
	return addr, toRPCError(err)
}

func (api *PublicLotteryAPI) GetNumWords() hexutil.Uint64 {
	return hexutil.Uint64(api.lottery.NumWords())
}

func (api *PublicLotteryAPI) GetRequestConfirmations() hexutil.Uint64 {
	return hexutil.Uint64(api.lottery.RequestConfirmations())
}

// GetRound returns the number of settled rounds.
func (api *PublicLotteryAPI) GetRound() hexutil.Uint64 {
	return hexutil.Uint64(api.lottery.Round())
}

// GetBalance returns the prize pool of the current round.
func (api *PublicLotteryAPI) GetBalance() *hexutil.Big {
	return (*hexutil.Big)(api.lottery.Balance())
}

// RPCEvent is the notification payload of lottery_subscribe("events").
type RPCEvent struct {
	Event     string          `json:"event"`
	Round     hexutil.Uint64  `json:"round"`
	Player    *common.Address `json:"player,omitempty"`
	RequestID *hexutil.Big    `json:"requestId,omitempty"`
	Prize     *hexutil.Big    `json:"prize,omitempty"`
	Timestamp hexutil.Uint64  `json:"timestamp"`
	Log       *types.Log      `json:"log"`
}

func newRPCEvent(ev lottery.Event) *RPCEvent {
	out := &RPCEvent{
		Event:     ev.Kind.String(),
		Round:     hexutil.Uint64(ev.Round),
		Timestamp: hexutil.Uint64(ev.Time.Unix()),
		Log:       &ev.Log,
	}
	switch ev.Kind {
	case lottery.EventEntered:
		out.Player = &ev.Player
	case lottery.EventUpkeepPerformed:
		out.RequestID = (*hexutil.Big)(ev.RequestID)
	case lottery.EventWinnerPicked:
		out.Player = &ev.Player
		out.Prize = (*hexutil.Big)(ev.Prize)
	}
	return out
}

// Events streams every lottery event emitted after the subscription.
func (api *PublicLotteryAPI) Events(ctx context.Context) (*rpc.Subscription, error) {
	notifier, supported := rpc.NotifierFromContext(ctx)
	if !supported {
		return &rpc.Subscription{}, rpc.ErrNotificationsUnsupported
	}
	rpcSub := notifier.CreateSubscription()

	events := make(chan lottery.Event, 64)
	sub := api.lottery.SubscribeEvents(events)
	go func() {
		defer sub.Unsubscribe()
		for {
			select {
			case ev := <-events:
				notifier.Notify(rpcSub.ID, newRPCEvent(ev))
			case <-sub.Err():
				return
			case <-rpcSub.Err():
				return
			case <-notifier.Closed():
				return
			}
		}
	}()
	return rpcSub, nil
}

// ----------------------------------------------------------------------------
// bank namespace
// ----------------------------------------------------------------------------

// PublicBankAPI serves native balances.
type PublicBankAPI struct {
	balances Balances
}

func (api *PublicBankAPI) GetBalance(addr common.Address) *hexutil.Big {
	return (*hexutil.Big)(api.balances.BalanceOf(addr))
}

// ----------------------------------------------------------------------------
// vrf namespace
// ----------------------------------------------------------------------------

// PrivateVRFAPI drives the mock coordinator by hand.
type PrivateVRFAPI struct {
	coordinator *vrf.MockCoordinator
}

// FulfillmentResult reports one delivery.
type FulfillmentResult struct {
	RequestID *hexutil.Big `json:"requestId"`
	Payment   *hexutil.Big `json:"payment"`
	Success   bool         `json:"success"`
	Error     string       `json:"error,omitempty"`
}

// FulfillRandomWords delivers the mock's derived words for requestID to
// consumer. A consumer that refuses the words still consumes the request;
// the refusal is reported in the result rather than as an RPC error.
func (api *PrivateVRFAPI) FulfillRandomWords(requestID *hexutil.Big, consumer common.Address) (*FulfillmentResult, error) {
	res, err := api.coordinator.FulfillRandomWords((*big.Int)(requestID), consumer)
	if err != nil {
		return nil, toRPCError(err)
	}
	out := &FulfillmentResult{
		RequestID: (*hexutil.Big)(res.RequestID),
		Payment:   (*hexutil.Big)(res.Payment),
		Success:   res.Success,
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return out, nil
}

// SubscriptionResult is a mock coordinator subscription.
type SubscriptionResult struct {
	ID        hexutil.Uint64   `json:"id"`
	Balance   *hexutil.Big     `json:"balance"`
	Consumers []common.Address `json:"consumers"`
}

func (api *PrivateVRFAPI) GetSubscription(id hexutil.Uint64) (*SubscriptionResult, error) {
	sub, err := api.coordinator.GetSubscription(uint64(id))
	if err != nil {
		return nil, toRPCError(err)
	}
	return &SubscriptionResult{
		ID:        hexutil.Uint64(sub.ID),
		Balance:   (*hexutil.Big)(sub.Balance),
		Consumers: sub.Consumers,
	}, nil
}
