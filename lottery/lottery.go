// Package lottery implements the round life cycle of a verifiable-randomness
// lottery.
//
// A round moves through two states:
//
//	OPEN --performUpkeep--> CALCULATING --fulfillRandomWords--> OPEN
//
// While OPEN anyone may enter by paying at least the entrance fee. Once the
// interval has passed and there is at least one paid entry, an upkeep caller
// (the keeper, or anyone else) triggers settlement. That issues exactly one
// randomness request and blocks further entries. When the oracle answers with
// the pending request id, the first random word picks the winner, the whole
// balance is paid out, and the round reopens with an empty player list.
//
// Every entry point treats its caller as untrusted: preconditions are checked
// first and state is only mutated after every fallible step has succeeded.
package lottery

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/sirupsen/logrus"

	"github.com/rony4d/go-lottery/vrf"
)

// Ledger holds the native balances the lottery collects and pays out.
type Ledger interface {
	BalanceOf(addr common.Address) *big.Int
	Transfer(from, to common.Address, amount *big.Int) error
}

// Option tweaks a Lottery at construction time.
type Option func(*Lottery)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c clock.Clock) Option {
	return func(l *Lottery) { l.clock = c }
}

// WithLogger sets the logger used for settlement diagnostics.
func WithLogger(log logrus.FieldLogger) Option {
	return func(l *Lottery) { l.log = log }
}

// Lottery is the single stateful aggregate of one deployment.
//
// mu stands in for the host's transaction ordering: every call runs to
// completion before the next one starts. The state guard at the top of each
// mutating method is still what keeps the phases apart.
type Lottery struct {
	cfg         Config
	coordinator vrf.Coordinator
	ledger      Ledger
	clock       clock.Clock
	log         logrus.FieldLogger

	mu            sync.Mutex
	state         State
	players       []common.Address
	lastTimestamp time.Time
	pending       *big.Int // nil unless CALCULATING
	requestedAt   time.Time
	recentWinner  common.Address
	round         uint64
	logIndex      uint

	// Committed events wait in queue, in commit order, until dispatch hands
	// them to the feed. No lock is held while a subscriber drains.
	queue     []Event
	wake      chan struct{}
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	feed      event.Feed
	scope     event.SubscriptionScope
}

// New creates an OPEN lottery whose round clock starts now.
func New(cfg Config, coordinator vrf.Coordinator, ledger Ledger, opts ...Option) (*Lottery, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid lottery config: %w", err)
	}
	if coordinator == nil {
		return nil, fmt.Errorf("invalid lottery config: nil coordinator")
	}
	if ledger == nil {
		return nil, fmt.Errorf("invalid lottery config: nil ledger")
	}
	l := &Lottery{
		cfg:         cfg.Copy().withDefaults(),
		coordinator: coordinator,
		ledger:      ledger,
		clock:       clock.New(),
		log:         logrus.StandardLogger(),
		state:       StateOpen,
		wake:        make(chan struct{}, 1),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.log = l.log.WithField("lottery", l.cfg.Address.Hex())
	l.lastTimestamp = l.clock.Now()
	go l.dispatch()
	return l, nil
}

// SubscribeEvents delivers every event dispatched after the call.
func (l *Lottery) SubscribeEvents(ch chan<- Event) event.Subscription {
	return l.scope.Track(l.feed.Subscribe(ch))
}

// Close ends all event subscriptions and stops delivery. Events still
// queued are dropped.
func (l *Lottery) Close() {
	l.closeOnce.Do(func() {
		l.scope.Close()
		close(l.quit)
		<-l.done
	})
}

// commit queues ev for delivery and releases mu. Callers hold mu.
func (l *Lottery) commit(ev *Event) {
	if ev != nil {
		l.queue = append(l.queue, *ev)
		select {
		case l.wake <- struct{}{}:
		default:
		}
	}
	l.mu.Unlock()
}

// dispatch drains the queue into the feed. A subscriber that stops reading
// only holds up later deliveries, never the state machine.
func (l *Lottery) dispatch() {
	defer close(l.done)
	for {
		select {
		case <-l.wake:
		case <-l.quit:
			return
		}
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()
		for _, ev := range batch {
			select {
			case <-l.quit:
				return
			default:
			}
			l.feed.Send(ev)
		}
	}
}

// newEvent stamps an event and advances the log index. Callers hold mu.
func (l *Lottery) newEvent(kind EventKind, arg common.Hash, now time.Time) *Event {
	ev := &Event{
		Kind:  kind,
		Round: l.round,
		Time:  now,
		Log:   buildLog(l.cfg.Address, kind, arg, l.round, l.logIndex),
	}
	l.logIndex++
	return ev
}

// ----------------------------------------------------------------------------
// Entry
// ----------------------------------------------------------------------------

// EnterLottery records one entry for player, paying value into the lottery.
func (l *Lottery) EnterLottery(player common.Address, value *big.Int) error {
	l.mu.Lock()
	ev, err := l.enter(player, value)
	l.commit(ev)
	return err
}

func (l *Lottery) enter(player common.Address, value *big.Int) (*Event, error) {
	if l.state != StateOpen {
		return nil, ErrNotOpen
	}
	if player == (common.Address{}) || player == l.cfg.Address {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPlayer, player.Hex())
	}
	if value == nil {
		value = new(big.Int)
	}
	if value.Cmp(l.cfg.EntranceFee) < 0 {
		return nil, fmt.Errorf("%w: paid %s, fee %s", ErrNotEnoughPaid, value, l.cfg.EntranceFee)
	}
	if err := l.ledger.Transfer(player, l.cfg.Address, value); err != nil {
		return nil, fmt.Errorf("collect entrance fee: %w", err)
	}
	l.players = append(l.players, player)

	l.log.WithFields(logrus.Fields{
		"round":   l.round,
		"player":  player.Hex(),
		"value":   value,
		"players": len(l.players),
	}).Debug("Player entered")

	ev := l.newEvent(EventEntered, common.BytesToHash(player.Bytes()), l.clock.Now())
	ev.Player = player
	return ev, nil
}

// ----------------------------------------------------------------------------
// Upkeep
// ----------------------------------------------------------------------------

// CheckUpkeep reports whether PerformUpkeep would currently succeed. It never
// changes state. checkData is accepted for caller compatibility and ignored;
// performData is always empty.
func (l *Lottery) CheckUpkeep(checkData []byte) (upkeepNeeded bool, performData []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.upkeepNeeded(l.clock.Now()), []byte{}
}

// upkeepNeeded is the settlement predicate. Callers hold mu.
func (l *Lottery) upkeepNeeded(now time.Time) bool {
	switch l.state {
	case StateOpen:
		timePassed := now.Sub(l.lastTimestamp) >= l.cfg.Interval
		hasPlayers := len(l.players) > 0
		hasBalance := l.ledger.BalanceOf(l.cfg.Address).Sign() > 0
		return timePassed && hasPlayers && hasBalance
	case StateCalculating:
		return l.requestExpired(now)
	}
	return false
}

func (l *Lottery) requestExpired(now time.Time) bool {
	return l.cfg.RequestTimeout > 0 && l.pending != nil && now.Sub(l.requestedAt) >= l.cfg.RequestTimeout
}

// PerformUpkeep moves an eligible round to CALCULATING and requests
// randomness for it, returning the request id. The transition is all or
// nothing: if the coordinator refuses the request the round stays OPEN.
func (l *Lottery) PerformUpkeep(performData []byte) (*big.Int, error) {
	l.mu.Lock()
	ev, err := l.performUpkeep()
	l.commit(ev)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(ev.RequestID), nil
}

func (l *Lottery) performUpkeep() (*Event, error) {
	now := l.clock.Now()
	if !l.upkeepNeeded(now) {
		return nil, &UpkeepNotNeededError{
			State:   l.state,
			Balance: new(big.Int).Set(l.ledger.BalanceOf(l.cfg.Address)),
			Players: len(l.players),
		}
	}
	replaced := l.pending

	requestID, err := l.coordinator.RequestRandomWords(vrf.RandomWordsRequest{
		KeyHash:          l.cfg.KeyHash,
		SubID:            l.cfg.SubscriptionID,
		MinConfirmations: l.cfg.RequestConfirmations,
		CallbackGasLimit: l.cfg.CallbackGasLimit,
		NumWords:         l.cfg.NumWords,
		Sender:           l.cfg.Address,
	})
	if err != nil {
		return nil, fmt.Errorf("request random words: %w", err)
	}
	if requestID == nil {
		return nil, fmt.Errorf("request random words: coordinator returned no id")
	}

	l.state = StateCalculating
	l.pending = new(big.Int).Set(requestID)
	l.requestedAt = now

	log := l.log.WithFields(logrus.Fields{"round": l.round, "requestId": requestID, "players": len(l.players)})
	if replaced != nil {
		log.WithField("expired", replaced).Warn("Randomness request timed out, re-requested")
	} else {
		log.Info("Upkeep performed, randomness requested")
	}

	ev := l.newEvent(EventUpkeepPerformed, common.BigToHash(requestID), now)
	ev.RequestID = new(big.Int).Set(requestID)
	return ev, nil
}

// ----------------------------------------------------------------------------
// Settlement
// ----------------------------------------------------------------------------

// FulfillRandomWords settles the round for the pending request. Any other
// id, including one that was already settled, is rejected with
// ErrUnknownRequest. When the prize transfer fails nothing is committed: the
// round stays CALCULATING with the same pending request.
func (l *Lottery) FulfillRandomWords(requestID *big.Int, randomWords []*big.Int) error {
	l.mu.Lock()
	ev, err := l.fulfill(requestID, randomWords)
	l.commit(ev)
	return err
}

func (l *Lottery) fulfill(requestID *big.Int, randomWords []*big.Int) (*Event, error) {
	if l.pending == nil || requestID == nil || l.pending.Cmp(requestID) != 0 {
		return nil, fmt.Errorf("%w: %v", ErrUnknownRequest, requestID)
	}
	if len(randomWords) == 0 || randomWords[0] == nil {
		return nil, ErrNoRandomWords
	}
	log := l.log.WithFields(logrus.Fields{"round": l.round, "requestId": requestID})
	if len(l.players) == 0 {
		// The predicate never lets a round with no players settle.
		log.Error("Settlement reached with an empty player list")
		return nil, ErrNoPlayers
	}

	index := new(big.Int).Mod(randomWords[0], big.NewInt(int64(len(l.players))))
	winner := l.players[index.Int64()]
	prize := new(big.Int).Set(l.ledger.BalanceOf(l.cfg.Address))

	if err := l.ledger.Transfer(l.cfg.Address, winner, prize); err != nil {
		log.WithFields(logrus.Fields{"winner": winner.Hex(), "prize": prize}).WithError(err).Error("Prize transfer failed")
		return nil, &TransferError{Winner: winner, Amount: prize, Err: err}
	}

	now := l.clock.Now()
	ev := l.newEvent(EventWinnerPicked, common.BytesToHash(winner.Bytes()), now)
	ev.Player = winner
	ev.Prize = prize

	l.recentWinner = winner
	l.players = nil
	l.lastTimestamp = now
	l.pending = nil
	l.requestedAt = time.Time{}
	l.state = StateOpen
	l.round++

	log.WithFields(logrus.Fields{"winner": winner.Hex(), "index": index, "prize": prize}).Info("Winner picked")
	return ev, nil
}

// ----------------------------------------------------------------------------
// Accessors
// ----------------------------------------------------------------------------

func (l *Lottery) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Lottery) EntranceFee() *big.Int { return new(big.Int).Set(l.cfg.EntranceFee) }

func (l *Lottery) Interval() time.Duration { return l.cfg.Interval }

func (l *Lottery) NumWords() uint32 { return l.cfg.NumWords }

func (l *Lottery) RequestConfirmations() uint16 { return l.cfg.RequestConfirmations }

func (l *Lottery) Address() common.Address { return l.cfg.Address }

// Config returns a copy of the construction parameters.
func (l *Lottery) Config() Config { return l.cfg.Copy() }

// LastTimestamp is the time the current round started.
func (l *Lottery) LastTimestamp() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastTimestamp
}

// RecentWinner is the winner of the last settled round, or the zero address.
func (l *Lottery) RecentWinner() common.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.recentWinner
}

func (l *Lottery) NumberOfPlayers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.players)
}

// Player returns the entrant at index i of the current round.
func (l *Lottery) Player(i int) (common.Address, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i < 0 || i >= len(l.players) {
		return common.Address{}, fmt.Errorf("%w: %d (players=%d)", ErrIndexOutOfRange, i, len(l.players))
	}
	return l.players[i], nil
}

// Balance is the amount the current round would pay out.
func (l *Lottery) Balance() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.ledger.BalanceOf(l.cfg.Address))
}

// PendingRequest returns the outstanding request id, or nil when OPEN.
func (l *Lottery) PendingRequest() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pending == nil {
		return nil
	}
	return new(big.Int).Set(l.pending)
}

// Round counts settled rounds.
func (l *Lottery) Round() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.round
}
