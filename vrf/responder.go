package vrf

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/sirupsen/logrus"
)

// Responder answers every request accepted by a MockCoordinator once the
// request's confirmations have elapsed, the way the live oracle network
// would. Each confirmation counts as one BlockTime on Clock.
type Responder struct {
	Coordinator *MockCoordinator
	BlockTime   time.Duration
	Clock       clock.Clock
	Logger      logrus.FieldLogger

	// Fulfillments counts deliveries, labelled outcome=ok|rejected|error.
	Fulfillments metrics.Counter

	mu     sync.Mutex
	timers map[uint64]*clock.Timer
	quit   chan struct{}
	done   chan struct{}
}

// Start subscribes to the coordinator and schedules deliveries until Stop.
func (r *Responder) Start() {
	if r.Clock == nil {
		r.Clock = clock.New()
	}
	if r.Logger == nil {
		r.Logger = logrus.StandardLogger()
	}
	if r.Fulfillments == nil {
		r.Fulfillments = discard.NewCounter()
	}
	r.Logger = r.Logger.WithField("component", "vrf-responder")
	r.timers = make(map[uint64]*clock.Timer)
	r.quit = make(chan struct{})
	r.done = make(chan struct{})

	requests := make(chan RandomWordsRequested, 16)
	sub := r.Coordinator.SubscribeRandomWordsRequested(requests)
	go r.loop(requests, sub.Err(), sub.Unsubscribe)
}

func (r *Responder) loop(requests <-chan RandomWordsRequested, subErr <-chan error, unsubscribe func()) {
	defer close(r.done)
	defer unsubscribe()
	for {
		select {
		case req := <-requests:
			r.schedule(req)
		case <-subErr:
			return
		case <-r.quit:
			return
		}
	}
}

func (r *Responder) schedule(req RandomWordsRequested) {
	delay := time.Duration(req.MinConfirmations) * r.BlockTime
	id := req.RequestID.Uint64()
	r.Logger.WithFields(logrus.Fields{"requestId": req.RequestID, "sender": req.Sender.Hex(), "delay": delay}).Debug("Randomness request scheduled")

	r.mu.Lock()
	defer r.mu.Unlock()
	r.timers[id] = r.Clock.AfterFunc(delay, func() {
		r.mu.Lock()
		delete(r.timers, id)
		r.mu.Unlock()
		r.fulfill(req)
	})
}

func (r *Responder) fulfill(req RandomWordsRequested) {
	log := r.Logger.WithField("requestId", req.RequestID)
	res, err := r.Coordinator.FulfillRandomWords(req.RequestID, req.Sender)
	switch {
	case err != nil:
		r.Fulfillments.With("outcome", "error").Add(1)
		log.WithError(err).Warn("Randomness delivery failed")
	case !res.Success:
		r.Fulfillments.With("outcome", "rejected").Add(1)
		log.WithError(res.Err).Warn("Consumer rejected random words")
	default:
		r.Fulfillments.With("outcome", "ok").Add(1)
		log.WithField("payment", res.Payment).Debug("Random words delivered")
	}
}

// Pending is the number of scheduled, not yet delivered requests.
func (r *Responder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

// Stop cancels scheduled deliveries and waits for the loop to exit.
func (r *Responder) Stop() {
	close(r.quit)
	<-r.done
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.timers {
		t.Stop()
		delete(r.timers, id)
	}
}
