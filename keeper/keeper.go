// Package keeper drives lottery settlement from outside the state machine.
//
// The keeper is the automation side of the upkeep contract: it periodically
// asks whether settlement is due and, if so, performs it. It holds no state of
// its own, so any number of keepers (or manual callers) may race; the loser
// simply sees the upkeep as no longer needed.
package keeper

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/sirupsen/logrus"

	"github.com/rony4d/go-lottery/lottery"
)

// DefaultPollInterval is how often Run checks the predicate when no interval
// is configured.
const DefaultPollInterval = time.Second

// Upkeep is the automation-compatible surface of the lottery.
type Upkeep interface {
	CheckUpkeep(checkData []byte) (bool, []byte)
	PerformUpkeep(performData []byte) (*big.Int, error)
}

// Keeper polls an Upkeep and performs it when needed.
type Keeper struct {
	Upkeep       Upkeep
	PollInterval time.Duration
	Clock        clock.Clock
	Logger       logrus.FieldLogger

	// Polls counts cycles labelled outcome=idle|performed|lost|error.
	Polls metrics.Counter
}

func (k *Keeper) init() {
	if k.PollInterval <= 0 {
		k.PollInterval = DefaultPollInterval
	}
	if k.Clock == nil {
		k.Clock = clock.New()
	}
	if k.Logger == nil {
		k.Logger = logrus.StandardLogger()
	}
	if k.Polls == nil {
		k.Polls = discard.NewCounter()
	}
}

// Run polls until ctx is cancelled.
func (k *Keeper) Run(ctx context.Context) error {
	k.init()
	log := k.Logger.WithField("component", "keeper")
	log.WithField("interval", k.PollInterval).Info("Keeper started")

	ticker := k.Clock.Ticker(k.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("Keeper stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := k.Poll(); err != nil {
				log.WithError(err).Warn("Upkeep failed")
			}
		}
	}
}

// Poll runs one check/perform cycle. It returns the request id when upkeep
// was performed and nil when nothing was due, including when another caller
// performed it between the check and the perform.
func (k *Keeper) Poll() (*big.Int, error) {
	k.init()
	needed, performData := k.Upkeep.CheckUpkeep(nil)
	if !needed {
		k.Polls.With("outcome", "idle").Add(1)
		return nil, nil
	}
	requestID, err := k.Upkeep.PerformUpkeep(performData)
	if errors.Is(err, lottery.ErrUpkeepNotNeeded) {
		k.Polls.With("outcome", "lost").Add(1)
		k.Logger.WithField("component", "keeper").WithError(err).Debug("Upkeep no longer needed")
		return nil, nil
	}
	if err != nil {
		k.Polls.With("outcome", "error").Add(1)
		return nil, err
	}
	k.Polls.With("outcome", "performed").Add(1)
	k.Logger.WithFields(logrus.Fields{"component": "keeper", "requestId": requestID}).Info("Upkeep performed")
	return requestID, nil
}
