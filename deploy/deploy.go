// Package deploy bootstraps a lottery for a network preset.
//
// On development chains the randomness coordinator is a local mock: deploy
// creates it, opens a subscription, funds it and registers the lottery as a
// consumer. On live chains the coordinator must be supplied by the caller and
// the subscription comes from the preset.
package deploy

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/sirupsen/logrus"

	"github.com/rony4d/go-lottery/lottery"
	"github.com/rony4d/go-lottery/network"
	"github.com/rony4d/go-lottery/vrf"
)

// SubscriptionFund is what a fresh mock subscription is funded with (30 LINK).
var SubscriptionFund = new(big.Int).Mul(big.NewInt(30), big.NewInt(params.Ether))

// ErrNoCoordinator is returned on live networks when no coordinator client
// was provided.
var ErrNoCoordinator = errors.New("no coordinator for live network")

// Options are the node-side inputs of a deployment.
type Options struct {
	// Address is the lottery's account in the ledger.
	Address common.Address

	Ledger lottery.Ledger

	// Coordinator reaches the live coordinator. Ignored on development chains.
	Coordinator vrf.Coordinator

	RequestTimeout time.Duration

	Clock  clock.Clock
	Logger logrus.FieldLogger
}

// Result is a deployed lottery and the coordinator it talks to.
type Result struct {
	Network        network.Network
	Lottery        *lottery.Lottery
	Coordinator    vrf.Coordinator
	Mock           *vrf.MockCoordinator // nil on live networks
	SubscriptionID uint64
}

// Deploy builds a lottery on net.
func Deploy(net network.Network, opts Options) (*Result, error) {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	log := opts.Logger.WithFields(logrus.Fields{"component": "deploy", "network": net.Name})

	res := &Result{Network: net.Copy()}
	if net.Development {
		log.Info("Local network detected, deploying mocks")
		mock := vrf.NewMockCoordinator(vrf.DefaultBaseFee, vrf.DefaultGasPriceLink)
		subID := mock.CreateSubscription()
		if err := mock.FundSubscription(subID, SubscriptionFund); err != nil {
			return nil, fmt.Errorf("fund subscription: %w", err)
		}
		res.Coordinator = mock
		res.Mock = mock
		res.SubscriptionID = subID
		log.WithFields(logrus.Fields{"subId": subID, "fund": SubscriptionFund}).Info("Mocks deployed")
	} else {
		if opts.Coordinator == nil {
			return nil, fmt.Errorf("%w %s (coordinator %s)", ErrNoCoordinator, net.Name, net.VRF.Coordinator.Hex())
		}
		res.Coordinator = opts.Coordinator
		res.SubscriptionID = net.VRF.SubscriptionID
	}

	cfg := lottery.Config{
		Address:          opts.Address,
		EntranceFee:      net.Lottery.EntranceFee,
		Interval:         net.Lottery.Interval,
		KeyHash:          net.Lottery.GasLane,
		SubscriptionID:   res.SubscriptionID,
		CallbackGasLimit: net.Lottery.CallbackGasLimit,
		RequestTimeout:   opts.RequestTimeout,
	}
	lot, err := lottery.New(cfg, res.Coordinator, opts.Ledger,
		lottery.WithClock(opts.Clock),
		lottery.WithLogger(opts.Logger),
	)
	if err != nil {
		return nil, err
	}
	res.Lottery = lot

	if res.Mock != nil {
		if err := res.Mock.AddConsumer(res.SubscriptionID, opts.Address, lot); err != nil {
			return nil, fmt.Errorf("add consumer: %w", err)
		}
	}
	log.WithFields(logrus.Fields{
		"address":     opts.Address.Hex(),
		"entranceFee": cfg.EntranceFee,
		"interval":    cfg.Interval,
		"subId":       res.SubscriptionID,
	}).Info("Lottery deployed")
	return res, nil
}
