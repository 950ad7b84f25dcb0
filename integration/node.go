// Package integration assembles a lottery node out of its parts: the ledger,
// the randomness coordinator, the lottery itself, the keeper, the bbolt store,
// metrics and the JSON-RPC endpoints.
package integration

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/rony4d/go-lottery/api"
	"github.com/rony4d/go-lottery/deploy"
	"github.com/rony4d/go-lottery/keeper"
	"github.com/rony4d/go-lottery/ledger"
	"github.com/rony4d/go-lottery/lottery"
	"github.com/rony4d/go-lottery/metrics"
	"github.com/rony4d/go-lottery/network"
	"github.com/rony4d/go-lottery/store"
	"github.com/rony4d/go-lottery/vrf"
)

// StoreFile is the database file name inside the data directory.
const StoreFile = "lottery.db"

// DefaultLotteryAddress is the ledger account of the lottery when none is
// configured.
var DefaultLotteryAddress = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

// Config is everything NewNode needs.
type Config struct {
	Network string // network preset name, see network.Names

	// DataDir holds the store. Empty keeps the node in memory.
	DataDir string

	LotteryAddress common.Address
	RequestTimeout time.Duration

	// Interval overrides the network's round interval when non-zero.
	Interval time.Duration

	// Alloc prefunds ledger accounts at first start.
	Alloc map[common.Address]*big.Int

	Keeper  KeeperConfig
	VRF     VRFConfig
	RPC     RPCConfig
	Metrics MetricsConfig

	Clock  clock.Clock
	Logger logrus.FieldLogger
}

type KeeperConfig struct {
	Enabled      bool
	PollInterval time.Duration
}

type VRFConfig struct {
	AutoFulfill bool          // answer mock requests in process
	BlockTime   time.Duration // one request confirmation
}

type RPCConfig struct {
	HTTPEnabled bool
	HTTPAddr    string
	HTTPPort    int

	WSEnabled bool
	WSAddr    string
	WSPort    int
}

type MetricsConfig struct {
	Enabled   bool
	Addr      string
	Namespace string

	// Registry collects and serves the node's metrics. Nil uses the
	// process-wide default registry.
	Registry *stdprometheus.Registry
}

// DefaultConfig is a development node on the hardhat network with the
// default preset applied.
func DefaultConfig() Config {
	cfg := Config{
		Network:        "hardhat",
		LotteryAddress: DefaultLotteryAddress,
		Keeper:         KeeperConfig{Enabled: true},
		RPC: RPCConfig{
			HTTPAddr: "127.0.0.1",
			HTTPPort: 18545,
			WSAddr:   "127.0.0.1",
			WSPort:   18546,
		},
		Metrics: MetricsConfig{Addr: "127.0.0.1:6060", Namespace: "lotteryd"},
	}
	ApplyPreset(&cfg, DefaultPreset())
	return cfg
}

// Node is a running lottery deployment.
type Node struct {
	cfg Config
	log logrus.FieldLogger

	net        network.Network
	bank       *ledger.Bank
	deployment *deploy.Result
	store      *store.Store
	metrics    *metrics.Metrics
	metricsSrv *metrics.Server
	responder  *vrf.Responder
	keeper     *keeper.Keeper

	rpc       *rpc.Server
	httpSrv   *http.Server
	httpAddr  net.Addr
	wsSrv     *http.Server
	wsAddr    net.Addr
	eventsSub event.Subscription

	dirty  chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewNode deploys the lottery and restores persisted state. Nothing runs
// until Start.
func NewNode(cfg Config) (*Node, error) {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.LotteryAddress == (common.Address{}) {
		cfg.LotteryAddress = DefaultLotteryAddress
	}
	preset, err := network.ByName(cfg.Network)
	if err != nil {
		return nil, err
	}
	if cfg.Interval > 0 {
		preset.Lottery.Interval = cfg.Interval
	}

	n := &Node{
		cfg:   cfg,
		log:   cfg.Logger.WithField("component", "node"),
		net:   preset,
		bank:  ledger.NewBank(),
		dirty: make(chan struct{}, 1),
	}
	if err := n.setup(); err != nil {
		n.closeResources()
		return nil, err
	}
	return n, nil
}

func (n *Node) setup() (err error) {
	cfg := n.cfg
	for addr, amount := range cfg.Alloc {
		if err := n.bank.Credit(addr, amount); err != nil {
			return err
		}
	}

	n.deployment, err = deploy.Deploy(n.net, deploy.Options{
		Address:        cfg.LotteryAddress,
		Ledger:         n.bank,
		RequestTimeout: cfg.RequestTimeout,
		Clock:          cfg.Clock,
		Logger:         cfg.Logger,
	})
	if err != nil {
		return fmt.Errorf("deploy: %w", err)
	}

	if cfg.DataDir != "" {
		if n.store, err = store.Open(filepath.Join(cfg.DataDir, StoreFile)); err != nil {
			return err
		}
		if err := n.restore(); err != nil {
			return err
		}
	}

	if cfg.Metrics.Enabled {
		var reg stdprometheus.Registerer
		if cfg.Metrics.Registry != nil {
			reg = cfg.Metrics.Registry
		}
		if n.metrics, err = metrics.PrometheusMetrics(reg, cfg.Metrics.Namespace, "network", n.net.Name); err != nil {
			return err
		}
	} else {
		n.metrics = metrics.NopMetrics()
	}

	n.rpc, err = api.NewServer(&api.Backend{
		Lottery:     n.deployment.Lottery,
		Balances:    n.bank,
		Coordinator: n.deployment.Mock,
	})
	return err
}

func (n *Node) restore() error {
	snap, err := n.store.LoadSnapshot()
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := n.bank.Restore(snap.Accounts); err != nil {
		return fmt.Errorf("restore ledger: %w", err)
	}
	lot := n.deployment.Lottery
	if err := lot.Restore(snap.Lottery); err != nil {
		return err
	}
	log := n.log.WithFields(logrus.Fields{
		"round":   snap.Lottery.Round,
		"state":   lottery.State(snap.Lottery.State),
		"players": len(snap.Lottery.Players),
	})
	if snap.Lottery.HasPending && n.deployment.Mock != nil && n.cfg.RequestTimeout == 0 {
		log.WithField("requestId", snap.Lottery.PendingRequest).Warn("Restored round waits on a request the new mock coordinator never issued; set a request timeout to re-request")
	}
	log.Info("Lottery state restored")
	return nil
}

// Start launches the background services.
func (n *Node) Start(ctx context.Context) error {
	ctx, n.cancel = context.WithCancel(ctx)
	lot := n.deployment.Lottery

	events := make(chan lottery.Event, 128)
	n.eventsSub = lot.SubscribeEvents(events)
	n.updateGauges()
	n.wg.Add(2)
	go n.eventLoop(ctx, events)
	go n.snapshotLoop(ctx)

	if n.deployment.Mock != nil && n.cfg.VRF.AutoFulfill {
		n.responder = &vrf.Responder{
			Coordinator:  n.deployment.Mock,
			BlockTime:    n.cfg.VRF.BlockTime,
			Clock:        n.cfg.Clock,
			Logger:       n.cfg.Logger,
			Fulfillments: n.metrics.Fulfillments,
		}
		n.responder.Start()
	}

	if n.cfg.Keeper.Enabled {
		n.keeper = &keeper.Keeper{
			Upkeep:       lot,
			PollInterval: n.cfg.Keeper.PollInterval,
			Clock:        n.cfg.Clock,
			Logger:       n.cfg.Logger,
			Polls:        n.metrics.KeeperPolls,
		}
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.keeper.Run(ctx) //nolint:errcheck
		}()
	}

	if n.cfg.Metrics.Enabled {
		var g stdprometheus.Gatherer
		if n.cfg.Metrics.Registry != nil {
			g = n.cfg.Metrics.Registry
		}
		srv, err := metrics.Listen(n.cfg.Metrics.Addr, g)
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		n.metricsSrv = srv
		n.log.WithField("addr", srv.Addr()).Info("Metrics server started")
	}

	if n.cfg.RPC.HTTPEnabled {
		srv, addr, err := listenHTTP(n.cfg.RPC.HTTPAddr, n.cfg.RPC.HTTPPort, n.rpc)
		if err != nil {
			return fmt.Errorf("http rpc: %w", err)
		}
		n.httpSrv, n.httpAddr = srv, addr
		n.log.WithField("url", n.HTTPEndpoint()).Info("HTTP server started")
	}
	if n.cfg.RPC.WSEnabled {
		srv, addr, err := listenHTTP(n.cfg.RPC.WSAddr, n.cfg.RPC.WSPort, n.rpc.WebsocketHandler([]string{"*"}))
		if err != nil {
			return fmt.Errorf("ws rpc: %w", err)
		}
		n.wsSrv, n.wsAddr = srv, addr
		n.log.WithField("url", n.WSEndpoint()).Info("WebSocket server started")
	}

	n.log.WithFields(logrus.Fields{
		"network":     n.net.Name,
		"lottery":     lot.Address().Hex(),
		"entranceFee": lot.EntranceFee(),
		"interval":    lot.Interval(),
	}).Info("Lottery node started")
	return nil
}

func listenHTTP(host string, port int, h http.Handler) (*http.Server, net.Addr, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, fmt.Sprint(port)))
	if err != nil {
		return nil, nil, err
	}
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go srv.Serve(ln) //nolint:errcheck
	return srv, ln.Addr(), nil
}

// eventLoop persists events and feeds metrics.
func (n *Node) eventLoop(ctx context.Context, events <-chan lottery.Event) {
	defer n.wg.Done()
	var requestedAt time.Time
	for {
		select {
		case ev := <-events:
			if n.store != nil {
				if _, err := n.store.AppendEvent(ev); err != nil {
					n.log.WithError(err).Error("Failed to persist event")
				}
			}
			switch ev.Kind {
			case lottery.EventEntered:
				n.metrics.Entries.Add(1)
			case lottery.EventUpkeepPerformed:
				requestedAt = ev.Time
				n.metrics.UpkeepsPerformed.Add(1)
			case lottery.EventWinnerPicked:
				n.metrics.WinnersPicked.Add(1)
				if !requestedAt.IsZero() {
					n.metrics.FulfillmentLatency.Observe(ev.Time.Sub(requestedAt).Seconds())
				}
			}
			n.updateGauges()

			select {
			case n.dirty <- struct{}{}:
			default:
			}
		case <-ctx.Done():
			return
		}
	}
}

// updateGauges reads the round gauges from the lottery itself, so they are
// right from the first scrape after a restore.
func (n *Node) updateGauges() {
	lot := n.deployment.Lottery
	lot.SnapshotWith(func(s lottery.Snapshot) {
		n.metrics.State.Set(float64(s.State))
		n.metrics.Players.Set(float64(len(s.Players)))
		balance, _ := new(big.Float).SetInt(n.bank.BalanceOf(lot.Address())).Float64()
		n.metrics.Balance.Set(balance)
	})
}

// snapshotLoop writes a fresh snapshot after every batch of events.
func (n *Node) snapshotLoop(ctx context.Context) {
	defer n.wg.Done()
	for {
		select {
		case <-n.dirty:
			if err := n.saveSnapshot(); err != nil {
				n.log.WithError(err).Error("Failed to save snapshot")
			}
		case <-ctx.Done():
			return
		}
	}
}

func (n *Node) saveSnapshot() error {
	if n.store == nil {
		return nil
	}
	var snap store.Snapshot
	n.deployment.Lottery.SnapshotWith(func(s lottery.Snapshot) {
		snap = store.Snapshot{Lottery: s, Accounts: n.bank.Accounts()}
	})
	return n.store.SaveSnapshot(snap)
}

// Close stops every service, writes a final snapshot and releases the store.
func (n *Node) Close() error {
	var err error
	if n.cancel != nil {
		n.cancel()
	}
	if n.responder != nil {
		n.responder.Stop()
	}
	if n.httpSrv != nil {
		err = multierr.Append(err, shutdown(n.httpSrv))
	}
	if n.wsSrv != nil {
		err = multierr.Append(err, shutdown(n.wsSrv))
	}
	n.wg.Wait()
	if n.eventsSub != nil {
		n.eventsSub.Unsubscribe()
	}
	err = multierr.Append(err, n.saveSnapshot())
	if n.metricsSrv != nil {
		err = multierr.Append(err, n.metricsSrv.Close())
	}
	return multierr.Append(err, n.closeResources())
}

func (n *Node) closeResources() error {
	var err error
	if n.rpc != nil {
		n.rpc.Stop()
	}
	if n.deployment != nil {
		n.deployment.Lottery.Close()
		if n.deployment.Mock != nil {
			n.deployment.Mock.Close()
		}
	}
	if n.store != nil {
		err = multierr.Append(err, n.store.Close())
		n.store = nil
	}
	return err
}

func shutdown(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// Attach returns an in-process RPC client.
func (n *Node) Attach() *rpc.Client {
	return rpc.DialInProc(n.rpc)
}

// HTTPEndpoint is the HTTP-RPC URL, or "" when disabled.
func (n *Node) HTTPEndpoint() string {
	if n.httpAddr == nil {
		return ""
	}
	return "http://" + n.httpAddr.String()
}

// WSEndpoint is the WebSocket-RPC URL, or "" when disabled.
func (n *Node) WSEndpoint() string {
	if n.wsAddr == nil {
		return ""
	}
	return "ws://" + n.wsAddr.String()
}

func (n *Node) Network() network.Network { return n.net.Copy() }

func (n *Node) Lottery() *lottery.Lottery { return n.deployment.Lottery }

func (n *Node) Bank() *ledger.Bank { return n.bank }

// Coordinator is the mock coordinator, nil on live networks.
func (n *Node) Coordinator() *vrf.MockCoordinator { return n.deployment.Mock }

func (n *Node) SubscriptionID() uint64 { return n.deployment.SubscriptionID }

// Responder is nil unless the mock oracle answers in process.
func (n *Node) Responder() *vrf.Responder { return n.responder }

func (n *Node) Store() *store.Store { return n.store }

// String names the node for logs.
func (n *Node) String() string {
	return fmt.Sprintf("%s/%s", n.net.Name, n.deployment.Lottery.Address().Hex())
}
