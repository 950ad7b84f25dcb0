package integration

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-lottery/api"
	"github.com/rony4d/go-lottery/deploy"
	"github.com/rony4d/go-lottery/lottery"
)

var (
	alice = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	bob   = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
	fee   = big.NewInt(1e16)
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

// testConfig is an in-memory hardhat node on a mock clock with both players
// funded.
func testConfig(mock *clock.Mock) Config {
	cfg := DefaultConfig()
	cfg.DataDir = ""
	cfg.Clock = mock
	cfg.Logger = quietLogger()
	cfg.Alloc = map[common.Address]*big.Int{
		alice: big.NewInt(1e18),
		bob:   big.NewInt(1e18),
	}
	return cfg
}

func startNode(t *testing.T, cfg Config) *Node {
	t.Helper()
	n, err := NewNode(cfg)
	require.NoError(t, err)
	require.NoError(t, n.Start(context.Background()))
	return n
}

func TestNode_SettlesRoundsByItself(t *testing.T) {
	mock := clock.NewMock()
	n := startNode(t, testConfig(mock))
	defer n.Close()

	require.NotNil(t, n.Responder())
	require.NotNil(t, n.Coordinator())
	require.Nil(t, n.Store())
	require.Equal(t, "hardhat/"+DefaultLotteryAddress.Hex(), n.String())

	client := n.Attach()
	defer client.Close()
	require.NoError(t, client.Call(nil, "lottery_enterLottery", alice, (*hexutil.Big)(fee)))

	lot := n.Lottery()
	require.Eventually(t, func() bool {
		mock.Add(time.Second)
		return lot.Round() == 1
	}, 5*time.Second, 5*time.Millisecond)

	require.Equal(t, alice, lot.RecentWinner())
	require.Equal(t, lottery.StateOpen, lot.State())
	require.Zero(t, lot.NumberOfPlayers())
	require.Zero(t, lot.Balance().Sign())
	require.Equal(t, 0, n.Bank().BalanceOf(alice).Cmp(big.NewInt(1e18)))
	require.Zero(t, n.Coordinator().PendingRequests())
}

func TestNode_ManualRoundOverNetwork(t *testing.T) {
	mock := clock.NewMock()
	cfg := testConfig(mock)
	cfg.Keeper.Enabled = false
	cfg.VRF.AutoFulfill = false
	cfg.RPC.HTTPEnabled = true
	cfg.RPC.HTTPPort = 0
	cfg.RPC.WSEnabled = true
	cfg.RPC.WSPort = 0

	n := startNode(t, cfg)
	defer n.Close()
	require.Nil(t, n.Responder())
	require.NotEmpty(t, n.HTTPEndpoint())
	require.NotEmpty(t, n.WSEndpoint())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hc, err := rpc.DialContext(ctx, n.HTTPEndpoint())
	require.NoError(t, err)
	defer hc.Close()
	ws, err := rpc.DialContext(ctx, n.WSEndpoint())
	require.NoError(t, err)
	defer ws.Close()

	events := make(chan *api.RPCEvent, 8)
	sub, err := ws.Subscribe(ctx, "lottery", events, "events")
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, hc.CallContext(ctx, nil, "lottery_enterLottery", alice, (*hexutil.Big)(fee)))
	require.NoError(t, hc.CallContext(ctx, nil, "lottery_enterLottery", bob, (*hexutil.Big)(fee)))

	var check api.CheckUpkeepResult
	require.NoError(t, hc.CallContext(ctx, &check, "lottery_checkUpkeep", hexutil.Bytes{}))
	require.False(t, check.UpkeepNeeded)

	mock.Add(31 * time.Second)
	var requestID hexutil.Big
	require.NoError(t, hc.CallContext(ctx, &requestID, "lottery_performUpkeep", hexutil.Bytes{}))

	var res api.FulfillmentResult
	require.NoError(t, hc.CallContext(ctx, &res, "vrf_fulfillRandomWords", &requestID, DefaultLotteryAddress))
	require.True(t, res.Success)

	var winner common.Address
	require.NoError(t, hc.CallContext(ctx, &winner, "lottery_getRecentWinner"))
	require.Contains(t, []common.Address{alice, bob}, winner)

	want := []string{"Entered", "Entered", "UpkeepPerformed", "WinnerPicked"}
	for _, name := range want {
		select {
		case ev := <-events:
			require.Equal(t, name, ev.Event)
		case err := <-sub.Err():
			t.Fatalf("subscription failed: %v", err)
		case <-ctx.Done():
			t.Fatalf("timed out waiting for %s", name)
		}
	}

	// Winner holds both fees on top of the starting balance.
	prize := new(big.Int).Add(big.NewInt(1e18), fee)
	require.Equal(t, 0, n.Bank().BalanceOf(winner).Cmp(prize))
}

func TestNode_PersistsAcrossRestart(t *testing.T) {
	mock := clock.NewMock()
	cfg := testConfig(mock)
	cfg.DataDir = t.TempDir()
	cfg.Keeper.Enabled = false
	cfg.VRF.AutoFulfill = false

	n := startNode(t, cfg)
	require.NotNil(t, n.Store())
	lot := n.Lottery()
	require.NoError(t, lot.EnterLottery(alice, fee))
	require.NoError(t, lot.EnterLottery(bob, fee))

	// Events are written behind the lottery's back; wait for both.
	require.Eventually(t, func() bool {
		evs, err := n.Store().Events(0)
		return err == nil && len(evs) == 2
	}, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, n.Close())

	n = startNode(t, cfg)
	defer n.Close()
	lot = n.Lottery()

	require.Equal(t, 2, lot.NumberOfPlayers())
	first, err := lot.Player(0)
	require.NoError(t, err)
	require.Equal(t, alice, first)
	require.Equal(t, 0, lot.Balance().Cmp(big.NewInt(2e16)))

	// Alloc does not credit twice once a snapshot exists.
	spent := new(big.Int).Sub(big.NewInt(1e18), fee)
	require.Equal(t, 0, n.Bank().BalanceOf(alice).Cmp(spent))

	evs, err := n.Store().Events(0)
	require.NoError(t, err)
	require.Len(t, evs, 2)
	require.Equal(t, lottery.EventEntered, evs[1].Kind)
	require.Equal(t, bob, evs[1].Player)
}

func TestNode_ReRequestsRestoredPendingRequest(t *testing.T) {
	mock := clock.NewMock()
	cfg := testConfig(mock)
	cfg.DataDir = t.TempDir()
	cfg.Keeper.Enabled = false
	cfg.VRF.AutoFulfill = false
	cfg.RequestTimeout = time.Minute

	n := startNode(t, cfg)
	require.NoError(t, n.Lottery().EnterLottery(alice, fee))
	mock.Add(31 * time.Second)
	_, err := n.Lottery().PerformUpkeep(nil)
	require.NoError(t, err)
	require.NoError(t, n.Close())

	n = startNode(t, cfg)
	defer n.Close()
	lot := n.Lottery()
	require.Equal(t, lottery.StateCalculating, lot.State())
	require.NotNil(t, lot.PendingRequest())

	// The fresh coordinator never issued the restored id.
	_, err = n.Coordinator().FulfillRandomWords(lot.PendingRequest(), DefaultLotteryAddress)
	require.Error(t, err)

	needed, _ := lot.CheckUpkeep(nil)
	require.False(t, needed)

	mock.Add(time.Minute)
	needed, _ = lot.CheckUpkeep(nil)
	require.True(t, needed)

	id, err := lot.PerformUpkeep(nil)
	require.NoError(t, err)
	res, err := n.Coordinator().FulfillRandomWords(id, DefaultLotteryAddress)
	require.NoError(t, err)
	require.True(t, res.Success)

	require.Equal(t, lottery.StateOpen, lot.State())
	require.Equal(t, alice, lot.RecentWinner())
	require.Equal(t, uint64(1), lot.Round())
}

// gaugeValue reads one gauge of the node's metrics from reg, -1 when it
// has not been set.
func gaugeValue(reg *stdprometheus.Registry, name string) float64 {
	families, err := reg.Gather()
	if err != nil {
		return -1
	}
	for _, mf := range families {
		if mf.GetName() == name && len(mf.GetMetric()) == 1 {
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	return -1
}

func TestNode_GaugesAfterRestore(t *testing.T) {
	mock := clock.NewMock()
	cfg := testConfig(mock)
	cfg.DataDir = t.TempDir()
	cfg.Keeper.Enabled = false
	cfg.VRF.AutoFulfill = false
	cfg.Metrics.Enabled = true
	cfg.Metrics.Addr = "127.0.0.1:0"
	cfg.Metrics.Registry = stdprometheus.NewRegistry()

	n := startNode(t, cfg)
	require.NoError(t, n.Lottery().EnterLottery(alice, fee))
	require.NoError(t, n.Lottery().EnterLottery(bob, fee))
	require.Eventually(t, func() bool {
		return gaugeValue(cfg.Metrics.Registry, "lotteryd_lottery_players") == 2
	}, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, n.Close())

	// A fresh registry sees only what the restored node reports.
	reg := stdprometheus.NewRegistry()
	cfg.Metrics.Registry = reg
	n = startNode(t, cfg)
	defer n.Close()

	require.Equal(t, float64(2), gaugeValue(reg, "lotteryd_lottery_players"))
	require.Equal(t, float64(2e16), gaugeValue(reg, "lotteryd_lottery_balance_wei"))
	require.Equal(t, float64(lottery.StateOpen), gaugeValue(reg, "lotteryd_lottery_state"))

	mock.Add(31 * time.Second)
	_, err := n.Lottery().PerformUpkeep(nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return gaugeValue(reg, "lotteryd_lottery_state") == float64(lottery.StateCalculating)
	}, 5*time.Second, 5*time.Millisecond)
}

func TestNewNode_Errors(t *testing.T) {
	tests := []struct {
		name    string
		network string
		want    func(t *testing.T, err error)
	}{
		{
			name:    "unknown network",
			network: "mainnet-ish",
			want: func(t *testing.T, err error) {
				require.Error(t, err)
			},
		},
		{
			name:    "live network without coordinator",
			network: "rinkeby",
			want: func(t *testing.T, err error) {
				require.ErrorIs(t, err, deploy.ErrNoCoordinator)
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := testConfig(clock.NewMock())
			cfg.Network = test.network
			n, err := NewNode(cfg)
			require.Nil(t, n)
			test.want(t, err)
		})
	}
}
