package metrics

import (
	"io"
	"net/http"
	"testing"

	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestNopMetrics(t *testing.T) {
	m := NopMetrics()
	require.NotNil(t, m.Entries)
	require.NotNil(t, m.FulfillmentLatency)

	// None of these may panic.
	m.Entries.Add(1)
	m.Players.Set(3)
	m.FulfillmentLatency.Observe(1.5)
	m.KeeperPolls.With("outcome", "idle").Add(1)
}

func TestPrometheusMetrics_UnevenLabels(t *testing.T) {
	_, err := PrometheusMetrics(stdprometheus.NewRegistry(), "lotteryd", "node")
	require.Error(t, err)
}

func TestPrometheusMetrics_Served(t *testing.T) {
	reg := stdprometheus.NewRegistry()
	m, err := PrometheusMetrics(reg, "lotterytest", "node", "n1")
	require.NoError(t, err)

	m.Entries.Add(2)
	m.Players.Set(2)
	m.KeeperPolls.With("outcome", "performed").Add(1)
	m.FulfillmentLatency.Observe(3)

	srv, err := Listen("127.0.0.1:0", reg)
	require.NoError(t, err)
	defer srv.Close()

	resp, err := http.Get("http://" + srv.Addr().String() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text := string(body)
	require.Contains(t, text, `lotterytest_lottery_entries_total{node="n1"} 2`)
	require.Contains(t, text, `lotterytest_lottery_players{node="n1"} 2`)
	require.Contains(t, text, `lotterytest_lottery_keeper_polls_total{node="n1",outcome="performed"} 1`)
	require.Contains(t, text, `lotterytest_lottery_fulfillment_latency_seconds_count{node="n1"} 1`)
}

func TestPrometheusMetrics_SharedRegistry(t *testing.T) {
	reg := stdprometheus.NewRegistry()
	n1, err := PrometheusMetrics(reg, "lotteryd", "node", "n1")
	require.NoError(t, err)
	n2, err := PrometheusMetrics(reg, "lotteryd", "node", "n2")
	require.NoError(t, err)
	again, err := PrometheusMetrics(reg, "lotteryd", "node", "n1")
	require.NoError(t, err)

	n1.Entries.Add(1)
	again.Entries.Add(2)
	n2.Entries.Add(5)

	families, err := reg.Gather()
	require.NoError(t, err)
	got := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "lotteryd_lottery_entries_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			got[metric.GetLabel()[0].GetValue()] = metric.GetCounter().GetValue()
		}
	}
	require.Equal(t, map[string]float64{"n1": 3, "n2": 5}, got)
}

func TestPrometheusMetrics_ConflictingRegistration(t *testing.T) {
	reg := stdprometheus.NewRegistry()
	_, err := PrometheusMetrics(reg, "lotteryd", "node", "n1")
	require.NoError(t, err)

	// Same names, different label set.
	_, err = PrometheusMetrics(reg, "lotteryd", "shard", "s1")
	require.Error(t, err)
}
