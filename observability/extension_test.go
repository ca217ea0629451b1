package observability_test

import (
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/subvault"
	"github.com/xraph/subvault/observability"
	"github.com/xraph/subvault/store/memory"
	"github.com/xraph/subvault/subscription"
)

type fakeCounter struct {
	mu sync.Mutex
	n  float64
}

func (c *fakeCounter) Inc() { c.Add(1) }
func (c *fakeCounter) Add(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n += v
}

type fakeHistogram struct {
	mu  sync.Mutex
	obs []float64
}

func (h *fakeHistogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.obs = append(h.obs, v)
}

type fakeFactory struct {
	counters   map[string]*fakeCounter
	histograms map[string]*fakeHistogram
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{
		counters:   map[string]*fakeCounter{},
		histograms: map[string]*fakeHistogram{},
	}
}

func (f *fakeFactory) Counter(name string) observability.Counter {
	c := &fakeCounter{}
	f.counters[name] = c
	return c
}

func (f *fakeFactory) Histogram(name string) observability.Histogram {
	h := &fakeHistogram{}
	f.histograms[name] = h
	return h
}

func TestMetricsExtensionCountsVaultEvents(t *testing.T) {
	ctx := context.Background()
	f := newFakeFactory()
	v := subvault.New(memory.New(), subvault.WithPlugin(observability.NewMetricsExtension(f)))
	require.NoError(t, v.Init(ctx, subvault.InitParams{Admin: "admin"}))

	subID, err := v.CreateSubscription(ctx, subvault.CreateParams{
		Subscriber: "alice", Merchant: "acme", Amount: 10, IntervalSeconds: 1, UsageEnabled: true,
	})
	require.NoError(t, err)
	require.NoError(t, v.DepositFunds(ctx, subID, "alice", 25))
	require.NoError(t, v.ChargeUsage(ctx, subID, 25))

	_, err = v.BatchCharge(ctx, []subscription.ID{subID, 99})
	require.NoError(t, err)

	assert.Equal(t, float64(1), f.counters["subvault.subscription.created"].n)
	assert.Equal(t, float64(1), f.counters["subvault.deposit.count"].n)
	assert.Equal(t, []float64{25}, f.histograms["subvault.deposit.amount"].obs)
	assert.Equal(t, float64(1), f.counters["subvault.balance.exhausted"].n)
	assert.Equal(t, float64(1), f.counters["subvault.batch.runs"].n)
	assert.Equal(t, float64(2), f.counters["subvault.batch.items.failed"].n)
	assert.Equal(t, []float64{2}, f.histograms["subvault.batch.size"].obs)
}

func TestPrometheusFactory(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := observability.NewPrometheusFactory(reg)

	c := f.Counter("subvault.charge.interval.success")
	c.Inc()
	c.Add(2)
	assert.Same(t, c, f.Counter("subvault.charge.interval.success"))

	pc, ok := c.(prometheus.Counter)
	require.True(t, ok)
	assert.InDelta(t, 3, testutil.ToFloat64(pc), 0)

	f.Histogram("subvault.batch.size").Observe(4)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, mf := range families {
		names = append(names, mf.GetName())
	}
	assert.ElementsMatch(t, []string{"subvault_charge_interval_success_total", "subvault_batch_size"}, names)
}

func TestPrometheusFactoryBackedExtension(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))
	require.NoError(t, m.OnMinTopupUpdated(context.Background(), nil))

	count, err := testutil.GatherAndCount(reg, "subvault_settings_min_topup_updated_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	pc, ok := m.MinTopupUpdated.(prometheus.Counter)
	require.True(t, ok)
	assert.InDelta(t, 1, testutil.ToFloat64(pc), 0)
}
