package retry

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jzx17/goretry/pkg/types"
)

func TestMetricsListener(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsListener(reg)
	rc := NewRetryContext("send", time.Now())

	rc.beginAttempt()
	assert.True(t, m.OnOpen(rc))
	m.OnError(rc, types.NewRemoteAccessError(500, nil))
	rc.beginAttempt()
	m.OnOpen(rc)
	m.OnClose(rc, errors.New("gave up"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.attempts.WithLabelValues("send")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("send", "remote_access")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.closed.WithLabelValues("send", "failure")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.closed.WithLabelValues("send", "success")))

	count, err := testutil.GatherAndCount(reg, "goretry_executor_series_attempts")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRegisterCacheMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()

	var cache *ShardedContextCache
	onEvict := RegisterCacheMetrics(reg, "test", func() RetryContextCache { return cache })
	cache = NewShardedContextCache(1, WithEvictCallback(onEvict))

	require.NoError(t, cache.Put(key("a"), newContext("a")))
	require.NoError(t, cache.Put(key("b"), newContext("b")))

	families, err := reg.Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			switch {
			case metric.GetGauge() != nil:
				values[mf.GetName()] = metric.GetGauge().GetValue()
			case metric.GetCounter() != nil:
				values[mf.GetName()] = metric.GetCounter().GetValue()
			}
		}
	}

	assert.Equal(t, 1.0, values["goretry_cache_contexts"])
	assert.Equal(t, 1.0, values["goretry_cache_evictions_total"])
}
