package metrics

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ObserveConnect("sqlite", 5*time.Millisecond, nil)
	c.ObserveConnect("sqlite", time.Millisecond, stderrors.New("locked"))
	c.ObserveReconnect("local")
	c.ObserveCacheHit("local")
	c.ObserveCacheHit("local")
	c.ObserveConversion("frame", "miss")
	c.SetCached(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.connections.WithLabelValues("sqlite", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.connections.WithLabelValues("sqlite", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.reconnects.WithLabelValues("local")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.cacheHits.WithLabelValues("local")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.conversions.WithLabelValues("frame", "miss")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.cached))
	assert.Equal(t, 1, testutil.CollectAndCount(c.connectDuration))
}

func TestCollector_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewCollector(prometheus.NewRegistry())
		NewCollector(prometheus.NewRegistry())
	})
}

func TestTimer(t *testing.T) {
	timer := NewTimer()
	time.Sleep(time.Millisecond)
	assert.GreaterOrEqual(t, timer.Elapsed(), time.Millisecond)
}
