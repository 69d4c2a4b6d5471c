package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.ObserveServe(ResultOK)
	m.ObserveServe(ResultOK)
	m.ObserveServe(ResultEmpty)
	m.SetQueueItems(3)
	m.ObserveFlush(nil, 10*time.Millisecond)
	m.ObserveFlush(errors.New("lock timeout"), time.Second)
	m.ObserveIngest(4, 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.served.WithLabelValues(ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.served.WithLabelValues(ResultEmpty)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.queueItems))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.flushes.WithLabelValues(ResultError)))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.ingested.WithLabelValues(ResultAppended)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ingested.WithLabelValues(ResultFailed)))
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObserveServe(ResultOK)
		m.SetQueueItems(1)
		m.ObserveFlush(nil, time.Millisecond)
		m.ObserveIngest(1, 1)
	})
}
