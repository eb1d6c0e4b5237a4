package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPrometheusRecorder(reg, "boardroom")

	rec.ObserveRequest("llama3:latest", "discussion", 120, true, "", 2*time.Second)
	rec.ObserveRequest("llama3:latest", "discussion", 0, false, "timeout", time.Second)
	rec.ObserveTurn("discussion", StatusSuccess, 3*time.Second)
	rec.ObserveVerdicts(5, 2)

	assert.InDelta(t, 1, testutil.ToFloat64(rec.requestsTotal.WithLabelValues("llama3:latest", "discussion", StatusError, "timeout")), 0)
	assert.InDelta(t, 120, testutil.ToFloat64(rec.promptTokens.WithLabelValues("llama3:latest", "discussion")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(rec.verdictsTotal.WithLabelValues("fallback")), 0)

	count, err := testutil.GatherAndCount(reg, "boardroom_turns_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNopRecorder(t *testing.T) {
	rec := Nop()
	rec.ObserveRequest("m", "chat", 1, true, "", time.Millisecond)
	rec.ObserveTurn("chat", StatusError, time.Millisecond)
	rec.ObserveVerdicts(0, 0)
}
