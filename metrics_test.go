package nessi

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityLabel(t *testing.T) {
	assert.Equal(t, "none", entityLabel(nil))
	assert.Equal(t, "StopAndGoDL", entityLabel(&StopAndGoDL{}))
	assert.Equal(t, "CBRSource", entityLabel(CreateCBRSource(100, 1)))
}

func TestSimMetricsObserveEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := CreateSimMetrics(reg)

	sim := CreateSimulator()
	sim.SetMetrics(m)

	dl := CreateStopAndGoDL()
	sim.ScheduleAbs(dl, nil, func(sim *Simulator, context any, data any) any {
		return nil
	}, 0.5)
	sim.ScheduleAbs(nil, nil, func(sim *Simulator, context any, data any) any {
		return nil
	}, 1.0)
	sim.RunToCompletion()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsExecuted.WithLabelValues("StopAndGoDL")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsExecuted.WithLabelValues("none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.simTime))

	// histograms are registered alongside the counters
	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["nessi_events_executed_total"])
	assert.True(t, names["nessi_handler_duration_seconds"])
	assert.True(t, names["nessi_event_queue_length"])
	assert.True(t, names["nessi_simulation_time_seconds"])
}
