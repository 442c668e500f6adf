package nessi

import (
	"io"
	"math"
	"time"

	"github.com/rs/zerolog"
)

// Simulator bundles the event engine with the tracing, sampling and
// measurement facilities a model run needs.  All entities of a model
// hold a pointer to the Simulator that drives them.
type Simulator struct {
	evtq       evtHeap
	nxtEvtSeq  int64
	simTime    float64
	maxTime    float64
	running    bool
	singleStep bool

	logger zerolog.Logger

	// Trace collects time series emitted by entities during a run
	Trace *TraceCollector
	// Samplers drives periodic sampling of entity state
	Samplers *SamplerManager
	// Activity records annotated protocol activity spans
	Activity *ActivityTracer
	// TraceMgr gathers per-object structured trace records for
	// post-run analysis
	TraceMgr *TraceManager

	metrics *SimMetrics
}

// CreateSimulator is a constructor
func CreateSimulator() *Simulator {
	sim := new(Simulator)
	sim.evtq = make(evtHeap, 0)
	sim.maxTime = math.MaxFloat64
	sim.logger = zerolog.New(io.Discard)
	sim.Trace = createTraceCollector(sim)
	sim.Samplers = createSamplerManager(sim)
	sim.Activity = createActivityTracer(sim.Trace)
	sim.TraceMgr = CreateTraceManager("nessi", false)
	return sim
}

// SetLogger installs the logger used by the engine and by entities
// that log through their simulator.
func (sim *Simulator) SetLogger(logger zerolog.Logger) {
	sim.logger = logger
}

// Logger returns the simulator's logger.
func (sim *Simulator) Logger() *zerolog.Logger {
	return &sim.logger
}

// SetMetrics attaches a Prometheus instrumentation set to the
// engine.  Passing nil detaches it.
func (sim *Simulator) SetMetrics(m *SimMetrics) {
	sim.metrics = m
}

func (sim *Simulator) execEvent(ev *Event) {
	if sim.metrics == nil {
		ev.handler(sim, ev.context, ev.data)
		return
	}
	start := time.Now()
	ev.handler(sim, ev.context, ev.data)
	sim.metrics.observeEvent(ev.context, time.Since(start), len(sim.evtq), sim.simTime)
}
