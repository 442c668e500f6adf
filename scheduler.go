package nessi

// scheduler.go holds the discrete-event engine: the event queue,
// the virtual clock, and the control operations that drive a run.

// Events are ordered by (time, priority, insertion order).  A lower
// priority value fires first among events with the same timestamp.

import (
	"container/heap"
	"fmt"
	"math"

	"github.com/iti/evt/vrtime"
)

// EventHandlerFunction is the signature of every event handler.
// context carries the entity the event belongs to, data the payload.
type EventHandlerFunction func(sim *Simulator, context any, data any) any

// DefaultPriority is assigned to events scheduled without an
// explicit priority.
const DefaultPriority int64 = 10

type eventState int

const (
	eventPending eventState = iota
	eventFired
	eventCancelled
	// eventUnqueued marks an event whose timestamp fell outside the
	// simulation horizon.  It was never inserted and never fires.
	eventUnqueued
)

// Event is the handle returned by the Schedule calls.  Holding on to
// it lets the caller cancel the event later.
type Event struct {
	time     float64
	priority int64
	seq      int64
	context  any
	data     any
	handler  EventHandlerFunction
	state    eventState
	pos      int
}

// Time returns the virtual time at which the event fires (or fired).
func (ev *Event) Time() float64 {
	return ev.time
}

// Priority returns the scheduling priority of the event.
func (ev *Event) Priority() int64 {
	return ev.priority
}

// Pending tells whether the event is still queued for execution.
func (ev *Event) Pending() bool {
	return ev.state == eventPending
}

// evtHeap and its methods implement a min-priority heap on
// (time, priority, insertion order) of pending events
type evtHeap []*Event

func (h evtHeap) Len() int { return len(h) }
func (h evtHeap) Less(i, j int) bool {
	if h[i].time != h[j].time {
		return h[i].time < h[j].time
	}
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h evtHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].pos = i
	h[j].pos = j
}

func (h *evtHeap) Push(x any) {
	ev := x.(*Event)
	ev.pos = len(*h)
	*h = append(*h, ev)
}

func (h *evtHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[0 : n-1]
	return x
}

// ScheduleAbs queues fn for execution at absolute virtual time t.
// Events outside the window [now, horizon] are silently discarded:
// the returned handle is valid but will never fire, and cancelling
// it is a no-op.
func (sim *Simulator) ScheduleAbs(context any, data any, fn EventHandlerFunction, t float64) *Event {
	return sim.ScheduleAbsPri(context, data, fn, t, DefaultPriority)
}

// ScheduleAbsPri is ScheduleAbs with an explicit priority.  Lower
// values fire first among events with equal timestamps.
func (sim *Simulator) ScheduleAbsPri(context any, data any, fn EventHandlerFunction,
	t float64, pri int64) *Event {

	sim.nxtEvtSeq += 1
	ev := &Event{
		time:     t,
		priority: pri,
		seq:      sim.nxtEvtSeq,
		context:  context,
		data:     data,
		handler:  fn,
	}
	if t < sim.simTime || t > sim.maxTime {
		ev.state = eventUnqueued
		return ev
	}
	ev.state = eventPending
	heap.Push(&sim.evtq, ev)
	return ev
}

// Schedule queues fn for execution delay seconds after the current
// virtual time.  A negative delay is a model bug and panics.
func (sim *Simulator) Schedule(context any, data any, fn EventHandlerFunction, delay float64) *Event {
	return sim.SchedulePri(context, data, fn, delay, DefaultPriority)
}

// SchedulePri is Schedule with an explicit priority.
func (sim *Simulator) SchedulePri(context any, data any, fn EventHandlerFunction,
	delay float64, pri int64) *Event {
	if delay < 0 {
		panic(fmt.Sprintf("scheduling %g seconds into the past", delay))
	}
	return sim.ScheduleAbsPri(context, data, fn, sim.simTime+delay, pri)
}

// Cancel removes a pending event from the queue.  Cancelling an
// event that was discarded at scheduling time (beyond the horizon)
// is a no-op.  Cancelling an event that already fired, or was
// already cancelled, is an error.
func (sim *Simulator) Cancel(ev *Event) error {
	switch ev.state {
	case eventPending:
		heap.Remove(&sim.evtq, ev.pos)
		ev.state = eventCancelled
		return nil
	case eventUnqueued:
		return nil
	default:
		return fmt.Errorf("cancel of non-existing event at t=%g", ev.time)
	}
}

// Now returns the current virtual time in seconds.
func (sim *Simulator) Now() float64 {
	return sim.simTime
}

// VirtualTime returns the current virtual time as a vrtime.Time.
func (sim *Simulator) VirtualTime() vrtime.Time {
	return vrtime.SecondsToTime(sim.simTime)
}

// IsRunning tells whether an event loop is active or suspended
// mid-run (halted or single-stepping with events still queued).
func (sim *Simulator) IsRunning() bool {
	return sim.running
}

// QueueLen returns the number of pending events.
func (sim *Simulator) QueueLen() int {
	return len(sim.evtq)
}

// Run executes queued events until the queue drains or virtual time
// would pass 'until'.  The clock is reset to zero first.  If the
// queue drained, the state is reinitialized for a fresh run and the
// timestamp of the last executed event is returned; if the run was
// halted the clock keeps its value and that value is returned.
func (sim *Simulator) Run(until float64) float64 {
	sim.maxTime = until
	sim.simTime = 0.0
	sim.running = true
	sim.logger.Debug().Float64("until", until).Int("events", len(sim.evtq)).
		Msg("run started")
	return sim.eventLoop()
}

// RunToCompletion runs with no horizon.
func (sim *Simulator) RunToCompletion() float64 {
	return sim.Run(math.MaxFloat64)
}

// Halt suspends the event loop after the event in progress.  Queued
// events are kept; Continue resumes them.
func (sim *Simulator) Halt() {
	sim.running = false
}

// Continue resumes a halted or single-stepped run.
func (sim *Simulator) Continue() float64 {
	if sim.singleStep {
		sim.singleStep = false
		sim.running = true
		return sim.eventLoop()
	}
	if !sim.running {
		sim.running = true
		return sim.eventLoop()
	}
	return sim.simTime
}

// Step executes one event of an active run, then suspends again.
// The first call on a running simulation switches it into
// single-step mode; each following call executes one event.
func (sim *Simulator) Step() float64 {
	if sim.running {
		if sim.singleStep {
			return sim.eventLoop()
		}
		sim.singleStep = true
	}
	return sim.simTime
}

// Terminate abandons the run in progress.  All pending events are
// discarded.  If called from within a handler the loop exits once
// that handler returns; otherwise the state is reset immediately.
func (sim *Simulator) Terminate() {
	sim.evtq = sim.evtq[:0]
	if sim.running && !sim.singleStep {
		sim.maxTime = 0.0
	} else {
		sim.running = false
		sim.Reinitialize()
	}
}

// Reinitialize clears the event queue and resets the clock and the
// horizon.  It has no effect while a run is active.
func (sim *Simulator) Reinitialize() {
	if sim.running {
		return
	}
	for i := range sim.evtq {
		sim.evtq[i] = nil
	}
	sim.evtq = sim.evtq[:0]
	sim.simTime = 0.0
	sim.maxTime = math.MaxFloat64
	sim.singleStep = false
}

// eventLoop pops and executes events in timestamp order until the
// queue drains, the horizon is reached, the loop is halted, or (in
// single-step mode) one event has executed.
func (sim *Simulator) eventLoop() float64 {
	for len(sim.evtq) > 0 && sim.running {
		ev := heap.Pop(&sim.evtq).(*Event)
		ev.state = eventFired
		if sim.simTime < ev.time {
			sim.simTime = ev.time
		}
		sim.execEvent(ev)
		if sim.singleStep && len(sim.evtq) > 0 {
			return sim.simTime
		}
	}
	sim.running = false
	if len(sim.evtq) > 0 {
		// halted mid-run, keep state for Continue
		return sim.simTime
	}
	lastEventTime := sim.simTime
	sim.logger.Debug().Float64("endtime", lastEventTime).Msg("run complete")
	sim.Reinitialize()
	return lastEventTime
}
