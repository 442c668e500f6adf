package nessi

// trace.go holds the run-time measurement facilities: file and
// listener based time-series tracing, periodic state sampling, an
// activity annotation channel, and the structured per-object trace
// record store written out after a run.

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strconv"

	"github.com/iti/evt/vrtime"
	exprand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
	"gopkg.in/yaml.v3"
)

// TraceMode selects the on-disk encoding of a file trace.
type TraceMode int

const (
	// TraceASCII writes one "time value" line per sample
	TraceASCII TraceMode = iota
	// TraceBinary writes consecutive (time, value) float64 pairs
	TraceBinary
)

// TraceListener receives every value traced under the id it was
// registered for.
type TraceListener func(t float64, id string, value any)

type listenerReg struct {
	name string
	fn   TraceListener
}

type traceFile struct {
	name string
	mode TraceMode
	f    *os.File
	w    *bufio.Writer
}

// TraceCollector fans traced values out to files and listeners.
// Entities call Trace with a trace id; nothing happens for ids no
// file or listener was attached to.
type TraceCollector struct {
	sim       *Simulator
	files     map[string][]*traceFile
	listeners map[string][]listenerReg
}

func createTraceCollector(sim *Simulator) *TraceCollector {
	tc := new(TraceCollector)
	tc.sim = sim
	tc.files = make(map[string][]*traceFile)
	tc.listeners = make(map[string][]listenerReg)
	return tc
}

// StartFileTrace attaches a file to a trace id.  A file already
// attached to the id is left untouched.
func (tc *TraceCollector) StartFileTrace(id string, filename string, mode TraceMode) error {
	for _, tf := range tc.files[id] {
		if tf.name == filename {
			return nil
		}
	}
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("trace file for %s: %w", id, err)
	}
	tf := &traceFile{name: filename, mode: mode, f: f, w: bufio.NewWriter(f)}
	tc.files[id] = append(tc.files[id], tf)
	return nil
}

// StopFileTrace detaches a file from a trace id and closes it.
func (tc *TraceCollector) StopFileTrace(id string, filename string) error {
	tfs := tc.files[id]
	for idx, tf := range tfs {
		if tf.name != filename {
			continue
		}
		tc.files[id] = append(tfs[:idx], tfs[idx+1:]...)
		if err := tf.w.Flush(); err != nil {
			tf.f.Close()
			return err
		}
		return tf.f.Close()
	}
	return fmt.Errorf("no trace of %s to file %s", id, filename)
}

// RegisterListener attaches a callback to a trace id.  The name
// identifies the registration for later removal.
func (tc *TraceCollector) RegisterListener(id string, name string, fn TraceListener) {
	tc.listeners[id] = append(tc.listeners[id], listenerReg{name: name, fn: fn})
}

// UnregisterListener removes a named callback from a trace id.
func (tc *TraceCollector) UnregisterListener(id string, name string) {
	regs := tc.listeners[id]
	for idx, reg := range regs {
		if reg.name == name {
			tc.listeners[id] = append(regs[:idx], regs[idx+1:]...)
			return
		}
	}
}

// Trace records a value for a trace id at the current virtual time.
func (tc *TraceCollector) Trace(id string, value any) {
	tfs := tc.files[id]
	regs := tc.listeners[id]
	if len(tfs) == 0 && len(regs) == 0 {
		return
	}
	now := tc.sim.Now()
	for _, tf := range tfs {
		switch tf.mode {
		case TraceASCII:
			fmt.Fprintf(tf.w, "%0.12f %v\n", now, value)
		case TraceBinary:
			fv, ok := traceValueToFloat(value)
			if !ok {
				tc.sim.logger.Warn().Str("trace", id).
					Msgf("non-numeric value %v dropped from binary trace", value)
				continue
			}
			binary.Write(tf.w, binary.LittleEndian, [2]float64{now, fv})
		}
	}
	for _, reg := range regs {
		reg.fn(now, id, value)
	}
}

// Close flushes and closes every attached trace file.
func (tc *TraceCollector) Close() error {
	errs := []error{}
	for _, tfs := range tc.files {
		for _, tf := range tfs {
			if err := tf.w.Flush(); err != nil {
				errs = append(errs, err)
			}
			if err := tf.f.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	tc.files = make(map[string][]*traceFile)
	return ReportErrs(errs)
}

func traceValueToFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case bool:
		if v {
			return 1.0, true
		}
		return 0.0, true
	}
	return 0.0, false
}

// SamplerKind selects the spacing of sampling instants.
type SamplerKind int

const (
	// SamplerUniform samples at fixed intervals
	SamplerUniform SamplerKind = iota
	// SamplerExponential draws exponential inter-sample gaps with
	// the given mean
	SamplerExponential
)

type sampler struct {
	id       string
	probe    func() any
	interval float64
	kind     SamplerKind
	exp      distuv.Exponential
}

// SamplerManager schedules periodic probes of entity state and
// feeds the probed values into the trace collector.
type SamplerManager struct {
	sim     *Simulator
	nxtSeed uint64
}

func createSamplerManager(sim *Simulator) *SamplerManager {
	return &SamplerManager{sim: sim}
}

// NewSampler arranges for probe() to be called repeatedly starting
// at virtual time start, tracing each probed value under id.  For
// SamplerUniform the interval is the fixed sample spacing, for
// SamplerExponential its mean.
func (sm *SamplerManager) NewSampler(id string, probe func() any, interval float64,
	kind SamplerKind, start float64) error {

	if interval <= 0.0 {
		return fmt.Errorf("sampler %s: interval %g must be positive", id, interval)
	}
	if kind != SamplerUniform && kind != SamplerExponential {
		return fmt.Errorf("sampler %s: unknown sampler kind %d", id, kind)
	}
	s := &sampler{id: id, probe: probe, interval: interval, kind: kind}
	if kind == SamplerExponential {
		sm.nxtSeed += 1
		s.exp = distuv.Exponential{Rate: 1.0 / interval, Src: exprand.NewSource(sm.nxtSeed)}
	}
	sm.sim.ScheduleAbs(s, nil, takeSample, start)
	return nil
}

// takeSample probes a sampler's target, traces the value and
// reschedules itself.
func takeSample(sim *Simulator, context any, data any) any {
	s := context.(*sampler)
	sim.Trace.Trace(s.id, s.probe())
	gap := s.interval
	if s.kind == SamplerExponential {
		gap = s.exp.Rand()
	}
	sim.Schedule(s, nil, takeSample, gap)
	return nil
}

// ActivityGraphic carries the presentation hints attached to an
// activity annotation.
type ActivityGraphic struct {
	Color string
	Size  int
	Style int
}

// ActivityActor is anything that can be named in an activity trace.
type ActivityActor interface {
	FullName() string
}

// ActivityTracer publishes annotated protocol activity to the trace
// ids each actor was registered with.
type ActivityTracer struct {
	tc     *TraceCollector
	actors map[ActivityActor][]string
}

func createActivityTracer(tc *TraceCollector) *ActivityTracer {
	return &ActivityTracer{tc: tc, actors: make(map[ActivityActor][]string)}
}

// RegisterActor attaches an actor to the trace ids its activity
// records go to.
func (at *ActivityTracer) RegisterActor(actor ActivityActor, traceIDs []string) {
	at.actors[actor] = traceIDs
}

// Activity records one annotation for an actor.  The record format
// is "actor.subactor#text#color,size,style".
func (at *ActivityTracer) Activity(actor ActivityActor, subactor string, text string,
	g *ActivityGraphic) {

	ids := at.actors[actor]
	if len(ids) == 0 {
		return
	}
	name := actor.FullName()
	if subactor != "" {
		name = name + "." + subactor
	}
	record := name + "#" + text
	if g != nil {
		record += fmt.Sprintf("#%s,%d,%d", g.Color, g.Size, g.Style)
	}
	for _, id := range ids {
		at.tc.Trace(id, record)
	}
}

type TraceRecordType int

const (
	FrameType TraceRecordType = iota
)

var trtToStr map[TraceRecordType]string = map[TraceRecordType]string{FrameType: "frame"}

type TraceInst struct {
	TraceTime string
	TraceType string
	TraceStr  string
}

// NameType is an entry in a dictionary created for a trace
// that maps object id numbers to a (name,type) pair
type NameType struct {
	Name string
	Type string
}

// TraceManager gathers structured per-object records about an
// execution of a model, for post-run analysis
type TraceManager struct {
	// experiment uses trace
	InUse bool `json:"inuse" yaml:"inuse"`

	// name of experiment
	ExpName string `json:"expname" yaml:"expname"`

	// text name associated with each objID
	NameByID map[int]NameType `json:"namebyid" yaml:"namebyid"`

	// all trace records for this experiment
	Traces map[int][]TraceInst `json:"traces" yaml:"traces"`
}

// CreateTraceManager is a constructor.  It saves the name of the experiment
// and a flag indicating whether the trace manager is active.  By testing this
// flag we can inhibit the activity of gathering a trace when we don't want it,
// while embedding calls to its methods everywhere we need them when it is
func CreateTraceManager(expName string, active bool) *TraceManager {
	tm := new(TraceManager)
	tm.InUse = active
	tm.ExpName = expName
	tm.NameByID = make(map[int]NameType)
	tm.Traces = make(map[int][]TraceInst)
	return tm
}

// Active tells the caller whether the Trace Manager is actively being used
func (tm *TraceManager) Active() bool {
	return tm.InUse
}

// SetActive turns trace gathering on or off.  Names and records added
// while inactive are not retained.
func (tm *TraceManager) SetActive(active bool) {
	tm.InUse = active
}

// AddTrace creates a record of the trace using its calling arguments, and stores it
func (tm *TraceManager) AddTrace(vrt vrtime.Time, objID int, trace TraceInst) {
	if !tm.InUse {
		return
	}
	_, present := tm.Traces[objID]
	if !present {
		tm.Traces[objID] = make([]TraceInst, 0)
	}
	tm.Traces[objID] = append(tm.Traces[objID], trace)
}

// AddName is used to add an element to the id -> (name,type) dictionary for the trace file
func (tm *TraceManager) AddName(id int, name string, objDesc string) {
	if tm.InUse {
		_, present := tm.NameByID[id]
		if present {
			panic("duplicated id in AddName")
		}
		tm.NameByID[id] = NameType{Name: name, Type: objDesc}
	}
}

// WriteToFile stores the gathered trace records to the file whose name is
// given.  Serialization to json or to yaml is selected based on the
// extension of this name.
func (tm *TraceManager) WriteToFile(filename string) error {
	if !tm.InUse {
		return nil
	}
	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error

	if pathExt == ".yaml" || pathExt == ".YAML" || pathExt == ".yml" {
		bytes, merr = yaml.Marshal(*tm)
	} else if pathExt == ".json" || pathExt == ".JSON" {
		bytes, merr = json.MarshalIndent(*tm, "", "\t")
	} else {
		merr = fmt.Errorf("unrecognized trace file extension %s", pathExt)
	}
	if merr != nil {
		return merr
	}
	return os.WriteFile(filename, bytes, 0644)
}

// FrameTrace records the visitation of a frame to some point in the
// simulation.  Saved for post-run analysis.
type FrameTrace struct {
	Time     float64 // time in float64
	Ticks    int64   // ticks variable of time
	Priority int64   // priority field of time-stamp
	ObjID    int     // integer id for object being referenced
	Op       string  // "send", "transmit", "deliver", "drop"
	Octets   int     // length of the frame at this point
}

func (ft *FrameTrace) TraceType() TraceRecordType {
	return FrameType
}

func (ft *FrameTrace) Serialize() string {
	bytes, merr := yaml.Marshal(*ft)
	if merr != nil {
		panic(merr)
	}
	return string(bytes[:])
}

// AddFrameTrace creates a record of a frame visitation and stores it
func AddFrameTrace(tm *TraceManager, vrt vrtime.Time, objID int, op string, octets int) {
	if !tm.InUse {
		return
	}
	ft := new(FrameTrace)
	ft.Time = vrt.Seconds()
	ft.Ticks = vrt.Ticks()
	ft.Priority = vrt.Pri()
	ft.ObjID = objID
	ft.Op = op
	ft.Octets = octets

	ftStr := ft.Serialize()
	traceTime := strconv.FormatFloat(vrt.Seconds(), 'f', -1, 64)

	trcInst := TraceInst{TraceTime: traceTime, TraceType: trtToStr[FrameType], TraceStr: ftStr}
	tm.AddTrace(vrt, objID, trcInst)
}
