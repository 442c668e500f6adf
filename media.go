package nessi

// media.go models the transmission media devices attach to: point
// to point links, buses and radio channels, each also available in
// a variant that corrupts frames in flight.

import (
	"fmt"
	"math"

	"github.com/iti/rngstream"
)

// propagation speed of a signal on copper, m/s
const copperSignalSpeed float64 = 0.77 * 3e8

// nominal propagation speed of a signal over the air, m/s; a model
// constant, not the physical c
const radioSignalSpeed float64 = 3.0 * 3e8

type attachment struct {
	niu *NIU
	pos Position
}

// phyActivity announces a leading signal edge to a device's phy
func phyActivity(sim *Simulator, context any, data any) any {
	niu := context.(*NIU)
	niu.mediumPhy().NewChannelActivity()
	return nil
}

// phyDeliver hands a completed transmission to a device's phy
func phyDeliver(sim *Simulator, context any, data any) any {
	niu := context.(*NIU)
	bits := data.([]byte)
	AddFrameTrace(sim.TraceMgr, sim.VirtualTime(), niu.ID(), "deliver", len(bits))
	niu.mediumPhy().Receive(bits)
	return nil
}

// linkCore carries the shared state and behavior of the wired
// media: attached devices at linear positions and propagation
// delayed signalling.
type linkCore struct {
	sim  *Simulator
	id   int
	name string
	// SignalSpeed is the propagation speed on this medium, m/s
	SignalSpeed float64
	taps        []attachment
}

func (lc *linkCore) initLink(sim *Simulator, name string, speed float64) {
	lc.sim = sim
	lc.id = nxtID()
	lc.name = name
	lc.SignalSpeed = speed
	sim.TraceMgr.AddName(lc.id, name, "medium")
}

func (lc *linkCore) Name() string {
	return lc.name
}

func (lc *linkCore) position(niu *NIU) float64 {
	for _, tap := range lc.taps {
		if tap.niu == niu {
			return tap.pos.X
		}
	}
	panic(fmt.Sprintf("%s: transmission from unattached device", lc.name))
}

func (lc *linkCore) signalEdge(tx *NIU) {
	txPos := lc.position(tx)
	for _, tap := range lc.taps {
		if tap.niu == tx {
			continue
		}
		delay := math.Abs(tap.pos.X-txPos) / lc.SignalSpeed
		lc.sim.Schedule(tap.niu, nil, phyActivity, delay)
	}
}

func (lc *linkCore) deliver(tx *NIU, data []byte) {
	AddFrameTrace(lc.sim.TraceMgr, lc.sim.VirtualTime(), lc.id, "transmit", len(data))
	txPos := lc.position(tx)
	for _, tap := range lc.taps {
		if tap.niu == tx {
			continue
		}
		delay := math.Abs(tap.pos.X-txPos) / lc.SignalSpeed
		lc.sim.Schedule(tap.niu, data, phyDeliver, delay)
	}
}

// PtPLink is a wired link between exactly two devices.
type PtPLink struct {
	linkCore
}

// CreatePtPLink is a constructor
func CreatePtPLink(sim *Simulator, name string) *PtPLink {
	link := new(PtPLink)
	link.initLink(sim, name, copperSignalSpeed)
	return link
}

func (link *PtPLink) AttachNIU(niu *NIU, pos Position) error {
	if len(link.taps) >= 2 {
		return fmt.Errorf("%s: point to point link already has two devices", link.name)
	}
	link.taps = append(link.taps, attachment{niu: niu, pos: pos})
	return nil
}

func (link *PtPLink) StartTransmission(tx *NIU) {
	link.signalEdge(tx)
}

func (link *PtPLink) CompleteTransmission(tx *NIU, data []byte) {
	link.deliver(tx, data)
}

// Bus is a shared wire any number of devices tap at linear
// positions.  Every transmission reaches every other tap.
type Bus struct {
	linkCore
}

// CreateBus is a constructor
func CreateBus(sim *Simulator, name string) *Bus {
	bus := new(Bus)
	bus.initLink(sim, name, copperSignalSpeed)
	return bus
}

func (bus *Bus) AttachNIU(niu *NIU, pos Position) error {
	bus.taps = append(bus.taps, attachment{niu: niu, pos: pos})
	return nil
}

func (bus *Bus) StartTransmission(tx *NIU) {
	bus.signalEdge(tx)
}

func (bus *Bus) CompleteTransmission(tx *NIU, data []byte) {
	bus.deliver(tx, data)
}

// IdealRadioChannel is a broadcast channel between devices at
// planar positions.  Every transmission reaches every other
// attached device regardless of distance.
type IdealRadioChannel struct {
	sim  *Simulator
	id   int
	name string
	// SignalSpeed is the propagation speed on the channel, m/s
	SignalSpeed float64
	taps        []attachment
	// pairwise distances, rebuilt when a device attaches
	distance map[*NIU]map[*NIU]float64
}

// CreateIdealRadioChannel is a constructor
func CreateIdealRadioChannel(sim *Simulator, name string) *IdealRadioChannel {
	ch := new(IdealRadioChannel)
	ch.sim = sim
	ch.id = nxtID()
	ch.name = name
	ch.SignalSpeed = radioSignalSpeed
	ch.distance = make(map[*NIU]map[*NIU]float64)
	sim.TraceMgr.AddName(ch.id, name, "medium")
	return ch
}

func (ch *IdealRadioChannel) Name() string {
	return ch.name
}

func (ch *IdealRadioChannel) AttachNIU(niu *NIU, pos Position) error {
	ch.taps = append(ch.taps, attachment{niu: niu, pos: pos})
	ch.distance = make(map[*NIU]map[*NIU]float64)
	for _, a := range ch.taps {
		ch.distance[a.niu] = make(map[*NIU]float64)
		for _, b := range ch.taps {
			dx := a.pos.X - b.pos.X
			dy := a.pos.Y - b.pos.Y
			ch.distance[a.niu][b.niu] = math.Sqrt(dx*dx + dy*dy)
		}
	}
	return nil
}

func (ch *IdealRadioChannel) StartTransmission(tx *NIU) {
	for _, tap := range ch.taps {
		if tap.niu == tx {
			continue
		}
		delay := ch.distance[tx][tap.niu] / ch.SignalSpeed
		ch.sim.Schedule(tap.niu, nil, phyActivity, delay)
	}
}

func (ch *IdealRadioChannel) CompleteTransmission(tx *NIU, data []byte) {
	AddFrameTrace(ch.sim.TraceMgr, ch.sim.VirtualTime(), ch.id, "transmit", len(data))
	for _, tap := range ch.taps {
		if tap.niu == tx {
			continue
		}
		delay := ch.distance[tx][tap.niu] / ch.SignalSpeed
		ch.sim.Schedule(tap.niu, data, phyDeliver, delay)
	}
}

// error model names accepted by SetErrorModel
const (
	// ErrorModelBernoulli corrupts each bit independently with a
	// fixed error rate
	ErrorModelBernoulli = "bernoulli"
	// ErrorModelUniform corrupts a uniformly drawn number of
	// distinct bits per frame
	ErrorModelUniform = "uniform"
)

// errorModel draws bit error positions and corrupts frames in
// flight.  Frames are always delivered; upper layers detect the
// damage through their frame checks.
type errorModel struct {
	rng     *rngstream.RngStream
	model   string
	ber     float64
	minBits int
	maxBits int
}

func (em *errorModel) initErrorModel(name string) {
	em.rng = rngstream.New(name)
}

// SetErrorModel selects how bit errors are drawn.  For
// ErrorModelBernoulli params is the bit error rate; for
// ErrorModelUniform it is the minimum and maximum number of
// corrupted bits per frame.
func (em *errorModel) SetErrorModel(model string, params ...float64) error {
	switch model {
	case ErrorModelBernoulli:
		if len(params) != 1 || params[0] <= 0.0 || params[0] >= 1.0 {
			return fmt.Errorf("bernoulli error model takes one bit error rate in (0,1)")
		}
		em.ber = params[0]
	case ErrorModelUniform:
		if len(params) != 2 || params[0] < 0 || params[1] < params[0] {
			return fmt.Errorf("uniform error model takes min and max corrupted bits")
		}
		em.minBits = int(params[0])
		em.maxBits = int(params[1])
	default:
		return fmt.Errorf("unknown error model %q", model)
	}
	em.model = model
	return nil
}

// errorPositions draws the bit positions to corrupt in a frame of
// nbits bits.
func (em *errorModel) errorPositions(nbits int) []int {
	switch em.model {
	case ErrorModelBernoulli:
		// geometric gaps between consecutive bit errors
		positions := []int{}
		pos := -1
		for {
			gap := int(math.Ceil(math.Log(em.rng.RandU01()) / math.Log(1.0-em.ber)))
			pos += gap
			if pos >= nbits {
				return positions
			}
			positions = append(positions, pos)
		}
	case ErrorModelUniform:
		maxBits := em.maxBits
		if maxBits > nbits {
			maxBits = nbits
		}
		count := em.minBits
		if maxBits > em.minBits {
			count = em.rng.RandInt(em.minBits, maxBits)
		}
		if count > nbits {
			count = nbits
		}
		chosen := make(map[int]bool)
		positions := []int{}
		for len(positions) < count {
			pos := em.rng.RandInt(0, nbits-1)
			if chosen[pos] {
				continue
			}
			chosen[pos] = true
			positions = append(positions, pos)
		}
		return positions
	}
	return nil
}

// corrupt returns a copy of data with the drawn bit positions
// flipped.
func (em *errorModel) corrupt(data []byte) []byte {
	if em.model == "" {
		return data
	}
	out := make([]byte, len(data))
	copy(out, data)
	for _, pos := range em.errorPositions(len(data) * 8) {
		out[pos/8] ^= byte(1) << (7 - uint(pos)%8)
	}
	return out
}

// ErrorPtPLink is a point to point link that corrupts frames per
// its error model.
type ErrorPtPLink struct {
	PtPLink
	errorModel
}

// CreateErrorPtPLink is a constructor
func CreateErrorPtPLink(sim *Simulator, name string) *ErrorPtPLink {
	link := new(ErrorPtPLink)
	link.initLink(sim, name, copperSignalSpeed)
	link.initErrorModel(name)
	return link
}

func (link *ErrorPtPLink) CompleteTransmission(tx *NIU, data []byte) {
	link.deliver(tx, link.corrupt(data))
}

// ErrorBus is a bus that corrupts frames per its error model.
type ErrorBus struct {
	Bus
	errorModel
}

// CreateErrorBus is a constructor
func CreateErrorBus(sim *Simulator, name string) *ErrorBus {
	bus := new(ErrorBus)
	bus.initLink(sim, name, copperSignalSpeed)
	bus.initErrorModel(name)
	return bus
}

func (bus *ErrorBus) CompleteTransmission(tx *NIU, data []byte) {
	bus.deliver(tx, bus.corrupt(data))
}

// ErrorRadioChannel is a radio channel that corrupts frames per its
// error model.
type ErrorRadioChannel struct {
	IdealRadioChannel
	errorModel
}

// CreateErrorRadioChannel is a constructor
func CreateErrorRadioChannel(sim *Simulator, name string) *ErrorRadioChannel {
	ch := new(ErrorRadioChannel)
	ch.IdealRadioChannel = *CreateIdealRadioChannel(sim, name)
	ch.initErrorModel(name)
	return ch
}

func (ch *ErrorRadioChannel) CompleteTransmission(tx *NIU, data []byte) {
	ch.IdealRadioChannel.CompleteTransmission(tx, ch.corrupt(data))
}
