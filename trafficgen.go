package nessi

// trafficgen.go holds the traffic generators and the measurement
// sink.  Generators install on a host, bind to a data link entity
// and push uniquely numbered payloads down the stack.

import (
	"encoding/binary"
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// sourceCore carries what all traffic generators share: stack
// binding and the unique payload numbering the sink's sequence
// check relies on.
type sourceCore struct {
	sim      *Simulator
	host     *Host
	fullName string
	lower    DataLink

	srcID    int32
	nxtPDUID int32

	// statistics
	OctetsTransmitted int64
	PDUsTransmitted   int64
}

func (src *sourceCore) InstallOnHost(h *Host, name string) {
	src.host = h
	src.sim = h.Sim()
	src.fullName = h.Name() + "." + name
	src.srcID = int32(nxtID())
}

func (src *sourceCore) FullName() string {
	return src.fullName
}

// RegisterLowerLayer binds the generator to the data link entity it
// sends through.  Only a single lower layer can be bound.
func (src *sourceCore) RegisterLowerLayer(lower DataLink) {
	src.lower = lower
}

// Receive must not be called: a generator has no lower-to-upper
// data path.
func (src *sourceCore) Receive(payload []byte) {
	panic(fmt.Sprintf("%s: traffic source cannot receive data", src.fullName))
}

// SendStatus is ignored by the timed generators.
func (src *sourceCore) SendStatus(status int, payload []byte) {}

// uniqueBitstream builds a payload of the given length whose first
// eight octets carry the source and payload numbers the sink checks
// sequencing with.
func (src *sourceCore) uniqueBitstream(length int) []byte {
	head := make([]byte, 8)
	binary.LittleEndian.PutUint32(head[0:4], uint32(src.srcID))
	binary.LittleEndian.PutUint32(head[4:8], uint32(src.nxtPDUID))
	src.nxtPDUID += 1
	if src.nxtPDUID == math.MaxInt32 {
		src.nxtPDUID = 0
	}
	for len(head) < length {
		head = append(head, 'x')
	}
	return head
}

// CBRSource generates fixed size payloads at a constant rate.
type CBRSource struct {
	sourceCore
	pduSize      int
	interarrival float64
}

// CreateCBRSource is a constructor
func CreateCBRSource(pduSize int, interarrival float64) *CBRSource {
	return &CBRSource{pduSize: pduSize, interarrival: interarrival}
}

// SetPDUSize sets the payload size in octets.
func (src *CBRSource) SetPDUSize(pduSize int) {
	src.pduSize = pduSize
}

// SetInterarrival sets the time between payloads in seconds.
func (src *CBRSource) SetInterarrival(interarrival float64) {
	src.interarrival = interarrival
}

// Start begins generation at the given simulation time.
func (src *CBRSource) Start(at float64) {
	src.sim.ScheduleAbs(src, nil, cbrGenerate, at)
}

func cbrGenerate(sim *Simulator, context any, data any) any {
	src := context.(*CBRSource)
	src.lower.Send(src.uniqueBitstream(src.pduSize))
	src.OctetsTransmitted += int64(src.pduSize)
	src.PDUsTransmitted += 1
	sim.Schedule(src, nil, cbrGenerate, src.interarrival)
	return nil
}

// PoissonSource generates payloads with exponentially distributed
// sizes and interarrival times.
type PoissonSource struct {
	sourceCore
	pduSize      distuv.Exponential
	interarrival distuv.Exponential
}

// CreatePoissonSource is a constructor.  Sizes are in octets,
// interarrival times in seconds; both arguments are means.
func CreatePoissonSource(meanPDUSize float64, meanInterarrival float64) *PoissonSource {
	return &PoissonSource{
		pduSize:      distuv.Exponential{Rate: 1.0 / meanPDUSize, Src: rand.NewSource(uint64(nxtID()))},
		interarrival: distuv.Exponential{Rate: 1.0 / meanInterarrival, Src: rand.NewSource(uint64(nxtID()))},
	}
}

// SetPDUSize sets the mean payload size in octets.
func (src *PoissonSource) SetPDUSize(meanPDUSize float64) {
	src.pduSize.Rate = 1.0 / meanPDUSize
}

// SetInterarrival sets the mean time between payloads in seconds.
func (src *PoissonSource) SetInterarrival(meanInterarrival float64) {
	src.interarrival.Rate = 1.0 / meanInterarrival
}

// Start begins generation one interarrival time after the given
// simulation time.
func (src *PoissonSource) Start(at float64) {
	src.sim.ScheduleAbs(src, nil, poissonGenerate, at+src.interarrival.Rand())
}

func poissonGenerate(sim *Simulator, context any, data any) any {
	src := context.(*PoissonSource)
	// the sequence check header needs at least eight octets
	length := int(src.pduSize.Rand())
	if length < 9 {
		length = 9
	}
	src.lower.Send(src.uniqueBitstream(length))
	src.OctetsTransmitted += int64(length)
	src.PDUsTransmitted += 1
	sim.Schedule(src, nil, poissonGenerate, src.interarrival.Rand())
	return nil
}

// WebSource is an on/off generator modelling http/1.1 replies.  It
// stays silent for a truncated Pareto off time, then transmits a
// page of truncated lognormal size as fixed size payloads at a
// constant rate.  The superposition of many such sources produces
// self similar traffic (Barford and Crovella, SIGMETRICS 1998).
type WebSource struct {
	sourceCore

	pageSizeDist distuv.LogNormal
	pageSizeMin  int
	pageSizeMax  int

	offTimeDist distuv.Pareto
	offTimeMin  float64
	offTimeMax  float64

	onRate  float64
	pduSize int

	remainingPage int

	// PagesTransmitted counts completely transmitted pages
	PagesTransmitted int64
}

// CreateWebSource is a constructor with the parameters of
// Shankaranarayanan, Jian and Mishra for HFC access networks.
func CreateWebSource() *WebSource {
	src := new(WebSource)
	src.SetPageSize(9.5, 1.8, 100, int(20e6))
	src.SetOffTime(1.5, 1.0, 2.0, 3600.0)
	src.SetOnRate(1e6)
	src.SetPDUSize(512)
	return src
}

// SetPageSize sets the lognormal page size distribution: mu and
// sigma of the underlying normal, and the truncation bounds in
// octets.
func (src *WebSource) SetPageSize(mu float64, sigma float64, minSize int, maxSize int) {
	src.pageSizeDist = distuv.LogNormal{Mu: mu, Sigma: sigma, Src: rand.NewSource(uint64(nxtID()))}
	src.pageSizeMin = minSize
	src.pageSizeMax = maxSize
}

// SetOffTime sets the Pareto off time distribution: shape and scale
// parameters and the truncation bounds in seconds.
func (src *WebSource) SetOffTime(shape float64, scale float64, minTime float64, maxTime float64) {
	src.offTimeDist = distuv.Pareto{Xm: scale, Alpha: shape, Src: rand.NewSource(uint64(nxtID()))}
	src.offTimeMin = minTime
	src.offTimeMax = maxTime
}

// SetOnRate sets the transmission rate during the on phase in
// bit/s.
func (src *WebSource) SetOnRate(rate float64) {
	src.onRate = rate
}

// SetPDUSize sets the payload size during the on phase in octets.
func (src *WebSource) SetPDUSize(size int) {
	src.pduSize = size
}

// Start begins the first off period at the given simulation time.
func (src *WebSource) Start(at float64) {
	src.sim.ScheduleAbs(src, nil, webStartOffPeriod, at)
}

// webStartOffPeriod schedules the next page after a truncated
// Pareto silence
func webStartOffPeriod(sim *Simulator, context any, data any) any {
	src := context.(*WebSource)
	offTime := src.offTimeDist.Rand()
	if offTime > src.offTimeMax {
		offTime = src.offTimeMax
	}
	if offTime < src.offTimeMin {
		offTime = src.offTimeMin
	}
	sim.Schedule(src, nil, webSendPage, offTime)
	return nil
}

// webSendPage draws a truncated lognormal page size and starts
// transmitting it
func webSendPage(sim *Simulator, context any, data any) any {
	src := context.(*WebSource)
	pageSize := int(src.pageSizeDist.Rand())
	if pageSize > src.pageSizeMax {
		pageSize = src.pageSizeMax
	}
	if pageSize < src.pageSizeMin {
		pageSize = src.pageSizeMin
	}
	src.remainingPage = pageSize
	return webSendPacket(sim, context, nil)
}

// webSendPacket sends payloads at the on rate until the page is
// through, then starts the next off period
func webSendPacket(sim *Simulator, context any, data any) any {
	src := context.(*WebSource)
	length := src.remainingPage
	if length > src.pduSize {
		length = src.pduSize
	}
	src.lower.Send(src.uniqueBitstream(length))
	src.OctetsTransmitted += int64(length)
	src.PDUsTransmitted += 1

	src.remainingPage -= length
	if src.remainingPage > 0 {
		delay := float64(src.pduSize) * 8.0 / src.onRate
		sim.Schedule(src, nil, webSendPacket, delay)
	} else {
		src.PagesTransmitted += 1
		webStartOffPeriod(sim, context, nil)
	}
	return nil
}

// DLFlooder sends fixed size payloads to a data link as fast as it
// accepts them: it fills the link until flow control closes and
// refills on every transmit confirmation.
type DLFlooder struct {
	sourceCore
	pduSize int
}

// CreateDLFlooder is a constructor
func CreateDLFlooder(pduSize int) *DLFlooder {
	return &DLFlooder{pduSize: pduSize}
}

// SetPDUSize sets the payload size in octets.
func (src *DLFlooder) SetPDUSize(pduSize int) {
	src.pduSize = pduSize
}

// Start begins flooding at the given simulation time.
func (src *DLFlooder) Start(at float64) {
	src.sim.ScheduleAbs(src, nil, floodGenerate, at)
}

func floodGenerate(sim *Simulator, context any, data any) any {
	src := context.(*DLFlooder)
	for !src.lower.XOFF() {
		src.lower.Send(src.uniqueBitstream(src.pduSize))
		src.OctetsTransmitted += int64(src.pduSize)
		src.PDUsTransmitted += 1
	}
	return nil
}

// SendStatus refills the link when the data link confirms a
// transmission.
func (src *DLFlooder) SendStatus(status int, payload []byte) {
	if !src.lower.XOFF() {
		floodGenerate(src.sim, src, nil)
	}
}

// TrafficSink counts and discards received payloads.  With the
// sequence check enabled it verifies per source that the payload
// numbers generators put into the first octets arrive in order.
type TrafficSink struct {
	sim      *Simulator
	host     *Host
	fullName string

	checkSequence bool
	vs            map[int32]int32

	// statistics
	OctetsReceived int64
	PDUsReceived   int64
	// SequenceErrors counts payloads lost, duplicated or reordered;
	// only maintained with the sequence check enabled
	SequenceErrors int64
}

// CreateTrafficSink is a constructor
func CreateTrafficSink() *TrafficSink {
	return &TrafficSink{}
}

func (sink *TrafficSink) InstallOnHost(h *Host, name string) {
	sink.host = h
	sink.sim = h.Sim()
	sink.fullName = h.Name() + "." + name
}

func (sink *TrafficSink) FullName() string {
	return sink.fullName
}

// SetCheckSequence enables or disables the per source ordering
// check.  Enabling it resets the error count.
func (sink *TrafficSink) SetCheckSequence(activate bool) {
	if activate {
		sink.SequenceErrors = 0
		sink.vs = make(map[int32]int32)
	}
	sink.checkSequence = activate
}

// Receive updates the statistics and discards the payload.
func (sink *TrafficSink) Receive(payload []byte) {
	sink.PDUsReceived += 1
	sink.OctetsReceived += int64(len(payload))
	if !sink.checkSequence || len(payload) < 8 {
		return
	}
	srcID := int32(binary.LittleEndian.Uint32(payload[0:4]))
	pduID := int32(binary.LittleEndian.Uint32(payload[4:8]))
	if vs, seen := sink.vs[srcID]; seen {
		if vs+1 != pduID && (vs+1)%math.MaxInt32 != pduID {
			sink.sim.logger.Warn().Str("sink", sink.fullName).
				Int32("expected", vs+1).Int32("received", pduID).
				Msg("sequence error")
			sink.SequenceErrors += 1
		}
	}
	sink.vs[srcID] = pduID
}

// SendStatus is ignored: nothing above a sink sends.
func (sink *TrafficSink) SendStatus(status int, payload []byte) {}
