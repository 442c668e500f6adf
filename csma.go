package nessi

// csma.go holds the MAC protocols for shared radio channels: Aloha,
// persistent CSMA and CSMA with collision avoidance, over an ideal
// radio phy.  The retransmission strategy is stop-and-go with a
// configurable backoff.

import (
	"fmt"

	"github.com/iti/rngstream"
)

// IdealRadioPhy transmits and receives blocks of bits on a radio
// channel without signal attenuation or bit errors.  It reports
// carrier activity to the data link; collision detection is not
// possible on a radio phy.
type IdealRadioPhy struct {
	sim      *Simulator
	niu      *NIU
	fullName string
	dataRate float64

	receiveActivities     int
	receiveStartTime      float64
	overlappingReceptions bool
	txActive              bool
	transmitStartTime     float64
	transmittedData       []byte
	completeTxEvent       *Event
}

// CreateIdealRadioPhy is a constructor.  The default data rate is
// 1 Mbit/s.
func CreateIdealRadioPhy() *IdealRadioPhy {
	return &IdealRadioPhy{dataRate: 1e6}
}

func (phy *IdealRadioPhy) InstallOnNIU(niu *NIU, slot string) {
	if slot != "phy" {
		panic(fmt.Sprintf("phy entity must be installed in slot \"phy\", not %q", slot))
	}
	phy.niu = niu
	phy.sim = niu.Sim()
	phy.fullName = niu.FullName() + ".phy"
}

func (phy *IdealRadioPhy) FullName() string {
	return phy.fullName
}

// SetDataRate sets the transmission rate in bit/s.
func (phy *IdealRadioPhy) SetDataRate(rate float64) {
	if rate <= 0.0 {
		panic(fmt.Sprintf("%s: data rate %g must be positive", phy.fullName, rate))
	}
	phy.dataRate = rate
}

func (phy *IdealRadioPhy) DataRate() float64 {
	return phy.dataRate
}

// BitTime returns the time it takes to transmit one bit.
func (phy *IdealRadioPhy) BitTime() float64 {
	return 1.0 / phy.dataRate
}

// CarrierSense reports whether the channel is occupied.
func (phy *IdealRadioPhy) CarrierSense() bool {
	return phy.receiveActivities > 0 || phy.txActive
}

// NewChannelActivity registers the leading edge of another
// station's transmission; overlapping receptions invalidate the
// received data.
func (phy *IdealRadioPhy) NewChannelActivity() {
	phy.receiveActivities += 1
	if phy.receiveActivities == 1 {
		phy.receiveStartTime = phy.sim.Now()
		phy.overlappingReceptions = false
	} else {
		phy.overlappingReceptions = true
	}
}

// Receive handles the trailing edge of an incoming transmission,
// delivering data to the data link once the channel quiets down.
// Overlapped receptions are replaced by zero octets covering the
// whole busy period.
func (phy *IdealRadioPhy) Receive(bits []byte) {
	phy.receiveActivities -= 1
	if phy.receiveActivities > 0 {
		return
	}

	byteLen := int(((phy.sim.Now()-phy.receiveStartTime)*phy.dataRate + 0.05) / 8)
	if phy.overlappingReceptions {
		phy.overlappingReceptions = false
		bits = make([]byte, byteLen)
	} else if len(bits) != byteLen {
		panic(fmt.Sprintf("%s: speed mismatch, received %d octets in a %d octet window",
			phy.fullName, len(bits), byteLen))
	}
	phy.niu.channelDL().Receive(bits)

	if !phy.CarrierSense() {
		phy.niu.channelDL().ChannelIdle()
	}
}

// Transmitting starts or stops a transmission; the data serialized
// up to the stopping moment is what reaches the medium.
func (phy *IdealRadioPhy) Transmitting(activate bool) {
	if activate {
		phy.txActive = true
		phy.transmitStartTime = phy.sim.Now()
		return
	}
	if !phy.txActive {
		return
	}

	phy.txActive = false
	byteLen := int(((phy.sim.Now()-phy.transmitStartTime)*phy.dataRate + 0.05) / 8)
	if byteLen > len(phy.transmittedData) {
		byteLen = len(phy.transmittedData)
	}
	phy.niu.Medium().CompleteTransmission(phy.niu, phy.transmittedData[:byteLen])
	phy.transmittedData = nil

	if !phy.CarrierSense() {
		phy.niu.channelDL().ChannelIdle()
	}
}

// Send accepts a block of data for transmission.  Called again
// while a transmission is active it discards the not yet serialized
// remainder and continues with the new data.
func (phy *IdealRadioPhy) Send(bits []byte) {
	if !phy.txActive {
		panic(fmt.Sprintf("%s: transmit without activating transmission", phy.fullName))
	}
	if phy.transmittedData == nil {
		phy.transmittedData = bits
		phy.transmitStartTime = phy.sim.Now()
		phy.niu.Medium().StartTransmission(phy.niu)
		delay := float64(len(bits)*8) / phy.dataRate
		phy.completeTxEvent = phy.sim.Schedule(phy, nil, radioPhyTxComplete, delay)
	} else {
		byteLen := int(((phy.sim.Now()-phy.transmitStartTime)*phy.dataRate + 0.05) / 8)
		if byteLen > len(phy.transmittedData) {
			byteLen = len(phy.transmittedData)
		}
		phy.transmittedData = append(phy.transmittedData[:byteLen:byteLen], bits...)
		if err := phy.sim.Cancel(phy.completeTxEvent); err != nil {
			panic(err)
		}
		delay := float64(len(bits)*8) / phy.dataRate
		phy.completeTxEvent = phy.sim.Schedule(phy, nil, radioPhyTxComplete, delay)
	}
}

// radioPhyTxComplete tells the data link that all accepted data has
// been serialized onto the channel
func radioPhyTxComplete(sim *Simulator, context any, data any) any {
	phy := context.(*IdealRadioPhy)
	phy.niu.channelDL().SendStatus(StatusOK, phy.transmittedData)
	return nil
}

type radioAccessMode int

const (
	accessAloha radioAccessMode = iota
	accessCSMA
	accessCSMACA
)

// backoff model names accepted by SetBackoffModel
const (
	// BackoffFixed draws a uniform number of slot times
	BackoffFixed = "fix"
	// BackoffExponential doubles the draw range per consecutive
	// collision
	BackoffExponential = "exponential"
)

type radioTxEntry struct {
	code    int
	dstAddr int
	payload []byte
}

// AlohaDL is a data link entity implementing the Aloha protocol: a
// station transmits immediately, without carrier sense, and waits
// for a stop-and-go acknowledgement.  An unacknowledged frame is
// retransmitted after a random backoff.  An unbounded queue holds
// packets the upper layer submitted while the link was busy.
//
// The same machinery also carries the carrier sensing variants; the
// access mode decides when a queued frame may go out.
type AlohaDL struct {
	sim      *Simulator
	niu      *NIU
	fullName string
	mode     radioAccessMode
	rng      *rngstream.RngStream
	format   *PDUFormat

	srcAddress int
	dstAddress int
	// per-peer sequence numbers, station address to expected value
	vs map[int]uint64
	vr map[int]uint64

	transmitQueue    []radioTxEntry
	outstandingFrame *PDU
	transmitting     bool
	upperLayers      []UpperLayer

	// RetransmissionTimeout is the delay before an unacknowledged
	// frame enters backoff
	RetransmissionTimeout float64

	retransTimer          *Event
	slotTime              float64
	maxSlots              int
	exponential           bool
	consecutiveCollisions int
	backingOff            bool

	// statistics
	PacketsSent           int64
	PacketRetransmissions int64
	CrcErrors             int64
	SequenceErrors        int64
	PacketsReceivedOK     int64
}

func newRadioDL(mode radioAccessMode) *AlohaDL {
	dl := new(AlohaDL)
	dl.mode = mode
	dl.RetransmissionTimeout = 0.1
	dl.maxSlots = 1024
	dl.vs = make(map[int]uint64)
	dl.vr = make(map[int]uint64)
	dl.format = NewFormat([]FieldDef{
		{Name: "DstAddr", Kind: IntField, Bits: 8},
		{Name: "SrcAddr", Kind: IntField, Bits: 8},
		{Name: "SN", Kind: BitField, Bits: 1},
		{Name: "RN", Kind: BitField, Bits: 1},
		{Name: "pad", Kind: BitField, Bits: 6},
		{Name: "data", Kind: ByteField, Bits: VariableLength},
		{Name: "FCS", Kind: IntField, Bits: 32},
	})
	return dl
}

// CreateAlohaDL is a constructor
func CreateAlohaDL() *AlohaDL {
	return newRadioDL(accessAloha)
}

// CSMADL is AlohaDL with persistent carrier sensing: a transmission
// only starts on an idle channel, deferred ones resume when the phy
// reports idleness.
type CSMADL struct {
	AlohaDL
}

// CreateCSMADL is a constructor
func CreateCSMADL() *CSMADL {
	dl := new(CSMADL)
	dl.AlohaDL = *newRadioDL(accessCSMA)
	return dl
}

// CSMACADL is AlohaDL with collision avoidance: a backoff is waited
// after a collision, after a successful transmission, and when the
// channel is found occupied before a transmission.
type CSMACADL struct {
	AlohaDL
}

// CreateCSMACADL is a constructor
func CreateCSMACADL() *CSMACADL {
	dl := new(CSMACADL)
	dl.AlohaDL = *newRadioDL(accessCSMACA)
	return dl
}

func (dl *AlohaDL) InstallOnNIU(niu *NIU, slot string) {
	if slot != "dl" {
		panic(fmt.Sprintf("dl entity must be installed in slot \"dl\", not %q", slot))
	}
	dl.niu = niu
	dl.sim = niu.Sim()
	dl.fullName = niu.FullName() + ".dl"
	dl.rng = rngstream.New(dl.fullName)
	niu.SetXOFF(false)
}

func (dl *AlohaDL) FullName() string {
	return dl.fullName
}

func (dl *AlohaDL) RegisterUpperLayer(up UpperLayer) {
	dl.upperLayers = append(dl.upperLayers, up)
}

func (dl *AlohaDL) XOFF() bool {
	return dl.niu.XOFF()
}

// SetSrcAddress sets the station address, an integer in 0..254.
func (dl *AlohaDL) SetSrcAddress(address int) {
	if address < 0 || address > 254 {
		panic(fmt.Sprintf("%s: station address %d out of range", dl.fullName, address))
	}
	dl.srcAddress = address
}

// SetDstAddress sets the default destination address for packets.
func (dl *AlohaDL) SetDstAddress(address int) {
	if address < 0 || address > 254 {
		panic(fmt.Sprintf("%s: station address %d out of range", dl.fullName, address))
	}
	dl.dstAddress = address
	dl.vs[address] = 0
	dl.vr[address] = 0
}

// SetBackoffModel selects the backoff algorithm.  BackoffFixed
// draws uniformly in 0..maxSlots slot times; BackoffExponential
// doubles the range per consecutive collision up to maxSlots.  A
// non-positive slottime selects 1024 bit times at the phy rate.
func (dl *AlohaDL) SetBackoffModel(model string, slottime float64, maxSlots int) error {
	switch model {
	case BackoffFixed:
		dl.exponential = false
	case BackoffExponential:
		dl.exponential = true
	default:
		return fmt.Errorf("%s: unknown backoff model %q", dl.fullName, model)
	}
	if slottime <= 0.0 {
		dl.slotTime = 1024.0 / dl.niu.carrierPhy().DataRate()
	} else {
		dl.slotTime = slottime
	}
	dl.maxSlots = maxSlots
	return nil
}

// Send appends the packet to the transmit queue and tries to send
// it.  A full queue or an oversized packet is refused.
func (dl *AlohaDL) Send(payload []byte) int {
	if len(dl.transmitQueue) > 1000 {
		return -1
	}
	if len(payload) > 10000 {
		dl.sim.logger.Warn().Str("dl", dl.fullName).Int("octets", len(payload)).
			Msg("oversized packet refused")
		return -1
	}
	dl.transmitQueue = append(dl.transmitQueue,
		radioTxEntry{code: codeFIRSTTR, dstAddr: dl.dstAddress, payload: payload})
	dl.trySendingFrame()
	return 0
}

// trySendingFrame transmits the head of the queue when the access
// mode allows it.
func (dl *AlohaDL) trySendingFrame() {
	if dl.transmitting || dl.outstandingFrame != nil {
		return
	}
	if len(dl.transmitQueue) == 0 {
		return
	}
	switch dl.mode {
	case accessCSMA:
		if dl.niu.carrierPhy().CarrierSense() {
			// defer until the channel goes idle
			return
		}
	case accessCSMACA:
		if dl.backingOff {
			return
		}
		if dl.niu.carrierPhy().CarrierSense() {
			dl.backingOff = true
			dl.sim.Schedule(dl, nil, alohaEndBackoff, dl.computeBackoff())
			dl.sim.Activity.Activity(dl, "tx", "CA backoff", &ActivityGraphic{Color: "darkblue", Size: 1, Style: 2})
			return
		}
	}

	entry := dl.transmitQueue[0]
	dl.transmitQueue = dl.transmitQueue[1:]
	if entry.code == codeACK {
		dl.sim.Activity.Activity(dl, "tx", "ACK/NAK", actAck)
		dl.phySendFrame(entry.dstAddr, nil)
	} else {
		if entry.code == codeRETR {
			dl.PacketRetransmissions += 1
			dl.sim.Activity.Activity(dl, "tx", "Resend", actRetr)
		} else {
			dl.sim.Activity.Activity(dl, "tx", "Send", actSend)
			dl.consecutiveCollisions = 0
			dl.PacketsSent += 1
		}
		dl.retransTimer = dl.sim.Schedule(dl, nil, alohaTimeout, dl.RetransmissionTimeout)
		dl.outstandingFrame = dl.phySendFrame(entry.dstAddr, entry.payload)
	}
}

// phySendFrame fills a frame with the peer's sequence numbers and
// hands it to the phy.
func (dl *AlohaDL) phySendFrame(dstAddr int, payload []byte) *PDU {
	frame := dl.format.New()
	frame.SetInt("SrcAddr", uint64(dl.srcAddress))
	frame.SetInt("DstAddr", uint64(dstAddr))
	frame.SetInt("SN", dl.vs[dstAddr])
	frame.SetInt("RN", dl.vr[dstAddr])
	frame.SetBytes("data", payload)
	frame.SetInt("FCS", frameFCS(frame.Serialize()))
	dl.transmitting = true
	phy := dl.niu.carrierPhy()
	phy.Transmitting(true)
	phy.Send(frame.Serialize())
	return frame
}

// SendStatus learns from the phy that the transmission completed.
func (dl *AlohaDL) SendStatus(status int, bits []byte) {
	if status != StatusOK {
		panic(fmt.Sprintf("%s: unexpected transmit status %d", dl.fullName, status))
	}
	dl.sim.Activity.Activity(dl, "tx", "", nil)
	dl.niu.carrierPhy().Transmitting(false)
	dl.transmitting = false
	dl.trySendingFrame()
}

// ChannelIdle resumes deferred transmissions in the carrier sensing
// modes; Aloha ignores it.
func (dl *AlohaDL) ChannelIdle() {
	if dl.mode == accessCSMA {
		dl.trySendingFrame()
	}
}

// Receive handles a frame from the phy.  The frame can carry
// payload data, an acknowledgement, or both.
func (dl *AlohaDL) Receive(bits []byte) {
	// the first octet is the destination address
	if len(bits) == 0 || int(bits[0]) != dl.srcAddress {
		return
	}

	frame := dl.format.New()
	frame.Fill(bits)
	if frame.Int("FCS") != frameFCS(bits) {
		dl.sim.Activity.Activity(dl, "rx", "CRC error", nil)
		dl.CrcErrors += 1
		return
	}
	dl.checkAck(frame)
	dl.checkData(frame)
}

func (dl *AlohaDL) checkAck(frame *PDU) {
	if dl.outstandingFrame == nil {
		return
	}
	srcAddr := int(frame.Int("SrcAddr"))
	if frame.Int("RN") != (dl.vs[srcAddr]+1)%2 {
		return
	}
	// positive acknowledgement
	dl.sim.Activity.Activity(dl, "rx", "ACK ok", nil)
	dl.outstandingFrame = nil
	if dl.retransTimer != nil {
		dl.sim.Cancel(dl.retransTimer)
		dl.retransTimer = nil
	}
	dl.vs[srcAddr] = frame.Int("RN")

	if dl.mode == accessCSMACA {
		// collision avoidance backoff after a successful exchange
		dl.backingOff = true
		dl.sim.Schedule(dl, nil, alohaEndBackoff, dl.computeBackoff())
		dl.sim.Activity.Activity(dl, "tx", "CA backoff", &ActivityGraphic{Color: "darkblue", Size: 1, Style: 2})
		return
	}
	dl.trySendingFrame()
}

func (dl *AlohaDL) checkData(frame *PDU) {
	payload := frame.Bytes("data")
	if len(payload) == 0 {
		return
	}
	srcAddr := int(frame.Int("SrcAddr"))
	if frame.Int("SN") == dl.vr[srcAddr] {
		dl.sim.Activity.Activity(dl, "rx", "Data OK", nil)
		dl.PacketsReceivedOK += 1
		dl.vr[srcAddr] = (frame.Int("SN") + 1) % 2
		dl.sendACK(srcAddr)
		for _, up := range dl.upperLayers {
			up.Receive(payload)
		}
	} else {
		dl.sim.Activity.Activity(dl, "rx", "Wrong SN", nil)
		dl.SequenceErrors += 1
		dl.sendACK(srcAddr)
	}
}

func (dl *AlohaDL) sendACK(dstAddr int) {
	dl.transmitQueue = append(dl.transmitQueue,
		radioTxEntry{code: codeACK, dstAddr: dstAddr})
	dl.trySendingFrame()
}

// alohaTimeout fires when the acknowledgement did not arrive; the
// frame is retransmitted after a backoff
func alohaTimeout(sim *Simulator, context any, data any) any {
	dl := context.(*AlohaDL)
	sim.Activity.Activity(dl, "tx", "TIMEOUT", nil)
	dl.retransTimer = nil
	dl.consecutiveCollisions += 1
	if dl.mode == accessCSMACA {
		dl.backingOff = true
		sim.Activity.Activity(dl, "tx", "Retr backoff", &ActivityGraphic{Color: "blue", Size: 1, Style: 2})
		sim.Schedule(dl, nil, alohaEndBackoff, dl.computeBackoff())
	} else {
		sim.Schedule(dl, nil, alohaRetransmit, dl.computeBackoff())
	}
	return nil
}

// alohaRetransmit requeues the outstanding frame after its backoff
func alohaRetransmit(sim *Simulator, context any, data any) any {
	context.(*AlohaDL).retransmitOutstanding()
	return nil
}

func (dl *AlohaDL) retransmitOutstanding() {
	dl.retransTimer = nil
	dl.transmitQueue = append(dl.transmitQueue, radioTxEntry{
		code:    codeRETR,
		dstAddr: int(dl.outstandingFrame.Int("DstAddr")),
		payload: dl.outstandingFrame.Bytes("data"),
	})
	dl.outstandingFrame = nil
	dl.trySendingFrame()
}

// alohaEndBackoff ends a collision avoidance or collision backoff
func alohaEndBackoff(sim *Simulator, context any, data any) any {
	dl := context.(*AlohaDL)
	sim.Activity.Activity(dl, "tx", "", nil)
	dl.backingOff = false
	if dl.outstandingFrame != nil {
		// the backoff followed a collision of this frame
		dl.retransmitOutstanding()
	} else {
		dl.trySendingFrame()
	}
	return nil
}

func (dl *AlohaDL) computeBackoff() float64 {
	if !dl.exponential {
		return float64(dl.rng.RandInt(0, dl.maxSlots)) * dl.slotTime
	}
	var kmax int
	if dl.mode == accessCSMACA && dl.consecutiveCollisions == 0 {
		kmax = 8
	} else {
		shift := dl.consecutiveCollisions
		if shift > 30 {
			shift = 30
		}
		kmax = int(1)<<uint(shift) - 1
		if kmax > dl.maxSlots {
			kmax = dl.maxSlots
		}
	}
	return float64(dl.rng.RandInt(0, kmax)) * dl.slotTime
}
