package nessi

// arq.go holds data link layers with retransmission strategies:
// stop-and-go, go-back-n and selective repeat.  All of them protect
// frames with a CRC32 checksum.

import (
	"fmt"
	"hash/crc32"

	"golang.org/x/exp/slices"
)

// frameFCS computes the CRC32 over a frame excluding its trailing
// four checksum octets.
func frameFCS(wire []byte) uint64 {
	return uint64(crc32.ChecksumIEEE(wire[:len(wire)-4]))
}

var actSend = &ActivityGraphic{Color: "yellow"}
var actAck = &ActivityGraphic{Color: "grey"}
var actRetr = &ActivityGraphic{Color: "orange"}
var actSrej = &ActivityGraphic{Color: "red"}

// StopAndGoDL is a point to point data link with stop-and-go ARQ.
// One frame is in flight at a time; it is retransmitted until the
// acknowledgement carrying the next sequence number arrives.
type StopAndGoDL struct {
	sim         *Simulator
	niu         *NIU
	fullName    string
	upperLayers []UpperLayer
	format      *PDUFormat

	// RetransmissionTimeout is the delay before an unacknowledged
	// frame is retransmitted
	RetransmissionTimeout float64

	retransTimer *Event
	sendBuffer   *PDU
	vs           uint64
	vr           uint64

	// statistics
	PacketsSent           int64
	PacketRetransmissions int64
	CrcErrors             int64
	SequenceErrors        int64
	PacketsReceivedOK     int64
}

// CreateStopAndGoDL is a constructor
func CreateStopAndGoDL() *StopAndGoDL {
	dl := new(StopAndGoDL)
	dl.RetransmissionTimeout = 0.1
	dl.format = NewFormat([]FieldDef{
		{Name: "SN", Kind: BitField, Bits: 1},
		{Name: "RN", Kind: BitField, Bits: 1},
		{Name: "pad", Kind: BitField, Bits: 6},
		{Name: "data", Kind: ByteField, Bits: VariableLength},
		{Name: "FCS", Kind: IntField, Bits: 32},
	})
	return dl
}

func (dl *StopAndGoDL) InstallOnNIU(niu *NIU, slot string) {
	if slot != "dl" {
		panic(fmt.Sprintf("dl entity must be installed in slot \"dl\", not %q", slot))
	}
	dl.niu = niu
	dl.sim = niu.Sim()
	dl.fullName = niu.FullName() + ".dl"
	niu.SetXOFF(false)
}

func (dl *StopAndGoDL) FullName() string {
	return dl.fullName
}

func (dl *StopAndGoDL) RegisterUpperLayer(up UpperLayer) {
	dl.upperLayers = append(dl.upperLayers, up)
}

func (dl *StopAndGoDL) XOFF() bool {
	return dl.niu.XOFF()
}

// Send encapsulates the payload and transmits it.  Flow control
// must be open; the frame stays buffered until acknowledged.
func (dl *StopAndGoDL) Send(payload []byte) int {
	if dl.niu.XOFF() || dl.sendBuffer != nil {
		panic(fmt.Sprintf("%s: send while a frame awaits acknowledgement", dl.fullName))
	}
	dl.niu.SetXOFF(true)

	frame := dl.format.New()
	frame.SetInt("SN", dl.vs)
	dl.vs = (dl.vs + 1) % 2
	frame.SetInt("RN", dl.vr)
	frame.SetBytes("data", payload)
	frame.SetInt("FCS", frameFCS(frame.Serialize()))

	dl.sendBuffer = frame
	dl.retransTimer = dl.sim.Schedule(dl, nil, sngTimeout, dl.RetransmissionTimeout)

	dl.sim.Activity.Activity(dl, "tx", "Send", actSend)
	dl.PacketsSent += 1
	dl.niu.phySender().Send(frame.Serialize())
	return 0
}

// SendStatus learns from the phy that the transmission completed.
func (dl *StopAndGoDL) SendStatus(status int, bits []byte) {
	if status != StatusOK {
		panic(fmt.Sprintf("%s: unexpected transmit status %d", dl.fullName, status))
	}
	dl.sim.Activity.Activity(dl, "tx", "", nil)
}

func (dl *StopAndGoDL) sendACK() {
	ack := dl.format.New()
	ack.SetInt("SN", dl.vs)
	// the RN value decides whether this is an ACK or a NAK
	ack.SetInt("RN", dl.vr)
	ack.SetInt("FCS", frameFCS(ack.Serialize()))

	dl.sim.Activity.Activity(dl, "tx", "ACK/NAK", actAck)
	dl.niu.phySender().Send(ack.Serialize())
}

// Receive handles a frame from the phy.  The frame can carry
// payload data, an acknowledgement, or both.
func (dl *StopAndGoDL) Receive(bits []byte) {
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

func (dl *StopAndGoDL) checkAck(frame *PDU) {
	if dl.sendBuffer == nil {
		return
	}
	if frame.Int("RN") == dl.vs {
		// positive acknowledgement
		dl.sim.Activity.Activity(dl, "rx", "ACK", nil)
		payload := dl.sendBuffer.Bytes("data")
		dl.sendBuffer = nil
		dl.sim.Cancel(dl.retransTimer)
		dl.retransTimer = nil
		dl.niu.SetXOFF(false)
		for _, up := range dl.upperLayers {
			up.SendStatus(StatusOK, payload)
		}
	} else {
		// negative acknowledgement, retransmit
		dl.sim.Activity.Activity(dl, "rx", "NAK", nil)
		dl.retransmit()
	}
}

func (dl *StopAndGoDL) checkData(frame *PDU) {
	payload := frame.Bytes("data")
	if len(payload) == 0 {
		return
	}
	if frame.Int("SN") == dl.vr {
		dl.sim.Activity.Activity(dl, "rx", "Data OK", nil)
		dl.PacketsReceivedOK += 1
		dl.vr = (dl.vr + 1) % 2
		dl.sendACK()
		for _, up := range dl.upperLayers {
			up.Receive(payload)
		}
	} else {
		dl.sim.Activity.Activity(dl, "rx", "Wrong SN", nil)
		dl.SequenceErrors += 1
		dl.sendACK()
	}
}

// sngTimeout fires when the acknowledgement did not arrive in time
func sngTimeout(sim *Simulator, context any, data any) any {
	dl := context.(*StopAndGoDL)
	sim.Activity.Activity(dl, "tx", "TIMEOUT", nil)
	dl.retransTimer = nil
	dl.retransmit()
	return nil
}

func (dl *StopAndGoDL) retransmit() {
	dl.sim.Activity.Activity(dl, "tx", "Retransmit", actRetr)
	if dl.retransTimer != nil {
		dl.sim.Cancel(dl.retransTimer)
	}
	dl.retransTimer = dl.sim.Schedule(dl, nil, sngTimeout, dl.RetransmissionTimeout)
	dl.PacketRetransmissions += 1
	dl.PacketsSent += 1
	dl.niu.phySender().Send(dl.sendBuffer.Serialize())
}

// transmit queue entry codes; lower codes transmit first
const (
	codeSREJ    = 0
	codeACK     = 1
	codeRETR    = 2
	codeFIRSTTR = 3
)

type txEntry struct {
	code int
	sn   uint64
}

func insertTx(queue []txEntry, e txEntry) []txEntry {
	idx, _ := slices.BinarySearchFunc(queue, e, func(a, b txEntry) int {
		if a.code != b.code {
			return int(a.code) - int(b.code)
		}
		if a.sn < b.sn {
			return -1
		}
		if a.sn > b.sn {
			return 1
		}
		return 0
	})
	return slices.Insert(queue, idx, e)
}

func removeTx(queue []txEntry, e txEntry) []txEntry {
	if idx := slices.Index(queue, e); idx >= 0 {
		return slices.Delete(queue, idx, idx+1)
	}
	return queue
}

// newSlidingWindowFormat builds the frame format of the sliding
// window protocols: two sequence number fields, padding to the next
// octet boundary, an optional repeat-request octet, payload and CRC.
func newSlidingWindowFormat(numSNBits int, withSREJ bool) *PDUFormat {
	fields := []FieldDef{
		{Name: "SN", Kind: BitField, Bits: numSNBits},
		{Name: "RN", Kind: BitField, Bits: numSNBits},
	}
	if withSREJ {
		fields = append(fields, FieldDef{Name: "SREJ", Kind: BitField, Bits: 8})
	}
	if (2*numSNBits)%8 != 0 {
		fields = append(fields, FieldDef{Name: "pad", Kind: BitField, Bits: 8 - (2*numSNBits)%8})
	}
	fields = append(fields,
		FieldDef{Name: "data", Kind: ByteField, Bits: VariableLength},
		FieldDef{Name: "FCS", Kind: IntField, Bits: 32},
	)
	return NewFormat(fields)
}

// GoBackNDL is a point to point data link with go-back-n sliding
// window ARQ, after Bertsekas/Gallager, Data Networks, 2nd ed.,
// p. 80.  snMin is the left window edge, snMax the next fresh
// sequence number; a transmit queue orders pending transmissions so
// retransmissions and acknowledgements overtake fresh frames.
type GoBackNDL struct {
	sim         *Simulator
	niu         *NIU
	fullName    string
	upperLayers []UpperLayer
	format      *PDUFormat

	RetransmissionTimeout float64

	snMod        uint64
	winSize      uint64
	snMin        uint64
	snMax        uint64
	vr           uint64
	sendBuffer   map[uint64][]byte
	timers       map[uint64]*Event
	transmitting bool
	txQueue      []txEntry

	// statistics
	PacketsSent           int64
	PacketRetransmissions int64
	CrcErrors             int64
	SequenceErrors        int64
	PacketsReceivedOK     int64
}

// CreateGoBackNDL is a constructor.  numSNBits is the width of the
// sequence number fields in the frame header.
func CreateGoBackNDL(numSNBits int) *GoBackNDL {
	if numSNBits < 1 || numSNBits > 32 {
		panic(fmt.Sprintf("go-back-n: unusable sequence number width %d", numSNBits))
	}
	dl := new(GoBackNDL)
	dl.RetransmissionTimeout = 0.1
	dl.snMod = uint64(1) << uint(numSNBits)
	dl.sendBuffer = make(map[uint64][]byte)
	dl.timers = make(map[uint64]*Event)
	dl.format = newSlidingWindowFormat(numSNBits, false)
	return dl
}

func (dl *GoBackNDL) InstallOnNIU(niu *NIU, slot string) {
	if slot != "dl" {
		panic(fmt.Sprintf("dl entity must be installed in slot \"dl\", not %q", slot))
	}
	dl.niu = niu
	dl.sim = niu.Sim()
	dl.fullName = niu.FullName() + ".dl"
	niu.SetXOFF(false)
}

func (dl *GoBackNDL) FullName() string {
	return dl.fullName
}

func (dl *GoBackNDL) RegisterUpperLayer(up UpperLayer) {
	dl.upperLayers = append(dl.upperLayers, up)
}

func (dl *GoBackNDL) XOFF() bool {
	return dl.niu.XOFF()
}

// SetWindowSize sets the size of the sliding window in packets.
func (dl *GoBackNDL) SetWindowSize(numPackets int) {
	if numPackets < 0 {
		panic(fmt.Sprintf("%s: negative window size", dl.fullName))
	}
	dl.winSize = uint64(numPackets)
}

func (dl *GoBackNDL) windowDist(a, b uint64) uint64 {
	return (a + dl.snMod - b) % dl.snMod
}

// Send places the payload into the sliding window and the transmit
// queue.  Flow control closes when the window fills.
func (dl *GoBackNDL) Send(payload []byte) int {
	if dl.niu.XOFF() {
		panic(fmt.Sprintf("%s: send with closed window", dl.fullName))
	}
	dl.sendBuffer[dl.snMax] = payload
	dl.txQueue = insertTx(dl.txQueue, txEntry{code: codeFIRSTTR, sn: dl.snMax})
	dl.snMax = (dl.snMax + 1) % dl.snMod
	if dl.windowDist(dl.snMax, dl.snMin) >= dl.winSize {
		dl.niu.SetXOFF(true)
	}
	dl.trySendingFrame()
	return 0
}

// trySendingFrame transmits the head of the transmit queue if the
// link is free.
func (dl *GoBackNDL) trySendingFrame() {
	if dl.transmitting || len(dl.txQueue) == 0 {
		return
	}
	entry := dl.txQueue[0]
	dl.txQueue = dl.txQueue[1:]
	frame := dl.format.New()
	if entry.code == codeACK {
		// sequence number field is free since the payload is empty
		frame.SetInt("SN", dl.snMax)
		frame.SetInt("RN", entry.sn)
		frame.SetInt("FCS", frameFCS(frame.Serialize()))
		dl.sim.Activity.Activity(dl, "tx", fmt.Sprintf("Send ACK RN=%d", entry.sn), actAck)
	} else {
		frame.SetInt("SN", entry.sn)
		frame.SetInt("RN", dl.vr)
		frame.SetBytes("data", dl.sendBuffer[entry.sn])
		frame.SetInt("FCS", frameFCS(frame.Serialize()))
		dl.timers[entry.sn] = dl.sim.Schedule(dl, entry.sn, gbnTimeout, dl.RetransmissionTimeout)
		if entry.code == codeRETR {
			dl.PacketRetransmissions += 1
			dl.sim.Activity.Activity(dl, "tx", fmt.Sprintf("Retr SN=%d", entry.sn), actRetr)
		} else {
			dl.sim.Activity.Activity(dl, "tx", fmt.Sprintf("Send SN=%d", entry.sn), actSend)
		}
		dl.PacketsSent += 1
	}
	dl.transmitting = true
	dl.niu.phySender().Send(frame.Serialize())
}

// SendStatus learns from the phy that the transmission completed
// and tries the next queued frame.
func (dl *GoBackNDL) SendStatus(status int, bits []byte) {
	if status != StatusOK {
		panic(fmt.Sprintf("%s: unexpected transmit status %d", dl.fullName, status))
	}
	dl.sim.Activity.Activity(dl, "tx", "", nil)
	dl.transmitting = false
	dl.trySendingFrame()
}

// Receive handles a frame from the phy.
func (dl *GoBackNDL) Receive(bits []byte) {
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

// checkAck handles the cumulative acknowledgement of a frame: RN
// acknowledges every sequence number before it.
func (dl *GoBackNDL) checkAck(frame *PDU) {
	if dl.snMin == dl.snMax {
		// empty window, no ack expected
		return
	}
	rn := frame.Int("RN")
	if dl.windowDist(rn, dl.snMin) > dl.windowDist(dl.snMax, dl.snMin) {
		dl.sim.Activity.Activity(dl, "rx", fmt.Sprintf("DupACK RN=%d", rn), nil)
		return
	}
	dl.sim.Activity.Activity(dl, "rx", fmt.Sprintf("Rcv ACK RN=%d", rn), nil)
	for dl.snMin != rn {
		dl.txQueue = removeTx(dl.txQueue, txEntry{code: codeRETR, sn: dl.snMin})
		payload := dl.sendBuffer[dl.snMin]
		delete(dl.sendBuffer, dl.snMin)
		if timer, present := dl.timers[dl.snMin]; present {
			delete(dl.timers, dl.snMin)
			dl.sim.Cancel(timer)
		}
		dl.snMin = (dl.snMin + 1) % dl.snMod
		if dl.windowDist(dl.snMax, dl.snMin) < dl.winSize {
			dl.niu.SetXOFF(false)
		}
		for _, up := range dl.upperLayers {
			up.SendStatus(StatusOK, payload)
		}
	}
}

func (dl *GoBackNDL) checkData(frame *PDU) {
	payload := frame.Bytes("data")
	if len(payload) == 0 {
		return
	}
	sn := frame.Int("SN")
	if sn == dl.vr {
		dl.sim.Activity.Activity(dl, "rx", fmt.Sprintf("Rcv OK SN=%d", sn), nil)
		dl.PacketsReceivedOK += 1
		dl.vr = (dl.vr + 1) % dl.snMod
		dl.sendACK()
		for _, up := range dl.upperLayers {
			up.Receive(payload)
		}
	} else {
		dl.sim.Activity.Activity(dl, "rx", fmt.Sprintf("Rcv wrong SN=%d", sn), nil)
		dl.SequenceErrors += 1
		dl.sendACK()
	}
}

func (dl *GoBackNDL) sendACK() {
	dl.txQueue = insertTx(dl.txQueue, txEntry{code: codeACK, sn: dl.vr})
	dl.trySendingFrame()
}

// gbnTimeout fires when a frame of the window went unacknowledged
func gbnTimeout(sim *Simulator, context any, data any) any {
	dl := context.(*GoBackNDL)
	sn := data.(uint64)
	sim.Activity.Activity(dl, "tx", fmt.Sprintf("TIMEOUT SN=%d", sn), nil)
	delete(dl.timers, sn)
	dl.retransmitWindow()
	return nil
}

// retransmitWindow abandons every pending data transmission and
// queues the whole window for retransmission.
func (dl *GoBackNDL) retransmitWindow() {
	kept := dl.txQueue[:0]
	for _, entry := range dl.txQueue {
		if entry.code == codeACK {
			kept = append(kept, entry)
		}
	}
	dl.txQueue = kept
	for sn, timer := range dl.timers {
		dl.sim.Cancel(timer)
		delete(dl.timers, sn)
	}
	for sn := range dl.sendBuffer {
		dl.txQueue = insertTx(dl.txQueue, txEntry{code: codeRETR, sn: sn})
	}
	dl.trySendingFrame()
}

// SelectiveRepeatDL is a point to point data link with selective
// repeat ARQ.  Unlike go-back-n an acknowledgement covers a single
// frame, the receiver buffers out of order frames, and a repeat
// request names exactly the missing frame.
type SelectiveRepeatDL struct {
	sim         *Simulator
	niu         *NIU
	fullName    string
	upperLayers []UpperLayer
	format      *PDUFormat

	RetransmissionTimeout float64

	snMod         uint64
	winSize       uint64
	snMin         uint64
	snMax         uint64
	vr            uint64
	sendBuffer    map[uint64][]byte
	receiveBuffer map[uint64][]byte
	timers        map[uint64]*Event
	transmitting  bool
	txQueue       []txEntry

	// statistics
	PacketsSent           int64
	PacketRetransmissions int64
	CrcErrors             int64
	SequenceErrors        int64
	PacketsReceivedOK     int64
}

// CreateSelectiveRepeatDL is a constructor.  numSNBits is the width
// of the sequence number fields in the frame header.
func CreateSelectiveRepeatDL(numSNBits int) *SelectiveRepeatDL {
	if numSNBits < 1 || numSNBits > 32 {
		panic(fmt.Sprintf("selective repeat: unusable sequence number width %d", numSNBits))
	}
	dl := new(SelectiveRepeatDL)
	dl.RetransmissionTimeout = 0.1
	dl.snMod = uint64(1) << uint(numSNBits)
	dl.sendBuffer = make(map[uint64][]byte)
	dl.receiveBuffer = make(map[uint64][]byte)
	dl.timers = make(map[uint64]*Event)
	dl.format = newSlidingWindowFormat(numSNBits, true)
	return dl
}

func (dl *SelectiveRepeatDL) InstallOnNIU(niu *NIU, slot string) {
	if slot != "dl" {
		panic(fmt.Sprintf("dl entity must be installed in slot \"dl\", not %q", slot))
	}
	dl.niu = niu
	dl.sim = niu.Sim()
	dl.fullName = niu.FullName() + ".dl"
	niu.SetXOFF(false)
}

func (dl *SelectiveRepeatDL) FullName() string {
	return dl.fullName
}

func (dl *SelectiveRepeatDL) RegisterUpperLayer(up UpperLayer) {
	dl.upperLayers = append(dl.upperLayers, up)
}

func (dl *SelectiveRepeatDL) XOFF() bool {
	return dl.niu.XOFF()
}

// SetWindowSize sets the size of the sliding window in packets.
// The window cannot exceed half the sequence number space: beyond
// that a frame retransmitted after a lost acknowledgement falls
// into the receive window of new frames and is delivered twice.
func (dl *SelectiveRepeatDL) SetWindowSize(numPackets int) {
	if numPackets < 0 {
		panic(fmt.Sprintf("%s: negative window size", dl.fullName))
	}
	if uint64(numPackets) > dl.snMod/2 {
		panic(fmt.Sprintf("%s: window of %d frames needs more than %d sequence numbers",
			dl.fullName, numPackets, dl.snMod))
	}
	dl.winSize = uint64(numPackets)
}

func (dl *SelectiveRepeatDL) windowDist(a, b uint64) uint64 {
	return (a + dl.snMod - b) % dl.snMod
}

// Send places the payload into the sliding window and the transmit
// queue.  Flow control closes when the window fills.
func (dl *SelectiveRepeatDL) Send(payload []byte) int {
	if dl.niu.XOFF() {
		panic(fmt.Sprintf("%s: send with closed window", dl.fullName))
	}
	dl.sendBuffer[dl.snMax] = payload
	dl.txQueue = insertTx(dl.txQueue, txEntry{code: codeFIRSTTR, sn: dl.snMax})
	dl.snMax = (dl.snMax + 1) % dl.snMod
	if dl.windowDist(dl.snMax, dl.snMin) >= dl.winSize {
		dl.niu.SetXOFF(true)
	}
	dl.trySendingFrame()
	return 0
}

func (dl *SelectiveRepeatDL) trySendingFrame() {
	if dl.transmitting || len(dl.txQueue) == 0 {
		return
	}
	entry := dl.txQueue[0]
	dl.txQueue = dl.txQueue[1:]
	frame := dl.format.New()
	if entry.code == codeACK || entry.code == codeSREJ {
		frame.SetInt("SN", dl.snMax)
		frame.SetInt("RN", entry.sn)
		if entry.code == codeSREJ {
			frame.SetInt("SREJ", 1)
			dl.sim.Activity.Activity(dl, "tx", fmt.Sprintf("Send SREJ RN=%d", entry.sn), actSrej)
		} else {
			dl.sim.Activity.Activity(dl, "tx", fmt.Sprintf("Send ACK RN=%d", entry.sn), actAck)
		}
		frame.SetInt("FCS", frameFCS(frame.Serialize()))
	} else {
		frame.SetInt("SN", entry.sn)
		frame.SetInt("RN", dl.vr)
		frame.SetBytes("data", dl.sendBuffer[entry.sn])
		frame.SetInt("FCS", frameFCS(frame.Serialize()))
		if timer, present := dl.timers[entry.sn]; present {
			delete(dl.timers, entry.sn)
			dl.sim.Cancel(timer)
		}
		dl.timers[entry.sn] = dl.sim.Schedule(dl, entry.sn, srTimeout, dl.RetransmissionTimeout)
		if entry.code == codeRETR {
			dl.PacketRetransmissions += 1
			dl.sim.Activity.Activity(dl, "tx", fmt.Sprintf("Retr SN=%d", entry.sn), actRetr)
		} else {
			dl.sim.Activity.Activity(dl, "tx", fmt.Sprintf("Send SN=%d", entry.sn), actSend)
		}
		dl.PacketsSent += 1
	}
	dl.transmitting = true
	dl.niu.phySender().Send(frame.Serialize())
}

// SendStatus learns from the phy that the transmission completed
// and tries the next queued frame.
func (dl *SelectiveRepeatDL) SendStatus(status int, bits []byte) {
	if status != StatusOK {
		panic(fmt.Sprintf("%s: unexpected transmit status %d", dl.fullName, status))
	}
	dl.sim.Activity.Activity(dl, "tx", "", nil)
	dl.transmitting = false
	dl.trySendingFrame()
}

// Receive handles a frame from the phy.  A corrupted frame triggers
// a repeat request for the first missing sequence number.
func (dl *SelectiveRepeatDL) Receive(bits []byte) {
	frame := dl.format.New()
	frame.Fill(bits)
	if frame.Int("FCS") != frameFCS(bits) {
		dl.sim.Activity.Activity(dl, "rx", "CRC error", nil)
		dl.CrcErrors += 1
		dl.sendACK(codeSREJ, dl.vr)
		return
	}
	dl.checkAck(frame)
	dl.checkData(frame)
}

// checkAck handles acknowledgements and repeat requests.  An ACK
// covers only the frame it names.
func (dl *SelectiveRepeatDL) checkAck(frame *PDU) {
	if dl.snMin == dl.snMax {
		// empty window, no ack expected
		return
	}
	rn := frame.Int("RN")
	if frame.Int("SREJ") != 0 {
		if dl.windowDist(rn, dl.snMin) < dl.windowDist(dl.snMax, dl.snMin) {
			dl.sim.Activity.Activity(dl, "rx", fmt.Sprintf("SREJ RN=%d", rn), nil)
			dl.retransmitFrame(rn)
			return
		}
	}
	if dl.windowDist(rn, dl.snMin) > dl.windowDist(dl.snMax, dl.snMin) {
		dl.sim.Activity.Activity(dl, "rx", fmt.Sprintf("DupACK RN=%d", rn), nil)
		return
	}
	dl.sim.Activity.Activity(dl, "rx", fmt.Sprintf("Rcv ACK RN=%d", rn), nil)
	payload, present := dl.sendBuffer[rn]
	if !present {
		return
	}
	delete(dl.sendBuffer, rn)
	dl.txQueue = removeTx(dl.txQueue, txEntry{code: codeRETR, sn: rn})
	if timer, timerPresent := dl.timers[rn]; timerPresent {
		delete(dl.timers, rn)
		dl.sim.Cancel(timer)
	}

	// slide the window up to the first unacknowledged frame
	for dl.snMin != dl.snMax {
		if _, outstanding := dl.sendBuffer[dl.snMin]; outstanding {
			break
		}
		dl.snMin = (dl.snMin + 1) % dl.snMod
		if dl.windowDist(dl.snMax, dl.snMin) < dl.winSize {
			dl.niu.SetXOFF(false)
		}
	}
	for _, up := range dl.upperLayers {
		up.SendStatus(StatusOK, payload)
	}
}

func (dl *SelectiveRepeatDL) checkData(frame *PDU) {
	payload := frame.Bytes("data")
	if len(payload) == 0 {
		return
	}
	sn := frame.Int("SN")
	if dl.windowDist(sn, dl.vr) < dl.winSize {
		dl.sim.Activity.Activity(dl, "rx", fmt.Sprintf("Rcv OK SN=%d", sn), nil)
		dl.PacketsReceivedOK += 1
		dl.receiveBuffer[sn] = payload

		// deliver the run of consecutive frames starting at vr
		for {
			next, present := dl.receiveBuffer[dl.vr]
			if !present {
				break
			}
			delete(dl.receiveBuffer, dl.vr)
			for _, up := range dl.upperLayers {
				up.Receive(next)
			}
			dl.vr = (dl.vr + 1) % dl.snMod
		}
		dl.sendACK(codeACK, sn)
	} else if dl.windowDist(dl.vr, sn) < dl.winSize+1 {
		// an old frame whose ack was lost, acknowledge it again
		dl.sim.Activity.Activity(dl, "rx", fmt.Sprintf("Send old ACK RN=%d", sn), nil)
		dl.sendACK(codeACK, sn)
	} else {
		dl.sim.Activity.Activity(dl, "rx", fmt.Sprintf("Rcv wrong SN=%d", sn), nil)
		dl.SequenceErrors += 1
		dl.sendACK(codeSREJ, dl.vr)
	}
}

func (dl *SelectiveRepeatDL) sendACK(code int, rn uint64) {
	dl.txQueue = insertTx(dl.txQueue, txEntry{code: code, sn: rn})
	dl.trySendingFrame()
}

// srTimeout fires when a frame of the window went unacknowledged
func srTimeout(sim *Simulator, context any, data any) any {
	dl := context.(*SelectiveRepeatDL)
	sn := data.(uint64)
	sim.Activity.Activity(dl, "tx", fmt.Sprintf("TIMEOUT SN=%d", sn), nil)
	delete(dl.timers, sn)
	dl.retransmitFrame(sn)
	return nil
}

// retransmitFrame queues a single frame for retransmission.
func (dl *SelectiveRepeatDL) retransmitFrame(sn uint64) {
	dl.txQueue = insertTx(dl.txQueue, txEntry{code: codeRETR, sn: sn})
	dl.trySendingFrame()
}
