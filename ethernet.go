package nessi

// ethernet.go implements the 802.3 protocol family: a phy with
// carrier sense and collision signalling, the CSMA/CD MAC sublayer,
// and an LLC sublayer that demultiplexes to upper layers by
// protocol type.  Section references are to IEEE Std 802.3-2002.

import (
	"bytes"
	"fmt"
	"hash/crc32"

	"github.com/iti/rngstream"
)

// duplex modes of an Ethernet phy
const (
	HalfDuplex = 0
	FullDuplex = 1
)

// MAC constants, Section 4.4.2
const (
	// slot time in bits for 10 and 100 Mb/s
	ethSlotTime = 512
	// slot time in bits for 1000 Mb/s
	ethGigaSlotTime = 4096
	// interframe gap in bits, all rates
	ethInterframeGap = 96
	// jam signal length in octets
	ethJamSize = 32 / 8
	// minimum frame size in octets, destAddr through FCS
	ethMinFrameSize = 512 / 8
	// maximum untagged frame size in octets, destAddr through FCS
	ethMaxUntaggedFrameSize = 1518
)

// EthernetPHY transmits and receives blocks of bits on a shared
// medium and reports carrier activity and collisions to the MAC.
type EthernetPHY struct {
	sim      *Simulator
	niu      *NIU
	fullName string
	dataRate float64
	mode     int

	receiveActivities     int
	receiveStartTime      float64
	overlappingReceptions bool
	txActive              bool
	transmitStartTime     float64
	transmittedData       []byte
	completeTxEvent       *Event
}

// CreateEthernetPHY is a constructor.  The default configuration is
// 10 Mb/s half duplex.
func CreateEthernetPHY() *EthernetPHY {
	return &EthernetPHY{dataRate: 10e6, mode: HalfDuplex}
}

func (phy *EthernetPHY) InstallOnNIU(niu *NIU, slot string) {
	if slot != "phy" {
		panic(fmt.Sprintf("phy entity must be installed in slot \"phy\", not %q", slot))
	}
	phy.niu = niu
	phy.sim = niu.Sim()
	phy.fullName = niu.FullName() + ".phy"
}

func (phy *EthernetPHY) FullName() string {
	return phy.fullName
}

// SetDuplexMode selects half or full duplex operation.  Full duplex
// is impossible on a bus.
func (phy *EthernetPHY) SetDuplexMode(mode int) error {
	switch mode {
	case HalfDuplex:
		phy.mode = HalfDuplex
		return nil
	case FullDuplex:
		switch phy.niu.Medium().(type) {
		case *Bus, *ErrorBus:
			return fmt.Errorf("%s: full duplex impossible on a bus", phy.fullName)
		}
		phy.mode = FullDuplex
		return nil
	}
	return fmt.Errorf("%s: unknown duplex mode %d", phy.fullName, mode)
}

func (phy *EthernetPHY) DuplexMode() int {
	return phy.mode
}

// SetDataRate sets the rate to 10, 100 or 1000 Mb/s.
func (phy *EthernetPHY) SetDataRate(rate float64) error {
	if rate != 10e6 && rate != 100e6 && rate != 1000e6 {
		return fmt.Errorf("%s: invalid data rate %g", phy.fullName, rate)
	}
	phy.dataRate = rate
	return nil
}

func (phy *EthernetPHY) DataRate() float64 {
	return phy.dataRate
}

// BitTime returns the time it takes to transmit one bit.
func (phy *EthernetPHY) BitTime() float64 {
	return 1.0 / phy.dataRate
}

// CarrierSense reports whether the channel is occupied.
func (phy *EthernetPHY) CarrierSense() bool {
	return phy.receiveActivities > 0 || phy.txActive
}

// NewChannelActivity registers the leading edge of another
// station's transmission.  Overlapping incoming transmissions are
// remembered to invalidate the received data; an overlap with our
// own transmission is signalled to the MAC as a collision.
func (phy *EthernetPHY) NewChannelActivity() {
	phy.receiveActivities += 1
	if phy.receiveActivities == 1 {
		phy.receiveStartTime = phy.sim.Now()
		phy.overlappingReceptions = false
	} else {
		phy.overlappingReceptions = true
	}
	if phy.txActive {
		phy.niu.macReceiver().CollisionDetect()
	}
}

// Receive handles the trailing edge of an incoming transmission.
// Only when the last of possibly overlapping transmissions ends is
// data delivered to the MAC; overlapped receptions are replaced by
// zero octets covering the whole busy period.
func (phy *EthernetPHY) Receive(bits []byte) {
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
	phy.niu.macReceiver().Receive(bits)

	if !phy.CarrierSense() {
		phy.niu.macReceiver().ChannelIdle()
	}
}

// Transmitting starts or stops a transmission.  The MAC stops a
// transmission either when the phy reported all data sent or to cut
// it short after a collision; the data actually serialized up to
// this moment is what reaches the medium.
func (phy *EthernetPHY) Transmitting(activate bool) {
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
		phy.niu.macReceiver().ChannelIdle()
	}
}

// Send accepts a block of data for transmission.  Called again
// while a transmission is active it discards the not yet serialized
// remainder and continues with the new data; the MAC uses this to
// replace a collided frame with the jam signal.
func (phy *EthernetPHY) Send(bits []byte) {
	if !phy.txActive {
		panic(fmt.Sprintf("%s: transmit without activating transmission", phy.fullName))
	}
	if phy.transmittedData == nil {
		phy.transmittedData = bits
		phy.transmitStartTime = phy.sim.Now()
		phy.niu.Medium().StartTransmission(phy.niu)

		delay := float64(len(bits)*8) / phy.dataRate
		phy.completeTxEvent = phy.sim.Schedule(phy, nil, ethPhyTxComplete, delay)

		if phy.receiveActivities > 0 {
			phy.niu.macReceiver().CollisionDetect()
		}
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
		phy.completeTxEvent = phy.sim.Schedule(phy, nil, ethPhyTxComplete, delay)
	}
}

// ethPhyTxComplete tells the MAC that all accepted data has been
// serialized onto the medium
func ethPhyTxComplete(sim *Simulator, context any, data any) any {
	phy := context.(*EthernetPHY)
	phy.niu.macReceiver().SendStatus(StatusOK, phy.transmittedData)
	return nil
}

// EthernetMAC implements the 802.3 MAC sublayer: frame assembly,
// CSMA/CD medium access with exponential backoff in half duplex,
// and address filtered reception.
type EthernetMAC struct {
	sim      *Simulator
	niu      *NIU
	fullName string
	rng      *rngstream.RngStream

	// Address is the station address, settable after install
	Address       string
	addressFilter []string
	format        *PDUFormat

	sendBuffer            *PDU
	transmissionAttempts  int
	jamming               bool
	waitingForIdleChannel bool

	latestTransmitActivity float64
	latestReceiveActivity  float64

	// statistics, Section 5.2.2.1
	FramesTransmittedOK     int64
	SingleCollisionFrames   int64
	MultipleCollisionFrames int64
	FramesReceivedOK        int64
	FrameCheckSequenceError int64
	OctetsTransmittedOK     int64
	OctetsReceivedOK        int64
	ExcessiveCollisions     int64
	OctetsTransmittedError  int64
}

// CreateEthernetMAC is a constructor
func CreateEthernetMAC() *EthernetMAC {
	mac := new(EthernetMAC)
	mac.addressFilter = []string{"FF:FF:FF:FF:FF:FF"}
	return mac
}

// InstallOnNIU registers the device, draws a random unicast station
// address and builds the 802.3 frame format, Section 3.1.1.
func (mac *EthernetMAC) InstallOnNIU(niu *NIU, slot string) {
	if slot != "mac" {
		panic(fmt.Sprintf("mac entity must be installed in slot \"mac\", not %q", slot))
	}
	mac.niu = niu
	mac.sim = niu.Sim()
	mac.fullName = niu.FullName() + ".mac"
	mac.rng = rngstream.New(mac.fullName)

	octets := make([]int, 6)
	for i := range octets {
		octets[i] = mac.rng.RandInt(0, 255)
	}
	if octets[0]%2 == 1 {
		octets[0] -= 1
	}
	mac.Address = fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X",
		octets[0], octets[1], octets[2], octets[3], octets[4], octets[5])

	mac.format = NewFormat([]FieldDef{
		{Name: "preamble", Kind: ByteField, Bits: 56, Default: bytes.Repeat([]byte{0xAA}, 7)},
		{Name: "SFD", Kind: ByteField, Bits: 8, Default: []byte{0xAB}},
		{Name: "destAddr", Kind: MACAddrField, Bits: 48, Default: "FF:FF:FF:FF:FF:FF"},
		{Name: "srcAddr", Kind: MACAddrField, Bits: 48, Default: mac.Address},
		{Name: "typeOrLength", Kind: IntField, Bits: 16, Default: 0x0800},
		{Name: "data", Kind: ByteField, Bits: VariableLength},
		{Name: "FCS", Kind: IntField, Bits: 32},
	})

	// start accepting frames
	niu.SetXOFF(false)
}

func (mac *EthernetMAC) FullName() string {
	return mac.fullName
}

// SetAddress changes the station address.
func (mac *EthernetMAC) SetAddress(address string) {
	mac.Address = address
}

// AddGroupAddress accepts frames sent to a multicast address.
func (mac *EthernetMAC) AddGroupAddress(mcAddress string) {
	for _, addr := range mac.addressFilter {
		if addr == mcAddress {
			return
		}
	}
	mac.addressFilter = append(mac.addressFilter, mcAddress)
}

// DeleteGroupAddress stops accepting frames for a multicast
// address.  The broadcast address cannot be removed.
func (mac *EthernetMAC) DeleteGroupAddress(mcAddress string) {
	if mcAddress == "FF:FF:FF:FF:FF:FF" {
		return
	}
	for idx, addr := range mac.addressFilter {
		if addr == mcAddress {
			mac.addressFilter = append(mac.addressFilter[:idx], mac.addressFilter[idx+1:]...)
			return
		}
	}
}

// Receive checks a bitstream from the phy and passes accepted
// frames upward, Section 4.2.4: collision fragments are discarded,
// carrier extension removed, the address filter and the FCS applied.
func (mac *EthernetMAC) Receive(bits []byte) {
	mac.latestReceiveActivity = mac.sim.Now()

	// collision fragments are shorter than a minimum frame
	if len(bits) < ethMinFrameSize+8 {
		return
	}

	// carrier extension in 1000 Mb/s half duplex is modeled as
	// trailing zero octets
	if len(bits) == ethGigaSlotTime/8+8 &&
		mac.phy().DataRate() == 1000e6 && mac.phy().DuplexMode() == HalfDuplex {
		bits = bytes.TrimRight(bits, "\x00")
	}

	frame := mac.format.New()
	frame.Fill(bits)

	destAddr := frame.MAC("destAddr")
	if destAddr != mac.Address && !mac.filterAccepts(destAddr) {
		return
	}

	// FCS excludes preamble, SFD and the FCS field itself
	checksum := uint64(crc32.ChecksumIEEE(bits[8 : len(bits)-4]))
	if checksum != frame.Int("FCS") {
		mac.FrameCheckSequenceError += 1
		return
	}

	mac.sim.Activity.Activity(mac, "rx", "receive", nil)
	payload := frame.Bytes("data")
	mac.FramesReceivedOK += 1
	mac.OctetsReceivedOK += int64(len(payload))
	mac.niu.macUpper().Receive(destAddr, frame.MAC("srcAddr"), int(frame.Int("typeOrLength")), payload)
}

func (mac *EthernetMAC) filterAccepts(destAddr string) bool {
	for _, addr := range mac.addressFilter {
		if addr == destAddr {
			return true
		}
	}
	return false
}

func (mac *EthernetMAC) phy() *EthernetPHY {
	phy, ok := mac.niu.Protocol("phy").(*EthernetPHY)
	if !ok {
		panic(fmt.Sprintf("%s: requires an Ethernet phy below it", mac.fullName))
	}
	return phy
}

// Send assembles a MAC frame, Section 4.2.3.1, and invokes medium
// access.  Only a single frame can be in transmission; the caller
// must respect flow control.
func (mac *EthernetMAC) Send(payload []byte, destMACAddr string, srcMACAddr string, typeOrLength int) {
	if mac.niu.XOFF() || mac.sendBuffer != nil {
		panic(fmt.Sprintf("%s: send while a frame is in transmission", mac.fullName))
	}
	mac.niu.SetXOFF(true)

	frame := mac.format.New()
	frame.SetMAC("destAddr", destMACAddr)
	frame.SetMAC("srcAddr", srcMACAddr)
	frame.SetInt("typeOrLength", uint64(typeOrLength))
	if len(payload) < ethMinFrameSize-18 {
		payload = append(payload, make([]byte, ethMinFrameSize-18-len(payload))...)
	}
	frame.SetBytes("data", payload)
	wire := frame.Serialize()
	frame.SetInt("FCS", uint64(crc32.ChecksumIEEE(wire[8:len(wire)-4])))

	mac.sendBuffer = frame
	mac.transmissionAttempts = 0
	mac.mediumAccess()
}

// mediumAccess acquires the medium and transmits the frame per the
// CSMA/CD algorithm, Section 4.2.3.2: carrier deference and
// interframe spacing in half duplex, interframe spacing alone in
// full duplex.
func (mac *EthernetMAC) mediumAccess() {
	if mac.sendBuffer == nil {
		panic(fmt.Sprintf("%s: medium access without a frame", mac.fullName))
	}
	phy := mac.phy()

	if phy.DuplexMode() == FullDuplex {
		gaptime := ethInterframeGap * phy.BitTime()
		currentgap := mac.sim.Now() - mac.latestTransmitActivity
		if currentgap < gaptime {
			mac.sim.Activity.Activity(mac, "tx", "gaptime", &ActivityGraphic{Color: "grey", Size: 3, Style: 2})
			mac.sim.Schedule(mac, nil, ethMediumAccess, gaptime-currentgap)
			return
		}
		mac.transmissionAttempts += 1
		mac.sim.Activity.Activity(mac, "tx", "send FD", &ActivityGraphic{Color: "green"})
		phy.Transmitting(true)
		phy.Send(mac.sendBuffer.Serialize())
		return
	}

	// half duplex: defer to carrier
	if phy.CarrierSense() {
		mac.sim.Activity.Activity(mac, "tx", "carrierSense", &ActivityGraphic{Color: "blue", Size: 3, Style: 2})
		mac.waitingForIdleChannel = true
		return
	}
	mac.waitingForIdleChannel = false

	// respect the interframe gap; jitter avoids lockstep retries
	// between stations with identical gap deficits
	gaptime := ethInterframeGap * phy.BitTime()
	currentgap := mac.sim.Now() - maxFloat(mac.latestTransmitActivity, mac.latestReceiveActivity)
	if gaptime-currentgap > phy.BitTime()/100 {
		mac.sim.Activity.Activity(mac, "tx", "gaptime", &ActivityGraphic{Color: "grey", Size: 3, Style: 2})
		gapjitter := gaptime * mac.rng.RandU01() / 100
		mac.sim.Schedule(mac, nil, ethMediumAccess, gaptime-currentgap+gapjitter)
		return
	}

	mac.transmissionAttempts += 1
	mac.sim.Activity.Activity(mac, "tx", "send HD", &ActivityGraphic{Color: "green"})
	phy.Transmitting(true)
	phy.Send(mac.sendBuffer.Serialize())
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// ethMediumAccess retries medium access after a gap or backoff wait
func ethMediumAccess(sim *Simulator, context any, data any) any {
	context.(*EthernetMAC).mediumAccess()
	return nil
}

type statusInd struct {
	status  int
	payload []byte
}

// ethStatusToUpper delivers the outcome of a transmission to the dl
// sublayer one event late, after the MAC state has been cleaned up
func ethStatusToUpper(sim *Simulator, context any, data any) any {
	mac := context.(*EthernetMAC)
	ind := data.(statusInd)
	mac.niu.macUpper().SendStatus(ind.status, ind.payload)
	return nil
}

// SendStatus terminates a transmission.  At the end of a jam it
// starts the backoff; otherwise it updates the statistics, informs
// the dl sublayer and reopens flow control.
func (mac *EthernetMAC) SendStatus(status int, bits []byte) {
	mac.latestTransmitActivity = mac.sim.Now()

	if mac.jamming {
		mac.sim.Activity.Activity(mac, "tx", "", nil)
		mac.phy().Transmitting(false)
		mac.backoff()
		return
	}

	mac.sim.Activity.Activity(mac, "tx", "", nil)
	mac.phy().Transmitting(false)
	payload := mac.sendBuffer.Bytes("data")
	if status == StatusOK {
		mac.FramesTransmittedOK += 1
		mac.OctetsTransmittedOK += int64(len(payload))
		if mac.transmissionAttempts > 2 {
			mac.MultipleCollisionFrames += 1
		}
		if mac.transmissionAttempts == 2 {
			mac.SingleCollisionFrames += 1
		}
	} else {
		mac.OctetsTransmittedError += int64(len(payload))
		status = StatusUnknownTransmissionError
	}

	mac.sim.Schedule(mac, statusInd{status: status, payload: payload}, ethStatusToUpper, 0.0)
	mac.transmissionAttempts = 0
	mac.sendBuffer = nil
	mac.niu.SetXOFF(false)
}

// CollisionDetect enforces a detected collision with a jam signal,
// Section 4.2.3.2.4.  Ignored while already jamming and in full
// duplex mode.
func (mac *EthernetMAC) CollisionDetect() {
	if mac.jamming || mac.phy().DuplexMode() == FullDuplex {
		return
	}
	mac.sim.Activity.Activity(mac, "tx", "JAM", &ActivityGraphic{Color: "red", Style: 2})
	mac.jamming = true
	mac.phy().Send(make([]byte, ethJamSize))
}

// ChannelIdle resumes a transmission deferred to carrier sense.
func (mac *EthernetMAC) ChannelIdle() {
	if mac.waitingForIdleChannel {
		mac.mediumAccess()
	}
}

// backoff runs after the jam ends: draw a random number of slot
// times and schedule the retransmission, or abandon the frame after
// sixteen attempts.
func (mac *EthernetMAC) backoff() {
	mac.sim.Activity.Activity(mac, "tx", "backoff", &ActivityGraphic{Color: "blue", Size: 1, Style: 2})
	mac.jamming = false
	if mac.transmissionAttempts >= 16 {
		payload := mac.sendBuffer.Bytes("data")
		mac.sim.Schedule(mac, statusInd{status: StatusExcessiveCollisionError, payload: payload},
			ethStatusToUpper, 0.0)
		mac.ExcessiveCollisions += 1
		mac.sim.logger.Warn().Str("mac", mac.fullName).Msg("excessive collisions")
		mac.transmissionAttempts = 0
		mac.sendBuffer = nil
		mac.niu.SetXOFF(false)
		return
	}

	k := mac.transmissionAttempts
	if k > 10 {
		k = 10
	}
	r := int(mac.rng.RandU01() * float64(int(1)<<uint(k)))
	slot := float64(ethSlotTime)
	if mac.phy().DataRate() == 1000e6 {
		slot = float64(ethGigaSlotTime)
	}
	backoff := float64(r) * slot * mac.phy().BitTime()
	mac.sim.Schedule(mac, nil, ethMediumAccess, backoff)
}

type llcFrame struct {
	payload      []byte
	destMAC      string
	srcMAC       string
	protocolType int
}

// EthernetLLC is the LLC sublayer: it queues outgoing packets until
// the MAC is free and demultiplexes received packets to upper
// layers by protocol type.
type EthernetLLC struct {
	sim      *Simulator
	niu      *NIU
	fullName string

	upperLayers        map[int][]UpperLayer
	transmissionBuffer []llcFrame
	outstandingFrame   *llcFrame
}

// CreateEthernetLLC is a constructor
func CreateEthernetLLC() *EthernetLLC {
	llc := new(EthernetLLC)
	llc.upperLayers = make(map[int][]UpperLayer)
	return llc
}

func (llc *EthernetLLC) InstallOnNIU(niu *NIU, slot string) {
	if slot != "dl" {
		panic(fmt.Sprintf("dl entity must be installed in slot \"dl\", not %q", slot))
	}
	llc.niu = niu
	llc.sim = niu.Sim()
	llc.fullName = niu.FullName() + ".dl"
}

func (llc *EthernetLLC) FullName() string {
	return llc.fullName
}

// SetSrcAddress changes the station address of the MAC below.
func (llc *EthernetLLC) SetSrcAddress(srcMAC string) {
	llc.mac().SetAddress(srcMAC)
}

func (llc *EthernetLLC) mac() *EthernetMAC {
	mac, ok := llc.niu.Protocol("mac").(*EthernetMAC)
	if !ok {
		panic(fmt.Sprintf("%s: requires an Ethernet mac below it", llc.fullName))
	}
	return mac
}

// QueueLength returns the number of packets waiting for the MAC.
func (llc *EthernetLLC) QueueLength() int {
	return len(llc.transmissionBuffer)
}

// RegisterUpperLayer arranges for received packets carrying the
// protocol type to be delivered to the upper layer entity.
func (llc *EthernetLLC) RegisterUpperLayer(up UpperLayer, protocolType int) {
	llc.upperLayers[protocolType] = append(llc.upperLayers[protocolType], up)
}

// Send accepts a packet from the network layer.  If the MAC is busy
// the packet waits in the transmission buffer.
func (llc *EthernetLLC) Send(payload []byte, destMAC string, srcMAC string, protocolType int) {
	llc.transmissionBuffer = append(llc.transmissionBuffer,
		llcFrame{payload: payload, destMAC: destMAC, srcMAC: srcMAC, protocolType: protocolType})
	if !llc.niu.XOFF() {
		llc.trySending()
	}
}

// Receive demultiplexes a packet from the MAC to the upper layers
// registered for its protocol type.
func (llc *EthernetLLC) Receive(destMAC string, srcMAC string, protocolType int, payload []byte) {
	if len(payload) == 46 {
		// remove the minimum frame size pad
		payload = bytes.TrimRight(payload, "\x00")
	}
	for _, up := range llc.upperLayers[protocolType] {
		up.Receive(payload)
	}
}

// SendStatus learns the outcome of the outstanding transmission
// from the MAC, informs the upper layer and continues with the next
// buffered packet.
func (llc *EthernetLLC) SendStatus(status int, payload []byte) {
	frame := llc.outstandingFrame
	llc.outstandingFrame = nil
	if frame != nil {
		for _, up := range llc.upperLayers[frame.protocolType] {
			up.SendStatus(status, frame.payload)
		}
	}
	llc.trySending()
}

func (llc *EthernetLLC) trySending() {
	if llc.niu.XOFF() || len(llc.transmissionBuffer) == 0 {
		return
	}
	frame := llc.transmissionBuffer[0]
	llc.transmissionBuffer = llc.transmissionBuffer[1:]
	llc.outstandingFrame = &frame
	llc.mac().Send(frame.payload, frame.destMAC, frame.srcMAC, frame.protocolType)
}

// NetAdapter is a minimal network layer: it binds a traffic source
// or sink to an LLC with fixed addresses and protocol type, in
// place of a routed network stack.
type NetAdapter struct {
	llc          *EthernetLLC
	fullName     string
	srcMAC       string
	destMAC      string
	protocolType int
	upper        UpperLayer
}

// CreateNetAdapter is a constructor.  Packets sent through the
// adapter go to destMAC with the given protocol type; received
// packets of that type are handed to the registered upper layer.
func CreateNetAdapter(llc *EthernetLLC, srcMAC string, destMAC string, protocolType int) *NetAdapter {
	na := &NetAdapter{
		llc:          llc,
		fullName:     llc.FullName() + ".adapter",
		srcMAC:       srcMAC,
		destMAC:      destMAC,
		protocolType: protocolType,
	}
	llc.RegisterUpperLayer(na, protocolType)
	return na
}

func (na *NetAdapter) FullName() string {
	return na.fullName
}

// RegisterUpperLayer sets the entity received packets and transmit
// outcomes are delivered to.
func (na *NetAdapter) RegisterUpperLayer(up UpperLayer) {
	na.upper = up
}

// XOFF reflects the flow-control state of the device below.
func (na *NetAdapter) XOFF() bool {
	return na.llc.niu.XOFF()
}

// Send passes a payload to the LLC, truncated to the maximum frame
// payload.
func (na *NetAdapter) Send(payload []byte) int {
	if len(payload) > ethMaxUntaggedFrameSize-18 {
		payload = payload[:ethMaxUntaggedFrameSize-18]
	}
	na.llc.Send(payload, na.destMAC, na.srcMAC, na.protocolType)
	return 0
}

// Receive hands a received payload to the upper layer.
func (na *NetAdapter) Receive(payload []byte) {
	if na.upper != nil {
		na.upper.Receive(payload)
	}
}

// SendStatus hands a transmit outcome to the upper layer.
func (na *NetAdapter) SendStatus(status int, payload []byte) {
	if na.upper != nil {
		na.upper.SendStatus(status, payload)
	}
}
