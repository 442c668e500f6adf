package nessi

// dlc.go holds the simplest stack entities: a full duplex fixed
// rate phy and an unreliable point to point data link.

import (
	"fmt"
)

// transmit outcome codes passed to SendStatus
const (
	StatusOK                       = 0
	StatusExcessiveCollisionError  = 1
	StatusUnknownTransmissionError = 2
)

// FullDuplexPhy transmits at a fixed rate with no carrier handling.
// It requires a complete dl entity above it, not a MAC.
type FullDuplexPhy struct {
	sim      *Simulator
	niu      *NIU
	fullName string
	dataRate float64
}

// CreateFullDuplexPhy is a constructor.  The default data rate is
// 1 Mbit/s.
func CreateFullDuplexPhy() *FullDuplexPhy {
	return &FullDuplexPhy{dataRate: 1e6}
}

func (phy *FullDuplexPhy) InstallOnNIU(niu *NIU, slot string) {
	if slot != "phy" {
		panic(fmt.Sprintf("phy entity must be installed in slot \"phy\", not %q", slot))
	}
	phy.niu = niu
	phy.sim = niu.Sim()
	phy.fullName = niu.FullName() + ".phy"
}

func (phy *FullDuplexPhy) FullName() string {
	return phy.fullName
}

// SetDataRate sets the transmission rate in bit/s.
func (phy *FullDuplexPhy) SetDataRate(rate float64) {
	if rate <= 0.0 {
		panic(fmt.Sprintf("%s: data rate %g must be positive", phy.fullName, rate))
	}
	phy.dataRate = rate
}

func (phy *FullDuplexPhy) DataRate() float64 {
	return phy.dataRate
}

// NewChannelActivity is a no-op: the link is full duplex.
func (phy *FullDuplexPhy) NewChannelActivity() {}

// Receive delivers data arriving from the medium to the dl entity.
func (phy *FullDuplexPhy) Receive(bits []byte) {
	phy.niu.frameDL().Receive(bits)
}

// Send puts the frame on the medium and schedules the completion of
// the transmission after the serialization delay.
func (phy *FullDuplexPhy) Send(bits []byte) {
	phy.niu.Medium().StartTransmission(phy.niu)
	delay := float64(len(bits)*8) / phy.dataRate
	phy.sim.Schedule(phy, bits, fdpCompleteTransmission, delay)
}

// fdpCompleteTransmission finishes a transmission: the medium
// delivers the frame and the dl entity learns the outcome.
func fdpCompleteTransmission(sim *Simulator, context any, data any) any {
	phy := context.(*FullDuplexPhy)
	bits := data.([]byte)
	phy.niu.Medium().CompleteTransmission(phy.niu, bits)
	phy.niu.frameDL().SendStatus(StatusOK, bits)
	return nil
}

// PointToPointDL is a simple unreliable data link.  Received frames
// are forwarded to every registered upper layer without any
// encapsulation; one frame can be in transmission at a time.
type PointToPointDL struct {
	sim         *Simulator
	niu         *NIU
	fullName    string
	upperLayers []UpperLayer
	sendBuffer  []byte

	// counts of data octets received, sent, and failed
	OctetsReceivedOK       int64
	OctetsTransmittedOK    int64
	OctetsTransmittedError int64
}

// CreatePointToPointDL is a constructor
func CreatePointToPointDL() *PointToPointDL {
	return &PointToPointDL{}
}

func (dl *PointToPointDL) InstallOnNIU(niu *NIU, slot string) {
	if slot != "dl" {
		panic(fmt.Sprintf("dl entity must be installed in slot \"dl\", not %q", slot))
	}
	dl.niu = niu
	dl.sim = niu.Sim()
	dl.fullName = niu.FullName() + ".dl"

	// start accepting frames
	niu.SetXOFF(false)
}

func (dl *PointToPointDL) FullName() string {
	return dl.fullName
}

// RegisterUpperLayer adds an entity received payloads are delivered to.
func (dl *PointToPointDL) RegisterUpperLayer(up UpperLayer) {
	dl.upperLayers = append(dl.upperLayers, up)
}

// XOFF reports whether the link refuses new frames.
func (dl *PointToPointDL) XOFF() bool {
	return dl.niu.XOFF()
}

// Send passes the payload to the phy without encapsulation.  Only
// one frame can be in flight; sending while flow control is active
// is a stack usage error.
func (dl *PointToPointDL) Send(payload []byte) int {
	if dl.niu.XOFF() || dl.sendBuffer != nil {
		panic(fmt.Sprintf("%s: send while a transmission is in progress", dl.fullName))
	}
	dl.niu.SetXOFF(true)
	dl.sendBuffer = payload
	dl.niu.phySender().Send(payload)
	return 0
}

// SendStatus learns the outcome of a transmission from the phy,
// updates the statistics and reopens flow control.
func (dl *PointToPointDL) SendStatus(status int, bits []byte) {
	if status == StatusOK {
		dl.OctetsTransmittedOK += int64(len(bits))
	} else {
		dl.OctetsTransmittedError += int64(len(bits))
	}
	dl.sendBuffer = nil
	dl.niu.SetXOFF(false)
}

// Receive delivers received data to every registered upper layer.
func (dl *PointToPointDL) Receive(bits []byte) {
	dl.OctetsReceivedOK += int64(len(bits))
	for _, up := range dl.upperLayers {
		up.Receive(bits)
	}
}
