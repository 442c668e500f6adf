package nessi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorderPhy captures frames a dl entity transmits.  With
// loopStatus set it confirms each transmission after the
// serialization delay, like a real phy would.
type recorderPhy struct {
	sim        *Simulator
	niu        *NIU
	fullName   string
	sends      [][]byte
	loopStatus bool
}

func (phy *recorderPhy) InstallOnNIU(niu *NIU, slot string) {
	phy.niu = niu
	phy.sim = niu.Sim()
	phy.fullName = niu.FullName() + ".phy"
}

func (phy *recorderPhy) FullName() string { return phy.fullName }

func (phy *recorderPhy) DataRate() float64 { return 1e6 }

func (phy *recorderPhy) Send(bits []byte) {
	phy.sends = append(phy.sends, bits)
	if phy.loopStatus {
		delay := float64(len(bits)*8) / phy.DataRate()
		phy.sim.Schedule(phy.niu, bits, func(sim *Simulator, context any, data any) any {
			context.(*NIU).frameDL().SendStatus(StatusOK, data.([]byte))
			return nil
		}, delay)
	}
}

// arqStation assembles a device with a recorder phy and the given
// dl entity, without any medium.
func arqStation(sim *Simulator, name string, dl NIUProtocol, loopStatus bool) (*NIU, *recorderPhy) {
	host := CreateHost(sim, name)
	niu := CreateNIC()
	host.AddDevice(niu, "dl0")
	phy := &recorderPhy{loopStatus: loopStatus}
	niu.AddProtocol(phy, "phy")
	niu.AddProtocol(dl, "dl")
	return niu, phy
}

func TestStopAndGoDelivery(t *testing.T) {
	sim := CreateSimulator()
	link := CreatePtPLink(sim, "wire")

	dlA := CreateStopAndGoDL()
	dlB := CreateStopAndGoDL()
	ptpStation(t, sim, "alice", link, 0, dlA)
	ptpStation(t, sim, "bob", link, 1000, dlB)

	upperA := &recordingUpper{sim: sim}
	upperB := &recordingUpper{sim: sim}
	dlA.RegisterUpperLayer(upperA)
	dlB.RegisterUpperLayer(upperB)

	payload := []byte("hello arq")
	kickoff := func(sim *Simulator, context any, data any) any {
		dlA.Send(payload)
		assert.True(t, dlA.XOFF())
		return nil
	}
	sim.ScheduleAbs(nil, nil, kickoff, 0.0)
	sim.RunToCompletion()

	require.Len(t, upperB.payloads, 1)
	assert.Equal(t, payload, upperB.payloads[0])
	assert.Equal(t, []int{StatusOK}, upperA.statuses, "acknowledged upward")
	assert.False(t, dlA.XOFF(), "flow control reopened by the ack")
	assert.Equal(t, int64(1), dlA.PacketsSent)
	assert.Equal(t, int64(0), dlA.PacketRetransmissions)
	assert.Equal(t, int64(1), dlB.PacketsReceivedOK)
}

func TestStopAndGoRetransmitsOnMissingAck(t *testing.T) {
	sim := CreateSimulator()
	dl := CreateStopAndGoDL()
	_, phy := arqStation(sim, "lonely", dl, false)

	kickoff := func(sim *Simulator, context any, data any) any {
		dl.Send([]byte("void"))
		return nil
	}
	sim.ScheduleAbs(nil, nil, kickoff, 0.0)

	// nothing ever answers; timeouts at 0.1, 0.2 and 0.3 each
	// retransmit, the next timer falls beyond the horizon
	sim.Run(0.35)

	assert.Equal(t, int64(3), dl.PacketRetransmissions)
	assert.Len(t, phy.sends, 4)
	assert.True(t, dl.XOFF(), "still unacknowledged")
}

func TestStopAndGoCrcErrorDiscards(t *testing.T) {
	sim := CreateSimulator()
	dl := CreateStopAndGoDL()
	arqStation(sim, "rx", dl, false)
	upper := &recordingUpper{}
	dl.RegisterUpperLayer(upper)

	frame := dl.format.New()
	frame.SetBytes("data", []byte("payload"))
	frame.SetInt("FCS", frameFCS(frame.Serialize()))
	wire := frame.Serialize()
	wire[2] ^= 0x01

	dl.Receive(wire)
	assert.Equal(t, int64(1), dl.CrcErrors)
	assert.Empty(t, upper.payloads)
	assert.Equal(t, int64(0), dl.PacketsReceivedOK)
}

func TestStopAndGoWrongSequenceNumber(t *testing.T) {
	sim := CreateSimulator()
	dl := CreateStopAndGoDL()
	arqStation(sim, "rx", dl, false)
	upper := &recordingUpper{}
	dl.RegisterUpperLayer(upper)

	mkFrame := func(sn uint64, payload []byte) []byte {
		frame := dl.format.New()
		frame.SetInt("SN", sn)
		frame.SetBytes("data", payload)
		frame.SetInt("FCS", frameFCS(frame.Serialize()))
		return frame.Serialize()
	}

	dl.Receive(mkFrame(0, []byte("a")))
	// a duplicate of the same frame is dropped but re-acknowledged
	dl.Receive(mkFrame(0, []byte("a")))
	dl.Receive(mkFrame(1, []byte("b")))

	assert.Equal(t, [][]byte{[]byte("a"), []byte("b")}, upper.payloads)
	assert.Equal(t, int64(1), dl.SequenceErrors)
	assert.Equal(t, int64(2), dl.PacketsReceivedOK)
}

func TestGoBackNDelivery(t *testing.T) {
	sim := CreateSimulator()
	link := CreatePtPLink(sim, "wire")

	dlA := CreateGoBackNDL(3)
	dlB := CreateGoBackNDL(3)
	ptpStation(t, sim, "alice", link, 0, dlA)
	ptpStation(t, sim, "bob", link, 1000, dlB)
	dlA.SetWindowSize(4)
	dlB.SetWindowSize(4)

	upperA := &recordingUpper{sim: sim}
	upperB := &recordingUpper{sim: sim}
	dlA.RegisterUpperLayer(upperA)
	dlB.RegisterUpperLayer(upperB)

	payloads := [][]byte{[]byte("one"), []byte("two"), []byte("three")}
	kickoff := func(sim *Simulator, context any, data any) any {
		for _, p := range payloads {
			dlA.Send(p)
		}
		assert.False(t, dlA.XOFF(), "window of four holds three frames")
		return nil
	}
	sim.ScheduleAbs(nil, nil, kickoff, 0.0)
	sim.RunToCompletion()

	assert.Equal(t, payloads, upperB.payloads)
	assert.Equal(t, []int{StatusOK, StatusOK, StatusOK}, upperA.statuses)
	assert.Equal(t, int64(3), dlA.PacketsSent)
	assert.Equal(t, int64(0), dlA.PacketRetransmissions)
	assert.Equal(t, int64(3), dlB.PacketsReceivedOK)
}

func TestGoBackNWindowClosesFlowControl(t *testing.T) {
	sim := CreateSimulator()
	dl := CreateGoBackNDL(3)
	arqStation(sim, "tx", dl, false)
	dl.SetWindowSize(2)

	kickoff := func(sim *Simulator, context any, data any) any {
		dl.Send([]byte("a"))
		assert.False(t, dl.XOFF())
		dl.Send([]byte("b"))
		assert.True(t, dl.XOFF(), "window full")
		assert.Panics(t, func() { dl.Send([]byte("c")) })
		return nil
	}
	sim.ScheduleAbs(nil, nil, kickoff, 0.0)
	sim.Run(0.05)
}

func TestGoBackNTimeoutRetransmitsWindow(t *testing.T) {
	sim := CreateSimulator()
	dl := CreateGoBackNDL(3)
	_, phy := arqStation(sim, "tx", dl, true)
	dl.SetWindowSize(4)

	kickoff := func(sim *Simulator, context any, data any) any {
		dl.Send([]byte("aaaaa"))
		dl.Send([]byte("bbbbb"))
		return nil
	}
	sim.ScheduleAbs(nil, nil, kickoff, 0.0)
	sim.Run(0.25)

	// both frames go out once, then the whole window again per
	// timeout round
	assert.GreaterOrEqual(t, dl.PacketRetransmissions, int64(2))
	assert.GreaterOrEqual(t, len(phy.sends), 4)
	assert.Equal(t, dl.PacketsSent, int64(len(phy.sends)))
}

func TestSelectiveRepeatDelivery(t *testing.T) {
	sim := CreateSimulator()
	link := CreatePtPLink(sim, "wire")

	dlA := CreateSelectiveRepeatDL(3)
	dlB := CreateSelectiveRepeatDL(3)
	ptpStation(t, sim, "alice", link, 0, dlA)
	ptpStation(t, sim, "bob", link, 1000, dlB)
	dlA.SetWindowSize(3)
	dlB.SetWindowSize(3)

	upperA := &recordingUpper{sim: sim}
	upperB := &recordingUpper{sim: sim}
	dlA.RegisterUpperLayer(upperA)
	dlB.RegisterUpperLayer(upperB)

	payloads := [][]byte{[]byte("one"), []byte("two"), []byte("three")}
	kickoff := func(sim *Simulator, context any, data any) any {
		for _, p := range payloads {
			dlA.Send(p)
		}
		return nil
	}
	sim.ScheduleAbs(nil, nil, kickoff, 0.0)
	sim.RunToCompletion()

	assert.Equal(t, payloads, upperB.payloads)
	assert.Len(t, upperA.statuses, 3)
	assert.Equal(t, int64(0), dlA.PacketRetransmissions)
	assert.Equal(t, int64(3), dlB.PacketsReceivedOK)
}

func buildSRFrame(dl *SelectiveRepeatDL, sn uint64, payload []byte) []byte {
	frame := dl.format.New()
	frame.SetInt("SN", sn)
	frame.SetBytes("data", payload)
	frame.SetInt("FCS", frameFCS(frame.Serialize()))
	return frame.Serialize()
}

func TestSelectiveRepeatBuffersOutOfOrder(t *testing.T) {
	sim := CreateSimulator()
	dl := CreateSelectiveRepeatDL(3)
	arqStation(sim, "rx", dl, false)
	dl.SetWindowSize(4)
	upper := &recordingUpper{}
	dl.RegisterUpperLayer(upper)

	// frame 1 arrives before frame 0 and is buffered
	dl.Receive(buildSRFrame(dl, 1, []byte("second")))
	assert.Empty(t, upper.payloads)
	assert.Equal(t, int64(1), dl.PacketsReceivedOK)

	dl.SendStatus(StatusOK, nil)
	dl.Receive(buildSRFrame(dl, 0, []byte("first")))
	assert.Equal(t, [][]byte{[]byte("first"), []byte("second")}, upper.payloads)
	assert.Equal(t, uint64(2), dl.vr)
}

func TestSelectiveRepeatIgnoresReplayedFrame(t *testing.T) {
	sim := CreateSimulator()
	dl := CreateSelectiveRepeatDL(2)
	arqStation(sim, "rx", dl, false)
	dl.SetWindowSize(2)
	upper := &recordingUpper{}
	dl.RegisterUpperLayer(upper)

	// the sender repeats frame 0 after its ack got lost; the stale
	// copy must be re-acknowledged, not buffered as new data that a
	// later sequence number wrap would deliver a second time
	dl.Receive(buildSRFrame(dl, 0, []byte("p0")))
	dl.Receive(buildSRFrame(dl, 1, []byte("p1")))
	dl.Receive(buildSRFrame(dl, 0, []byte("p0")))
	dl.Receive(buildSRFrame(dl, 2, []byte("p2")))
	dl.Receive(buildSRFrame(dl, 3, []byte("p3")))

	assert.Equal(t, [][]byte{
		[]byte("p0"), []byte("p1"), []byte("p2"), []byte("p3"),
	}, upper.payloads)
	assert.Equal(t, uint64(0), dl.vr)
	assert.Equal(t, int64(4), dl.PacketsReceivedOK)
	assert.Equal(t, int64(0), dl.SequenceErrors)
}

func TestSelectiveRepeatWindowBound(t *testing.T) {
	dl := CreateSelectiveRepeatDL(2)
	assert.Panics(t, func() { dl.SetWindowSize(3) })
	assert.NotPanics(t, func() { dl.SetWindowSize(2) })
}

func TestSelectiveRepeatSREJOnCrcError(t *testing.T) {
	sim := CreateSimulator()
	dl := CreateSelectiveRepeatDL(3)
	_, phy := arqStation(sim, "rx", dl, false)
	dl.SetWindowSize(4)

	wire := buildSRFrame(dl, 0, []byte("damaged"))
	wire[3] ^= 0x80
	dl.Receive(wire)

	assert.Equal(t, int64(1), dl.CrcErrors)
	require.Len(t, phy.sends, 1, "a repeat request went out")

	srej := dl.format.New()
	srej.Fill(phy.sends[0])
	assert.Equal(t, uint64(1), srej.Int("SREJ"))
	assert.Equal(t, uint64(0), srej.Int("RN"))
}

func TestSelectiveRepeatRetransmitsOnSREJ(t *testing.T) {
	sim := CreateSimulator()
	dl := CreateSelectiveRepeatDL(3)
	_, phy := arqStation(sim, "tx", dl, true)
	dl.SetWindowSize(4)

	kickoff := func(sim *Simulator, context any, data any) any {
		dl.Send([]byte("payload"))
		return nil
	}
	sim.ScheduleAbs(nil, nil, kickoff, 0.0)

	inject := func(sim *Simulator, context any, data any) any {
		srej := dl.format.New()
		srej.SetInt("SN", 0)
		srej.SetInt("RN", 0)
		srej.SetInt("SREJ", 1)
		srej.SetInt("FCS", frameFCS(srej.Serialize()))
		dl.Receive(srej.Serialize())
		return nil
	}
	sim.ScheduleAbs(nil, nil, inject, 0.01)
	sim.Run(0.05)

	assert.Equal(t, int64(1), dl.PacketRetransmissions)
	assert.Len(t, phy.sends, 2)
}
