package nessi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// radioStation assembles a station with an ideal radio phy and the
// given radio data link on a channel.
func radioStation(t *testing.T, sim *Simulator, name string, ch Medium, x float64, dl *AlohaDL, src, dst int) *recordingUpper {
	t.Helper()
	host := CreateHost(sim, name)
	niu := CreateNIC()
	host.AddDevice(niu, "radio0")
	niu.AddProtocol(CreateIdealRadioPhy(), "phy")
	niu.AddProtocol(dl, "dl")
	require.NoError(t, niu.AttachToMedium(ch, Position{X: x}))
	dl.SetSrcAddress(src)
	dl.SetDstAddress(dst)

	upper := &recordingUpper{sim: sim}
	dl.RegisterUpperLayer(upper)
	return upper
}

func TestAlohaDataAndAck(t *testing.T) {
	sim := CreateSimulator()
	ch := CreateIdealRadioChannel(sim, "air")

	dlA := CreateAlohaDL()
	dlB := CreateAlohaDL()
	dlC := CreateAlohaDL()
	radioStation(t, sim, "a", ch, 0, dlA, 1, 2)
	upperB := radioStation(t, sim, "b", ch, 300, dlB, 2, 1)
	upperC := radioStation(t, sim, "c", ch, 600, dlC, 3, 1)

	payload := []byte("over the air")
	kickoff := func(sim *Simulator, context any, data any) any {
		assert.Equal(t, 0, dlA.Send(payload))
		return nil
	}
	sim.ScheduleAbs(nil, nil, kickoff, 0.0)
	sim.RunToCompletion()

	require.Len(t, upperB.payloads, 1)
	assert.Equal(t, payload, upperB.payloads[0])
	assert.Equal(t, int64(1), dlA.PacketsSent)
	assert.Equal(t, int64(0), dlA.PacketRetransmissions)
	assert.Equal(t, int64(1), dlB.PacketsReceivedOK)
	assert.Nil(t, dlA.outstandingFrame, "acknowledged")

	// station c overhears the frame but it is not addressed to it
	assert.Empty(t, upperC.payloads)
	assert.Equal(t, int64(0), dlC.PacketsReceivedOK)
}

func TestAlohaRetransmitsWithoutAck(t *testing.T) {
	sim := CreateSimulator()
	ch := CreateIdealRadioChannel(sim, "air")

	dl := CreateAlohaDL()
	radioStation(t, sim, "lonely", ch, 0, dl, 1, 2)

	kickoff := func(sim *Simulator, context any, data any) any {
		dl.Send([]byte("anyone there"))
		return nil
	}
	sim.ScheduleAbs(nil, nil, kickoff, 0.0)

	// nobody answers; the default zero slot time makes the backoff
	// instantaneous, so timeouts at 0.1, 0.2 and 0.3 retransmit
	sim.Run(0.35)

	assert.Equal(t, int64(3), dl.PacketRetransmissions)
	assert.Equal(t, int64(1), dl.PacketsSent)
	assert.NotNil(t, dl.outstandingFrame)
}

func TestAlohaRefusesOversizedPacket(t *testing.T) {
	sim := CreateSimulator()
	ch := CreateIdealRadioChannel(sim, "air")
	dl := CreateAlohaDL()
	radioStation(t, sim, "a", ch, 0, dl, 1, 2)

	assert.Equal(t, -1, dl.Send(make([]byte, 10001)))
	assert.Empty(t, dl.transmitQueue)
}

func TestRadioAddressValidation(t *testing.T) {
	dl := CreateAlohaDL()
	assert.Panics(t, func() { dl.SetSrcAddress(255) })
	assert.Panics(t, func() { dl.SetSrcAddress(-1) })
	assert.Panics(t, func() { dl.SetDstAddress(300) })
}

func TestCSMADefersToBusyChannel(t *testing.T) {
	sim := CreateSimulator()
	ch := CreateIdealRadioChannel(sim, "air")

	dlA := &CreateCSMADL().AlohaDL
	dlB := CreateAlohaDL()
	radioStation(t, sim, "a", ch, 0, dlA, 1, 2)
	upperB := radioStation(t, sim, "b", ch, 300, dlB, 2, 1)

	// b occupies the channel for 8 ms starting at t=0
	long := make([]byte, 1000)
	sim.ScheduleAbs(nil, nil, func(sim *Simulator, context any, data any) any {
		dlB.Send(long)
		return nil
	}, 0.0)

	// a wants to transmit in the middle of that and must defer
	short := []byte("deferred")
	sim.ScheduleAbs(nil, nil, func(sim *Simulator, context any, data any) any {
		dlA.Send(short)
		assert.NotEmpty(t, dlA.transmitQueue, "held back by carrier sense")
		return nil
	}, 0.001)
	sim.RunToCompletion()

	require.Len(t, upperB.payloads, 1)
	assert.Equal(t, short, upperB.payloads[0])
	assert.Greater(t, upperB.rxTimes[0], 0.008, "transmission waited for the channel")
	assert.Equal(t, int64(1), dlA.PacketsReceivedOK, "the long frame arrived at a")
	assert.Equal(t, int64(0), dlA.PacketRetransmissions)
	assert.Equal(t, int64(0), dlB.PacketRetransmissions)
}

func TestCSMACABackoffBetweenExchanges(t *testing.T) {
	sim := CreateSimulator()
	ch := CreateIdealRadioChannel(sim, "air")

	dlA := &CreateCSMACADL().AlohaDL
	dlB := CreateAlohaDL()
	upperA := radioStation(t, sim, "a", ch, 0, dlA, 1, 2)
	upperB := radioStation(t, sim, "b", ch, 300, dlB, 2, 1)
	_ = upperA
	require.NoError(t, dlA.SetBackoffModel(BackoffFixed, 0.001, 4))

	first := []byte("first packet")
	second := []byte("second packet")
	kickoff := func(sim *Simulator, context any, data any) any {
		dlA.Send(first)
		dlA.Send(second)
		return nil
	}
	sim.ScheduleAbs(nil, nil, kickoff, 0.0)
	sim.RunToCompletion()

	require.Len(t, upperB.payloads, 2)
	assert.Equal(t, first, upperB.payloads[0])
	assert.Equal(t, second, upperB.payloads[1])
	assert.Equal(t, int64(2), dlA.PacketsSent)
	assert.Equal(t, int64(0), dlA.PacketRetransmissions)
	assert.Equal(t, int64(2), dlB.PacketsReceivedOK)
}

func TestBackoffModelValidation(t *testing.T) {
	sim := CreateSimulator()
	ch := CreateIdealRadioChannel(sim, "air")
	dl := CreateAlohaDL()
	radioStation(t, sim, "a", ch, 0, dl, 1, 2)

	assert.Error(t, dl.SetBackoffModel("gamma", 0.001, 16))
	assert.NoError(t, dl.SetBackoffModel(BackoffExponential, 0.001, 16))
	assert.True(t, dl.exponential)

	// a non-positive slot time falls back to 1024 bit times
	require.NoError(t, dl.SetBackoffModel(BackoffFixed, 0, 16))
	assert.InDelta(t, 1024.0/1e6, dl.slotTime, 1e-12)
}
