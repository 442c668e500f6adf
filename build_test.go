package nessi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildScenarioEndToEnd(t *testing.T) {
	sim := CreateSimulator()
	sd := twoHostScenario()

	scn, err := BuildScenario(sim, sd)
	require.NoError(t, err)
	require.Contains(t, scn.Media, "wire")
	require.Contains(t, scn.Hosts, "alice")
	require.Contains(t, scn.Hosts, "bob")

	sim.Run(scn.RunFor)

	sink, ok := scn.Apps["sink"].(*TrafficSink)
	require.True(t, ok)
	// payloads sent at 10 ms spacing; the last one is still in
	// flight when the horizon cuts the run off
	assert.Equal(t, int64(5), sink.PDUsReceived)
	assert.Equal(t, int64(500), sink.OctetsReceived)
	assert.Equal(t, int64(0), sink.SequenceErrors)

	src, ok := scn.Apps["cbr"].(*CBRSource)
	require.True(t, ok)
	assert.Equal(t, int64(6), src.PDUsTransmitted)
}

func TestBuildScenarioRefusesInconsistentDesc(t *testing.T) {
	sim := CreateSimulator()
	sd := twoHostScenario()
	sd.Apps[0].Host = "carol"
	_, err := BuildScenario(sim, sd)
	assert.Error(t, err)
}

func TestBuildScenarioUnknownKinds(t *testing.T) {
	sim := CreateSimulator()

	sd := twoHostScenario()
	sd.Media[0].Media = "tincan"
	_, err := BuildScenario(sim, sd)
	assert.Error(t, err)

	sd = twoHostScenario()
	sd.Hosts[0].NIUs[0].Phy.Kind = "acoustic"
	_, err = BuildScenario(sim, sd)
	assert.Error(t, err)

	sd = twoHostScenario()
	sd.Hosts[0].NIUs[0].DL.Kind = "quantum"
	_, err = BuildScenario(sim, sd)
	assert.Error(t, err)
}

func TestBuildScenarioErrorModelMedium(t *testing.T) {
	sim := CreateSimulator()
	sd := CreateScenarioDesc("noisy")
	sd.AddMedium(MediumDesc{Name: "b", Media: MediumBus,
		ErrorModel: ErrorModelUniform, ErrorParams: []float64{1, 2}})
	_, err := BuildScenario(sim, sd)
	require.NoError(t, err)

	sd.Media[0].ErrorParams = []float64{5, 2}
	_, err = BuildScenario(sim, sd)
	assert.Error(t, err, "minimum above maximum")
}

func TestBuildScenarioSlidingWindowDefaults(t *testing.T) {
	sim := CreateSimulator()
	sd := CreateScenarioDesc("gbn")
	sd.AddMedium(MediumDesc{Name: "wire", Media: MediumPtP})
	sd.AddHost(HostDesc{Name: "a", NIUs: []NIUDesc{{
		Name:   "dl0",
		Medium: "wire",
		Phy:    PhyDesc{Kind: PhyFullDuplex},
		DL:     DLDesc{Kind: DLGoBackN, NumSNBits: 3},
	}}})
	sd.AddHost(HostDesc{Name: "b", NIUs: []NIUDesc{{
		Name:   "dl0",
		Medium: "wire",
		Phy:    PhyDesc{Kind: PhyFullDuplex},
		DL:     DLDesc{Kind: DLSelectiveRepeat, NumSNBits: 3},
	}}})
	scn, err := BuildScenario(sim, sd)
	require.NoError(t, err)

	dl, ok := scn.Hosts["a"].Device("dl0").Protocol("dl").(*GoBackNDL)
	require.True(t, ok)
	// without an explicit window size the full sequence range less
	// one is usable
	assert.Equal(t, uint64(7), dl.winSize)

	sr, ok := scn.Hosts["b"].Device("dl0").Protocol("dl").(*SelectiveRepeatDL)
	require.True(t, ok)
	// selective repeat defaults to half the sequence range
	assert.Equal(t, uint64(4), sr.winSize)
}

func TestBuildScenarioRadioStack(t *testing.T) {
	sim := CreateSimulator()
	sd := CreateScenarioDesc("radio")
	sd.AddMedium(MediumDesc{Name: "air", Media: MediumRadio})
	sd.AddHost(HostDesc{Name: "m1", NIUs: []NIUDesc{{
		Name:   "radio0",
		Medium: "air",
		Phy:    PhyDesc{Kind: PhyRadio, DataRate: 2e6},
		DL: DLDesc{Kind: DLCSMA, SrcAddr: 1, DstAddr: 2,
			BackoffModel: BackoffExponential, SlotTime: 0.001, MaxSlots: 64},
	}}})
	scn, err := BuildScenario(sim, sd)
	require.NoError(t, err)

	niu := scn.Hosts["m1"].Device("radio0")
	phy, ok := niu.Protocol("phy").(*IdealRadioPhy)
	require.True(t, ok)
	assert.Equal(t, 2e6, phy.DataRate())

	dl, ok := niu.Protocol("dl").(*AlohaDL)
	require.True(t, ok)
	assert.Equal(t, 1, dl.srcAddress)
	assert.Equal(t, 2, dl.dstAddress)
	assert.True(t, dl.exponential)
	assert.Equal(t, 0.001, dl.slotTime)
}
