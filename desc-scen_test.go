package nessi

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoHostScenario() *ScenarioDesc {
	sd := CreateScenarioDesc("lab1")
	sd.AddMedium(MediumDesc{Name: "wire", Media: MediumPtP})
	sd.AddHost(HostDesc{Name: "alice", NIUs: []NIUDesc{{
		Name:   "dl0",
		Medium: "wire",
		Phy:    PhyDesc{Kind: PhyFullDuplex},
		DL:     DLDesc{Kind: DLPointToPoint},
	}}})
	sd.AddHost(HostDesc{Name: "bob", NIUs: []NIUDesc{{
		Name:     "dl0",
		Medium:   "wire",
		Position: Position{X: 100},
		Phy:      PhyDesc{Kind: PhyFullDuplex},
		DL:       DLDesc{Kind: DLPointToPoint},
	}}})
	sd.AddApp(AppDesc{Name: "cbr", Kind: AppCBR, Host: "alice", NIU: "dl0",
		PDUSize: 100, Interarrival: 0.01})
	sd.AddApp(AppDesc{Name: "sink", Kind: AppSink, Host: "bob", NIU: "dl0",
		CheckSequence: true})
	sd.RunFor = 0.05
	return sd
}

func TestScenarioDescDuplicateNames(t *testing.T) {
	sd := twoHostScenario()
	assert.Error(t, sd.AddMedium(MediumDesc{Name: "wire", Media: MediumBus}))
	assert.Error(t, sd.AddHost(HostDesc{Name: "alice"}))
	assert.Error(t, sd.AddApp(AppDesc{Name: "cbr", Kind: AppCBR, Host: "alice", NIU: "dl0"}))
	assert.NoError(t, sd.AddMedium(MediumDesc{Name: "wire2", Media: MediumBus}))
}

func TestScenarioDescConsistency(t *testing.T) {
	sd := twoHostScenario()
	require.NoError(t, sd.consistency())

	sd.Hosts[0].NIUs[0].Medium = "ether"
	err := sd.consistency()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ether")

	sd = twoHostScenario()
	sd.Apps[0].Host = "carol"
	sd.Apps[1].NIU = "dl9"
	err = sd.consistency()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carol")
	assert.Contains(t, err.Error(), "dl9")
}

func TestScenarioDescFileRoundTrip(t *testing.T) {
	sd := twoHostScenario()
	dir := t.TempDir()

	jsonFile := filepath.Join(dir, "scenario.json")
	require.NoError(t, sd.WriteToFile(jsonFile))
	back, err := ReadScenarioDesc(jsonFile, false, []byte{})
	require.NoError(t, err)
	assert.Equal(t, sd, back)

	yamlFile := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, sd.WriteToFile(yamlFile))
	back, err = ReadScenarioDesc(yamlFile, true, []byte{})
	require.NoError(t, err)
	assert.Equal(t, sd, back)
}

func TestReadScenarioDescFromBytes(t *testing.T) {
	dict := []byte(`{"name":"inline","media":[{"name":"b","media":"bus"}],"hosts":[]}`)
	sd, err := ReadScenarioDesc("", false, dict)
	require.NoError(t, err)
	assert.Equal(t, "inline", sd.Name)
	require.Len(t, sd.Media, 1)
	assert.Equal(t, MediumBus, sd.Media[0].Media)
}
