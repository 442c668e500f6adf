package nessi

// desc-scen.go holds the serializable description of a simulation
// scenario: the media, the hosts with their devices and protocol
// stacks, and the applications that drive traffic.  A description
// is validated and instantiated by BuildScenario.

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// medium kinds accepted in a MediumDesc
const (
	MediumPtP   = "ptp"
	MediumBus   = "bus"
	MediumRadio = "radio"
)

// A MediumDesc describes one transmission medium.  An ErrorModel
// selects the corrupting variant of the medium.
type MediumDesc struct {
	Name        string    `json:"name" yaml:"name"`
	Media       string    `json:"media" yaml:"media"`
	ErrorModel  string    `json:"errormodel,omitempty" yaml:"errormodel,omitempty"`
	ErrorParams []float64 `json:"errorparams,omitempty" yaml:"errorparams,omitempty"`
}

// phy kinds accepted in a PhyDesc
const (
	PhyFullDuplex = "fullduplex"
	PhyEthernet   = "ethernet"
	PhyRadio      = "radio"
)

// A PhyDesc describes the phy entity of a device.  A zero DataRate
// keeps the entity's default rate.
type PhyDesc struct {
	Kind     string  `json:"kind" yaml:"kind"`
	DataRate float64 `json:"datarate,omitempty" yaml:"datarate,omitempty"`
	// Duplex applies to Ethernet phys: "half" or "full"
	Duplex string `json:"duplex,omitempty" yaml:"duplex,omitempty"`
}

// mac kinds accepted in a MACDesc
const (
	MACNone     = ""
	MACEthernet = "ethernet"
)

// A MACDesc describes the optional MAC entity of a device.
type MACDesc struct {
	Kind string `json:"kind,omitempty" yaml:"kind,omitempty"`
	// Groups lists multicast group addresses the MAC accepts
	Groups []string `json:"groups,omitempty" yaml:"groups,omitempty"`
}

// dl kinds accepted in a DLDesc
const (
	DLPointToPoint    = "ptp"
	DLStopAndGo       = "stopandgo"
	DLGoBackN         = "gobackn"
	DLSelectiveRepeat = "selectiverepeat"
	DLAloha           = "aloha"
	DLCSMA            = "csma"
	DLCSMACA          = "csmaca"
	DLLLC             = "llc"
)

// A DLDesc describes the data link entity of a device.  Fields
// apply per kind: sequence numbering and timeouts to the ARQ links,
// addresses and backoff to the radio MACs.
type DLDesc struct {
	Kind       string  `json:"kind" yaml:"kind"`
	NumSNBits  int     `json:"numsnbits,omitempty" yaml:"numsnbits,omitempty"`
	WindowSize int     `json:"windowsize,omitempty" yaml:"windowsize,omitempty"`
	Timeout    float64 `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	SrcAddr    int     `json:"srcaddr,omitempty" yaml:"srcaddr,omitempty"`
	DstAddr    int     `json:"dstaddr,omitempty" yaml:"dstaddr,omitempty"`

	BackoffModel string  `json:"backoffmodel,omitempty" yaml:"backoffmodel,omitempty"`
	SlotTime     float64 `json:"slottime,omitempty" yaml:"slottime,omitempty"`
	MaxSlots     int     `json:"maxslots,omitempty" yaml:"maxslots,omitempty"`
}

// A NIUDesc describes one device of a host: the medium it attaches
// to, where, and the stack entities in its slots.
type NIUDesc struct {
	Name     string   `json:"name" yaml:"name"`
	Medium   string   `json:"medium" yaml:"medium"`
	Position Position `json:"position" yaml:"position"`
	Phy      PhyDesc  `json:"phy" yaml:"phy"`
	MAC      MACDesc  `json:"mac,omitempty" yaml:"mac,omitempty"`
	DL       DLDesc   `json:"dl" yaml:"dl"`
}

// A HostDesc describes one host and its devices.
type HostDesc struct {
	Name string    `json:"name" yaml:"name"`
	NIUs []NIUDesc `json:"nius" yaml:"nius"`
}

// application kinds accepted in an AppDesc
const (
	AppCBR     = "cbr"
	AppPoisson = "poisson"
	AppWeb     = "web"
	AppFlooder = "flooder"
	AppSink    = "sink"
)

// An AppDesc describes a traffic generator or sink, bound to a
// device of its host.
type AppDesc struct {
	Name string `json:"name" yaml:"name"`
	Kind string `json:"kind" yaml:"kind"`
	Host string `json:"host" yaml:"host"`
	NIU  string `json:"niu" yaml:"niu"`

	PDUSize       int     `json:"pdusize,omitempty" yaml:"pdusize,omitempty"`
	Interarrival  float64 `json:"interarrival,omitempty" yaml:"interarrival,omitempty"`
	StartTime     float64 `json:"starttime,omitempty" yaml:"starttime,omitempty"`
	CheckSequence bool    `json:"checksequence,omitempty" yaml:"checksequence,omitempty"`
}

// A ScenarioDesc gathers the complete description of a simulation
// scenario.
type ScenarioDesc struct {
	Name   string       `json:"name" yaml:"name"`
	Media  []MediumDesc `json:"media" yaml:"media"`
	Hosts  []HostDesc   `json:"hosts" yaml:"hosts"`
	Apps   []AppDesc    `json:"apps,omitempty" yaml:"apps,omitempty"`
	RunFor float64      `json:"runfor,omitempty" yaml:"runfor,omitempty"`
}

// CreateScenarioDesc is an initialization constructor.
// Its output struct has methods for integrating data.
func CreateScenarioDesc(name string) *ScenarioDesc {
	sd := new(ScenarioDesc)
	sd.Name = name
	sd.Media = make([]MediumDesc, 0)
	sd.Hosts = make([]HostDesc, 0)
	sd.Apps = make([]AppDesc, 0)
	return sd
}

// AddMedium includes a medium description, checking for duplicated names.
func (sd *ScenarioDesc) AddMedium(md MediumDesc) error {
	for _, prev := range sd.Media {
		if prev.Name == md.Name {
			return fmt.Errorf("scenario %s already has medium %s", sd.Name, md.Name)
		}
	}
	sd.Media = append(sd.Media, md)
	return nil
}

// AddHost includes a host description, checking for duplicated names.
func (sd *ScenarioDesc) AddHost(hd HostDesc) error {
	for _, prev := range sd.Hosts {
		if prev.Name == hd.Name {
			return fmt.Errorf("scenario %s already has host %s", sd.Name, hd.Name)
		}
	}
	sd.Hosts = append(sd.Hosts, hd)
	return nil
}

// AddApp includes an application description, checking for duplicated names.
func (sd *ScenarioDesc) AddApp(ad AppDesc) error {
	for _, prev := range sd.Apps {
		if prev.Name == ad.Name {
			return fmt.Errorf("scenario %s already has app %s", sd.Name, ad.Name)
		}
	}
	sd.Apps = append(sd.Apps, ad)
	return nil
}

// consistency checks a description for dangling references before
// instantiation gets to them
func (sd *ScenarioDesc) consistency() error {
	errList := []error{}

	media := make(map[string]bool)
	for _, md := range sd.Media {
		media[md.Name] = true
	}
	hosts := make(map[string]map[string]bool)
	for _, hd := range sd.Hosts {
		hosts[hd.Name] = make(map[string]bool)
		for _, nd := range hd.NIUs {
			if !media[nd.Medium] {
				errList = append(errList,
					fmt.Errorf("device %s.%s references unknown medium %s", hd.Name, nd.Name, nd.Medium))
			}
			hosts[hd.Name][nd.Name] = true
		}
	}
	for _, ad := range sd.Apps {
		nius, present := hosts[ad.Host]
		if !present {
			errList = append(errList,
				fmt.Errorf("app %s references unknown host %s", ad.Name, ad.Host))
			continue
		}
		if !nius[ad.NIU] {
			errList = append(errList,
				fmt.Errorf("app %s references unknown device %s.%s", ad.Name, ad.Host, ad.NIU))
		}
	}
	return ReportErrs(errList)
}

// WriteToFile stores the ScenarioDesc struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (sd *ScenarioDesc) WriteToFile(filename string) error {
	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error = nil

	if pathExt == ".yaml" || pathExt == ".YAML" || pathExt == ".yml" {
		bytes, merr = yaml.Marshal(*sd)
	} else if pathExt == ".json" || pathExt == ".JSON" {
		bytes, merr = json.MarshalIndent(*sd, "", "\t")
	}
	if merr != nil {
		return merr
	}

	f, cerr := os.Create(filename)
	if cerr != nil {
		return cerr
	}
	_, werr := f.WriteString(string(bytes[:]))
	f.Close()
	return werr
}

// ReadScenarioDesc deserializes a byte slice holding a representation of a
// ScenarioDesc struct.  If the input argument of dict (those bytes) is empty,
// the file whose name is given is read to acquire them.  A deserialized
// representation is returned, or an error if one is generated from a file
// read or the deserialization.
func ReadScenarioDesc(filename string, useYAML bool, dict []byte) (*ScenarioDesc, error) {
	var err error

	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
	}

	example := ScenarioDesc{}

	if useYAML {
		err = yaml.Unmarshal(dict, &example)
	} else {
		err = json.Unmarshal(dict, &example)
	}
	if err != nil {
		return nil, err
	}

	return &example, nil
}

// ReportErrs transforms a list of errors and transforms the non-nil ones into a single error
// with comma-separated report of all the constituent errors, and returns it.
func ReportErrs(errs []error) error {
	err_msg := make([]string, 0)
	for _, err := range errs {
		if err != nil {
			err_msg = append(err_msg, err.Error())
		}
	}
	if len(err_msg) == 0 {
		return nil
	}

	return errors.New(strings.Join(err_msg, ","))
}
