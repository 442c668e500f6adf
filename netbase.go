package nessi

// netbase.go holds the object model protocol stacks are assembled
// from: hosts, network interface units, and the interfaces the
// layered entities talk to each other through.

import (
	"fmt"
)

// unique identifier handed to every host, device and medium,
// used as the object key in trace records
var nxtObjID int = 0

func nxtID() int {
	nxtObjID += 1
	return nxtObjID
}

// ProtocolEntity is anything that can be installed into a protocol
// stack and named in logs and traces.
type ProtocolEntity interface {
	FullName() string
}

// HostProtocol is a protocol entity that installs directly on a
// host, above any device (applications, traffic generators).
type HostProtocol interface {
	ProtocolEntity
	InstallOnHost(h *Host, name string)
}

// NIUProtocol is a protocol entity that installs into a device
// slot.  The slot names are "phy", "mac" and "dl".
type NIUProtocol interface {
	ProtocolEntity
	InstallOnNIU(niu *NIU, name string)
}

// MediumPhy is the surface a medium drives on attached devices.
type MediumPhy interface {
	// Receive delivers a completed transmission
	Receive(bits []byte)
	// NewChannelActivity announces the leading edge of a signal
	NewChannelActivity()
}

// phySender is the transmit surface data links drive.
type phySender interface {
	Send(bits []byte)
	DataRate() float64
}

// carrierPhy extends the transmit surface with the carrier
// operations contention MACs need.
type carrierPhy interface {
	phySender
	CarrierSense() bool
	Transmitting(active bool)
	BitTime() float64
}

// frameReceiver is the surface a point-to-point phy delivers frames
// and transmit outcomes to.
type frameReceiver interface {
	Receive(bits []byte)
	SendStatus(status int, bits []byte)
}

// channelDL is the surface a radio phy delivers to; the phy also
// announces channel idleness for deferred transmissions.
type channelDL interface {
	frameReceiver
	ChannelIdle()
}

// macReceiver is the surface an Ethernet phy upcalls into.
type macReceiver interface {
	frameReceiver
	CollisionDetect()
	ChannelIdle()
}

// macUpper is the surface the Ethernet MAC delivers received frames
// and transmit outcomes to.
type macUpper interface {
	Receive(destAddr string, srcAddr string, typeOrLength int, payload []byte)
	SendStatus(status int, payload []byte)
}

// UpperLayer receives payloads and transmit outcomes from the data
// link below it.
type UpperLayer interface {
	Receive(payload []byte)
	SendStatus(status int, payload []byte)
}

// DataLink is the transmit service surface traffic generators bind
// to.  XOFF reflects the flow-control state of the device below.
type DataLink interface {
	Send(payload []byte) int
	XOFF() bool
}

// Position locates a device on its medium.  Buses and links use X
// only; radio channels use both coordinates.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Medium carries transmissions between the devices attached to it.
type Medium interface {
	Name() string
	AttachNIU(niu *NIU, pos Position) error
	// StartTransmission announces the leading signal edge of a
	// transmission by tx to every other attached device
	StartTransmission(tx *NIU)
	// CompleteTransmission delivers the transmitted data to every
	// other attached device after the propagation delay
	CompleteTransmission(tx *NIU, data []byte)
}

// Host models a network node protocol entities and devices are
// installed on.
type Host struct {
	sim       *Simulator
	id        int
	name      string
	devices   map[string]*NIU
	protocols map[string]ProtocolEntity
}

// CreateHost is a constructor
func CreateHost(sim *Simulator, name string) *Host {
	h := new(Host)
	h.sim = sim
	h.id = nxtID()
	h.name = name
	h.devices = make(map[string]*NIU)
	h.protocols = make(map[string]ProtocolEntity)
	sim.TraceMgr.AddName(h.id, name, "host")
	return h
}

func (h *Host) Sim() *Simulator {
	return h.sim
}

func (h *Host) Name() string {
	return h.name
}

func (h *Host) FullName() string {
	return h.name
}

// AddDevice installs a network interface unit under a device name.
func (h *Host) AddDevice(niu *NIU, devName string) {
	if _, present := h.devices[devName]; present {
		panic(fmt.Sprintf("host %s already has a device named %s", h.name, devName))
	}
	h.devices[devName] = niu
	niu.host = h
	niu.sim = h.sim
	niu.devName = devName
	niu.fullName = h.name + "." + devName
	h.sim.TraceMgr.AddName(niu.id, niu.fullName, "niu")
}

// Device returns the device installed under devName, nil if none.
func (h *Host) Device(devName string) *NIU {
	return h.devices[devName]
}

// AddProtocol installs a host-level protocol entity under a name.
func (h *Host) AddProtocol(pe HostProtocol, name string) {
	if _, present := h.protocols[name]; present {
		panic(fmt.Sprintf("host %s already has a protocol named %s", h.name, name))
	}
	h.protocols[name] = pe
	pe.InstallOnHost(h, name)
}

// Protocol returns the host protocol installed under name, nil if none.
func (h *Host) Protocol(name string) ProtocolEntity {
	return h.protocols[name]
}

// NIU is a network interface unit: the attachment point between a
// host's protocol stack and a medium.  Its slots hold the phy, mac
// and dl entities of the stack.
type NIU struct {
	sim       *Simulator
	id        int
	host      *Host
	devName   string
	fullName  string
	medium    Medium
	xoff      bool
	protocols map[string]ProtocolEntity
}

// CreateNIC is a constructor.  The device is inert until added to a
// host and attached to a medium.
func CreateNIC() *NIU {
	niu := new(NIU)
	niu.id = nxtID()
	niu.protocols = make(map[string]ProtocolEntity)
	return niu
}

func (niu *NIU) Sim() *Simulator {
	return niu.sim
}

func (niu *NIU) Host() *Host {
	return niu.host
}

func (niu *NIU) FullName() string {
	return niu.fullName
}

func (niu *NIU) ID() int {
	return niu.id
}

func (niu *NIU) Medium() Medium {
	return niu.medium
}

// XOFF reports the flow-control state of the device: true while the
// data link cannot accept another frame.
func (niu *NIU) XOFF() bool {
	return niu.xoff
}

func (niu *NIU) SetXOFF(xoff bool) {
	niu.xoff = xoff
}

var niuSlots = map[string]bool{"phy": true, "mac": true, "dl": true}

// AddProtocol installs a protocol entity into a device slot.  The
// device must already belong to a host.
func (niu *NIU) AddProtocol(pe NIUProtocol, slot string) {
	if niu.host == nil {
		panic("device must be added to a host before protocols are installed")
	}
	if !niuSlots[slot] {
		panic(fmt.Sprintf("%s: unknown protocol slot %q", niu.fullName, slot))
	}
	if _, present := niu.protocols[slot]; present {
		panic(fmt.Sprintf("%s: slot %q already occupied", niu.fullName, slot))
	}
	niu.protocols[slot] = pe
	pe.InstallOnNIU(niu, slot)
}

// Protocol returns the entity in a slot, nil if the slot is empty.
func (niu *NIU) Protocol(slot string) ProtocolEntity {
	return niu.protocols[slot]
}

// AttachToMedium connects the device to a medium at a position.
func (niu *NIU) AttachToMedium(m Medium, pos Position) error {
	if err := m.AttachNIU(niu, pos); err != nil {
		return err
	}
	niu.medium = m
	return nil
}

// slot accessors below panic when the slot is empty or holds an
// entity of the wrong shape; both are stack assembly errors

func (niu *NIU) slotEntity(slot string) ProtocolEntity {
	pe, present := niu.protocols[slot]
	if !present {
		panic(fmt.Sprintf("%s: no entity in slot %q", niu.fullName, slot))
	}
	return pe
}

func (niu *NIU) mediumPhy() MediumPhy {
	phy, ok := niu.slotEntity("phy").(MediumPhy)
	if !ok {
		panic(fmt.Sprintf("%s: phy entity cannot face a medium", niu.fullName))
	}
	return phy
}

func (niu *NIU) phySender() phySender {
	phy, ok := niu.slotEntity("phy").(phySender)
	if !ok {
		panic(fmt.Sprintf("%s: phy entity cannot transmit frames", niu.fullName))
	}
	return phy
}

func (niu *NIU) carrierPhy() carrierPhy {
	phy, ok := niu.slotEntity("phy").(carrierPhy)
	if !ok {
		panic(fmt.Sprintf("%s: phy entity has no carrier operations", niu.fullName))
	}
	return phy
}

func (niu *NIU) frameDL() frameReceiver {
	dl, ok := niu.slotEntity("dl").(frameReceiver)
	if !ok {
		panic(fmt.Sprintf("%s: dl entity cannot receive frames", niu.fullName))
	}
	return dl
}

func (niu *NIU) channelDL() channelDL {
	dl, ok := niu.slotEntity("dl").(channelDL)
	if !ok {
		panic(fmt.Sprintf("%s: dl entity has no channel operations", niu.fullName))
	}
	return dl
}

func (niu *NIU) macReceiver() macReceiver {
	mac, ok := niu.slotEntity("mac").(macReceiver)
	if !ok {
		panic(fmt.Sprintf("%s: mac entity cannot face a phy", niu.fullName))
	}
	return mac
}

func (niu *NIU) macUpper() macUpper {
	dl, ok := niu.slotEntity("dl").(macUpper)
	if !ok {
		panic(fmt.Sprintf("%s: dl entity cannot sit above a mac", niu.fullName))
	}
	return dl
}
