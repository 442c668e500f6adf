package nessi

// build.go instantiates a ScenarioDesc: it creates the media, the
// hosts with their devices and stack entities, binds applications,
// and validates that the described network hangs together.

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// A Scenario holds an instantiated simulation model, keyed the way
// the description named its parts.
type Scenario struct {
	Sim   *Simulator
	Name  string
	Media map[string]Medium
	Hosts map[string]*Host
	Apps  map[string]ProtocolEntity

	// RunFor is the simulated duration the description asked for;
	// zero means run until the event queue drains
	RunFor float64
}

// upperRegistrar is implemented by every data link entity that
// delivers received payloads upward.
type upperRegistrar interface {
	RegisterUpperLayer(up UpperLayer)
}

// BuildScenario validates a scenario description and instantiates
// the simulation model on the given simulator.
func BuildScenario(sim *Simulator, sd *ScenarioDesc) (*Scenario, error) {
	if err := sd.consistency(); err != nil {
		return nil, err
	}

	scn := &Scenario{
		Sim:    sim,
		Name:   sd.Name,
		Media:  make(map[string]Medium),
		Hosts:  make(map[string]*Host),
		Apps:   make(map[string]ProtocolEntity),
		RunFor: sd.RunFor,
	}

	for _, md := range sd.Media {
		medium, err := buildMedium(sim, md)
		if err != nil {
			return nil, err
		}
		scn.Media[md.Name] = medium
	}

	for _, hd := range sd.Hosts {
		host := CreateHost(sim, hd.Name)
		scn.Hosts[hd.Name] = host
		for _, nd := range hd.NIUs {
			if err := buildNIU(host, scn.Media[nd.Medium], nd); err != nil {
				return nil, err
			}
		}
		sim.logger.Debug().Str("host", hd.Name).Int("devices", len(hd.NIUs)).
			Msg("host built")
	}

	for _, ad := range sd.Apps {
		app, err := buildApp(scn.Hosts[ad.Host], ad)
		if err != nil {
			return nil, err
		}
		scn.Apps[ad.Name] = app
	}

	scn.checkConnectivity(sd)
	return scn, nil
}

func buildMedium(sim *Simulator, md MediumDesc) (Medium, error) {
	var medium Medium
	var em *errorModel

	switch md.Media {
	case MediumPtP:
		if md.ErrorModel == "" {
			medium = CreatePtPLink(sim, md.Name)
		} else {
			link := CreateErrorPtPLink(sim, md.Name)
			medium, em = link, &link.errorModel
		}
	case MediumBus:
		if md.ErrorModel == "" {
			medium = CreateBus(sim, md.Name)
		} else {
			bus := CreateErrorBus(sim, md.Name)
			medium, em = bus, &bus.errorModel
		}
	case MediumRadio:
		if md.ErrorModel == "" {
			medium = CreateIdealRadioChannel(sim, md.Name)
		} else {
			ch := CreateErrorRadioChannel(sim, md.Name)
			medium, em = ch, &ch.errorModel
		}
	default:
		return nil, fmt.Errorf("medium %s has unknown media kind %q", md.Name, md.Media)
	}

	if em != nil {
		if err := em.SetErrorModel(md.ErrorModel, md.ErrorParams...); err != nil {
			return nil, fmt.Errorf("medium %s: %w", md.Name, err)
		}
	}
	return medium, nil
}

func buildNIU(host *Host, medium Medium, nd NIUDesc) error {
	niu := CreateNIC()
	host.AddDevice(niu, nd.Name)

	if err := buildPhy(niu, nd.Phy); err != nil {
		return fmt.Errorf("device %s: %w", niu.FullName(), err)
	}
	if err := buildMAC(niu, nd.MAC); err != nil {
		return fmt.Errorf("device %s: %w", niu.FullName(), err)
	}
	if err := buildDL(niu, nd.DL); err != nil {
		return fmt.Errorf("device %s: %w", niu.FullName(), err)
	}
	return niu.AttachToMedium(medium, nd.Position)
}

func buildPhy(niu *NIU, pd PhyDesc) error {
	switch pd.Kind {
	case PhyFullDuplex:
		phy := CreateFullDuplexPhy()
		niu.AddProtocol(phy, "phy")
		if pd.DataRate > 0 {
			phy.SetDataRate(pd.DataRate)
		}
	case PhyEthernet:
		phy := CreateEthernetPHY()
		niu.AddProtocol(phy, "phy")
		if pd.DataRate > 0 {
			if err := phy.SetDataRate(pd.DataRate); err != nil {
				return err
			}
		}
		switch pd.Duplex {
		case "", "half":
		case "full":
			if err := phy.SetDuplexMode(FullDuplex); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown duplex mode %q", pd.Duplex)
		}
	case PhyRadio:
		phy := CreateIdealRadioPhy()
		niu.AddProtocol(phy, "phy")
		if pd.DataRate > 0 {
			phy.SetDataRate(pd.DataRate)
		}
	default:
		return fmt.Errorf("unknown phy kind %q", pd.Kind)
	}
	return nil
}

func buildMAC(niu *NIU, md MACDesc) error {
	switch md.Kind {
	case MACNone:
	case MACEthernet:
		mac := CreateEthernetMAC()
		niu.AddProtocol(mac, "mac")
		for _, group := range md.Groups {
			mac.AddGroupAddress(group)
		}
	default:
		return fmt.Errorf("unknown mac kind %q", md.Kind)
	}
	return nil
}

func buildDL(niu *NIU, dd DLDesc) error {
	switch dd.Kind {
	case DLPointToPoint:
		niu.AddProtocol(CreatePointToPointDL(), "dl")
	case DLStopAndGo:
		dl := CreateStopAndGoDL()
		niu.AddProtocol(dl, "dl")
		if dd.Timeout > 0 {
			dl.RetransmissionTimeout = dd.Timeout
		}
	case DLGoBackN:
		dl := CreateGoBackNDL(dd.NumSNBits)
		niu.AddProtocol(dl, "dl")
		dl.SetWindowSize(windowOrDefault(dd))
		if dd.Timeout > 0 {
			dl.RetransmissionTimeout = dd.Timeout
		}
	case DLSelectiveRepeat:
		dl := CreateSelectiveRepeatDL(dd.NumSNBits)
		niu.AddProtocol(dl, "dl")
		if dd.WindowSize > 0 {
			dl.SetWindowSize(dd.WindowSize)
		} else {
			// half the sequence number space, the largest window
			// that keeps old and new frames distinguishable
			dl.SetWindowSize(1 << uint(dd.NumSNBits-1))
		}
		if dd.Timeout > 0 {
			dl.RetransmissionTimeout = dd.Timeout
		}
	case DLAloha, DLCSMA, DLCSMACA:
		var dl *AlohaDL
		switch dd.Kind {
		case DLAloha:
			dl = CreateAlohaDL()
		case DLCSMA:
			dl = &CreateCSMADL().AlohaDL
		case DLCSMACA:
			dl = &CreateCSMACADL().AlohaDL
		}
		niu.AddProtocol(dl, "dl")
		dl.SetSrcAddress(dd.SrcAddr)
		dl.SetDstAddress(dd.DstAddr)
		if dd.Timeout > 0 {
			dl.RetransmissionTimeout = dd.Timeout
		}
		if dd.BackoffModel != "" {
			if err := dl.SetBackoffModel(dd.BackoffModel, dd.SlotTime, dd.MaxSlots); err != nil {
				return err
			}
		}
	case DLLLC:
		niu.AddProtocol(CreateEthernetLLC(), "dl")
	default:
		return fmt.Errorf("unknown dl kind %q", dd.Kind)
	}
	return nil
}

// windowOrDefault returns the described go-back-n window size; with
// none given the largest usable window for the sequence number
// width.
func windowOrDefault(dd DLDesc) int {
	if dd.WindowSize > 0 {
		return dd.WindowSize
	}
	return 1<<uint(dd.NumSNBits) - 1
}

// ethernetProtocolType tags payloads of scenario applications on
// LLC stacks
const ethernetProtocolType = 0x0800

// buildApp creates a traffic application, installs it on its host
// and binds it to the dl entity of its device.
func buildApp(host *Host, ad AppDesc) (ProtocolEntity, error) {
	niu := host.Device(ad.NIU)
	dlEntity := niu.Protocol("dl")

	// LLC stacks need a network adapter to present the DataLink
	// and UpperLayer surfaces
	var lower DataLink
	var registrar upperRegistrar
	if llc, ok := dlEntity.(*EthernetLLC); ok {
		mac := niu.Protocol("mac").(*EthernetMAC)
		na := CreateNetAdapter(llc, mac.Address, "FF:FF:FF:FF:FF:FF", ethernetProtocolType)
		lower = na
		registrar = na
	} else {
		lower, _ = dlEntity.(DataLink)
		registrar, _ = dlEntity.(upperRegistrar)
	}

	switch ad.Kind {
	case AppSink:
		sink := CreateTrafficSink()
		host.AddProtocol(sink, ad.Name)
		sink.SetCheckSequence(ad.CheckSequence)
		if registrar == nil {
			return nil, fmt.Errorf("app %s: device %s cannot deliver upward", ad.Name, niu.FullName())
		}
		registrar.RegisterUpperLayer(sink)
		return sink, nil

	case AppCBR:
		src := CreateCBRSource(ad.PDUSize, ad.Interarrival)
		host.AddProtocol(src, ad.Name)
		src.RegisterLowerLayer(lower)
		src.Start(ad.StartTime)
		return src, nil

	case AppPoisson:
		src := CreatePoissonSource(float64(ad.PDUSize), ad.Interarrival)
		host.AddProtocol(src, ad.Name)
		src.RegisterLowerLayer(lower)
		src.Start(ad.StartTime)
		return src, nil

	case AppWeb:
		src := CreateWebSource()
		host.AddProtocol(src, ad.Name)
		if ad.PDUSize > 0 {
			src.SetPDUSize(ad.PDUSize)
		}
		src.RegisterLowerLayer(lower)
		src.Start(ad.StartTime)
		return src, nil

	case AppFlooder:
		src := CreateDLFlooder(ad.PDUSize)
		host.AddProtocol(src, ad.Name)
		src.RegisterLowerLayer(lower)
		if registrar != nil {
			// the flooder refills on transmit confirmations
			registrar.RegisterUpperLayer(src)
		}
		src.Start(ad.StartTime)
		return src, nil
	}
	return nil, fmt.Errorf("app %s has unknown kind %q", ad.Name, ad.Kind)
}

// checkConnectivity walks the host and medium attachment graph and
// warns about hosts no traffic can ever reach.
func (scn *Scenario) checkConnectivity(sd *ScenarioDesc) {
	if len(sd.Hosts) < 2 {
		return
	}

	g := simple.NewUndirectedGraph()
	nodes := make(map[string]int64)
	var nxt int64
	nodeFor := func(name string) int64 {
		id, present := nodes[name]
		if !present {
			id = nxt
			nxt += 1
			nodes[name] = id
			g.AddNode(simple.Node(id))
		}
		return id
	}

	for _, hd := range sd.Hosts {
		hostID := nodeFor("host:" + hd.Name)
		for _, nd := range hd.NIUs {
			mediumID := nodeFor("medium:" + nd.Medium)
			if hostID != mediumID && g.Edge(hostID, mediumID) == nil {
				g.SetEdge(g.NewEdge(simple.Node(hostID), simple.Node(mediumID)))
			}
		}
	}

	first := sd.Hosts[0].Name
	shortest := path.DijkstraFrom(simple.Node(nodes["host:"+first]), g)
	for _, hd := range sd.Hosts[1:] {
		if _, dist := shortest.To(nodes["host:"+hd.Name]); math.IsInf(dist, 1) {
			scn.Sim.logger.Warn().Str("scenario", scn.Name).
				Str("host", hd.Name).Str("from", first).
				Msg("host unreachable from the rest of the topology")
		}
	}
}
