package nessi

// pdu.go implements declarative protocol data unit formats.  A
// format lists named fields with bit lengths; PDUs created from it
// give typed access to the fields over a flat octet buffer, so a
// serialized PDU is exactly its wire image.

import (
	"fmt"
	"strconv"
	"strings"
)

// FieldKind enumerates the field types a PDU format can carry.
type FieldKind int

const (
	// ByteField is an octet-aligned run of raw bytes
	ByteField FieldKind = iota
	// BitField is an unaligned field of up to 64 bits
	BitField
	// MACAddrField is a 48 bit hardware address
	MACAddrField
	// IPv4AddrField is a 32 bit internet address
	IPv4AddrField
	// IntField is an octet-aligned big-endian unsigned integer of
	// up to 64 bits
	IntField
)

// VariableLength marks the single ByteField of a format whose
// length is determined per PDU.
const VariableLength = -1

// FieldDef declares one field of a PDU format.
type FieldDef struct {
	Name    string
	Kind    FieldKind
	Bits    int
	Default any
}

type fieldPos struct {
	def       FieldDef
	fromFront bool
	// bit offset of the field start, measured from the front of
	// the buffer or backwards from its end
	bitOff int
}

// PDUFormat is the compiled form of a field list.  Formats are
// immutable; every PDU of the format shares it.
type PDUFormat struct {
	fields    []fieldPos
	index     map[string]int
	varIdx    int
	fixedBits int
	prototype []byte
}

// NewFormat compiles a field list into a format.  Malformed
// definitions are stack assembly errors and panic.
func NewFormat(fields []FieldDef) *PDUFormat {
	f := new(PDUFormat)
	f.index = make(map[string]int)
	f.varIdx = -1

	bitpos := 0
	for idx, fd := range fields {
		if _, present := f.index[fd.Name]; present {
			panic(fmt.Sprintf("pdu format: duplicate field %q", fd.Name))
		}
		f.index[fd.Name] = idx

		if fd.Bits == VariableLength {
			if fd.Kind != ByteField {
				panic(fmt.Sprintf("pdu format: %q: only byte fields may have variable length", fd.Name))
			}
			if f.varIdx >= 0 {
				panic("pdu format: only one variable length field allowed")
			}
			if bitpos%8 != 0 {
				panic(fmt.Sprintf("pdu format: %q: variable field not octet aligned", fd.Name))
			}
			f.varIdx = idx
			f.fields = append(f.fields, fieldPos{def: fd})
			continue
		}

		switch fd.Kind {
		case ByteField:
			if fd.Bits%8 != 0 || bitpos%8 != 0 {
				panic(fmt.Sprintf("pdu format: %q: byte field not octet aligned", fd.Name))
			}
		case MACAddrField:
			if fd.Bits != 48 || bitpos%8 != 0 {
				panic(fmt.Sprintf("pdu format: %q: mac address must be 48 octet-aligned bits", fd.Name))
			}
		case IPv4AddrField:
			if fd.Bits != 32 || bitpos%8 != 0 {
				panic(fmt.Sprintf("pdu format: %q: ipv4 address must be 32 octet-aligned bits", fd.Name))
			}
		case IntField:
			if fd.Bits > 64 || fd.Bits%8 != 0 || bitpos%8 != 0 {
				panic(fmt.Sprintf("pdu format: %q: int field must be octet aligned, up to 64 bits", fd.Name))
			}
		case BitField:
			if fd.Bits > 64 {
				panic(fmt.Sprintf("pdu format: %q: bit field longer than 64 bits", fd.Name))
			}
		default:
			panic(fmt.Sprintf("pdu format: %q: unknown field kind", fd.Name))
		}
		f.fields = append(f.fields, fieldPos{def: fd, fromFront: true, bitOff: bitpos})
		f.fixedBits += fd.Bits
		bitpos += fd.Bits
	}

	if f.fixedBits%8 != 0 {
		panic("pdu format: fixed fields do not end on an octet boundary")
	}

	// fields after the variable field are located backwards from
	// the end of the buffer
	if f.varIdx >= 0 {
		back := 0
		for idx := len(f.fields) - 1; idx > f.varIdx; idx-- {
			back += f.fields[idx].def.Bits
			f.fields[idx].fromFront = false
			f.fields[idx].bitOff = back
		}
	}

	f.prototype = make([]byte, f.fixedBits/8)
	proto := &PDU{format: f, data: f.prototype}
	for _, fp := range f.fields {
		if fp.def.Default == nil {
			continue
		}
		name := fp.def.Name
		switch fp.def.Kind {
		case ByteField:
			proto.SetBytes(name, fp.def.Default.([]byte))
		case MACAddrField:
			proto.SetMAC(name, fp.def.Default.(string))
		case IPv4AddrField:
			proto.SetIP(name, fp.def.Default.(string))
		case BitField, IntField:
			proto.SetInt(name, defaultToUint64(name, fp.def.Default))
		}
	}
	f.prototype = proto.data
	return f
}

func defaultToUint64(name string, v any) uint64 {
	switch d := v.(type) {
	case int:
		return uint64(d)
	case int64:
		return uint64(d)
	case uint32:
		return uint64(d)
	case uint64:
		return d
	}
	panic(fmt.Sprintf("pdu format: %q: unusable integer default %v", name, v))
}

// FixedOctets returns the length of a PDU with an empty variable
// field.
func (f *PDUFormat) FixedOctets() int {
	return f.fixedBits / 8
}

// PDU is one protocol data unit of a format.
type PDU struct {
	format *PDUFormat
	data   []byte
}

// New creates a PDU with all defaults applied and an empty variable
// field.
func (f *PDUFormat) New() *PDU {
	data := make([]byte, len(f.prototype))
	copy(data, f.prototype)
	return &PDU{format: f, data: data}
}

// Len returns the current length of the PDU in octets.
func (p *PDU) Len() int {
	return len(p.data)
}

// Serialize returns a copy of the wire image.
func (p *PDU) Serialize() []byte {
	out := make([]byte, len(p.data))
	copy(out, p.data)
	return out
}

// Fill overwrites the PDU with a received wire image.
func (p *PDU) Fill(bits []byte) {
	if len(bits) < p.format.FixedOctets() {
		panic(fmt.Sprintf("pdu: %d octets cannot fill a format of %d fixed octets",
			len(bits), p.format.FixedOctets()))
	}
	p.data = make([]byte, len(bits))
	copy(p.data, bits)
}

func (p *PDU) fieldIdx(name string) int {
	idx, present := p.format.index[name]
	if !present {
		panic(fmt.Sprintf("pdu: no field named %q", name))
	}
	return idx
}

func (p *PDU) fieldStart(idx int) int {
	fp := p.format.fields[idx]
	if fp.fromFront {
		return fp.bitOff
	}
	return len(p.data)*8 - fp.bitOff
}

// Bytes returns the content of a byte field.
func (p *PDU) Bytes(name string) []byte {
	idx := p.fieldIdx(name)
	fp := p.format.fields[idx]
	if fp.def.Kind != ByteField {
		panic(fmt.Sprintf("pdu: field %q is not a byte field", name))
	}
	var start, end int
	if idx == p.format.varIdx {
		start = p.varFrontOctets()
		end = len(p.data) - (p.format.fixedBits/8 - start)
	} else {
		start = p.fieldStart(idx) / 8
		end = start + fp.def.Bits/8
	}
	out := make([]byte, end-start)
	copy(out, p.data[start:end])
	return out
}

// varFrontOctets returns the octet count of fixed fields preceding
// the variable field.
func (p *PDU) varFrontOctets() int {
	front := 0
	for idx := 0; idx < p.format.varIdx; idx++ {
		front += p.format.fields[idx].def.Bits
	}
	return front / 8
}

// SetBytes stores the content of a byte field.  Fixed fields must
// be set with exactly their declared length; the variable field
// takes any length.
func (p *PDU) SetBytes(name string, v []byte) {
	idx := p.fieldIdx(name)
	fp := p.format.fields[idx]
	if fp.def.Kind != ByteField {
		panic(fmt.Sprintf("pdu: field %q is not a byte field", name))
	}
	if idx == p.format.varIdx {
		front := p.varFrontOctets()
		tailOctets := p.format.fixedBits/8 - front
		tail := p.data[len(p.data)-tailOctets:]
		data := make([]byte, 0, front+len(v)+tailOctets)
		data = append(data, p.data[:front]...)
		data = append(data, v...)
		data = append(data, tail...)
		p.data = data
		return
	}
	if len(v)*8 != fp.def.Bits {
		panic(fmt.Sprintf("pdu: field %q takes %d octets, got %d", name, fp.def.Bits/8, len(v)))
	}
	copy(p.data[p.fieldStart(idx)/8:], v)
}

// Int returns the value of an int or bit field.
func (p *PDU) Int(name string) uint64 {
	idx := p.fieldIdx(name)
	fp := p.format.fields[idx]
	if fp.def.Kind != IntField && fp.def.Kind != BitField {
		panic(fmt.Sprintf("pdu: field %q is not an integer field", name))
	}
	return getBits(p.data, p.fieldStart(idx), fp.def.Bits)
}

// SetInt stores the value of an int or bit field.
func (p *PDU) SetInt(name string, v uint64) {
	idx := p.fieldIdx(name)
	fp := p.format.fields[idx]
	if fp.def.Kind != IntField && fp.def.Kind != BitField {
		panic(fmt.Sprintf("pdu: field %q is not an integer field", name))
	}
	if fp.def.Bits < 64 && v >= uint64(1)<<uint(fp.def.Bits) {
		panic(fmt.Sprintf("pdu: value %d does not fit field %q of %d bits", v, name, fp.def.Bits))
	}
	setBits(p.data, p.fieldStart(idx), fp.def.Bits, v)
}

// MAC returns a hardware address field formatted AA:BB:CC:DD:EE:FF.
func (p *PDU) MAC(name string) string {
	idx := p.fieldIdx(name)
	if p.format.fields[idx].def.Kind != MACAddrField {
		panic(fmt.Sprintf("pdu: field %q is not a mac address", name))
	}
	start := p.fieldStart(idx) / 8
	b := p.data[start : start+6]
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", b[0], b[1], b[2], b[3], b[4], b[5])
}

// SetMAC stores a hardware address field from its text form.
func (p *PDU) SetMAC(name string, addr string) {
	idx := p.fieldIdx(name)
	if p.format.fields[idx].def.Kind != MACAddrField {
		panic(fmt.Sprintf("pdu: field %q is not a mac address", name))
	}
	parts := strings.Split(addr, ":")
	if len(parts) != 6 {
		panic(fmt.Sprintf("pdu: malformed mac address %q", addr))
	}
	start := p.fieldStart(idx) / 8
	for i, part := range parts {
		octet, err := strconv.ParseUint(part, 16, 8)
		if err != nil {
			panic(fmt.Sprintf("pdu: malformed mac address %q", addr))
		}
		p.data[start+i] = byte(octet)
	}
}

// IP returns an internet address field in dotted quad form.
func (p *PDU) IP(name string) string {
	idx := p.fieldIdx(name)
	if p.format.fields[idx].def.Kind != IPv4AddrField {
		panic(fmt.Sprintf("pdu: field %q is not an ipv4 address", name))
	}
	start := p.fieldStart(idx) / 8
	b := p.data[start : start+4]
	return fmt.Sprintf("%d.%d.%d.%d", b[0], b[1], b[2], b[3])
}

// SetIP stores an internet address field from its dotted quad form.
func (p *PDU) SetIP(name string, addr string) {
	idx := p.fieldIdx(name)
	if p.format.fields[idx].def.Kind != IPv4AddrField {
		panic(fmt.Sprintf("pdu: field %q is not an ipv4 address", name))
	}
	parts := strings.Split(addr, ".")
	if len(parts) != 4 {
		panic(fmt.Sprintf("pdu: malformed ipv4 address %q", addr))
	}
	start := p.fieldStart(idx) / 8
	for i, part := range parts {
		octet, err := strconv.ParseUint(part, 10, 8)
		if err != nil {
			panic(fmt.Sprintf("pdu: malformed ipv4 address %q", addr))
		}
		p.data[start+i] = byte(octet)
	}
}

func getBits(data []byte, start, n int) uint64 {
	var v uint64
	for i := 0; i < n; i++ {
		bit := start + i
		v = v<<1 | uint64(data[bit/8]>>(7-uint(bit)%8)&1)
	}
	return v
}

func setBits(data []byte, start, n int, v uint64) {
	for i := n - 1; i >= 0; i-- {
		bit := start + i
		mask := byte(1) << (7 - uint(bit)%8)
		if v&1 == 1 {
			data[bit/8] |= mask
		} else {
			data[bit/8] &^= mask
		}
		v >>= 1
	}
}
