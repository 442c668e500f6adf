package nessi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatValidation(t *testing.T) {
	assert.Panics(t, func() {
		NewFormat([]FieldDef{
			{Name: "a", Kind: IntField, Bits: 8},
			{Name: "a", Kind: IntField, Bits: 8},
		})
	}, "duplicate field names")

	assert.Panics(t, func() {
		NewFormat([]FieldDef{
			{Name: "a", Kind: ByteField, Bits: VariableLength},
			{Name: "b", Kind: ByteField, Bits: VariableLength},
		})
	}, "two variable fields")

	assert.Panics(t, func() {
		NewFormat([]FieldDef{
			{Name: "flag", Kind: BitField, Bits: 1},
			{Name: "data", Kind: ByteField, Bits: 16},
		})
	}, "byte field off octet boundary")

	assert.Panics(t, func() {
		NewFormat([]FieldDef{
			{Name: "flag", Kind: BitField, Bits: 3},
		})
	}, "format not ending on octet boundary")

	assert.Panics(t, func() {
		NewFormat([]FieldDef{
			{Name: "addr", Kind: MACAddrField, Bits: 32},
			{Name: "pad", Kind: ByteField, Bits: 32},
		})
	}, "mac address of wrong width")
}

func TestFixedFields(t *testing.T) {
	format := NewFormat([]FieldDef{
		{Name: "version", Kind: BitField, Bits: 4, Default: 4},
		{Name: "hlen", Kind: BitField, Bits: 4, Default: 5},
		{Name: "proto", Kind: IntField, Bits: 8},
		{Name: "src", Kind: IPv4AddrField, Bits: 32, Default: "10.0.0.1"},
		{Name: "dst", Kind: IPv4AddrField, Bits: 32},
	})
	assert.Equal(t, 10, format.FixedOctets())

	pdu := format.New()
	assert.Equal(t, uint64(4), pdu.Int("version"))
	assert.Equal(t, uint64(5), pdu.Int("hlen"))
	assert.Equal(t, "10.0.0.1", pdu.IP("src"))
	assert.Equal(t, "0.0.0.0", pdu.IP("dst"))

	pdu.SetInt("proto", 17)
	pdu.SetIP("dst", "192.168.1.254")
	assert.Equal(t, uint64(17), pdu.Int("proto"))
	assert.Equal(t, "192.168.1.254", pdu.IP("dst"))

	// the wire image starts with 0x45, the classic IP header byte
	wire := pdu.Serialize()
	assert.Equal(t, byte(0x45), wire[0])
	assert.Equal(t, byte(17), wire[1])

	assert.Panics(t, func() { pdu.SetInt("proto", 256) }, "value too wide for field")
	assert.Panics(t, func() { pdu.Int("src") }, "typed access to wrong kind")
}

func TestMACField(t *testing.T) {
	format := NewFormat([]FieldDef{
		{Name: "dest", Kind: MACAddrField, Bits: 48, Default: "FF:FF:FF:FF:FF:FF"},
		{Name: "src", Kind: MACAddrField, Bits: 48},
	})
	pdu := format.New()
	assert.Equal(t, "FF:FF:FF:FF:FF:FF", pdu.MAC("dest"))

	pdu.SetMAC("src", "02:0A:0B:0C:0D:0E")
	assert.Equal(t, "02:0A:0B:0C:0D:0E", pdu.MAC("src"))
	assert.Equal(t, byte(0x02), pdu.Serialize()[6])
}

func TestVariableField(t *testing.T) {
	format := NewFormat([]FieldDef{
		{Name: "header", Kind: IntField, Bits: 16, Default: 0xCAFE},
		{Name: "data", Kind: ByteField, Bits: VariableLength},
		{Name: "fcs", Kind: IntField, Bits: 32},
	})
	assert.Equal(t, 6, format.FixedOctets())

	pdu := format.New()
	assert.Equal(t, 6, pdu.Len())
	assert.Empty(t, pdu.Bytes("data"))

	pdu.SetBytes("data", []byte("hello"))
	pdu.SetInt("fcs", 0xDEADBEEF)
	assert.Equal(t, 11, pdu.Len())
	assert.Equal(t, []byte("hello"), pdu.Bytes("data"))
	assert.Equal(t, uint64(0xCAFE), pdu.Int("header"))
	assert.Equal(t, uint64(0xDEADBEEF), pdu.Int("fcs"))

	// growing and shrinking the variable field keeps the trailer
	pdu.SetBytes("data", []byte("x"))
	assert.Equal(t, 7, pdu.Len())
	assert.Equal(t, uint64(0xDEADBEEF), pdu.Int("fcs"))

	wire := pdu.Serialize()
	require.Len(t, wire, 7)
	assert.Equal(t, byte('x'), wire[2])
}

func TestFillParsesReceivedImage(t *testing.T) {
	format := NewFormat([]FieldDef{
		{Name: "sn", Kind: BitField, Bits: 1},
		{Name: "rn", Kind: BitField, Bits: 1},
		{Name: "pad", Kind: BitField, Bits: 6},
		{Name: "data", Kind: ByteField, Bits: VariableLength},
		{Name: "fcs", Kind: IntField, Bits: 32},
	})

	tx := format.New()
	tx.SetInt("sn", 1)
	tx.SetBytes("data", []byte{0x11, 0x22, 0x33})
	tx.SetInt("fcs", 42)

	rx := format.New()
	rx.Fill(tx.Serialize())
	assert.Equal(t, uint64(1), rx.Int("sn"))
	assert.Equal(t, uint64(0), rx.Int("rn"))
	assert.Equal(t, []byte{0x11, 0x22, 0x33}, rx.Bytes("data"))
	assert.Equal(t, uint64(42), rx.Int("fcs"))

	assert.Panics(t, func() { rx.Fill([]byte{0x00}) }, "image shorter than the fixed fields")
}

func TestBitAccessHelpers(t *testing.T) {
	data := make([]byte, 2)
	setBits(data, 3, 7, 0x5A)
	assert.Equal(t, uint64(0x5A), getBits(data, 3, 7))
	// neighbours untouched
	assert.Equal(t, uint64(0), getBits(data, 0, 3))
	assert.Equal(t, uint64(0), getBits(data, 10, 6))
}
