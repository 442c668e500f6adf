package nessi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIPChecksum(t *testing.T) {
	// worked example from RFC 1071, section 3
	data := []byte{0x00, 0x01, 0xF2, 0x03, 0xF4, 0xF5, 0xF6, 0xF7}
	assert.Equal(t, []byte{0x22, 0x0D}, IPChecksum(data))

	packet := append(append([]byte{}, data...), IPChecksum(data)...)
	got, ok := CheckIPChecksum(packet)
	assert.True(t, ok)
	assert.Equal(t, data, got)

	packet[3] ^= 0x10
	_, ok = CheckIPChecksum(packet)
	assert.False(t, ok)

	// odd length data is padded with a zero octet
	odd := []byte{0xAB, 0xCD, 0xEF}
	oddPacket := append(append([]byte{}, odd...), IPChecksum(odd)...)
	_, ok = CheckIPChecksum(oddPacket)
	assert.True(t, ok)
}

func TestPolynomialChecksum(t *testing.T) {
	// x^3 + x over a single octet message
	poly := []int{1, 0, 1, 0}
	data := []byte{0xD4}

	chksum := PolynomialChecksum(data, poly)
	require.Len(t, chksum, 1)

	packet := append(append([]byte{}, data...), chksum...)
	got, ok := CheckPolynomialChecksum(packet, poly)
	assert.True(t, ok)
	assert.Equal(t, data, got)

	// any single flipped data bit is caught
	for bit := 0; bit < 8; bit += 1 {
		damaged := append([]byte{}, packet...)
		damaged[0] ^= byte(1) << uint(bit)
		_, ok := CheckPolynomialChecksum(damaged, poly)
		assert.False(t, ok, "flipped bit %d went undetected", bit)
	}
}

func TestPolynomialChecksumCRC32Width(t *testing.T) {
	data := []byte("polynomial division over GF(2)")
	chksum := PolynomialChecksum(data, CRC32Polynomial)
	assert.Len(t, chksum, 4)

	packet := append(append([]byte{}, data...), chksum...)
	_, ok := CheckPolynomialChecksum(packet, CRC32Polynomial)
	assert.True(t, ok)

	packet[10] ^= 0x04
	_, ok = CheckPolynomialChecksum(packet, CRC32Polynomial)
	assert.False(t, ok)
}

func TestPolynomialChecksumValidation(t *testing.T) {
	assert.Panics(t, func() { PolynomialChecksum([]byte{1}, []int{1}) })
	assert.Panics(t, func() { PolynomialChecksum([]byte{1}, []int{0, 1, 1}) })
}

func TestParityChecksum(t *testing.T) {
	assert.Equal(t, []byte{0}, ParityChecksum([]byte{0xFF}))
	assert.Equal(t, []byte{1}, ParityChecksum([]byte{0x01}))

	data := []byte{0xA5, 0x3C}
	packet := append(append([]byte{}, data...), ParityChecksum(data)...)
	_, ok := CheckParityChecksum(packet)
	assert.True(t, ok)

	// parity catches any odd number of bit errors
	packet[0] ^= 0x80
	_, ok = CheckParityChecksum(packet)
	assert.False(t, ok)

	// but misses an even number
	packet[1] ^= 0x01
	_, ok = CheckParityChecksum(packet)
	assert.True(t, ok)
}

func TestDoubleParityChecksum(t *testing.T) {
	data := []byte{0xA5, 0x3C, 0x01, 0x80, 0x7E, 0xFF, 0x00}
	chksum := DoubleParityChecksum(data)
	// one vertical octet plus eight horizontal parity bits
	require.Len(t, chksum, 2)
	assert.Equal(t, byte(0xA5^0x3C^0x01^0x80^0x7E^0xFF), chksum[0])

	packet := append(append([]byte{}, data...), chksum...)
	got, ok := CheckDoubleParityChecksum(packet)
	assert.True(t, ok)
	assert.Equal(t, data, got)

	damaged := append([]byte{}, packet...)
	damaged[2] ^= 0x40
	_, ok = CheckDoubleParityChecksum(damaged)
	assert.False(t, ok)
}

func TestDoubleParityChecksumIgnoresPadBits(t *testing.T) {
	// three data octets leave four pad bits in the checksum
	data := []byte{0x11, 0x22, 0x44}
	chksum := DoubleParityChecksum(data)
	require.Len(t, chksum, 2)

	packet := append(append([]byte{}, data...), chksum...)
	// flipping a pad bit must not fail the check
	packet[len(packet)-1] ^= 0x01
	_, ok := CheckDoubleParityChecksum(packet)
	assert.True(t, ok)
}

func TestChksumSourceAndSink(t *testing.T) {
	sim := CreateSimulator()
	genHost := CreateHost(sim, "gen")
	src := CreateChksumSource(0.01, 64)
	genHost.AddProtocol(src, "chksum")
	src.UseChksum(IPChecksum)

	clean := &captureLink{}
	noisy := &captureLink{}
	src.RegisterLowerLayer(clean)
	src.RegisterLowerLayer(noisy)
	src.Start()
	sim.Run(0.05)

	require.Len(t, clean.payloads, 5)
	require.Len(t, noisy.payloads, 5)
	// each layer gets its own copy of the same packet
	assert.Equal(t, clean.payloads[0], noisy.payloads[0])
	noisy.payloads[0][0] ^= 0xFF
	assert.NotEqual(t, clean.payloads[0], noisy.payloads[0])

	recvHost := CreateHost(sim, "recv")
	sink := CreateChksumSink()
	recvHost.AddProtocol(sink, "sink")
	sink.UseChksum(CheckIPChecksum)

	// an undamaged pair leaves the histograms alone
	sink.Receive(clean.payloads[1])
	sink.Receive(noisy.payloads[1])
	assert.Empty(t, sink.BitErrorsDetected)
	assert.Empty(t, sink.BitErrorsUndetected)

	// a three bit burst across octet two
	sink.Receive(clean.payloads[2])
	damaged := noisy.payloads[2]
	damaged[2] ^= 0x52
	sink.Receive(damaged)
	assert.Equal(t, int64(1), sink.BitErrorsDetected[3])
	assert.Equal(t, int64(1), sink.BurstsDetected[6])
	assert.Empty(t, sink.BitErrorsUndetected)
}
