package nessi

// checksums.go holds error detection codes studied in the coding
// exercises: the internet checksum, polynomial codes over GF(2),
// and simple and double parity.  ChksumSource and ChksumSink drive
// them over an error prone medium and collect detection statistics.

import (
	"bytes"
	"fmt"
)

// ChecksumFunc computes the checksum of a data block.
type ChecksumFunc func(data []byte) []byte

// ChecksumVerifyFunc splits a packet into data and checksum and
// reports whether the checksum is consistent.
type ChecksumVerifyFunc func(packet []byte) (data []byte, ok bool)

// IPChecksum returns the two octet internet checksum of RFC 791:
// the one's complement of the one's complement sum of all 16 bit
// words, in big-endian order.
func IPChecksum(data []byte) []byte {
	var sum uint32
	for i := 0; i+1 < len(data); i += 2 {
		sum += uint32(data[i])<<8 | uint32(data[i+1])
	}
	if len(data)%2 == 1 {
		sum += uint32(data[len(data)-1]) << 8
	}
	for sum>>16 != 0 {
		sum = sum>>16 + sum&0xFFFF
	}
	chksum := ^uint16(sum)
	return []byte{byte(chksum >> 8), byte(chksum)}
}

// CheckIPChecksum verifies the trailing internet checksum of a
// packet and returns the data without it.
func CheckIPChecksum(packet []byte) ([]byte, bool) {
	data := packet[:len(packet)-2]
	return data, bytes.Equal(IPChecksum(data), packet[len(packet)-2:])
}

// CRC32Polynomial holds the binary coefficients of the CRC-32
// generating polynomial, highest degree first.
var CRC32Polynomial = []int{
	1, 0, 0, 0, 0, 0, 1, 0, 0, 1, 1, 0, 0, 0, 0, 0, 1,
	0, 0, 0, 1, 1, 1, 0, 1, 1, 0, 1, 1, 0, 1, 1, 1,
}

// PolynomialChecksum divides the data, extended by deg(polynomial)
// zero bits, by the generating polynomial over GF(2) and returns
// the remainder, left padded to whole octets.  The polynomial is
// given as binary coefficients with the highest degree first, e.g.
// x^3+x^2 is [1,1,0,0].
func PolynomialChecksum(data []byte, polynomial []int) []byte {
	if len(polynomial) < 2 || polynomial[0] != 1 {
		panic(fmt.Sprintf("invalid generating polynomial %v", polynomial))
	}
	deg := len(polynomial) - 1

	bits := make([]int, len(data)*8+deg)
	for i, octet := range data {
		for b := 0; b < 8; b += 1 {
			bits[i*8+b] = int(octet>>(7-uint(b))) & 1
		}
	}

	// long division, subtracting shifted copies of the polynomial
	for i := 0; i < len(data)*8; i += 1 {
		if bits[i] == 0 {
			continue
		}
		for j, c := range polynomial {
			bits[i+j] ^= c
		}
	}
	remainder := bits[len(bits)-deg:]

	chksum := make([]byte, (deg+7)/8)
	pad := len(chksum)*8 - deg
	for i, bit := range remainder {
		if bit == 1 {
			pos := pad + i
			chksum[pos/8] |= byte(1) << (7 - uint(pos)%8)
		}
	}
	return chksum
}

// CheckPolynomialChecksum verifies the trailing polynomial checksum
// of a packet and returns the data without it.
func CheckPolynomialChecksum(packet []byte, polynomial []int) ([]byte, bool) {
	chksumLen := (len(polynomial) - 1 + 7) / 8
	data := packet[:len(packet)-chksumLen]
	return data, bytes.Equal(PolynomialChecksum(data, polynomial), packet[len(packet)-chksumLen:])
}

// ParityChecksum returns the even parity bit over all data bits,
// encoded in the low bit of a single octet.
func ParityChecksum(data []byte) []byte {
	var parity byte
	for _, octet := range data {
		for b := 0; b < 8; b += 1 {
			parity ^= octet >> uint(b) & 1
		}
	}
	return []byte{parity}
}

// CheckParityChecksum verifies the trailing parity octet of a
// packet and returns the data without it.
func CheckParityChecksum(packet []byte) ([]byte, bool) {
	data := packet[:len(packet)-1]
	return data, ParityChecksum(data)[0]&1 == packet[len(packet)-1]&1
}

// DoubleParityChecksum computes even parities both ways: one
// vertical parity octet over the data columns, then one horizontal
// parity bit per data octet plus one over the vertical parity
// octet, padded with zero bits to an octet boundary.
func DoubleParityChecksum(data []byte) []byte {
	var vertical byte
	for _, octet := range data {
		vertical ^= octet
	}

	horBits := len(data) + 1
	chksum := make([]byte, 1+(horBits+7)/8)
	chksum[0] = vertical
	rowParity := func(octet byte) byte {
		var p byte
		for b := 0; b < 8; b += 1 {
			p ^= octet >> uint(b) & 1
		}
		return p
	}
	for i, octet := range data {
		if rowParity(octet) == 1 {
			chksum[1+i/8] |= byte(1) << (7 - uint(i)%8)
		}
	}
	if rowParity(vertical) == 1 {
		i := len(data)
		chksum[1+i/8] |= byte(1) << (7 - uint(i)%8)
	}
	return chksum
}

// CheckDoubleParityChecksum verifies the trailing double parity
// checksum of a packet and returns the data without it.  Padding
// bits in the last checksum octet are ignored.
func CheckDoubleParityChecksum(packet []byte) ([]byte, bool) {
	dataLen := len(packet)*8/9 - 1
	chksumLen := len(packet) - dataLen
	data := packet[:dataLen]

	origChksum := make([]byte, chksumLen)
	copy(origChksum, packet[dataLen:])
	if padBits := chksumLen*8 - (dataLen + 9); padBits > 0 {
		origChksum[chksumLen-1] &= byte(0xFF) << uint(padBits)
	}
	return data, bytes.Equal(DoubleParityChecksum(data), origChksum)
}

// ChksumSource periodically sends a fixed size packet, protected by
// a configurable checksum, to every registered lower layer.  With
// two lower layers over one clean and one error prone medium the
// sink can compare the two copies bit by bit.
type ChksumSource struct {
	sim      *Simulator
	host     *Host
	fullName string
	lowers   []DataLink

	interval float64
	length   int
	chksum   ChecksumFunc
}

// CreateChksumSource is a constructor.  The interval is in seconds,
// the packet length in bits.
func CreateChksumSource(interval float64, length int) *ChksumSource {
	return &ChksumSource{interval: interval, length: length / 8}
}

func (src *ChksumSource) InstallOnHost(h *Host, name string) {
	src.host = h
	src.sim = h.Sim()
	src.fullName = h.Name() + "." + name
}

func (src *ChksumSource) FullName() string {
	return src.fullName
}

// SetParameters sets the send interval in seconds and the packet
// length in bits.
func (src *ChksumSource) SetParameters(interval float64, length int) {
	src.interval = interval
	src.length = length / 8
}

// RegisterLowerLayer adds a data link the generated packets are
// sent through.  The same packet goes to every registered layer.
func (src *ChksumSource) RegisterLowerLayer(lower DataLink) {
	src.lowers = append(src.lowers, lower)
}

// UseChksum sets the function protecting the generated packets.
func (src *ChksumSource) UseChksum(chksum ChecksumFunc) {
	src.chksum = chksum
}

// Start schedules the first packet one interval from now.
func (src *ChksumSource) Start() {
	src.sim.Schedule(src, nil, chksumGenerate, src.interval)
}

func chksumGenerate(sim *Simulator, context any, data any) any {
	src := context.(*ChksumSource)
	payload := bytes.Repeat([]byte{'y'}, src.length)
	packet := append(payload, src.chksum(payload)...)
	for _, lower := range src.lowers {
		copied := make([]byte, len(packet))
		copy(copied, packet)
		lower.Send(copied)
	}
	sim.Schedule(src, nil, chksumGenerate, src.interval)
	return nil
}

// ChksumSink receives each packet twice, one clean copy and one
// that crossed an error prone medium, and gathers statistics on how
// well the checksum detects the introduced bit errors.
type ChksumSink struct {
	sim      *Simulator
	host     *Host
	fullName string

	goodData []byte
	verify   ChecksumVerifyFunc

	// histograms over received damaged packets:
	// error burst length to occurrence count
	BurstsDetected   map[int]int64
	BurstsUndetected map[int]int64
	// number of wrong bits to occurrence count
	BitErrorsDetected   map[int]int64
	BitErrorsUndetected map[int]int64
}

// CreateChksumSink is a constructor
func CreateChksumSink() *ChksumSink {
	return &ChksumSink{
		BurstsDetected:      make(map[int]int64),
		BurstsUndetected:    make(map[int]int64),
		BitErrorsDetected:   make(map[int]int64),
		BitErrorsUndetected: make(map[int]int64),
	}
}

func (sink *ChksumSink) InstallOnHost(h *Host, name string) {
	sink.host = h
	sink.sim = h.Sim()
	sink.fullName = h.Name() + "." + name
}

func (sink *ChksumSink) FullName() string {
	return sink.fullName
}

// UseChksum sets the function verifying received packets.
func (sink *ChksumSink) UseChksum(verify ChecksumVerifyFunc) {
	sink.verify = verify
}

// Receive stores the first copy of a packet and compares the second
// against it, attributing the bit error pattern to the detected or
// undetected histograms.
func (sink *ChksumSink) Receive(payload []byte) {
	if sink.goodData == nil {
		sink.goodData = payload
		return
	}

	_, correct := sink.verify(payload)

	firstError := -1
	lastError := -1
	numErrors := 0
	for i := range payload {
		var good byte
		if i < len(sink.goodData) {
			good = sink.goodData[i]
		}
		diff := good ^ payload[i]
		for b := 0; b < 8; b += 1 {
			if diff>>(7-uint(b))&1 == 0 {
				continue
			}
			pos := i*8 + b
			if firstError < 0 {
				firstError = pos
			}
			lastError = pos
			numErrors += 1
		}
	}

	if numErrors > 0 {
		burstLength := lastError - firstError + 1
		if correct {
			// the checksum missed these errors
			sink.BitErrorsUndetected[numErrors] += 1
			sink.BurstsUndetected[burstLength] += 1
		} else {
			sink.BitErrorsDetected[numErrors] += 1
			sink.BurstsDetected[burstLength] += 1
		}
	}
	sink.goodData = nil
}

// SendStatus is ignored: nothing above a sink sends.
func (sink *ChksumSink) SendStatus(status int, payload []byte) {}
