package wspr

import "math/bits"

// Generator polynomials of the K=32, r=1/2 convolutional code.
const (
	poly1 = uint32(0xF2D05351)
	poly2 = uint32(0xE4613C47)
)

// 50 message bits followed by 31 zero tail bits.
const encodedBits = SymbolCount / 2

// syncVector is the fixed pseudo-random sync pattern carried in the low bit of
// every channel symbol.
var syncVector = [SymbolCount]uint8{
	1, 1, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0, 1, 1, 1, 0, 0, 0, 1, 0, 0, 1, 0, 1, 1, 1, 1, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 1, 0, 1, 0, 0,
	0, 0, 0, 0, 1, 0, 1, 1, 0, 0, 1, 1, 0, 1, 0, 0, 0, 1, 1, 0, 1, 0, 0, 0, 0, 1, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0, 0, 1, 0, 0, 1, 0,
	1, 1, 0, 0, 0, 1, 1, 0, 1, 0, 1, 0, 0, 0, 1, 0, 0, 0, 0, 0, 1, 0, 0, 1, 0, 0, 1, 1, 1, 0, 1, 1, 0, 0, 1, 1, 0, 1, 0, 0, 0, 1,
	1, 1, 0, 0, 0, 0, 0, 1, 0, 1, 0, 0, 1, 1, 0, 0, 0, 0, 0, 0, 0, 1, 1, 0, 1, 0, 1, 1, 0, 0, 0, 1, 1, 0, 0, 0,
}

// convolve runs the first 81 bits of the packed message through the encoder.
// Each input bit yields two parity bits.
func convolve(msg [11]byte) (out [SymbolCount]uint8) {
	var reg uint32
	for i := 0; i < encodedBits; i++ {
		bit := uint32(msg[i/8]>>(7-uint(i%8))) & 1
		reg = reg<<1 | bit
		out[2*i] = uint8(bits.OnesCount32(reg&poly1) & 1)
		out[2*i+1] = uint8(bits.OnesCount32(reg&poly2) & 1)
	}
	return
}

// interleave scatters the parity bits over the bit-reversed 8-bit addresses
// below 162.
func interleave(in [SymbolCount]uint8) (out [SymbolCount]uint8) {
	p := 0
	for i := 0; i < 256; i++ {
		j := bits.Reverse8(uint8(i))
		if int(j) < SymbolCount {
			out[j] = in[p]
			p++
		}
	}
	return
}

func mergeSync(data [SymbolCount]uint8) (s Symbols) {
	for i := range s {
		s[i] = syncVector[i] + 2*data[i]
	}
	return
}
