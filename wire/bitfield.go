package wire

import "github.com/willf/bitset"

// Bitfield advertises which pieces a peer has, most-significant-bit
// first per byte. It is backed by willf/bitset rather than hand-rolled
// byte shifting.
type Bitfield struct {
	bits *bitset.BitSet
}

// ParseBitfield decodes a received "bitfield" message payload into a
// Bitfield covering numPieces pieces.
func ParseBitfield(payload []byte, numPieces int) Bitfield {
	bs := bitset.New(uint(numPieces))
	for i := 0; i < numPieces; i++ {
		byteIdx := i / 8
		if byteIdx >= len(payload) {
			break
		}
		if payload[byteIdx]>>(7-uint(i%8))&1 != 0 {
			bs.Set(uint(i))
		}
	}
	return Bitfield{bits: bs}
}

// NewBitfield returns an empty bitfield covering numPieces pieces, e.g.
// for a peer we have not yet received a bitfield message from.
func NewBitfield(numPieces int) Bitfield {
	return Bitfield{bits: bitset.New(uint(numPieces))}
}

// Has reports whether the bitfield marks piece index as present.
func (b Bitfield) Has(index int) bool {
	if b.bits == nil || index < 0 {
		return false
	}
	return b.bits.Test(uint(index))
}

// Set marks piece index as present, e.g. in response to a "have"
// message.
func (b Bitfield) Set(index int) {
	if b.bits == nil || index < 0 {
		return
	}
	b.bits.Set(uint(index))
}

// Indices returns every index the bitfield marks as present.
func (b Bitfield) Indices() []int {
	if b.bits == nil {
		return nil
	}
	out := make([]int, 0, b.bits.Count())
	for i, ok := b.bits.NextSet(0); ok; i, ok = b.bits.NextSet(i + 1) {
		out = append(out, int(i))
	}
	return out
}
