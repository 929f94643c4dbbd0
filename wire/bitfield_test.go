package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseBitfieldMSBFirst(t *testing.T) {
	// 0b10100000 -> bits 0 and 2 set, most-significant-bit first.
	bf := ParseBitfield([]byte{0xA0}, 8)
	assert.True(t, bf.Has(0))
	assert.False(t, bf.Has(1))
	assert.True(t, bf.Has(2))
	assert.False(t, bf.Has(7))
}

func TestParseBitfieldShorterThanNumPieces(t *testing.T) {
	bf := ParseBitfield([]byte{0xFF}, 16)
	assert.True(t, bf.Has(7))
	assert.False(t, bf.Has(8))
}

func TestNewBitfieldSetAndIndices(t *testing.T) {
	bf := NewBitfield(4)
	bf.Set(1)
	bf.Set(3)
	assert.Equal(t, []int{1, 3}, bf.Indices())
}

func TestBitfieldHasOutOfRange(t *testing.T) {
	bf := NewBitfield(4)
	assert.False(t, bf.Has(-1))
}
