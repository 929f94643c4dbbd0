package bencode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeInt(t *testing.T) {
	v, n, err := Decode([]byte("i42e"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, KindInt, v.Kind)
	assert.EqualValues(t, 42, v.Int)
}

func TestDecodeIntZero(t *testing.T) {
	v, n, err := Decode([]byte("i0e"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.EqualValues(t, 0, v.Int)
}

func TestDecodeIntNegative(t *testing.T) {
	v, _, err := Decode([]byte("i-42e"))
	require.NoError(t, err)
	assert.EqualValues(t, -42, v.Int)
}

func TestDecodeIntNegativeZeroInvalid(t *testing.T) {
	_, _, err := Decode([]byte("i-0e"))
	require.Error(t, err)
}

func TestDecodeIntLeadingZeroInvalid(t *testing.T) {
	_, _, err := Decode([]byte("i01e"))
	require.Error(t, err)
}

func TestDecodeEmptyString(t *testing.T) {
	v, n, err := Decode([]byte("0:"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, KindStr, v.Kind)
	assert.Empty(t, v.Str)
}

func TestDecodeString(t *testing.T) {
	v, n, err := Decode([]byte("4:spam"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, "spam", string(v.Str))
}

func TestDecodeEmptyList(t *testing.T) {
	v, n, err := Decode([]byte("le"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, KindList, v.Kind)
	assert.Empty(t, v.List)
}

func TestDecodeList(t *testing.T) {
	v, n, err := Decode([]byte("li1ei2ei3ee"))
	require.NoError(t, err)
	assert.Equal(t, 11, n)
	require.Len(t, v.List, 3)
	assert.EqualValues(t, 1, v.List[0].Int)
	assert.EqualValues(t, 2, v.List[1].Int)
	assert.EqualValues(t, 3, v.List[2].Int)
}

func TestDecodeEmptyDict(t *testing.T) {
	v, n, err := Decode([]byte("de"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, KindDict, v.Kind)
	assert.Empty(t, v.Dict)
}

func TestDecodeDict(t *testing.T) {
	v, n, err := Decode([]byte("d3:cow3:moo4:spam4:eggse"))
	require.NoError(t, err)
	assert.Equal(t, 24, n)
	require.Len(t, v.Dict, 2)
	assert.Equal(t, "moo", string(v.Dict["cow"].Str))
	assert.Equal(t, "eggs", string(v.Dict["spam"].Str))
}

func TestDecodeDuplicateKeyRejected(t *testing.T) {
	_, _, err := Decode([]byte("d3:cow3:moo3:cow3:mooe"))
	require.Error(t, err)
}

func TestDecodeNonStringKeyRejected(t *testing.T) {
	_, _, err := Decode([]byte("di1ei2ee"))
	require.Error(t, err)
}

func TestDecodeMissingTerminator(t *testing.T) {
	_, _, err := Decode([]byte("i42"))
	require.Error(t, err)
}

func TestDecodeLengthExceedsBuffer(t *testing.T) {
	_, _, err := Decode([]byte("10:short"))
	require.Error(t, err)
}

func TestDecodeErrorHasOffset(t *testing.T) {
	_, _, err := Decode([]byte("l4:spam"))
	require.Error(t, err)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, 1, de.Offset)
}

func TestEncodeRoundTrip(t *testing.T) {
	cases := [][]byte{
		[]byte("i42e"),
		[]byte("i0e"),
		[]byte("i-7e"),
		[]byte("4:spam"),
		[]byte("0:"),
		[]byte("le"),
		[]byte("li1ei2ei3ee"),
		[]byte("de"),
		[]byte("d3:cow3:moo4:spam4:eggse"),
	}
	for _, src := range cases {
		v, n, err := Decode(src)
		require.NoError(t, err)
		assert.Equal(t, len(src), n)
		assert.Equal(t, src, Encode(v))
	}
}

func TestEncodeDictSortsKeys(t *testing.T) {
	v := Value{
		Kind: KindDict,
		Dict: map[string]Value{
			"spam": {Kind: KindStr, Str: []byte("eggs")},
			"cow":  {Kind: KindStr, Str: []byte("moo")},
		},
	}
	assert.Equal(t, "d3:cow3:moo4:spam4:eggse", string(Encode(v)))
}

func TestOffsetRangeReDecodesToEqualValue(t *testing.T) {
	src := []byte("d4:infod1:xi1eee")
	root, _, err := Decode(src)
	require.NoError(t, err)

	info, err := Field(root, "info")
	require.NoError(t, err)

	slice := src[info.Offset : info.Offset+info.Length]
	assert.Equal(t, "d1:xi1ee", string(slice))

	reDecoded, n, err := Decode(slice)
	require.NoError(t, err)
	assert.Equal(t, len(slice), n)
	assert.Equal(t, info.Dict["x"].Int, reDecoded.Dict["x"].Int)
}

func TestFieldAccessors(t *testing.T) {
	v, _, err := Decode([]byte("d4:name5:quill6:lengthi99ee"))
	require.NoError(t, err)

	name, err := StrField(v, "name")
	require.NoError(t, err)
	assert.Equal(t, "quill", string(name))

	length, err := IntField(v, "length")
	require.NoError(t, err)
	assert.EqualValues(t, 99, length)

	_, err = StrField(v, "missing")
	require.Error(t, err)

	_, err = IntField(v, "name")
	require.Error(t, err)
}
