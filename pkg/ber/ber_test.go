package ber

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLengthRoundTripFullRange(t *testing.T) {
	for _, n := range []int{0, 1, 126, 127, 128, 200, 255, 256, 1000, 65534, 65535} {
		enc, err := EncodeLength(n)
		require.NoError(t, err, "n=%d", n)
		got, consumed, err := DecodeLength(enc)
		require.NoError(t, err, "n=%d", n)
		assert.Equal(t, n, got)
		assert.Equal(t, len(enc), consumed)
	}
}

func TestLengthEncodingForms(t *testing.T) {
	enc, err := EncodeLength(100)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x64}, enc)

	enc, err = EncodeLength(200)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x81, 0xC8}, enc)

	enc, err = EncodeLength(300)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x82, 0x01, 0x2C}, enc)
}

func TestEncodeLengthRejectsOver65535(t *testing.T) {
	_, err := EncodeLength(65536)
	require.Error(t, err)
}

func TestDecodeLengthRejectsLongForm(t *testing.T) {
	_, _, err := DecodeLength([]byte{0x83, 0x01, 0x00, 0x00})
	require.Error(t, err)
}

func TestDecodeLengthRejectsTruncated(t *testing.T) {
	_, _, err := DecodeLength([]byte{0x82, 0x01})
	require.Error(t, err)
}

func TestAppendAndParseTLV(t *testing.T) {
	var buf []byte
	buf, err := AppendTLV(buf, TagSmpCnt, []byte{0x00, 0x2A})
	require.NoError(t, err)

	tlv, rest, err := ParseTLV(buf)
	require.NoError(t, err)
	assert.Empty(t, rest)
	assert.Equal(t, TagSmpCnt, tlv.Tag)
	assert.Equal(t, []byte{0x00, 0x2A}, tlv.Value)
}

func TestParseAllFlatSequence(t *testing.T) {
	var buf []byte
	buf, _ = AppendTLV(buf, TagSvID, []byte("TestSV01"))
	buf, _ = AppendTLV(buf, TagConfRev, []byte{0, 0, 0, 1})
	buf, _ = AppendTLV(buf, TagSmpSynch, []byte{0x00})

	elems, err := ParseAll(buf)
	require.NoError(t, err)
	require.Len(t, elems, 3)
	assert.Equal(t, TagSvID, elems[0].Tag)
	assert.Equal(t, []byte("TestSV01"), elems[0].Value)

	found, ok := Find(elems, TagConfRev)
	require.True(t, ok)
	assert.Equal(t, []byte{0, 0, 0, 1}, found.Value)

	_, ok = Find(elems, TagRefrTm)
	assert.False(t, ok)
}

func TestParseTLVRejectsTruncatedValue(t *testing.T) {
	_, _, err := ParseTLV([]byte{TagSmpCnt, 0x05, 0x00})
	require.Error(t, err)
}
