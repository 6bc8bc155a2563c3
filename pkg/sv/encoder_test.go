package sv

import (
	"bytes"
	"encoding/binary"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtualtestset/vpac/pkg/ber"
	"github.com/virtualtestset/vpac/pkg/phasor"
)

func testConfig() StreamConfig {
	return StreamConfig{
		StreamID:    "s1",
		SvID:        "TestSV01",
		AppID:       0x4000,
		MACDst:      net.HardwareAddr{0x01, 0x0C, 0xCD, 0x04, 0x00, 0x00},
		VLANID:      0,
		VLANPrio:    4,
		ConfRev:     1,
		SmpRate:     4800,
		NASDU:       1,
		NChannels:   8,
		NominalFreq: 60,
	}
}

func balancedState() *PhasorState {
	return &PhasorState{
		FreqHz: 60,
		Components: map[phasor.Channel]phasor.Component{
			phasor.ChVA: {MagnitudePrimary: 120, AngleRad: 0},
			phasor.ChVB: {MagnitudePrimary: 120, AngleRad: -2 * 3.14159265358979 / 3},
			phasor.ChVC: {MagnitudePrimary: 120, AngleRad: 2 * 3.14159265358979 / 3},
		},
	}
}

func TestEncodeFrameS1TenTicksSmpCntSequence(t *testing.T) {
	cfg := testConfig()
	state := balancedState()
	enc := NewEncoder()
	srcMAC := net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}

	var firstHeader []byte
	for tick := uint64(0); tick < 10; tick++ {
		frame, err := enc.EncodeFrame(cfg, state, srcMAC, uint16(tick), tick)
		require.NoError(t, err)

		etherType := binary.BigEndian.Uint16(frame[16:18])
		assert.Equal(t, uint16(0x88BA), etherType)

		header := append([]byte{}, frame[:18]...)
		if tick == 0 {
			firstHeader = header
		} else {
			assert.Equal(t, firstHeader, header, "tag headers must be byte-identical across ticks")
		}
	}
}

func TestEncodeFrameCarriesSvID(t *testing.T) {
	cfg := testConfig()
	state := balancedState()
	enc := NewEncoder()
	srcMAC := net.HardwareAddr{0, 0, 0, 0, 0, 1}

	frame, err := enc.EncodeFrame(cfg, state, srcMAC, 42, 0)
	require.NoError(t, err)
	assert.Contains(t, string(frame), cfg.SvID)
}

func TestEncodeFrameLengthFieldMatchesPDUBytes(t *testing.T) {
	cfg := testConfig()
	state := balancedState()
	enc := NewEncoder()
	srcMAC := net.HardwareAddr{0, 0, 0, 0, 0, 1}

	frame, err := enc.EncodeFrame(cfg, state, srcMAC, 0, 0)
	require.NoError(t, err)

	lengthField := binary.BigEndian.Uint16(frame[20:22])
	// Bytes from appId (offset 18) through end of frame inclusive.
	assert.EqualValues(t, len(frame)-18, lengthField)
}

// decodedASDU is one ASDU pulled back out of an encoded frame: its smpCnt
// field and the first channel's sample value.
type decodedASDU struct {
	smpCnt  uint16
	firstCh int32
}

// decodeASDUs parses an encoded SV frame back through pkg/ber and returns
// its ASDUs in wire order.
func decodeASDUs(t *testing.T, frame []byte) []decodedASDU {
	t.Helper()

	// dst(6) src(6) tpid(2) tci(2) etherType(2) = 18, then the 8-byte SV
	// header puts savPdu at offset 26.
	pdu, _, err := ber.ParseTLV(frame[26:])
	require.NoError(t, err)
	require.Equal(t, ber.TagSavPDU, pdu.Tag)

	elems, err := ber.ParseAll(pdu.Value)
	require.NoError(t, err)
	seq, ok := ber.Find(elems, ber.TagSeqOfASDU)
	require.True(t, ok, "savPdu must carry a seqOfASDU")

	asduTLVs, err := ber.ParseAll(seq.Value)
	require.NoError(t, err)

	out := make([]decodedASDU, 0, len(asduTLVs))
	for _, a := range asduTLVs {
		require.Equal(t, ber.TagASDU, a.Tag)
		fields, err := ber.ParseAll(a.Value)
		require.NoError(t, err)

		cnt, ok := ber.Find(fields, ber.TagSmpCnt)
		require.True(t, ok)
		data, ok := ber.Find(fields, ber.TagSeqData)
		require.True(t, ok)
		require.GreaterOrEqual(t, len(data.Value), 8, "seqData must hold at least one (value, quality) pair")

		out = append(out, decodedASDU{
			smpCnt:  binary.BigEndian.Uint16(cnt.Value),
			firstCh: int32(binary.BigEndian.Uint32(data.Value[:4])),
		})
	}
	return out
}

func TestEncodeFrameNAsduBurstEmitsContiguousSamples(t *testing.T) {
	cfg := testConfig()
	cfg.NASDU = 4
	state := balancedState()
	enc := NewEncoder()
	srcMAC := net.HardwareAddr{0, 0, 0, 0, 0, 1}
	comp := state.Components[phasor.ChVA]

	// Tick 1 starts at sample index 0, smpCnt 100: the four ASDUs must
	// carry smpCnt 100..103 and the sinusoid at sample indices 0..3.
	frame, err := enc.EncodeFrame(cfg, state, srcMAC, 100, 0)
	require.NoError(t, err)
	asdus := decodeASDUs(t, frame)
	require.Len(t, asdus, 4)
	for i, a := range asdus {
		assert.Equal(t, uint16(100+i), a.smpCnt)
		want := phasor.SampleCounts(phasor.ChVA, comp, int64(i), cfg.SmpRate, state.FreqHz)
		assert.Equal(t, want, a.firstCh, "asdu %d of tick 1", i)
	}

	// The runtime advances smpCnt and tickSeq by NASDU per frame, so tick 2
	// enters at smpCnt 104, sample index 4, and must continue the same
	// sinusoid rather than restart or skip ahead.
	frame, err = enc.EncodeFrame(cfg, state, srcMAC, 104, 4)
	require.NoError(t, err)
	asdus = decodeASDUs(t, frame)
	require.Len(t, asdus, 4)
	for i, a := range asdus {
		assert.Equal(t, uint16(104+i), a.smpCnt)
		want := phasor.SampleCounts(phasor.ChVA, comp, int64(4+i), cfg.SmpRate, state.FreqHz)
		assert.Equal(t, want, a.firstCh, "asdu %d of tick 2", i)
	}
}

func TestEncodeFrameDiffersOnlyInVariableFields(t *testing.T) {
	cfg := testConfig()
	state := balancedState()
	enc := NewEncoder()
	srcMAC := net.HardwareAddr{0, 0, 0, 0, 0, 1}

	f1, err := enc.EncodeFrame(cfg, state, srcMAC, 0, 0)
	require.NoError(t, err)
	f1 = append([]byte{}, f1...)

	f2, err := enc.EncodeFrame(cfg, state, srcMAC, 1, 1)
	require.NoError(t, err)

	require.Equal(t, len(f1), len(f2), "identical config/state must yield identical frame length")
	// Header up to and including smpCnt's preceding tag structure is stable;
	// only the smpCnt value bytes (and seqData, since state is unchanged
	// here seqData differs only via the time argument k) are expected to
	// differ between successive ticks. seqData is the last field of the
	// single ASDU, so it runs to the end of the frame.
	smpCntAt := bytes.Index(f1, []byte{ber.TagSmpCnt, 0x02}) + 2
	seqDataAt := bytes.Index(f1, []byte{ber.TagSeqData, byte(8 * cfg.NChannels)}) + 2
	require.Greater(t, seqDataAt, smpCntAt)
	diffCount := 0
	for i := range f1 {
		if f1[i] != f2[i] {
			diffCount++
			inSmpCnt := i >= smpCntAt && i < smpCntAt+2
			assert.True(t, inSmpCnt || i >= seqDataAt, "byte %d differs outside smpCnt and seqData", i)
		}
	}
	assert.Greater(t, diffCount, 0)
}
