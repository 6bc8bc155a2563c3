package sv

import (
	"encoding/binary"

	"github.com/virtualtestset/vpac/pkg/ber"
	"github.com/virtualtestset/vpac/pkg/errs"
	"github.com/virtualtestset/vpac/pkg/phasor"
)

const (
	etherTypeSV uint16 = 0x88BA
	tpid8021Q   uint16 = 0x8100
)

// Encoder builds complete SV Ethernet frames for one tick, reusing an
// internal buffer so steady-state ticks do not allocate.
type Encoder struct {
	buf       []byte
	asduBuf   []byte
	bodyBuf   []byte
	seqBuf    []byte
	pduBuf    []byte
	savPduBuf []byte
}

// NewEncoder preallocates worst-case-sized buffers so EncodeFrame does not
// allocate once warmed up.
func NewEncoder() *Encoder {
	return &Encoder{
		buf:       make([]byte, 0, 1518),
		asduBuf:   make([]byte, 0, 1518),
		bodyBuf:   make([]byte, 0, 512),
		seqBuf:    make([]byte, 0, 256),
		pduBuf:    make([]byte, 0, 1518),
		savPduBuf: make([]byte, 0, 1518),
	}
}

// encodeASDU appends one ASDU (tag 0x30) for sample index k at smpCnt to
// dst, returning the extended slice. Channels are sampled in ch order. The
// ASDU body itself is built in e.bodyBuf, reused across calls.
func (e *Encoder) encodeASDU(dst []byte, cfg StreamConfig, state *PhasorState, channels []phasor.Channel, smpCnt uint16, k int64, refrTm uint64) ([]byte, error) {
	body := e.bodyBuf[:0]
	var err error

	body, err = ber.AppendTLV(body, ber.TagSvID, []byte(cfg.SvID))
	if err != nil {
		return nil, err
	}
	if cfg.DatasetRef != "" {
		body, err = ber.AppendTLV(body, ber.TagDatSet, []byte(cfg.DatasetRef))
		if err != nil {
			return nil, err
		}
	}

	var smpCntBytes [2]byte
	binary.BigEndian.PutUint16(smpCntBytes[:], smpCnt)
	body, err = ber.AppendTLV(body, ber.TagSmpCnt, smpCntBytes[:])
	if err != nil {
		return nil, err
	}

	var confRevBytes [4]byte
	binary.BigEndian.PutUint32(confRevBytes[:], cfg.ConfRev)
	body, err = ber.AppendTLV(body, ber.TagConfRev, confRevBytes[:])
	if err != nil {
		return nil, err
	}

	if refrTm != 0 {
		var refrTmBytes [8]byte
		binary.BigEndian.PutUint64(refrTmBytes[:], refrTm)
		body, err = ber.AppendTLV(body, ber.TagRefrTm, refrTmBytes[:])
		if err != nil {
			return nil, err
		}
	}

	body, err = ber.AppendTLV(body, ber.TagSmpSynch, []byte{0x00})
	if err != nil {
		return nil, err
	}

	var smpRateBytes [2]byte
	binary.BigEndian.PutUint16(smpRateBytes[:], uint16(cfg.SmpRate))
	body, err = ber.AppendTLV(body, ber.TagSmpRate, smpRateBytes[:])
	if err != nil {
		return nil, err
	}

	seqData := e.seqBuf[:0]
	for _, ch := range channels {
		comp := state.Components[ch]
		counts := phasor.SampleCounts(ch, comp, k, cfg.SmpRate, state.FreqHz)
		var valBytes [4]byte
		binary.BigEndian.PutUint32(valBytes[:], uint32(counts))
		seqData = append(seqData, valBytes[:]...)
		seqData = append(seqData, 0, 0, 0, 0) // quality, always good
	}
	e.seqBuf = seqData
	body, err = ber.AppendTLV(body, ber.TagSeqData, seqData)
	if err != nil {
		return nil, err
	}

	e.bodyBuf = body
	return ber.AppendTLV(dst, ber.TagASDU, body)
}

// EncodeFrame builds one full SV Ethernet frame for the current tick,
// writing nAsdu ASDUs at contiguous smpCnt values starting at startSmpCnt
// (the n_asdu>1 burst decision in the design notes). srcMAC must already be
// resolved. The encoder's internal buffer is reused across calls.
func (e *Encoder) EncodeFrame(cfg StreamConfig, state *PhasorState, srcMAC []byte, startSmpCnt uint16, tickSeq uint64) ([]byte, error) {
	const op = "sv.Encoder.EncodeFrame"
	channels := ChannelOrder(cfg.NChannels)

	asdus := e.asduBuf[:0]
	var err error
	for i := 0; i < cfg.NASDU; i++ {
		smpCnt := uint16((uint32(startSmpCnt) + uint32(i)) % 65536)
		// tickSeq already counts samples, not frames: the runtime advances
		// it once per ASDU, so the burst continues at tickSeq+i.
		k := int64(tickSeq) + int64(i)
		asdus, err = e.encodeASDU(asdus, cfg, state, channels, smpCnt, k, 0)
		if err != nil {
			return nil, errs.New(errs.KindInternal, op, err)
		}
	}
	e.asduBuf = asdus

	pdu := e.pduBuf[:0]
	var noASDUBytes [1]byte
	noASDUBytes[0] = byte(cfg.NASDU)
	pdu, err = ber.AppendTLV(pdu, ber.TagNoASDU, noASDUBytes[:])
	if err != nil {
		return nil, errs.New(errs.KindInternal, op, err)
	}
	pdu, err = ber.AppendTLV(pdu, ber.TagSeqOfASDU, asdus)
	if err != nil {
		return nil, errs.New(errs.KindInternal, op, err)
	}
	e.pduBuf = pdu

	savPdu, err := ber.AppendTLV(e.savPduBuf[:0], ber.TagSavPDU, pdu)
	if err != nil {
		return nil, errs.New(errs.KindInternal, op, err)
	}
	e.savPduBuf = savPdu

	e.buf = e.buf[:0]
	e.buf = append(e.buf, cfg.MACDst...)
	e.buf = append(e.buf, srcMAC...)

	var tpidBytes, tciBytes, etBytes, appIDBytes, lenBytes [2]byte
	binary.BigEndian.PutUint16(tpidBytes[:], tpid8021Q)
	binary.BigEndian.PutUint16(tciBytes[:], cfg.TCI())
	binary.BigEndian.PutUint16(etBytes[:], etherTypeSV)
	binary.BigEndian.PutUint16(appIDBytes[:], cfg.AppID)

	// length = bytes from appId through end of savPdu inclusive.
	pduLen := 2 /*appId*/ + 2 /*length*/ + 2 /*reserved1*/ + 2 /*reserved2*/ + len(savPdu)
	if pduLen > 0xFFFF {
		return nil, errs.New(errs.KindTooLarge, op, nil)
	}
	binary.BigEndian.PutUint16(lenBytes[:], uint16(pduLen))

	e.buf = append(e.buf, tpidBytes[:]...)
	e.buf = append(e.buf, tciBytes[:]...)
	e.buf = append(e.buf, etBytes[:]...)
	e.buf = append(e.buf, appIDBytes[:]...)
	e.buf = append(e.buf, lenBytes[:]...)
	e.buf = append(e.buf, 0, 0) // reserved1
	e.buf = append(e.buf, 0, 0) // reserved2
	e.buf = append(e.buf, savPdu...)

	return e.buf, nil
}
