package goose

import (
	"fmt"
	"sync"
	"time"

	"github.com/virtualtestset/vpac/pkg/sink"
	"github.com/virtualtestset/vpac/pkg/telemetry"
)

// Evaluator is invoked after a state change has been applied to the data
// map, so it is guaranteed to observe that change.
type Evaluator interface {
	Evaluate() (ruleName string, ok bool)
}

// dedupKey identifies one (gocbRef, stNum, sqNum) observation.
type dedupKey struct {
	gocbRef string
	stNum   uint32
	sqNum   uint32
}

// Subscriber reads GOOSE frames from a packet sink, decodes them, performs
// duplicate/state-change detection, and maintains the live data-object
// value map.
type Subscriber struct {
	conn sink.Sink
	log  *telemetry.Logger
	met  *telemetry.Metrics
	eval Evaluator

	mu          sync.RWMutex
	points      map[string]*DataPoint
	expectedSeq map[string]uint32 // gocbRef -> expected sqNum
	lastStNum   map[string]uint32 // gocbRef -> last observed stNum
	seen        map[dedupKey]struct{}
	parseErrors uint64
	duplicates  uint64
}

// NewSubscriber binds a Subscriber to an already-open receive sink.
func NewSubscriber(conn sink.Sink, eval Evaluator, log *telemetry.Logger, met *telemetry.Metrics) *Subscriber {
	if log == nil {
		log = telemetry.Nop()
	}
	return &Subscriber{
		conn:        conn,
		log:         log,
		met:         met,
		eval:        eval,
		points:      make(map[string]*DataPoint),
		expectedSeq: make(map[string]uint32),
		lastStNum:   make(map[string]uint32),
		seen:        make(map[dedupKey]struct{}),
	}
}

// ParseErrors returns the count of frames rejected by the decoder.
func (s *Subscriber) ParseErrors() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.parseErrors
}

// Duplicates returns the count of frames dropped as duplicates.
func (s *Subscriber) Duplicates() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.duplicates
}

// Point returns the current value at key "<gocbRef>[index]", if any.
func (s *Subscriber) Point(key string) (DataPoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.points[key]
	if !ok {
		return DataPoint{}, false
	}
	return *p, true
}

// UpdateDataPoint sets a data point directly, bypassing the receive loop.
// Used only in unit tests.
func (s *Subscriber) UpdateDataPoint(key string, v Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyPointLocked(key, v)
}

func (s *Subscriber) applyPointLocked(key string, v Value) {
	p, ok := s.points[key]
	if !ok {
		p = &DataPoint{}
		s.points[key] = p
	}
	p.ArrivalCount++
	p.LastChangeCount++
	p.Value = v
}

// Run reads frames from conn until stopCh closes, decoding and applying
// each one. Receive timeouts are not errors.
func (s *Subscriber) Run(stopCh <-chan struct{}, readTimeout time.Duration) {
	for {
		select {
		case <-stopCh:
			return
		default:
		}

		frame, err := s.conn.Read(readTimeout)
		if err != nil {
			s.log.Warn("goose subscriber read error", "error", err)
			continue
		}
		if frame == nil {
			continue // timeout
		}
		s.HandleFrame(frame)
	}
}

// HandleFrame decodes and applies one received frame. It is exported so
// tests and in-process buses can feed frames without a real Run loop.
func (s *Subscriber) HandleFrame(frame []byte) {
	pdu, err := Decode(frame)
	if err != nil {
		s.mu.Lock()
		s.parseErrors++
		s.mu.Unlock()
		if s.met != nil {
			s.met.GooseParseErrors.Inc()
		}
		return
	}
	if s.met != nil {
		s.met.GooseFramesRecv.Inc()
	}
	s.apply(pdu)
}

func (s *Subscriber) apply(pdu *PDU) {
	s.mu.Lock()

	key := dedupKey{gocbRef: pdu.GocbRef, stNum: pdu.StNum, sqNum: pdu.SqNum}
	if _, dup := s.seen[key]; dup {
		s.duplicates++
		s.mu.Unlock()
		if s.met != nil {
			s.met.GooseDuplicates.Inc()
		}
		return
	}
	s.seen[key] = struct{}{}

	lastSt, known := s.lastStNum[pdu.GocbRef]
	stateChange := !known || pdu.StNum != lastSt
	if stateChange {
		s.lastStNum[pdu.GocbRef] = pdu.StNum
		s.expectedSeq[pdu.GocbRef] = 0
	}
	if known && pdu.SqNum != s.expectedSeq[pdu.GocbRef] {
		s.log.Debug("goose sequence gap",
			"gocb_ref", pdu.GocbRef, "st_num", pdu.StNum,
			"expected_sq", s.expectedSeq[pdu.GocbRef], "got_sq", pdu.SqNum)
	}
	s.expectedSeq[pdu.GocbRef] = pdu.SqNum + 1

	if stateChange {
		for i, v := range pdu.AllData {
			key := fmt.Sprintf("%s[%d]", pdu.GocbRef, i)
			s.applyPointLocked(key, v)
		}
	}
	s.mu.Unlock()

	if stateChange && s.eval != nil {
		s.eval.Evaluate()
	}
}
