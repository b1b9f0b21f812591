package bridge

import (
	"github.com/driftdb/pgwasm/errors"
	"github.com/driftdb/pgwasm/wire"
)

const (
	// accumulatorFloor is the capacity the inbound accumulator keeps between
	// requests so steady-state traffic never reallocates.
	accumulatorFloor = 64 << 10

	// accumulatorCeiling is the hard growth limit. A request whose engine
	// output would exceed it fails closed instead of growing unbounded.
	accumulatorCeiling = 1 << 30
)

// stream simulates the socket the engine believes it is talking to. The
// outbound buffer holds one fully-encoded request and lives for exactly one
// request; the inbound accumulator collects everything the engine writes
// during the blocking call and is reset, not reallocated, between requests.
//
// All state here is mutated only while the bridge's serializer is held.
type stream struct {
	decoder *wire.Decoder

	// out is the host-prepared request the engine reads; off is the current
	// read position. Set by beginRequest, cleared by endRequest.
	out []byte
	off int

	// in accumulates the engine's output for the current request.
	in []byte

	// decodeErr is the first frame decode error of the current request.
	// Once set, later chunks still accumulate but are no longer decoded.
	decodeErr error

	// fault is a fatal bridge-internal error (capacity ceiling, corrupted
	// state) for the current request.
	fault error
}

func newStream(onMessage func(wire.Message)) *stream {
	return &stream{
		decoder: wire.NewDecoder(onMessage),
		in:      make([]byte, 0, accumulatorFloor),
	}
}

// beginRequest installs the outbound buffer and defensively resets all
// offsets and per-request state, regardless of how the previous request
// ended.
func (s *stream) beginRequest(out []byte) {
	s.out = out
	s.off = 0
	s.in = s.in[:0]
	s.decodeErr = nil
	s.fault = nil
	s.decoder.Reset()
}

// endRequest drops the outbound buffer; its lifetime is exactly one request.
func (s *stream) endRequest() {
	s.out = nil
	s.off = 0
}

// leftover reports undecoded trailing bytes after a request completed; a
// nonzero value means the engine ended its round mid-frame.
func (s *stream) leftover() int {
	return s.decoder.Buffered()
}

// EngineWrite implements pgwasm.StreamIO. It copies the engine's chunk into
// the inbound accumulator, growing geometrically up to the ceiling, and
// feeds the chunk straight into the frame decoder so message handling
// overlaps byte delivery.
func (s *stream) EngineWrite(p []byte) int {
	if s.fault != nil {
		return -1
	}

	need := len(s.in) + len(p)
	if need > accumulatorCeiling {
		s.fault = errors.Capacity(errors.PhaseBridge, need, accumulatorCeiling)
		return -1
	}
	if need > cap(s.in) {
		newCap := cap(s.in) * 2
		if newCap < accumulatorFloor {
			newCap = accumulatorFloor
		}
		for newCap < need {
			newCap *= 2
		}
		if newCap > accumulatorCeiling {
			newCap = accumulatorCeiling
		}
		grown := make([]byte, len(s.in), newCap)
		copy(grown, s.in)
		s.in = grown
	}
	s.in = append(s.in, p...)

	if s.decodeErr == nil {
		if err := s.decoder.Write(p); err != nil {
			s.decodeErr = err
		}
	}
	return len(p)
}

// EngineRead implements pgwasm.StreamIO. It returns the next span of the
// outbound buffer without copying and advances the read offset; an empty
// result signals end-of-input for this request.
func (s *stream) EngineRead(max int) []byte {
	if s.off >= len(s.out) || max <= 0 {
		return nil
	}
	end := s.off + max
	if end > len(s.out) {
		end = len(s.out)
	}
	chunk := s.out[s.off:end]
	s.off = end
	return chunk
}
