package adts

// EmitThreshold is the number of accumulated frame bytes that must be
// exceeded before a batch is returned.
const EmitThreshold = 80_000

// Option configures a Reassembler.
type Option func(*Reassembler)

// WithResync makes the Reassembler skip forward to the next sync word instead
// of failing on an invalid header. Skipped bytes are reported by Dropped.
func WithResync() Option {
	return func(r *Reassembler) {
		r.resync = true
	}
}

// WithThreshold overrides EmitThreshold.
func WithThreshold(n int) Option {
	return func(r *Reassembler) {
		r.threshold = n
	}
}

// Reassembler accumulates raw AAC audio into batches of complete ADTS frames.
// It is not safe for concurrent use.
type Reassembler struct {
	carry    []byte
	combined []byte

	threshold int
	resync    bool

	// offset is the stream position of carry[0].
	offset  int64
	dropped int64
}

// NewReassembler returns an empty Reassembler.
func NewReassembler(opts ...Option) *Reassembler {
	r := &Reassembler{
		threshold: EmitThreshold,
	}
	for _, o := range opts {
		o(r)
	}

	return r
}

// Build appends segment to the carry buffer and moves every complete frame to
// the combined buffer. Once the combined buffer exceeds the threshold it is
// returned and reset. Otherwise Build returns nil.
//
// An invalid header yields a *SyncError and no batch. Without WithResync the
// error is fatal to the session: the Reassembler should be Reset before reuse.
func (r *Reassembler) Build(segment []byte) ([]byte, error) {
	r.carry = append(r.carry, segment...)

	err := r.extract()
	if err != nil {
		return nil, err
	}

	if len(r.combined) > r.threshold {
		return r.take(), nil
	}

	return nil, nil
}

func (r *Reassembler) extract() error {
	off := 0
	defer func() {
		if off > 0 {
			n := copy(r.carry, r.carry[off:])
			r.carry = r.carry[:n]
			r.offset += int64(off)
		}
	}()

	for len(r.carry)-off >= 2 {
		rest := r.carry[off:]

		if !validSync(rest) {
			if !r.resync {
				return &SyncError{Header: [2]byte{rest[0], rest[1]}, Offset: r.offset + int64(off)}
			}
			off += r.skip(rest)
			continue
		}

		if len(rest) < HeaderLength {
			break
		}

		n := frameLength(rest)
		if n < HeaderLength {
			if !r.resync {
				return &SyncError{Header: [2]byte{rest[0], rest[1]}, Offset: r.offset + int64(off), Length: n}
			}
			off += r.skip(rest)
			continue
		}

		if len(rest) < n {
			break
		}

		r.combined = append(r.combined, rest[:n]...)
		off += n
	}

	return nil
}

// skip returns how many bytes of rest precede the next candidate sync word.
// A trailing 0xFF is kept since it may start a header in the next segment.
func (r *Reassembler) skip(rest []byte) int {
	n := 1
	if i := FindSync(rest[1:]); i >= 0 {
		n += i
	} else if rest[len(rest)-1] == 0xFF {
		n = len(rest) - 1
	} else {
		n = len(rest)
	}
	r.dropped += int64(n)

	return n
}

func (r *Reassembler) take() []byte {
	out := r.combined
	r.combined = nil
	return out
}

// Flush returns the frames accumulated below the threshold, if any. Bytes of
// an incomplete frame stay in the carry buffer.
func (r *Reassembler) Flush() []byte {
	if len(r.combined) == 0 {
		return nil
	}
	return r.take()
}

// Pending returns the number of bytes not yet resolved into frames.
func (r *Reassembler) Pending() int {
	return len(r.carry)
}

// Buffered returns the number of frame bytes waiting to be emitted.
func (r *Reassembler) Buffered() int {
	return len(r.combined)
}

// Dropped returns the number of bytes skipped while resynchronising.
func (r *Reassembler) Dropped() int64 {
	return r.dropped
}

// HeaderDump returns the hex encoded header at the front of the carry buffer.
func (r *Reassembler) HeaderDump() string {
	return Dump(r.carry[:min(len(r.carry), HeaderLength)])
}

// Reset clears both buffers and the counters.
func (r *Reassembler) Reset() {
	r.carry = r.carry[:0]
	r.combined = nil
	r.offset = 0
	r.dropped = 0
}
