package shoutcast

import (
	"bytes"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// metaBlockScale is the multiplier applied to the metadata length byte.
const metaBlockScale = 16

// Result holds what a single Ingest call extracted from the stream.
type Result struct {
	// Audio is the concatenation of every audio segment completed by the call.
	Audio []byte

	// Metadata holds one entry per non-empty metadata block, in stream order.
	Metadata [][]byte

	// Offsets holds, for each metadata block, the number of Audio bytes that
	// preceded it.
	Offsets []int
}

// Empty reports whether the call produced neither audio nor metadata.
func (r Result) Empty() bool {
	return len(r.Audio) == 0 && len(r.Metadata) == 0
}

// Demuxer splits an ICY interleaved byte stream into audio and metadata.
//
// Every metaint audio bytes the server inserts one length byte L followed by
// L*16 bytes of metadata. Chunks may be cut anywhere; bytes that do not yet
// make up a complete cycle are carried over to the next call.
//
// A Demuxer is not safe for concurrent use.
type Demuxer struct {
	metaint int
	carry   []byte
}

// NewDemuxer returns a Demuxer for the given icy-metaint interval.
func NewDemuxer(metaint int) (*Demuxer, error) {
	if metaint <= 0 {
		return nil, pkgerrors.Wrapf(ErrConfiguration, "icy-metaint must be positive, got %d", metaint)
	}

	return &Demuxer{
		metaint: metaint,
		carry:   make([]byte, 0, metaint+1),
	}, nil
}

// MetaInt returns the interval the Demuxer was created with.
func (d *Demuxer) MetaInt() int {
	return d.metaint
}

// Pending returns the number of carried over bytes.
func (d *Demuxer) Pending() int {
	return len(d.carry)
}

// Ingest appends chunk to the carry buffer and extracts every complete cycle.
// The chunk is copied and may be reused by the caller.
func (d *Demuxer) Ingest(chunk []byte) Result {
	var res Result

	d.carry = append(d.carry, chunk...)

	off := 0
	for len(d.carry)-off > d.metaint {
		rest := d.carry[off:]

		metaLen := int(rest[d.metaint]) * metaBlockScale
		cycle := d.metaint + 1 + metaLen
		if len(rest) < cycle {
			break
		}

		res.Audio = append(res.Audio, rest[:d.metaint]...)
		if metaLen > 0 {
			res.Metadata = append(res.Metadata, bytes.Clone(rest[d.metaint+1:cycle]))
			res.Offsets = append(res.Offsets, len(res.Audio))
		}

		off += cycle
	}

	if off > 0 {
		n := copy(d.carry, d.carry[off:])
		d.carry = d.carry[:n]
	}

	return res
}

// Close ends the session. If the stream stopped inside a cycle the pending
// bytes are dropped and ErrTruncated is returned; the Demuxer is reset either
// way.
func (d *Demuxer) Close() error {
	pending := len(d.carry)
	d.Reset()

	if pending > 0 {
		return fmt.Errorf("%w: dropped %d bytes", ErrTruncated, pending)
	}

	return nil
}

// Reset discards any carried over bytes.
func (d *Demuxer) Reset() {
	d.carry = d.carry[:0]
}
