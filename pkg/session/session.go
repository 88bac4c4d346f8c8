// Package session wires an ICY demultiplexer to an ADTS reassembler for one
// streaming session.
package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"github.com/zachfi/icystream/pkg/adts"
	"github.com/zachfi/icystream/pkg/shoutcast"
)

// CodecAAC is the only codec that can be framed.
const CodecAAC = "audio/aac"

// DefaultChunkSize is the read size used by Pump.
const DefaultChunkSize = 16 * 1024

// ErrUnsupportedCodec is returned when framing is requested for a codec
// without a frame reassembler.
var ErrUnsupportedCodec = errors.New("unsupported codec")

type Config struct {
	// MetaInt is the raw icy-metaint header value.
	MetaInt string

	// ContentType is the negotiated codec.
	ContentType string

	// Framed enables ADTS reassembly of the audio.
	Framed bool

	// Resync skips invalid frame headers instead of failing.
	Resync bool

	// FlushOnMetadata makes framed sessions split batches at metadata
	// blocks: Frames of an Events carrying metadata hold exactly the frames
	// completed before the last block, regardless of the emit threshold.
	FlushOnMetadata bool

	// ChunkSize is the read size used by Pump.
	ChunkSize int
}

// Events is everything produced by one chunk of the stream.
type Events struct {
	// Metadata holds the raw metadata blocks, one per announcement.
	Metadata [][]byte

	// Offsets holds, for each metadata block, the number of Audio bytes
	// that preceded it.
	Offsets []int

	// Audio is the demultiplexed, unframed audio.
	Audio []byte

	// Frames is a batch of complete ADTS frames, framed sessions only.
	Frames []byte

	// Dropped is the number of audio bytes skipped while resynchronising.
	Dropped int64
}

// Empty reports whether there is nothing to deliver.
func (e Events) Empty() bool {
	return len(e.Metadata) == 0 && len(e.Audio) == 0 && len(e.Frames) == 0 && e.Dropped == 0
}

// Session demultiplexes one stream. It is not safe for concurrent use; each
// connection gets its own Session.
type Session struct {
	cfg    Config
	demux  *shoutcast.Demuxer
	frames *adts.Reassembler

	// held is audio following a metadata block, fed to the reassembler on
	// the next call when FlushOnMetadata is set.
	held []byte

	dropped int64
	failed  error
}

// New validates the negotiated parameters and returns a Session.
func New(cfg Config) (*Session, error) {
	metaint, err := shoutcast.ParseMetaInt(cfg.MetaInt)
	if err != nil {
		return nil, err
	}

	demux, err := shoutcast.NewDemuxer(metaint)
	if err != nil {
		return nil, err
	}

	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}

	s := &Session{
		cfg:   cfg,
		demux: demux,
	}

	if cfg.Framed {
		codec := Codec(cfg.ContentType)
		if codec == "" {
			return nil, pkgerrors.Wrap(shoutcast.ErrConfiguration, "no media codec specified")
		}
		if codec != CodecAAC {
			return nil, pkgerrors.Wrapf(ErrUnsupportedCodec, "%q", codec)
		}

		var opts []adts.Option
		if cfg.Resync {
			opts = append(opts, adts.WithResync())
		}
		s.frames = adts.NewReassembler(opts...)
	}

	return s, nil
}

// Codec returns the media type of a Content-Type header without parameters.
func Codec(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mediaType
}

// Framed reports whether the session reassembles frames.
func (s *Session) Framed() bool {
	return s.frames != nil
}

// Feed processes one chunk in wire order. A frame sync error is fatal: every
// later call returns the same error until Reset.
func (s *Session) Feed(chunk []byte) (Events, error) {
	if s.failed != nil {
		return Events{}, s.failed
	}

	res := s.demux.Ingest(chunk)
	ev := Events{
		Metadata: res.Metadata,
		Offsets:  res.Offsets,
		Audio:    res.Audio,
	}

	if s.frames == nil {
		return ev, nil
	}

	audio := res.Audio
	split := s.cfg.FlushOnMetadata && len(res.Offsets) > 0
	if split {
		last := res.Offsets[len(res.Offsets)-1]
		audio = res.Audio[:last]
	}

	if len(s.held) > 0 {
		audio = append(s.held, audio...)
		s.held = nil
	}

	batch, err := s.build(audio)
	if err != nil {
		return ev, err
	}

	if split {
		batch = append(batch, s.frames.Flush()...)
		s.held = bytes.Clone(res.Audio[res.Offsets[len(res.Offsets)-1]:])
	}
	ev.Frames = batch

	if d := s.frames.Dropped(); d != s.dropped {
		ev.Dropped = d - s.dropped
		s.dropped = d
	}

	return ev, nil
}

func (s *Session) build(audio []byte) ([]byte, error) {
	if len(audio) == 0 {
		return nil, nil
	}

	batch, err := s.frames.Build(audio)
	if err != nil {
		s.failed = err
		return nil, err
	}

	return batch, nil
}

// Pump reads r in chunks and feeds them to the session until r is exhausted,
// ctx is done or fn fails. Reaching the end of r is not an error. The session
// is not closed.
func (s *Session) Pump(ctx context.Context, r io.Reader, fn func(Events) error) error {
	buf := make([]byte, s.cfg.ChunkSize)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, readErr := r.Read(buf)
		if n > 0 {
			ev, err := s.Feed(buf[:n])
			if !ev.Empty() {
				if fnErr := fn(ev); fnErr != nil {
					return fnErr
				}
			}
			if err != nil {
				return err
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil
			}
			return readErr
		}
	}
}

// Close ends the session, returning frames held below the emit threshold.
// If the stream stopped mid-cycle the error matches shoutcast.ErrTruncated;
// the events are valid regardless.
func (s *Session) Close() (Events, error) {
	var ev Events
	if s.frames != nil && s.failed == nil {
		batch, err := s.build(s.held)
		if err != nil {
			s.Reset()
			return ev, err
		}
		ev.Frames = append(batch, s.frames.Flush()...)
	}

	err := s.demux.Close()
	s.reset()

	return ev, err
}

// Reset discards all buffered state so the Session can serve a new
// connection with the same parameters.
func (s *Session) Reset() {
	s.demux.Reset()
	s.reset()
}

func (s *Session) reset() {
	if s.frames != nil {
		s.frames.Reset()
	}
	s.held = nil
	s.dropped = 0
	s.failed = nil
}

// HeaderDump returns the frame header at the front of the reassembler for
// diagnostics.
func (s *Session) HeaderDump() string {
	if s.frames == nil {
		return ""
	}
	return s.frames.HeaderDump()
}
