package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zachfi/icystream/pkg/adts"
	"github.com/zachfi/icystream/pkg/shoutcast"
)

func makeFrame(n int, fill byte) []byte {
	f := make([]byte, n)
	f[0] = 0xFF
	f[1] = 0xF1
	f[2] = (1 << 6) | (4 << 2)
	f[3] = (2 << 6) | byte((n>>11)&0x03)
	f[4] = byte((n >> 3) & 0xFF)
	f[5] = byte((n&0x07)<<5) | 0x1F
	f[6] = 0xFC
	for i := adts.HeaderLength; i < n; i++ {
		f[i] = fill
	}
	return f
}

// interleave inserts a metadata block every metaint bytes of audio. The
// title is announced on the first cycle only.
func interleave(audio []byte, metaint int, title string) []byte {
	var out []byte
	for i := 0; i+metaint <= len(audio); i += metaint {
		out = append(out, audio[i:i+metaint]...)
		if i == 0 {
			meta := []byte("StreamTitle='" + title + "';")
			blocks := (len(meta) + 15) / 16
			out = append(out, byte(blocks))
			out = append(out, meta...)
			out = append(out, make([]byte, blocks*16-len(meta))...)
		} else {
			out = append(out, 0)
		}
	}
	return out
}

func aacAudio(frames, size int) []byte {
	var b []byte
	for i := 0; i < frames; i++ {
		b = append(b, makeFrame(size, byte(i))...)
	}
	return b
}

func TestNew(t *testing.T) {
	cases := map[string]struct {
		cfg     Config
		wantErr error
	}{
		"raw any codec":      {cfg: Config{MetaInt: "8192", ContentType: "audio/mpeg"}},
		"framed aac":         {cfg: Config{MetaInt: "8192", ContentType: "audio/aac", Framed: true}},
		"framed aac params":  {cfg: Config{MetaInt: "8192", ContentType: "audio/aac; charset=binary", Framed: true}},
		"missing metaint":    {cfg: Config{ContentType: "audio/aac"}, wantErr: shoutcast.ErrConfiguration},
		"bad metaint":        {cfg: Config{MetaInt: "x", ContentType: "audio/aac"}, wantErr: shoutcast.ErrConfiguration},
		"framed no codec":    {cfg: Config{MetaInt: "8192", Framed: true}, wantErr: shoutcast.ErrConfiguration},
		"framed unsupported": {cfg: Config{MetaInt: "8192", ContentType: "audio/mpeg", Framed: true}, wantErr: ErrUnsupportedCodec},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			s, err := New(tc.cfg)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				assert.Nil(t, s)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.cfg.Framed, s.Framed())
		})
	}
}

func TestFeedFramed(t *testing.T) {
	const metaint = 1000
	audio := aacAudio(60, 2000)
	stream := interleave(audio, metaint, "Artist - Title")

	s, err := New(Config{MetaInt: "1000", ContentType: CodecAAC, Framed: true})
	require.NoError(t, err)

	var raw, framed []byte
	var meta [][]byte
	for i := 0; i < len(stream); i += 333 {
		ev, err := s.Feed(stream[i:min(i+333, len(stream))])
		require.NoError(t, err)
		raw = append(raw, ev.Audio...)
		framed = append(framed, ev.Frames...)
		meta = append(meta, ev.Metadata...)
	}

	ev, err := s.Close()
	require.NoError(t, err)
	framed = append(framed, ev.Frames...)

	assert.Equal(t, audio, raw)
	assert.Equal(t, audio, framed)
	require.Len(t, meta, 1)
	assert.Equal(t, "Artist - Title", shoutcast.NewMetadata(meta[0]).StreamTitle())
}

func TestFeedFlushOnMetadata(t *testing.T) {
	before := aacAudio(3, 1000)
	after := aacAudio(2, 1000)

	var stream []byte
	for i, cycle := range [][]byte{before[:1000], before[1000:2000], before[2000:], after[:1000], after[1000:]} {
		stream = append(stream, cycle...)
		if i != 2 {
			stream = append(stream, 0)
			continue
		}
		meta := []byte("StreamTitle='Next';")
		stream = append(stream, 2)
		stream = append(stream, meta...)
		stream = append(stream, make([]byte, 32-len(meta))...)
	}

	s, err := New(Config{MetaInt: "1000", ContentType: CodecAAC, Framed: true, FlushOnMetadata: true})
	require.NoError(t, err)

	ev, err := s.Feed(stream)
	require.NoError(t, err)
	assert.Len(t, ev.Audio, 5000)
	assert.Equal(t, []int{3000}, ev.Offsets)
	assert.Equal(t, before, ev.Frames)

	// Without metadata nothing is emitted below the threshold.
	ev, err = s.Feed(nil)
	require.NoError(t, err)
	assert.Nil(t, ev.Frames)

	ev, err = s.Close()
	require.NoError(t, err)
	assert.Equal(t, after, ev.Frames)
}

func TestFeedSyncError(t *testing.T) {
	s, err := New(Config{MetaInt: "4", ContentType: CodecAAC, Framed: true})
	require.NoError(t, err)

	ev, err := s.Feed([]byte{0x00, 0x01, 0x02, 0x03, 0})
	require.ErrorIs(t, err, adts.ErrSync)
	assert.Equal(t, []byte{0x00, 0x01, 0x02, 0x03}, ev.Audio)
	assert.Nil(t, ev.Frames)
	assert.Equal(t, "00010203", s.HeaderDump())

	// Fatal until reset.
	_, err = s.Feed(nil)
	require.ErrorIs(t, err, adts.ErrSync)

	s.Reset()
	_, err = s.Feed(nil)
	require.NoError(t, err)
}

func TestFeedResync(t *testing.T) {
	frame := makeFrame(12, 7)
	audio := append([]byte{0x01, 0x02, 0x03, 0x04}, frame...)
	stream := interleave(audio, 4, "x")

	s, err := New(Config{MetaInt: "4", ContentType: CodecAAC, Framed: true, Resync: true})
	require.NoError(t, err)

	ev, err := s.Feed(stream)
	require.NoError(t, err)
	assert.Equal(t, int64(4), ev.Dropped)

	ev, err = s.Close()
	require.NoError(t, err)
	assert.Equal(t, frame, ev.Frames)
}

func TestPump(t *testing.T) {
	audio := aacAudio(50, 1800)
	stream := interleave(audio, 900, "Song")

	s, err := New(Config{MetaInt: "900", ContentType: CodecAAC, Framed: true, ChunkSize: 512})
	require.NoError(t, err)

	var raw, framed []byte
	var titles []string
	err = s.Pump(context.Background(), iotest.HalfReader(bytes.NewReader(stream)), func(ev Events) error {
		raw = append(raw, ev.Audio...)
		framed = append(framed, ev.Frames...)
		for _, m := range ev.Metadata {
			titles = append(titles, shoutcast.NewMetadata(m).StreamTitle())
		}
		return nil
	})
	require.NoError(t, err)

	ev, err := s.Close()
	require.NoError(t, err)
	framed = append(framed, ev.Frames...)

	assert.Equal(t, audio, raw)
	assert.Equal(t, audio, framed)
	assert.Equal(t, []string{"Song"}, titles)
}

func TestPumpTruncated(t *testing.T) {
	stream := interleave(bytes.Repeat([]byte{1}, 40), 10, "t")
	stream = append(stream, 2, 2, 2)

	s, err := New(Config{MetaInt: "10"})
	require.NoError(t, err)

	var raw []byte
	err = s.Pump(context.Background(), bytes.NewReader(stream), func(ev Events) error {
		raw = append(raw, ev.Audio...)
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, raw, 40)

	_, err = s.Close()
	require.ErrorIs(t, err, shoutcast.ErrTruncated)
}

func TestPumpHandlerError(t *testing.T) {
	stream := interleave(bytes.Repeat([]byte{1}, 40), 10, "t")

	s, err := New(Config{MetaInt: "10", ChunkSize: 11})
	require.NoError(t, err)

	stop := errors.New("stop")
	err = s.Pump(context.Background(), bytes.NewReader(stream), func(Events) error {
		return stop
	})
	require.ErrorIs(t, err, stop)
}

func TestPumpReadError(t *testing.T) {
	s, err := New(Config{MetaInt: "10"})
	require.NoError(t, err)

	boom := errors.New("connection reset")
	err = s.Pump(context.Background(), iotest.ErrReader(boom), func(Events) error { return nil })
	require.ErrorIs(t, err, boom)
}

func TestPumpCancelled(t *testing.T) {
	s, err := New(Config{MetaInt: "10"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, w := io.Pipe()
	defer w.Close()

	err = s.Pump(ctx, r, func(Events) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}

func TestCodec(t *testing.T) {
	assert.Equal(t, "audio/aac", Codec("audio/aac"))
	assert.Equal(t, "audio/aac", Codec("Audio/AAC; foo=bar"))
	assert.Equal(t, "", Codec(""))
}
