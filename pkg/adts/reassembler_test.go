package adts

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeFrame builds an AAC-LC 44.1kHz stereo ADTS frame of n bytes in total.
func makeFrame(n int, fill byte) []byte {
	f := make([]byte, n)
	f[0] = 0xFF
	f[1] = 0xF1
	f[2] = (1 << 6) | (4 << 2)
	f[3] = (2 << 6) | byte((n>>11)&0x03)
	f[4] = byte((n >> 3) & 0xFF)
	f[5] = byte((n&0x07)<<5) | 0x1F
	f[6] = 0xFC
	for i := HeaderLength; i < n; i++ {
		f[i] = fill
	}
	return f
}

func concat(frames ...[]byte) []byte {
	return bytes.Join(frames, nil)
}

func TestFrameLength(t *testing.T) {
	for _, n := range []int{7, 8, 100, 2047, 2048, 8191} {
		assert.Equal(t, n, frameLength(makeFrame(n, 0)), "length %d", n)
	}
}

func TestBuildByteByByte(t *testing.T) {
	var frames [][]byte
	for i := 0; i < 30; i++ {
		frames = append(frames, makeFrame(4000+i*13, byte(i)))
	}
	stream := concat(frames...)

	r := NewReassembler()
	var out []byte
	var batches int
	for i := range stream {
		batch, err := r.Build(stream[i : i+1])
		require.NoError(t, err)
		if batch != nil {
			assert.Greater(t, len(batch), EmitThreshold)
			out = append(out, batch...)
			batches++
		}
	}
	out = append(out, r.Flush()...)

	assert.Equal(t, 1, batches)
	assert.Equal(t, stream, out)
	assert.Zero(t, r.Pending())
	assert.Zero(t, r.Buffered())
}

func TestBuildBatchesHoldWholeFrames(t *testing.T) {
	var stream []byte
	for i := 0; i < 100; i++ {
		stream = append(stream, makeFrame(1500+i, byte(i))...)
	}

	r := NewReassembler()
	var out []byte
	for len(stream) > 0 {
		n := min(777, len(stream))
		batch, err := r.Build(stream[:n])
		require.NoError(t, err)
		stream = stream[n:]

		if batch == nil {
			continue
		}
		// Walk the batch frame by frame, it must end exactly on a boundary.
		for b := batch; len(b) > 0; {
			require.True(t, validSync(b))
			n := frameLength(b)
			require.LessOrEqual(t, n, len(b))
			b = b[n:]
		}
		out = append(out, batch...)
	}

	assert.NotEmpty(t, out)
}

func TestBuildThreshold(t *testing.T) {
	t.Run("exactly the threshold does not emit", func(t *testing.T) {
		r := NewReassembler()
		for i := 0; i < 10; i++ {
			batch, err := r.Build(makeFrame(8000, 1))
			require.NoError(t, err)
			require.Nil(t, batch)
		}
		assert.Equal(t, EmitThreshold, r.Buffered())
	})

	t.Run("one byte over emits", func(t *testing.T) {
		r := NewReassembler()
		for i := 0; i < 9; i++ {
			batch, err := r.Build(makeFrame(8000, 1))
			require.NoError(t, err)
			require.Nil(t, batch)
		}
		batch, err := r.Build(makeFrame(8001, 2))
		require.NoError(t, err)
		assert.Len(t, batch, EmitThreshold+1)
		assert.Zero(t, r.Buffered())
	})
}

func TestBuildSyncError(t *testing.T) {
	r := NewReassembler()

	batch, err := r.Build([]byte{0x12, 0x34, 0x56})
	require.Error(t, err)
	assert.Nil(t, batch)
	assert.True(t, errors.Is(err, ErrSync))

	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, [2]byte{0x12, 0x34}, syncErr.Header)
	assert.Contains(t, err.Error(), "1234")
}

func TestBuildSyncErrorAfterFrames(t *testing.T) {
	r := NewReassembler(WithThreshold(10))

	stream := concat(makeFrame(20, 1), []byte{0xFF, 0x00, 0x00})
	batch, err := r.Build(stream)
	require.ErrorIs(t, err, ErrSync)
	assert.Nil(t, batch)

	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, int64(20), syncErr.Offset)
}

func TestBuildShortFrameLength(t *testing.T) {
	r := NewReassembler()

	f := makeFrame(7, 0)
	f[3], f[4], f[5] = 0, 0, 0

	_, err := r.Build(f)
	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, 0, syncErr.Length)
	assert.Contains(t, err.Error(), "length")
}

func TestBuildLayerBitsRejected(t *testing.T) {
	r := NewReassembler()

	// 0xF7 sets the layer bits, which must be zero.
	_, err := r.Build([]byte{0xFF, 0xF7})
	require.ErrorIs(t, err, ErrSync)
}

func TestBuildEmptySegment(t *testing.T) {
	r := NewReassembler(WithThreshold(10))

	frame := makeFrame(20, 3)
	batch, err := r.Build(frame[:5])
	require.NoError(t, err)
	require.Nil(t, batch)

	batch, err = r.Build(nil)
	require.NoError(t, err)
	require.Nil(t, batch)
	assert.Equal(t, 5, r.Pending())

	batch, err = r.Build(frame[5:])
	require.NoError(t, err)
	assert.Equal(t, frame, batch)
}

func TestBuildSingleByte(t *testing.T) {
	r := NewReassembler()

	// One byte can't be validated yet, even when it is not 0xFF.
	batch, err := r.Build([]byte{0x00})
	require.NoError(t, err)
	assert.Nil(t, batch)
}

func TestBuildResync(t *testing.T) {
	r := NewReassembler(WithResync(), WithThreshold(0))

	garbage := []byte{0x01, 0x02, 0xFF, 0x03}
	frame := makeFrame(50, 9)

	var out []byte
	for _, seg := range [][]byte{garbage, frame[:1], frame[1:], garbage[:2], frame} {
		batch, err := r.Build(seg)
		require.NoError(t, err)
		out = append(out, batch...)
	}

	assert.Equal(t, concat(frame, frame), out)
	assert.Equal(t, int64(6), r.Dropped())
}

func TestFindSync(t *testing.T) {
	assert.Equal(t, -1, FindSync(nil))
	assert.Equal(t, -1, FindSync([]byte{0xFF}))
	assert.Equal(t, 2, FindSync([]byte{0x00, 0xFF, 0xFF, 0xF1}))
	assert.Equal(t, 0, FindSync(makeFrame(10, 0)))
}

func TestReset(t *testing.T) {
	r := NewReassembler()

	_, err := r.Build([]byte{0x00, 0x00})
	require.Error(t, err)

	r.Reset()
	frame := makeFrame(30, 1)
	_, err = r.Build(frame)
	require.NoError(t, err)
	assert.Equal(t, frame, r.Flush())
	assert.Equal(t, "", r.HeaderDump())
}
