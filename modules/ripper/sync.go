package ripper

import (
	"github.com/zachfi/icystream/pkg/adts"
	"github.com/zachfi/icystream/pkg/session"
)

type codecInfo struct {
	ext string
	// findSync locates the first frame of a raw recording. nil writes from
	// the first byte.
	findSync func([]byte) int
}

var codecs = map[string]codecInfo{
	"audio/mpeg":      {ext: ".mp3", findSync: findMP3FrameSync},
	"audio/mp3":       {ext: ".mp3", findSync: findMP3FrameSync},
	"audio/aac":       {ext: ".aac", findSync: adts.FindSync},
	"audio/aacp":      {ext: ".aac", findSync: adts.FindSync},
	"audio/ogg":       {ext: ".ogg"},
	"application/ogg": {ext: ".ogg"},
	"audio/flac":      {ext: ".flac"},
}

func lookupCodec(contentType string, framed bool) codecInfo {
	if framed {
		// Batches always start on a frame boundary.
		return codecInfo{ext: ".aac"}
	}
	if c, ok := codecs[session.Codec(contentType)]; ok {
		return c
	}
	return codecInfo{ext: ".bin"}
}

// findMP3FrameSync finds the position of the first valid MP3 frame sync word.
// MP3 frame sync is: 0xFF followed by a byte whose high nibble is 0xE or 0xF.
// Returns -1 if not found.
func findMP3FrameSync(data []byte) int {
	for i := 0; i < len(data)-1; i++ {
		if data[i] == 0xFF && (data[i+1]&0xE0) == 0xE0 {
			return i
		}
	}
	return -1
}
