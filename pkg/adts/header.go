package adts

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// HeaderLength is the size of an ADTS header without CRC.
const HeaderLength = 7

// ErrSync is matched by every *SyncError.
var ErrSync = errors.New("invalid ADTS frame header")

// SyncError is returned when the bytes at a frame boundary are not an ADTS
// header.
type SyncError struct {
	// Header holds the first two bytes found at the boundary.
	Header [2]byte

	// Offset is the position of the boundary in the audio stream.
	Offset int64

	// Length is the decoded frame length when the sync word was valid but the
	// length was not.
	Length int
}

func (e *SyncError) Error() string {
	if validSync(e.Header[:]) {
		return fmt.Sprintf("invalid ADTS frame length %d at offset %d (header %s)", e.Length, e.Offset, hex.EncodeToString(e.Header[:]))
	}
	return fmt.Sprintf("invalid ADTS sync word %s at offset %d", hex.EncodeToString(e.Header[:]), e.Offset)
}

func (e *SyncError) Is(target error) bool {
	return target == ErrSync
}

// validSync checks the 12 bit sync word and the zero layer bits.
func validSync(b []byte) bool {
	return b[0] == 0xFF && b[1]&0xF6 == 0xF0
}

// frameLength reads the 13 bit aac_frame_length field, which includes the
// header. b must hold at least HeaderLength bytes.
func frameLength(b []byte) int {
	high := int(b[3]&0x03) << 11
	mid := int(b[4]) << 3
	low := int(b[5]) >> 5

	return high + mid + low
}

// FindSync returns the offset of the first ADTS sync word in data, or -1.
func FindSync(data []byte) int {
	for i := 0; i < len(data)-1; i++ {
		if validSync(data[i:]) {
			return i
		}
	}
	return -1
}

// Dump returns a hex rendering of b, used for logging headers.
func Dump(b []byte) string {
	return hex.EncodeToString(b)
}
