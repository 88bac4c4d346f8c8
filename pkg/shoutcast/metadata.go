package shoutcast

import (
	"bytes"
	"maps"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Well known metadata keys.
const (
	StreamTitle = "StreamTitle"
	StreamURL   = "StreamUrl"
)

// Metadata represents one metadata block sent by the server, for example
// StreamTitle='Artist - Title';StreamUrl='';
type Metadata struct {
	Fields map[string]string
	Raw    []byte
}

// NewMetadata parses a raw metadata block. Blocks are NUL padded to a multiple
// of 16 bytes. Text that is not valid UTF-8 is decoded as ISO-8859-1, which is
// what most Shoutcast servers send.
func NewMetadata(raw []byte) *Metadata {
	m := &Metadata{
		Fields: make(map[string]string),
		Raw:    raw,
	}

	text := decodeText(bytes.TrimRight(raw, "\x00"))

	for len(text) > 0 {
		eq := strings.IndexByte(text, '=')
		if eq < 0 {
			break
		}
		key := strings.TrimSpace(text[:eq])
		text = text[eq+1:]

		var value string
		if strings.HasPrefix(text, "'") {
			// Values may contain quotes and semicolons, so the value ends at
			// the first "';" or the final quote.
			end := strings.Index(text[1:], "';")
			if end < 0 {
				value = strings.TrimSuffix(text[1:], "'")
				text = ""
			} else {
				value = text[1 : end+1]
				text = text[end+3:]
			}
		} else {
			end := strings.IndexByte(text, ';')
			if end < 0 {
				value = text
				text = ""
			} else {
				value = text[:end]
				text = text[end+1:]
			}
		}

		if key != "" {
			m.Fields[key] = strings.TrimSpace(value)
		}
	}

	return m
}

func decodeText(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}

	s, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "�")
	}

	return string(s)
}

// StreamTitle returns the StreamTitle field.
func (m *Metadata) StreamTitle() string {
	return m.Fields[StreamTitle]
}

// StreamURL returns the StreamUrl field.
func (m *Metadata) StreamURL() string {
	return m.Fields[StreamURL]
}

// Equals compares the parsed fields of two metadata blocks.
func (m *Metadata) Equals(other *Metadata) bool {
	if m == nil || other == nil {
		return m == other
	}

	return maps.Equal(m.Fields, other.Fields)
}
