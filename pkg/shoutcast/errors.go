package shoutcast

import (
	"errors"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

var (
	// ErrConfiguration is returned when the stream cannot be demultiplexed with
	// the negotiated parameters, for example a missing icy-metaint header.
	ErrConfiguration = errors.New("invalid stream configuration")

	// ErrStreamFormat is returned when the interleaved stream is malformed.
	ErrStreamFormat = errors.New("malformed icy stream")

	// ErrTruncated is returned by Demuxer.Close when the stream ended inside a
	// cycle. The incomplete tail is dropped.
	ErrTruncated = pkgerrors.Wrap(ErrStreamFormat, "stream ended mid-cycle")
)

// ParseMetaInt parses the value of the icy-metaint response header.
func ParseMetaInt(raw string) (int, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return 0, pkgerrors.Wrap(ErrConfiguration, "icy-metaint not specified")
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, pkgerrors.Wrapf(ErrConfiguration, "cannot parse icy-metaint %q", value)
	}

	if n <= 0 {
		return 0, pkgerrors.Wrapf(ErrConfiguration, "icy-metaint must be positive, got %d", n)
	}

	return n, nil
}
