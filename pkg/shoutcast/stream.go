package shoutcast

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"
)

const userAgent = "iTunes/12.9.2 (Macintosh; OS X 10.14.3) AppleWebKit/606.4.5"

// Stream represents an open shoutcast stream. Reads return the raw interleaved
// body; use a Demuxer, or a session built on top of one, to separate audio
// from metadata.
type Stream struct {
	// The name of the server
	Name string

	// What category the server falls under
	Genre string

	// The description of the stream
	Description string

	// Homepage of the server
	URL string

	// Bitrate of the server
	Bitrate int

	// Raw value of the icy-metaint header, validated by ParseMetaInt
	MetaInt string

	// Negotiated codec, taken from the Content-Type header
	ContentType string

	// The underlying data stream
	rc io.ReadCloser

	logger *slog.Logger
}

// streamClient has no overall timeout: the body is read indefinitely, only
// establishing the connection is bounded.
func streamClient() *http.Client {
	dialer := &net.Dialer{Timeout: 5 * time.Second}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ResponseHeaderTimeout: 10 * time.Second,
		DisableCompression:    true,
	}
	return &http.Client{Transport: transport}
}

// Open establishes a connection to a remote server.
// It automatically handles playlist files (.pls, .m3u) and resolves them to stream URLs.
func Open(ctx context.Context, url string, logger *slog.Logger) (*Stream, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("opening stream", "url", url)

	resolvedURL, err := resolvePlaylistURL(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve playlist URL: %w", err)
	}
	if resolvedURL != url {
		logger.Info("resolved playlist to stream URL", "url", resolvedURL)
		url = resolvedURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Add("accept", "*/*")
	req.Header.Add("user-agent", userAgent)
	req.Header.Add("icy-metadata", "1")

	resp, err := streamClient().Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	for k, v := range resp.Header {
		logger.Debug("http header", "key", k, "value", v[0])
	}

	var bitrate int
	if rawBitrate := resp.Header.Get("icy-br"); rawBitrate != "" {
		bitrate, err = strconv.Atoi(rawBitrate)
		if err != nil {
			logger.Warn("cannot parse bitrate", "value", rawBitrate, "err", err)
		}
	}

	return &Stream{
		Name:        resp.Header.Get("icy-name"),
		Genre:       resp.Header.Get("icy-genre"),
		Description: resp.Header.Get("icy-description"),
		URL:         resp.Header.Get("icy-url"),
		Bitrate:     bitrate,
		MetaInt:     resp.Header.Get("icy-metaint"),
		ContentType: resp.Header.Get("Content-Type"),
		rc:          resp.Body,
		logger:      logger,
	}, nil
}

// Read implements io.Reader over the raw interleaved body.
func (s *Stream) Read(buf []byte) (int, error) {
	return s.rc.Read(buf)
}

// Close closes the stream
func (s *Stream) Close() error {
	s.logger.Info("closing stream", "name", s.Name)
	return s.rc.Close()
}
