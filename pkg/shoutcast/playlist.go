package shoutcast

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// maxPlaylistSize bounds how much of a non-stream response is inspected.
const maxPlaylistSize = 64 * 1024

// parsePLS returns the first FileN= entry of a PLS playlist.
func parsePLS(body string) (string, error) {
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		key, value, ok := strings.Cut(line, "=")
		if !ok || !strings.HasPrefix(strings.ToLower(key), "file") {
			continue
		}
		if url := strings.TrimSpace(value); url != "" {
			return url, nil
		}
	}

	return "", fmt.Errorf("no stream URL found in PLS playlist")
}

// parseM3U returns the first http(s) entry of an M3U playlist.
func parseM3U(body string) (string, error) {
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if isHTTPURL(line) {
			return line, nil
		}
	}

	return "", fmt.Errorf("no stream URL found in M3U playlist")
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func isPlaylist(url, contentType, content string) (pls bool, m3u bool) {
	pls = strings.Contains(contentType, "audio/x-scpls") ||
		strings.Contains(contentType, "application/pls+xml") ||
		strings.HasSuffix(url, ".pls") ||
		strings.Contains(content, "[playlist]") ||
		strings.Contains(content, "File1=")

	m3u = strings.Contains(contentType, "audio/mpegurl") ||
		strings.Contains(contentType, "audio/x-mpegurl") ||
		strings.Contains(contentType, "application/vnd.apple.mpegurl") ||
		strings.HasSuffix(url, ".m3u") ||
		strings.HasSuffix(url, ".m3u8") ||
		strings.Contains(content, "#EXTM3U") ||
		isHTTPURL(strings.TrimSpace(content))

	return pls, m3u
}

// resolvePlaylistURL checks if the URL is a playlist file and resolves it to a stream URL
func resolvePlaylistURL(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Add("accept", "*/*")
	req.Header.Add("user-agent", userAgent)
	req.Header.Add("icy-metadata", "1")

	dialer := &net.Dialer{Timeout: 5 * time.Second}
	transport := &http.Transport{DialContext: dialer.DialContext}
	client := &http.Client{Transport: transport, Timeout: 10 * time.Second}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	// Already a stream, don't read the body.
	if resp.Header.Get("icy-metaint") != "" {
		return url, nil
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "audio/") && !strings.Contains(contentType, "url") && !strings.Contains(contentType, "scpls") {
		return url, nil
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPlaylistSize))
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	content := string(data)

	pls, m3u := isPlaylist(url, contentType, content)
	switch {
	case pls:
		streamURL, err := parsePLS(content)
		if err != nil {
			return "", fmt.Errorf("failed to parse PLS playlist: %w", err)
		}
		return streamURL, nil
	case m3u:
		streamURL, err := parseM3U(content)
		if err != nil {
			return "", fmt.Errorf("failed to parse M3U playlist: %w", err)
		}
		return streamURL, nil
	}

	return "", fmt.Errorf("URL does not appear to be a stream or playlist (Content-Type: %s)", contentType)
}
