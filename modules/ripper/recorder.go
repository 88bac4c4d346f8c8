package ripper

import (
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/zachfi/icystream/pkg/session"
	"github.com/zachfi/icystream/pkg/shoutcast"
)

// minWriteBufSize and maxWriteBufSize clamp the configured write buffer to avoid
// tiny writes (no benefit) or very large buffers (memory and latency).
const (
	minWriteBufSize = 32 * 1024       // 32 KiB
	maxWriteBufSize = 4 * 1024 * 1024 // 4 MiB

	// maxSyncSearch is how much audio is held back looking for the first
	// frame of a recording.
	maxSyncSearch = 8192
)

// recorder writes the audio of one connection to a file per StreamTitle.
// Files are written to a temp file and committed on the next title change.
type recorder struct {
	logger *slog.Logger
	dir    string
	codec  codecInfo
	framed bool

	onTitle func(title string)

	writeBufSize int
	title        string
	f            *os.File
	destPath     string
	syncBuf      []byte // audio held until the first frame sync is found
	aligned      bool
	writeBuf     []byte
	skipped      int64
}

func newRecorder(cfg *Config, station, contentType string, logger *slog.Logger) *recorder {
	writeBufSize := cfg.WriteBufferSize
	if writeBufSize < minWriteBufSize {
		writeBufSize = minWriteBufSize
	}
	if writeBufSize > maxWriteBufSize {
		writeBufSize = maxWriteBufSize
	}

	if station == "" {
		station = "unknown"
	}

	return &recorder{
		logger:       logger,
		dir:          path.Join(cfg.Dir, sanitizeName(station)),
		codec:        lookupCodec(contentType, cfg.Framed),
		framed:       cfg.Framed,
		writeBufSize: writeBufSize,
		writeBuf:     make([]byte, 0, writeBufSize),
	}
}

// sanitizeName turns a stream title into something usable as a file name.
func sanitizeName(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', 0:
			return '_'
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, s)
	s = strings.Trim(strings.TrimSpace(s), ".")
	if s == "" {
		return "unknown"
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

// handle applies one batch of session events. Raw audio is split at the
// metadata offsets. Framed sessions flush on metadata, so the frames of a
// batch all precede its metadata.
func (r *recorder) handle(ev session.Events) error {
	if r.framed {
		if err := r.write(ev.Frames); err != nil {
			return err
		}
		for _, raw := range ev.Metadata {
			if err := r.announce(raw); err != nil {
				return err
			}
		}
		return nil
	}

	prev := 0
	for i, raw := range ev.Metadata {
		at := ev.Offsets[i]
		if err := r.write(ev.Audio[prev:at]); err != nil {
			return err
		}
		prev = at
		if err := r.announce(raw); err != nil {
			return err
		}
	}

	return r.write(ev.Audio[prev:])
}

// announce starts a new recording when the block carries a new title.
func (r *recorder) announce(raw []byte) error {
	title := shoutcast.NewMetadata(raw).StreamTitle()
	if title == "" || title == r.title {
		return nil
	}

	r.logger.Info("now listening to", "title", title)
	return r.rotate(title)
}

func (r *recorder) rotate(title string) error {
	r.closeAndCommit()

	r.title = title
	if r.onTitle != nil {
		r.onTitle(title)
	}

	if err := os.MkdirAll(r.dir, os.ModePerm); err != nil {
		r.logger.Error("error creating stream directory", "err", err)
		return err
	}

	f, err := os.CreateTemp(r.dir, "*"+r.codec.ext+".tmp")
	if err != nil {
		r.logger.Error("error creating temp file", "err", err)
		return err
	}

	r.f = f
	r.destPath = path.Join(r.dir, sanitizeName(title)+r.codec.ext)
	r.aligned = r.codec.findSync == nil
	r.logger.Debug("starting new recording", "path", r.destPath)

	return nil
}

func (r *recorder) write(b []byte) error {
	if len(b) == 0 {
		return nil
	}

	// Nothing is recorded until the first title is known.
	if r.f == nil {
		r.skipped += int64(len(b))
		return nil
	}

	if !r.aligned {
		r.syncBuf = append(r.syncBuf, b...)
		pos := r.codec.findSync(r.syncBuf)
		switch {
		case pos >= 0:
			b = r.syncBuf[pos:]
		case len(r.syncBuf) > maxSyncSearch:
			r.logger.Warn("no frame sync found, writing anyway", "searched", len(r.syncBuf))
			b = r.syncBuf
		default:
			return nil
		}
		r.aligned = true
		r.syncBuf = r.syncBuf[:0]
	}

	r.writeBuf = append(r.writeBuf, b...)
	if len(r.writeBuf) >= r.writeBufSize {
		return r.flush()
	}

	return nil
}

func (r *recorder) flush() error {
	if len(r.writeBuf) == 0 || r.f == nil {
		return nil
	}

	n, err := r.f.Write(r.writeBuf)
	writtenBytes.Add(float64(n))
	r.writeBuf = r.writeBuf[:0]
	if err != nil {
		r.logger.Error("error writing to file", "err", err)
		return err
	}

	return nil
}

// closeAndCommit flushes and closes the current file, then commits it.
func (r *recorder) closeAndCommit() {
	if r.f == nil {
		return
	}
	tempPath := r.f.Name()

	if len(r.syncBuf) > 0 {
		r.writeBuf = append(r.writeBuf, r.syncBuf...)
		r.syncBuf = r.syncBuf[:0]
	}
	_ = r.flush()

	if syncErr := r.f.Sync(); syncErr != nil {
		r.logger.Error("error syncing file", "err", syncErr)
	}
	if closeErr := r.f.Close(); closeErr != nil {
		r.logger.Error("error closing file", "err", closeErr)
	}
	r.f = nil

	r.commitTempFile(tempPath, r.destPath)
}

func (r *recorder) Close() {
	r.closeAndCommit()
	if r.skipped > 0 {
		r.logger.Debug("discarded audio received before the first title", "bytes", ByteCountIEC(r.skipped))
	}
}

// commitTempFile renames tempPath to destPath only if dest doesn't exist or
// the temp file is larger (so a previous crash doesn't overwrite a good recording).
func (r *recorder) commitTempFile(tempPath, destPath string) {
	tempInfo, err := os.Stat(tempPath)
	if err != nil {
		r.logger.Error("error stating temp file", "err", err, "path", tempPath)
		_ = os.Remove(tempPath)
		return
	}

	if tempInfo.Size() == 0 {
		_ = os.Remove(tempPath)
		recordings.WithLabelValues("empty").Inc()
		return
	}

	destInfo, err := os.Stat(destPath)
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Error("error stating dest file", "err", err, "path", destPath)
			_ = os.Remove(tempPath)
			return
		}
		if err := os.Rename(tempPath, destPath); err != nil {
			r.logger.Error("error renaming temp to dest", "err", err, "temp", tempPath, "dest", destPath)
			_ = os.Remove(tempPath)
			return
		}
		recordings.WithLabelValues("saved").Inc()
		r.logger.Debug("saved new recording", "path", destPath)
		return
	}

	if tempInfo.Size() > destInfo.Size() {
		if err := os.Rename(tempPath, destPath); err != nil {
			r.logger.Error("error renaming temp to dest", "err", err, "temp", tempPath, "dest", destPath)
			_ = os.Remove(tempPath)
			return
		}
		recordings.WithLabelValues("replaced").Inc()
		r.logger.Debug("overwrote with longer recording", "path", destPath, "size", tempInfo.Size())
	} else {
		_ = os.Remove(tempPath)
		recordings.WithLabelValues("discarded").Inc()
		r.logger.Debug("discarded shorter recording", "path", destPath, "temp_size", tempInfo.Size(), "existing_size", destInfo.Size())
	}
}
