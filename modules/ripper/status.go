package ripper

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Status is the now-playing state served on the status endpoint.
type Status struct {
	URL       string    `json:"url"`
	Station   string    `json:"station,omitempty"`
	Codec     string    `json:"codec,omitempty"`
	Framed    bool      `json:"framed"`
	Connected bool      `json:"connected"`
	Since     time.Time `json:"since,omitempty"`
	Title     string    `json:"title,omitempty"`
	Received  int64     `json:"received_bytes"`
}

func (r *Ripper) Status() Status {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	return r.status
}

func (r *Ripper) updateStatus(fn func(s *Status)) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	fn(&r.status)
}

// ServeHTTP writes the current Status as JSON.
func (r *Ripper) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(r.Status()); err != nil {
		r.logger.Error("error encoding status", "err", err)
	}
}

// ByteCountIEC formats b using binary prefixes, e.g. 1.5 MiB.
func ByteCountIEC(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
