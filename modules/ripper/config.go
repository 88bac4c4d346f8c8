package ripper

import (
	"flag"
	"time"

	"github.com/zachfi/zkit/pkg/util"
)

// Write buffer sizing guidance (write-buffer-size):
// - SSD wear: fewer, larger writes reduce I/O overhead; 256KiB–1MiB is a good range.
// - NFS: larger buffers amortize round-trip cost; 512KiB–1MiB often performs better than 256KiB.
// - Upper bound: config is clamped to 4MiB to limit memory and avoid huge single writes.
const (
	defaultWriteBufferSize  = 256 * 1024 // 256 KiB
	defaultReconnectInitial = 5 * time.Second
	defaultReconnectMax     = 60 * time.Second
	defaultQueueSize        = 1024
)

type Config struct {
	URL                 string        `yaml:"url,omitempty"`
	Dir                 string        `yaml:"dir,omitempty"`
	WriteBufferSize     int           `yaml:"write-buffer-size,omitempty"`     // bytes to buffer before writing (reduces write frequency)
	ReconnectBackoff    time.Duration `yaml:"reconnect-backoff,omitempty"`     // initial delay before reconnecting after disconnect
	ReconnectBackoffMax time.Duration `yaml:"reconnect-backoff-max,omitempty"` // cap on reconnect delay (exponential backoff)
	ReconnectMaxRetries int           `yaml:"reconnect-max-retries,omitempty"` // 0 retries forever
	Framed              bool          `yaml:"framed,omitempty"`                // write complete ADTS frames instead of raw audio (audio/aac only)
	Resync              bool          `yaml:"resync,omitempty"`                // skip invalid ADTS headers instead of reconnecting
	ChunkSize           int           `yaml:"chunk-size,omitempty"`            // network read size
	QueueSize           int           `yaml:"queue-size,omitempty"`            // events buffered between the network and the disk
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.URL, util.PrefixConfig(prefix, "url"), "", "The URL from which to stream")
	f.StringVar(&cfg.Dir, util.PrefixConfig(prefix, "dir"), "", "The directory to save the data")
	f.IntVar(&cfg.WriteBufferSize, util.PrefixConfig(prefix, "write-buffer-size"), defaultWriteBufferSize,
		"Bytes to buffer in memory before writing to disk (default 256KiB). Larger values reduce write frequency (helps SSD longevity and NFS). Reasonable range: 256KiB-1MiB.")
	f.DurationVar(&cfg.ReconnectBackoff, util.PrefixConfig(prefix, "reconnect-backoff"), defaultReconnectInitial,
		"Initial delay before reconnecting after stream disconnect. Exponential backoff is used up to reconnect-backoff-max.")
	f.DurationVar(&cfg.ReconnectBackoffMax, util.PrefixConfig(prefix, "reconnect-backoff-max"), defaultReconnectMax,
		"Maximum delay between reconnection attempts.")
	f.IntVar(&cfg.ReconnectMaxRetries, util.PrefixConfig(prefix, "reconnect-max-retries"), 0,
		"Give up after this many consecutive failed connections. 0 retries forever.")
	f.BoolVar(&cfg.Framed, util.PrefixConfig(prefix, "framed"), false,
		"Reassemble the audio into complete ADTS frames before writing. Only audio/aac streams are supported.")
	f.BoolVar(&cfg.Resync, util.PrefixConfig(prefix, "resync"), false,
		"When framing, skip to the next ADTS sync word on a corrupt header instead of dropping the connection.")
	f.IntVar(&cfg.ChunkSize, util.PrefixConfig(prefix, "chunk-size"), 16*1024, "Bytes to read from the network at a time.")
	f.IntVar(&cfg.QueueSize, util.PrefixConfig(prefix, "queue-size"), defaultQueueSize,
		"Number of stream chunks buffered between the network reader and the file writer.")
}
