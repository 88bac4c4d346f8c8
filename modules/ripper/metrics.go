package ripper

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "icystream"

var (
	receivedBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: module,
		Name:      "received_bytes_total",
		Help:      "Bytes demultiplexed from the stream, by kind (audio or frames).",
	}, []string{"kind"})

	metadataBlocks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: module,
		Name:      "metadata_blocks_total",
		Help:      "ICY metadata blocks received.",
	})

	syncErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: module,
		Name:      "sync_errors_total",
		Help:      "Sessions aborted because of an invalid ADTS header.",
	})

	droppedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: module,
		Name:      "dropped_bytes_total",
		Help:      "Audio bytes skipped while resynchronising ADTS frames.",
	})

	truncations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: module,
		Name:      "truncations_total",
		Help:      "Connections that ended inside a metadata cycle.",
	})

	connections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: module,
		Name:      "connections_total",
		Help:      "Stream connections by result.",
	}, []string{"result"})

	writtenBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: module,
		Name:      "written_bytes_total",
		Help:      "Bytes written to recordings.",
	})

	recordings = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: module,
		Name:      "recordings_total",
		Help:      "Finished recordings by outcome.",
	}, []string{"outcome"})
)
