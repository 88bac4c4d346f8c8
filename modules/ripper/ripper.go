package ripper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/grafana/dskit/backoff"
	"github.com/grafana/dskit/services"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/zachfi/zkit/pkg/tracing"

	"github.com/zachfi/icystream/pkg/adts"
	"github.com/zachfi/icystream/pkg/session"
	"github.com/zachfi/icystream/pkg/shoutcast"
)

type Ripper struct {
	services.Service
	cfg    *Config
	logger *slog.Logger
	tracer trace.Tracer

	mtx    sync.RWMutex
	status Status
}

var module = "ripper"

// New creates and returns a new Ripper.
func New(cfg Config, logger slog.Logger) (*Ripper, error) {
	if cfg.WriteBufferSize == 0 {
		cfg.WriteBufferSize = defaultWriteBufferSize
	}
	if cfg.ReconnectBackoff == 0 {
		cfg.ReconnectBackoff = defaultReconnectInitial
	}
	if cfg.ReconnectBackoffMax < cfg.ReconnectBackoff {
		cfg.ReconnectBackoffMax = max(defaultReconnectMax, cfg.ReconnectBackoff)
	}

	r := &Ripper{
		cfg:    &cfg,
		logger: logger.With("module", module),
		tracer: otel.Tracer(module),
		status: Status{URL: cfg.URL, Framed: cfg.Framed},
	}

	r.Service = services.NewBasicService(r.starting, r.running, r.stopping)

	return r, nil
}

func (r *Ripper) starting(_ context.Context) error {
	if r.cfg.URL == "" {
		return errors.New("no stream url configured")
	}

	if r.cfg.Dir != "" {
		if err := os.MkdirAll(r.cfg.Dir, os.ModePerm); err != nil {
			return fmt.Errorf("failed to create recording directory: %w", err)
		}
	}

	return nil
}

// running records the stream until ctx is done, reconnecting with
// exponential backoff. Configuration and codec errors are not retried.
func (r *Ripper) running(ctx context.Context) error {
	boff := backoff.New(ctx, backoff.Config{
		MinBackoff: r.cfg.ReconnectBackoff,
		MaxBackoff: r.cfg.ReconnectBackoffMax,
		MaxRetries: r.cfg.ReconnectMaxRetries,
	})

	for boff.Ongoing() {
		received, err := r.record(ctx)
		if ctx.Err() != nil {
			return nil
		}

		switch {
		case errors.Is(err, shoutcast.ErrConfiguration), errors.Is(err, session.ErrUnsupportedCodec):
			r.logger.Error("cannot record stream", "err", err)
			return err
		case err != nil:
			r.logger.Error("stream failed", "err", err, "received", ByteCountIEC(received), "retries", boff.NumRetries())
		default:
			r.logger.Info("stream ended", "received", ByteCountIEC(received))
		}

		if received > 0 {
			boff.Reset()
		}
		boff.Wait()
	}

	if ctx.Err() != nil {
		return nil
	}

	return fmt.Errorf("giving up on %s: %w", r.cfg.URL, boff.Err())
}

// record runs a single connection. It returns the number of audio bytes
// received and why the connection ended; a stream reaching EOF returns nil.
func (r *Ripper) record(ctx context.Context) (int64, error) {
	// Cancelling also aborts a blocked read of the response body.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, sess, err := r.connect(ctx)
	if err != nil {
		connections.WithLabelValues("failed").Inc()
		return 0, err
	}
	defer stream.Close()
	connections.WithLabelValues("connected").Inc()

	logger := r.logger.With("station", stream.Name)
	logger.Info("recording", "codec", stream.ContentType, "metaint", stream.MetaInt, "framed", sess.Framed())

	r.updateStatus(func(s *Status) {
		s.Station = stream.Name
		s.Codec = stream.ContentType
		s.Connected = true
		s.Since = time.Now()
	})
	defer r.updateStatus(func(s *Status) { s.Connected = false })

	rec := newRecorder(r.cfg, stream.Name, stream.ContentType, logger)
	rec.onTitle = func(title string) {
		r.updateStatus(func(s *Status) { s.Title = title })
	}

	queue := newEventQueue(r.cfg.QueueSize)
	var received int64

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer queue.Close()

		pumpErr := sess.Pump(gctx, stream, func(ev session.Events) error {
			received += int64(len(ev.Audio))
			r.observe(ev)
			return queue.Send(ev)
		})

		if errors.Is(pumpErr, adts.ErrSync) {
			syncErrors.Inc()
			logger.Error("lost frame sync", "err", pumpErr, "header", sess.HeaderDump())
		}

		final, closeErr := sess.Close()
		if errors.Is(closeErr, shoutcast.ErrTruncated) {
			truncations.Inc()
			logger.Warn("stream ended mid-cycle", "err", closeErr)
		}
		if !final.Empty() {
			r.observe(final)
			_ = queue.Send(final)
		}

		return pumpErr
	})

	g.Go(func() error {
		defer rec.Close()

		// Drain the queue even after a write error so the reader never blocks.
		var writeErr error
		for ev := range queue.Events() {
			if writeErr != nil {
				continue
			}
			if err := rec.handle(ev); err != nil {
				writeErr = err
				cancel()
			}
		}
		return writeErr
	})

	err = g.Wait()
	r.updateStatus(func(s *Status) { s.Received += received })

	return received, err
}

func (r *Ripper) connect(ctx context.Context) (*shoutcast.Stream, *session.Session, error) {
	ctx, span := r.tracer.Start(ctx, "connect", trace.WithAttributes(
		attribute.String("url", r.cfg.URL),
		attribute.Bool("framed", r.cfg.Framed),
	))

	stream, err := shoutcast.Open(ctx, r.cfg.URL, r.logger)
	if err != nil {
		return nil, nil, tracing.ErrHandler(span, err, "error opening stream", r.logger)
	}

	span.SetAttributes(
		attribute.String("station", stream.Name),
		attribute.String("codec", stream.ContentType),
		attribute.String("metaint", stream.MetaInt),
	)

	sess, err := session.New(session.Config{
		MetaInt:     stream.MetaInt,
		ContentType: stream.ContentType,
		Framed:      r.cfg.Framed,
		Resync:      r.cfg.Resync,
		ChunkSize:   r.cfg.ChunkSize,

		FlushOnMetadata: r.cfg.Framed,
	})
	if err != nil {
		stream.Close()
		return nil, nil, tracing.ErrHandler(span, err, "error starting session", r.logger)
	}

	return stream, sess, tracing.ErrHandler(span, nil, "", r.logger)
}

func (r *Ripper) observe(ev session.Events) {
	receivedBytes.WithLabelValues("audio").Add(float64(len(ev.Audio)))
	receivedBytes.WithLabelValues("frames").Add(float64(len(ev.Frames)))
	metadataBlocks.Add(float64(len(ev.Metadata)))
	if ev.Dropped > 0 {
		droppedBytes.Add(float64(ev.Dropped))
		r.logger.Warn("skipped corrupt audio", "bytes", ev.Dropped)
	}
}

func (r *Ripper) stopping(_ error) error {
	r.logger.Info("stopping")
	return nil
}
