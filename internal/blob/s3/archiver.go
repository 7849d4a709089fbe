package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/tng25/lino/internal/domain"
)

// EventSource provides the lifecycle events to archive.
type EventSource interface {
	CollectSince(ctx context.Context, since time.Time) ([]domain.Event, error)
}

// PositionSource provides the closed positions to archive.
type PositionSource interface {
	ClosedSince(ctx context.Context, since time.Time) ([]domain.Position, error)
}

// Uploader is the write surface the archiver needs; *Client satisfies it.
type Uploader interface {
	Put(ctx context.Context, key string, data io.Reader, contentType string) error
}

// ArchiverConfig controls export cadence and key layout.
type ArchiverConfig struct {
	Prefix   string        // key prefix, e.g. "lino"
	Interval time.Duration // time between exports
}

// Archiver periodically exports lifecycle events and closed positions as
// JSONL objects. Records are never deleted from the primary store here;
// the archive is an append-only copy.
type Archiver struct {
	uploader  Uploader
	events    EventSource
	positions PositionSource
	cfg       ArchiverConfig
	logger    *slog.Logger
	now       func() time.Time

	cursor time.Time
}

// NewArchiver creates an Archiver. The first export covers records from
// construction time onward.
func NewArchiver(uploader Uploader, events EventSource, positions PositionSource, cfg ArchiverConfig, logger *slog.Logger) *Archiver {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	a := &Archiver{
		uploader:  uploader,
		events:    events,
		positions: positions,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "archiver")),
		now:       time.Now,
	}
	a.cursor = a.now()
	return a
}

// Run exports on the configured interval until ctx is cancelled.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.ExportOnce(ctx); err != nil {
				a.logger.Error("export failed", slog.String("error", err.Error()))
			}
		}
	}
}

// ExportOnce archives everything recorded since the previous export. The
// cursor only advances when both uploads succeed, so a failed export is
// retried in full on the next tick.
func (a *Archiver) ExportOnce(ctx context.Context) error {
	since := a.cursor
	now := a.now()

	events, err := a.events.CollectSince(ctx, since)
	if err != nil {
		return fmt.Errorf("s3blob: collect events: %w", err)
	}
	closed, err := a.positions.ClosedSince(ctx, since)
	if err != nil {
		return fmt.Errorf("s3blob: collect closed positions: %w", err)
	}
	if len(events) == 0 && len(closed) == 0 {
		a.cursor = now
		return nil
	}

	if len(events) > 0 {
		if err := upload(ctx, a.uploader, a.key("events", now), events); err != nil {
			return err
		}
	}
	if len(closed) > 0 {
		if err := upload(ctx, a.uploader, a.key("positions", now), closed); err != nil {
			return err
		}
	}

	a.cursor = now
	a.logger.Info("export complete",
		slog.Int("events", len(events)),
		slog.Int("positions", len(closed)),
		slog.Time("since", since))
	return nil
}

func upload[T any](ctx context.Context, u Uploader, key string, records []T) error {
	buf, err := marshalJSONL(records)
	if err != nil {
		return fmt.Errorf("s3blob: marshal %s: %w", key, err)
	}
	return u.Put(ctx, key, bytes.NewReader(buf), "application/x-ndjson")
}

// key builds an object key partitioned by day, with a timestamped filename:
//
//	lino/events/2026-08-30/20260830T120000Z.jsonl
func (a *Archiver) key(kind string, now time.Time) string {
	now = now.UTC()
	return fmt.Sprintf("%s/%s/%s/%s.jsonl",
		a.cfg.Prefix, kind, now.Format("2006-01-02"), now.Format("20060102T150405Z"))
}

// marshalJSONL serialises a slice as newline-delimited JSON, one compact
// record per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
