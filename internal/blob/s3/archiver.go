package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/basedguardians/marketd/internal/domain"
)

// Archiver defaults.
const (
	defaultArchiveInterval = 24 * time.Hour
	defaultRetention       = 7 * 24 * time.Hour
	defaultBatchLimit      = 5000
	multipartThreshold     = int64(5 * 1024 * 1024)
	archiveContentType     = "application/x-ndjson"
)

// IntentArchiver periodically exports terminal intent records older than the
// retention window to object storage as JSONL, partitioned by cutoff date.
//
// Archived records are deliberately not deleted from the primary store here;
// pruning is a separate explicit step run after an archive has been verified.
type IntentArchiver struct {
	writer    domain.BlobWriter
	intents   domain.IntentStore
	interval  time.Duration
	retention time.Duration
	batch     int
	logger    *slog.Logger
}

// NewIntentArchiver creates an IntentArchiver. Zero interval, retention, or
// batch select defaults.
func NewIntentArchiver(writer domain.BlobWriter, intents domain.IntentStore, interval, retention time.Duration, batch int, logger *slog.Logger) *IntentArchiver {
	if interval <= 0 {
		interval = defaultArchiveInterval
	}
	if retention <= 0 {
		retention = defaultRetention
	}
	if batch <= 0 {
		batch = defaultBatchLimit
	}
	return &IntentArchiver{
		writer:    writer,
		intents:   intents,
		interval:  interval,
		retention: retention,
		batch:     batch,
		logger:    logger.With(slog.String("component", "intent_archiver")),
	}
}

// Run archives on the configured interval until ctx is cancelled.
func (a *IntentArchiver) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "intent archiver started",
		slog.Duration("interval", a.interval),
		slog.Duration("retention", a.retention),
	)
	defer a.logger.Info("intent archiver stopped")

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-a.retention)
			count, err := a.Archive(ctx, cutoff)
			if err != nil {
				a.logger.WarnContext(ctx, "intent archive failed", slog.String("error", err.Error()))
				continue
			}
			if count > 0 {
				a.logger.InfoContext(ctx, "intents archived",
					slog.Int("count", count),
					slog.Time("cutoff", cutoff),
				)
			}
		}
	}
}

// Archive exports terminal intents last updated strictly before the cutoff
// and returns the number of archived records. Nothing is uploaded when no
// records qualify.
func (a *IntentArchiver) Archive(ctx context.Context, before time.Time) (int, error) {
	records, err := a.intents.ListTerminalBefore(ctx, before, a.batch)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive intents query: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive intents marshal: %w", err)
	}

	path := archivePath(before)
	if int64(len(buf)) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), multipartThreshold)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), archiveContentType)
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive intents upload: %w", err)
	}

	return len(records), nil
}

// archivePath builds the object key for an archive file, partitioned by the
// cutoff date:
//
//	archive/intents/2026-08-28.jsonl
func archivePath(before time.Time) string {
	return fmt.Sprintf("archive/intents/%s.jsonl", before.Format("2006-01-02"))
}

// marshalJSONL serialises records as newline-delimited JSON, one compact line
// per record.
func marshalJSONL(records []domain.IntentRecord) ([]byte, error) {
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
