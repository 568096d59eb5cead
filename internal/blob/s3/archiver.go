package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gitco/alphatrader/internal/domain"
)

// multipartThreshold is the payload size above which archives switch to
// multipart upload.
const multipartThreshold = 8 * 1024 * 1024

// ClosedPositionSource provides read access to closed positions for archival.
// The Postgres position store satisfies it.
type ClosedPositionSource interface {
	ListClosedBetween(ctx context.Context, since, until time.Time) ([]domain.Position, error)
}

// ArchiveImpl implements domain.Archiver by querying closed positions,
// serializing them to JSONL, and uploading the result to S3.
//
// Archival never deletes from the primary store: closed rows stay in
// Postgres, and the S3 copy exists for cold analytics and compliance.
type ArchiveImpl struct {
	writer    *Writer
	positions ClosedPositionSource
	audit     domain.AuditStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer *Writer, positions ClosedPositionSource, audit domain.AuditStore) *ArchiveImpl {
	return &ArchiveImpl{
		writer:    writer,
		positions: positions,
		audit:     audit,
	}
}

// ArchivePositions queries positions closed in [since, until), serializes
// them to JSONL, and uploads the file at archive/positions/YYYY-MM-DD.jsonl.
// The archival event is recorded in the audit log and the count of archived
// records is returned.
func (a *ArchiveImpl) ArchivePositions(ctx context.Context, since, until time.Time) (int64, error) {
	positions, err := a.positions.ListClosedBetween(ctx, since, until)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive positions query: %w", err)
	}
	if len(positions) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(positions)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive positions marshal: %w", err)
	}

	path := archivePath("positions", since)
	if len(buf) >= multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, buf, "application/x-ndjson", 0)
	} else {
		err = a.writer.Put(ctx, path, buf, "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive positions upload: %w", err)
	}

	count := int64(len(positions))

	if err := a.audit.Log(ctx, "archive.positions", map[string]any{
		"path":  path,
		"count": count,
		"since": since.Format(time.RFC3339),
		"until": until.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive positions audit log: %w", err)
	}

	return count, nil
}

// archivePath builds the S3 key for an archive file, partitioned by the day
// the archived window starts.
//
//	archive/positions/2026-08-29.jsonl
func archivePath(kind string, since time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, since.UTC().Format("2006-01-02"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
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

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
