package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/alanyoungcy/chainarb/internal/domain"
)

const jsonlContentType = "application/x-ndjson"

// multipartThreshold switches uploads to the multipart manager.
const multipartThreshold = 8 * 1024 * 1024

// OpportunityArchiveStore is the slice of the history store the archiver
// needs.
type OpportunityArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.Opportunity, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// OpportunityArchiver implements domain.Archiver. Old rows are grouped by
// the month they were detected in and appended to
// archive/opportunities/YYYY-MM.jsonl. Rows are deleted from the store only
// after every monthly object has been written.
type OpportunityArchiver struct {
	reader domain.BlobReader
	writer domain.BlobWriter
	store  OpportunityArchiveStore
	audit  domain.AuditStore
}

// NewOpportunityArchiver creates an OpportunityArchiver. audit may be nil.
func NewOpportunityArchiver(
	reader domain.BlobReader,
	writer domain.BlobWriter,
	store OpportunityArchiveStore,
	audit domain.AuditStore,
) *OpportunityArchiver {
	return &OpportunityArchiver{reader: reader, writer: writer, store: store, audit: audit}
}

// ArchiveOpportunities moves every opportunity older than before to cold
// storage and returns how many rows were deleted from the store.
func (a *OpportunityArchiver) ArchiveOpportunities(ctx context.Context, before time.Time) (int64, error) {
	opps, err := a.store.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive query: %w", err)
	}
	if len(opps) == 0 {
		return 0, nil
	}

	byMonth := make(map[string][]domain.Opportunity)
	for _, o := range opps {
		p := ArchivePath(o.Timestamp)
		byMonth[p] = append(byMonth[p], o)
	}
	paths := make([]string, 0, len(byMonth))
	for p := range byMonth {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		if err := a.appendObject(ctx, p, byMonth[p]); err != nil {
			return 0, err
		}
	}

	deleted, err := a.store.DeleteBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive delete: %w", err)
	}

	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.opportunities", map[string]any{
			"paths":   paths,
			"count":   len(opps),
			"deleted": deleted,
			"before":  before.Format(time.RFC3339),
		}); err != nil {
			return deleted, fmt.Errorf("s3blob: archive audit log: %w", err)
		}
	}
	return deleted, nil
}

// appendObject rewrites path as its existing content followed by opps.
func (a *OpportunityArchiver) appendObject(ctx context.Context, path string, opps []domain.Opportunity) error {
	var buf bytes.Buffer
	existing, err := a.reader.Get(ctx, path)
	switch {
	case err == nil:
		_, cerr := io.Copy(&buf, existing)
		existing.Close()
		if cerr != nil {
			return fmt.Errorf("s3blob: read %s: %w", path, cerr)
		}
		if n := buf.Len(); n > 0 && buf.Bytes()[n-1] != '\n' {
			buf.WriteByte('\n')
		}
	case errors.Is(err, domain.ErrNotFound):
	default:
		return fmt.Errorf("s3blob: archive read %s: %w", path, err)
	}

	if err := marshalJSONL(&buf, opps); err != nil {
		return fmt.Errorf("s3blob: archive marshal %s: %w", path, err)
	}

	if buf.Len() >= multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, &buf, minPartSize)
	} else {
		err = a.writer.Put(ctx, path, &buf, jsonlContentType)
	}
	if err != nil {
		return fmt.Errorf("s3blob: archive upload %s: %w", path, err)
	}
	return nil
}

// ArchivePath returns archive/opportunities/YYYY-MM.jsonl for t's UTC month.
func ArchivePath(t time.Time) string {
	return "archive/opportunities/" + t.UTC().Format("2006-01") + ".jsonl"
}

// marshalJSONL appends one compact JSON line per record.
func marshalJSONL[T any](buf *bytes.Buffer, records []T) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return nil
}

var _ domain.Archiver = (*OpportunityArchiver)(nil)
