package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"reftester/internal/common/storage"
	"reftester/internal/judge/model"
	appErr "reftester/pkg/errors"
	"reftester/pkg/utils/clock"

	"github.com/klauspost/compress/zstd"
)

const archiveContentType = "application/zstd"

// ArchiveSink uploads the whole batch as zstd-compressed JSON lines: one event per
// outcome followed by the summary.
type ArchiveSink struct {
	storage storage.ObjectStorage
	bucket  string
	prefix  string
	runID   string
	clock   clock.Clock
}

func NewArchiveSink(store storage.ObjectStorage, bucket, prefix, runID string, clk clock.Clock) (*ArchiveSink, error) {
	if store == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &ArchiveSink{storage: store, bucket: bucket, prefix: prefix, runID: runID, clock: clk}, nil
}

// ObjectKey returns the key the run archive is stored under.
func (s *ArchiveSink) ObjectKey() string {
	return path.Join(s.prefix, s.runID+".jsonl.zst")
}

func (s *ArchiveSink) RecordBatch(ctx context.Context, res model.BatchResult) error {
	now := s.clock.Now()
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, o := range res.Outcomes {
		if err := enc.Encode(newEvent(s.runID, o, now)); err != nil {
			return appErr.Wrapf(err, appErr.StorageError, "encode archive failed")
		}
	}
	if err := enc.Encode(newSummary(s.runID, res, now)); err != nil {
		return appErr.Wrapf(err, appErr.StorageError, "encode archive failed")
	}

	zw, err := zstd.NewWriter(nil)
	if err != nil {
		return appErr.Wrapf(err, appErr.StorageError, "create zstd writer failed")
	}
	defer zw.Close()
	data := zw.EncodeAll(buf.Bytes(), nil)

	if err := s.storage.EnsureBucket(ctx, s.bucket); err != nil {
		return appErr.Wrapf(err, appErr.StorageError, "prepare archive bucket failed")
	}
	if err := s.storage.PutObject(ctx, s.bucket, s.ObjectKey(), bytes.NewReader(data), int64(len(data)), archiveContentType); err != nil {
		return appErr.Wrapf(err, appErr.StorageError, "upload run archive failed")
	}
	return nil
}
