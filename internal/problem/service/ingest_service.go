package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"judgebroker/internal/common/storage"
	"judgebroker/internal/problem/model"
	pkgerrors "judgebroker/pkg/errors"
	"judgebroker/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultIngestPoints = 1

// IngestOptions configures archive ingestion.
type IngestOptions struct {
	Bucket    string
	KeyPrefix string
	UploadTTL time.Duration
	Limits    ArchiveLimits
}

// UploadTicket tells an admin where to PUT an archive before ingesting it by key.
type UploadTicket struct {
	ObjectKey string    `json:"object_key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IngestService turns test case archives into hidden test cases.
type IngestService struct {
	testcases *TestCaseService
	storage   storage.ObjectStorage
	bucket    string
	keyPrefix string
	uploadTTL time.Duration
	limits    ArchiveLimits
	cleaner   ArchiveCleaner
}

func NewIngestService(testcases *TestCaseService, obj storage.ObjectStorage, opts IngestOptions) *IngestService {
	limits := opts.Limits
	limits.applyDefaults()
	uploadTTL := opts.UploadTTL
	if uploadTTL <= 0 {
		uploadTTL = 15 * time.Minute
	}
	return &IngestService{
		testcases: testcases,
		storage:   obj,
		bucket:    opts.Bucket,
		keyPrefix: opts.KeyPrefix,
		uploadTTL: uploadTTL,
		limits:    limits,
	}
}

// WithCleaner removes staged archives after ingestion and serves PurgeArchives.
func (s *IngestService) WithCleaner(cleaner ArchiveCleaner) *IngestService {
	s.cleaner = cleaner
	return s
}

// MaxArchiveBytes is the largest archive accepted.
func (s *IngestService) MaxArchiveBytes() int64 {
	return s.limits.MaxArchiveBytes
}

// IngestArchive creates one hidden test case with one point per matched pair.
// When object storage is configured the raw archive is kept under the problem prefix.
func (s *IngestService) IngestArchive(ctx context.Context, problemID int64, data []byte) ([]model.TestCase, error) {
	pairs, err := ParseArchive(data, s.limits)
	if err != nil {
		return nil, err
	}
	created, err := s.createFromPairs(ctx, problemID, pairs)
	if err != nil {
		return nil, err
	}

	if s.storage != nil && s.bucket != "" {
		key := archiveObjectPrefix(s.keyPrefix, problemID) + uuid.NewString() + ".archive"
		if err := s.storage.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), "application/octet-stream"); err != nil {
			logger.Warn(ctx, "keep uploaded archive failed", zap.Int64("problem_id", problemID), zap.Error(err))
		}
	}
	return created, nil
}

// IngestObject reads an archive previously uploaded under the problem's prefix.
func (s *IngestService) IngestObject(ctx context.Context, problemID int64, objectKey string) ([]model.TestCase, error) {
	if s.storage == nil || s.bucket == "" {
		return nil, pkgerrors.New(pkgerrors.ServiceUnavailable).WithMessage("object storage is not configured")
	}
	if !strings.HasPrefix(objectKey, archiveObjectPrefix(s.keyPrefix, problemID)) {
		return nil, pkgerrors.ValidationError("object_key", "must belong to the problem")
	}

	stat, err := s.storage.StatObject(ctx, s.bucket, objectKey)
	if err != nil {
		return nil, translateStorageError(objectKey, err)
	}
	if stat.SizeBytes > s.limits.MaxArchiveBytes {
		return nil, pkgerrors.Newf(pkgerrors.TestCaseTooLarge, "archive exceeds %d bytes", s.limits.MaxArchiveBytes)
	}

	reader, err := s.storage.GetObject(ctx, s.bucket, objectKey)
	if err != nil {
		return nil, translateStorageError(objectKey, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(io.LimitReader(reader, s.limits.MaxArchiveBytes+1))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.StorageError, "read archive failed")
	}
	pairs, err := ParseArchive(data, s.limits)
	if err != nil {
		return nil, err
	}
	created, err := s.createFromPairs(ctx, problemID, pairs)
	if err != nil {
		return nil, err
	}
	if s.cleaner != nil {
		if err := s.cleaner.ArchiveIngested(ctx, problemID, objectKey); err != nil {
			logger.Warn(ctx, "schedule archive cleanup failed", zap.Int64("problem_id", problemID), zap.String("object_key", objectKey), zap.Error(err))
		}
	}
	return created, nil
}

// PurgeArchives removes every archive kept for the problem. Test cases stay.
func (s *IngestService) PurgeArchives(ctx context.Context, problemID int64) error {
	if problemID <= 0 {
		return pkgerrors.ValidationError("problem_id", "must be positive")
	}
	if s.cleaner == nil {
		return pkgerrors.New(pkgerrors.ServiceUnavailable).WithMessage("object storage is not configured")
	}
	if err := s.cleaner.PurgeArchives(ctx, problemID); err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.StorageError, "purge archives failed")
	}
	return nil
}

// PrepareUpload issues a presigned PUT URL for a new archive object.
func (s *IngestService) PrepareUpload(ctx context.Context, problemID int64) (UploadTicket, error) {
	if problemID <= 0 {
		return UploadTicket{}, pkgerrors.ValidationError("problem_id", "must be positive")
	}
	if s.storage == nil || s.bucket == "" {
		return UploadTicket{}, pkgerrors.New(pkgerrors.ServiceUnavailable).WithMessage("object storage is not configured")
	}
	key := archiveObjectPrefix(s.keyPrefix, problemID) + uuid.NewString() + ".archive"
	url, err := s.storage.PresignPut(ctx, s.bucket, key, s.uploadTTL)
	if err != nil {
		return UploadTicket{}, pkgerrors.Wrapf(err, pkgerrors.StorageError, "presign upload failed")
	}
	return UploadTicket{
		ObjectKey: key,
		URL:       url,
		ExpiresAt: time.Now().Add(s.uploadTTL),
	}, nil
}

func (s *IngestService) createFromPairs(ctx context.Context, problemID int64, pairs []ArchivePair) ([]model.TestCase, error) {
	inputs := make([]NewTestCase, 0, len(pairs))
	for _, pair := range pairs {
		inputs = append(inputs, NewTestCase{
			InputData:      pair.Input,
			ExpectedOutput: pair.Output,
			Points:         defaultIngestPoints,
			Label:          pair.Label,
		})
	}
	created, err := s.testcases.CreateBatch(ctx, problemID, inputs)
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "test case archive ingested", zap.Int64("problem_id", problemID), zap.Int("pairs", len(created)))
	return created, nil
}

func translateStorageError(objectKey string, err error) error {
	if errors.Is(err, storage.ErrObjectNotFound) {
		return pkgerrors.Newf(pkgerrors.NotFound, "object %s not found", objectKey)
	}
	return pkgerrors.Wrap(fmt.Errorf("read object %s failed: %w", objectKey, err), pkgerrors.StorageError)
}
