package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"judgebroker/internal/common/cache"
	submitmodel "judgebroker/internal/submit/model"
	appErr "judgebroker/pkg/errors"
)

const (
	statusKeyPrefix  = "judge:status:"
	defaultStatusTTL = 30 * time.Minute
)

// ErrStatusNotCached is returned on a cache miss.
var ErrStatusNotCached = errors.New("submission status not cached")

// StatusRepository keeps the latest submission snapshot in the cache.
// Source code is never written to the cache.
type StatusRepository struct {
	cache cache.Cache
	TTL   time.Duration
}

// NewStatusRepository creates a new repository.
func NewStatusRepository(cacheClient cache.Cache, ttl time.Duration) *StatusRepository {
	if ttl <= 0 {
		ttl = defaultStatusTTL
	}
	return &StatusRepository{cache: cacheClient, TTL: ttl}
}

// Get returns the cached snapshot by submission id.
func (r *StatusRepository) Get(ctx context.Context, submissionID string) (*submitmodel.Submission, error) {
	if submissionID == "" {
		return nil, appErr.ValidationError("submission_id", "required")
	}
	if r == nil || r.cache == nil {
		return nil, ErrStatusNotCached
	}
	val, err := r.cache.Get(ctx, statusKeyPrefix+submissionID)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.CacheError, "read status failed")
	}
	if val == "" {
		return nil, ErrStatusNotCached
	}
	var snapshot submitmodel.Submission
	if err := json.Unmarshal([]byte(val), &snapshot); err != nil {
		return nil, appErr.Wrapf(err, appErr.CacheError, "decode status failed")
	}
	return &snapshot, nil
}

// Save stores a snapshot. Terminal snapshots keep the full TTL; active ones are
// refreshed on every transition anyway.
func (r *StatusRepository) Save(ctx context.Context, submission *submitmodel.Submission) error {
	if submission == nil || submission.ID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if r == nil || r.cache == nil {
		return nil
	}
	snapshot := *submission
	snapshot.Code = ""
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal status failed: %w", err)
	}
	if err := r.cache.Set(ctx, statusKeyPrefix+submission.ID, string(data), cache.JitterTTL(r.TTL)); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "store status failed")
	}
	return nil
}

// Delete drops a snapshot so the next read goes to the store.
func (r *StatusRepository) Delete(ctx context.Context, submissionID string) error {
	if r == nil || r.cache == nil {
		return nil
	}
	return r.cache.Del(ctx, statusKeyPrefix+submissionID)
}
