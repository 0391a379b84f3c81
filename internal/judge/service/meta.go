package service

import (
	"context"
	"errors"
	"time"

	"judgebroker/internal/judge/execution"
	problemrepo "judgebroker/internal/problem/repository"
	appErr "judgebroker/pkg/errors"
)

type metaEntry struct {
	limits    execution.Limits
	expiresAt time.Time
}

// problemLimits returns the problem's own limits; zero fields fall back to language
// and global defaults in the builder.
func (s *Service) problemLimits(ctx context.Context, problemID int64) (execution.Limits, error) {
	if problemID <= 0 {
		return execution.Limits{}, appErr.ValidationError("problem_id", "required")
	}
	now := time.Now()
	if s.metaTTL > 0 {
		s.metaMu.Lock()
		entry, ok := s.metaCache[problemID]
		if ok && now.Before(entry.expiresAt) {
			limits := entry.limits
			s.metaMu.Unlock()
			return limits, nil
		}
		s.metaMu.Unlock()
	}

	problem, err := s.problems.Get(ctx, nil, problemID)
	if err != nil {
		if errors.Is(err, problemrepo.ErrProblemNotFound) {
			return execution.Limits{}, appErr.New(appErr.ProblemNotFound).WithDetail("problem_id", problemID)
		}
		return execution.Limits{}, appErr.Wrapf(err, appErr.DatabaseError, "load problem failed")
	}
	limits := execution.Limits{TimeLimitMs: problem.TimeLimitMs, MemoryLimitKB: problem.MemoryLimitKB}
	if s.metaTTL > 0 {
		s.metaMu.Lock()
		s.metaCache[problemID] = metaEntry{limits: limits, expiresAt: now.Add(s.metaTTL)}
		s.metaMu.Unlock()
	}
	return limits, nil
}
