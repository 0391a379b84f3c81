package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"judgebroker/internal/common/cache"
	"judgebroker/internal/common/mq"
	judgemodel "judgebroker/internal/judge/model"
	"judgebroker/internal/problem/repository"
	pkgerrors "judgebroker/pkg/errors"
	"judgebroker/pkg/utils/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	statsDirtyKey          = "problem:stats:dirty"
	defaultStatsInterval   = 30 * time.Second
	defaultStatsBatchSize  = 100
	defaultStatsConcurrent = 4
)

// SubmissionCounter counts submissions of a problem from the submission store.
type SubmissionCounter interface {
	CountByProblem(ctx context.Context, problemID int64) (accepted, total int64, err error)
}

// StatsOptions controls the recalculation pass.
type StatsOptions struct {
	Interval    time.Duration `yaml:"interval"`
	BatchSize   int64         `yaml:"batchSize"`
	Concurrency int           `yaml:"concurrency"`
}

// StatsService recomputes problem display counters from the submission store.
// Problems with new final verdicts are collected in a Redis set and recomputed in batches.
type StatsService struct {
	problems    repository.ProblemRepository
	counter     SubmissionCounter
	cache       cache.Cache
	interval    time.Duration
	batchSize   int64
	concurrency int
}

func NewStatsService(problems repository.ProblemRepository, counter SubmissionCounter, cacheClient cache.Cache, opts StatsOptions) *StatsService {
	interval := opts.Interval
	if interval <= 0 {
		interval = defaultStatsInterval
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultStatsBatchSize
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultStatsConcurrent
	}
	return &StatsService{
		problems:    problems,
		counter:     counter,
		cache:       cacheClient,
		interval:    interval,
		batchSize:   batchSize,
		concurrency: concurrency,
	}
}

// Subscribe consumes final status events and marks their problems dirty.
func (s *StatsService) Subscribe(ctx context.Context, queue mq.MessageQueue, topic string, opts *mq.SubscribeOptions) error {
	if queue == nil {
		return errors.New("message queue is nil")
	}
	if topic == "" {
		return errors.New("status topic is required")
	}
	if err := queue.SubscribeWithOptions(ctx, topic, s.HandleStatusMessage, opts); err != nil {
		return err
	}
	return queue.Start()
}

// HandleStatusMessage processes one final status event.
func (s *StatsService) HandleStatusMessage(ctx context.Context, message *mq.Message) error {
	var event judgemodel.StatusEvent
	if err := json.Unmarshal(message.Body, &event); err != nil {
		logger.Warn(ctx, "parse status event failed", zap.Error(err))
		return nil
	}
	if event.ProblemID <= 0 {
		logger.Warn(ctx, "status event missing problem_id", zap.String("submission_id", event.SubmissionID))
		return nil
	}
	return s.MarkDirty(ctx, event.ProblemID)
}

// MarkDirty schedules a problem for recalculation. Without a cache it recalculates immediately.
func (s *StatsService) MarkDirty(ctx context.Context, problemID int64) error {
	if s.cache == nil {
		return s.Recalculate(ctx, []int64{problemID})
	}
	if err := s.cache.SAdd(ctx, statsDirtyKey, strconv.FormatInt(problemID, 10)); err != nil {
		return fmt.Errorf("mark problem dirty failed: %w", err)
	}
	return nil
}

// RecalculateDirty drains dirty problems in batches and recomputes them.
// It returns the number of problems processed.
func (s *StatsService) RecalculateDirty(ctx context.Context) (int, error) {
	if s.cache == nil {
		return 0, nil
	}
	processed := 0
	for {
		members, err := s.cache.SPopN(ctx, statsDirtyKey, s.batchSize)
		if err != nil {
			return processed, fmt.Errorf("pop dirty problems failed: %w", err)
		}
		if len(members) == 0 {
			return processed, nil
		}
		ids := make([]int64, 0, len(members))
		for _, member := range members {
			id, err := strconv.ParseInt(member, 10, 64)
			if err != nil || id <= 0 {
				continue
			}
			ids = append(ids, id)
		}
		if err := s.Recalculate(ctx, ids); err != nil {
			s.requeue(ctx, ids)
			return processed, err
		}
		processed += len(ids)
		if int64(len(members)) < s.batchSize {
			return processed, nil
		}
	}
}

// RecalculateAll recomputes every problem.
func (s *StatsService) RecalculateAll(ctx context.Context) (int, error) {
	ids, err := s.problems.ListIDs(ctx)
	if err != nil {
		return 0, pkgerrors.Wrap(fmt.Errorf("list problems failed: %w", err), pkgerrors.DatabaseError)
	}
	if err := s.Recalculate(ctx, ids); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Recalculate recomputes the given problems with bounded parallelism.
func (s *StatsService) Recalculate(ctx context.Context, problemIDs []int64) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, id := range problemIDs {
		problemID := id
		g.Go(func() error {
			accepted, total, err := s.counter.CountByProblem(gctx, problemID)
			if err != nil {
				return fmt.Errorf("count submissions of problem %d failed: %w", problemID, err)
			}
			err = s.problems.UpdateStats(gctx, problemID, accepted, total)
			if errors.Is(err, repository.ErrProblemNotFound) {
				logger.Warn(gctx, "skip stats of missing problem", zap.Int64("problem_id", problemID))
				return nil
			}
			if err != nil {
				return fmt.Errorf("update stats of problem %d failed: %w", problemID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.DatabaseError)
	}
	return nil
}

// Run recalculates dirty problems every interval until ctx is done.
func (s *StatsService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.RecalculateDirty(ctx)
			if err != nil {
				logger.Error(ctx, "recalculate problem stats failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Debug(ctx, "problem stats recalculated", zap.Int("problems", n))
			}
		}
	}
}

func (s *StatsService) requeue(ctx context.Context, ids []int64) {
	members := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		members = append(members, strconv.FormatInt(id, 10))
	}
	if len(members) == 0 {
		return
	}
	if err := s.cache.SAdd(ctx, statsDirtyKey, members...); err != nil {
		logger.Warn(ctx, "requeue dirty problems failed", zap.Error(err))
	}
}
