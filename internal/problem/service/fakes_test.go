package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"judgebroker/internal/common/cache"
	"judgebroker/internal/common/db"
	"judgebroker/internal/common/storage"
	"judgebroker/internal/problem/model"
	"judgebroker/internal/problem/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var errNotSupported = errors.New("not supported by fake")

type fakeDB struct{}

func (fakeDB) Query(ctx context.Context, query string, args ...interface{}) (db.Rows, error) {
	return nil, errNotSupported
}

func (fakeDB) QueryRow(ctx context.Context, query string, args ...interface{}) db.Row {
	return nil
}

func (fakeDB) Exec(ctx context.Context, query string, args ...interface{}) (db.Result, error) {
	return nil, errNotSupported
}

func (fakeDB) Transaction(ctx context.Context, fn func(tx db.Transaction) error) error {
	return fn(nil)
}

func (fakeDB) Ping(ctx context.Context) error { return nil }

func (fakeDB) Close() error { return nil }

func (fakeDB) Driver() string { return db.DriverMySQL }

func (fakeDB) Stats() sql.DBStats { return sql.DBStats{} }

type fakeTestCaseRepo struct {
	mu        sync.Mutex
	cases     map[int64][]model.TestCase
	nextID    int64
	listCalls atomic.Int64
	listErr   error
}

func newFakeTestCaseRepo() *fakeTestCaseRepo {
	return &fakeTestCaseRepo{cases: make(map[int64][]model.TestCase), nextID: 100}
}

func (r *fakeTestCaseRepo) ListByProblem(ctx context.Context, tx db.Transaction, problemID int64) ([]model.TestCase, error) {
	r.listCalls.Add(1)
	if r.listErr != nil {
		return nil, r.listErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.TestCase, len(r.cases[problemID]))
	copy(out, r.cases[problemID])
	return out, nil
}

func (r *fakeTestCaseRepo) ListLabels(ctx context.Context, tx db.Transaction, problemID int64) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var labels []string
	for _, tc := range r.cases[problemID] {
		labels = append(labels, tc.Label)
	}
	return labels, nil
}

func (r *fakeTestCaseRepo) MaxIndex(ctx context.Context, tx db.Transaction, problemID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var maxIndex int64
	for _, tc := range r.cases[problemID] {
		if tc.Index > maxIndex {
			maxIndex = tc.Index
		}
	}
	return maxIndex, nil
}

func (r *fakeTestCaseRepo) Create(ctx context.Context, tx db.Transaction, tc *model.TestCase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	tc.ID = r.nextID
	tc.CreatedAt = time.Now()
	r.cases[tc.ProblemID] = append(r.cases[tc.ProblemID], *tc)
	return nil
}

func (r *fakeTestCaseRepo) Delete(ctx context.Context, tx db.Transaction, problemID, testCaseID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cases := r.cases[problemID]
	for i, tc := range cases {
		if tc.ID == testCaseID {
			r.cases[problemID] = append(cases[:i], cases[i+1:]...)
			return nil
		}
	}
	return repository.ErrTestCaseNotFound
}

func (r *fakeTestCaseRepo) put(cases ...model.TestCase) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tc := range cases {
		r.cases[tc.ProblemID] = append(r.cases[tc.ProblemID], tc)
	}
}

type statsUpdate struct {
	accepted int64
	total    int64
}

type fakeProblemRepo struct {
	mu      sync.Mutex
	ids     []int64
	updates map[int64]statsUpdate
}

func newFakeProblemRepo(ids ...int64) *fakeProblemRepo {
	return &fakeProblemRepo{ids: ids, updates: make(map[int64]statsUpdate)}
}

func (r *fakeProblemRepo) has(problemID int64) bool {
	for _, id := range r.ids {
		if id == problemID {
			return true
		}
	}
	return false
}

func (r *fakeProblemRepo) Get(ctx context.Context, tx db.Transaction, problemID int64) (model.Problem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.has(problemID) {
		return model.Problem{}, repository.ErrProblemNotFound
	}
	return model.Problem{ID: problemID}, nil
}

func (r *fakeProblemRepo) LockForUpdate(ctx context.Context, tx db.Transaction, problemID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.has(problemID) {
		return repository.ErrProblemNotFound
	}
	return nil
}

func (r *fakeProblemRepo) UpdateStats(ctx context.Context, problemID, accepted, total int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.has(problemID) {
		return repository.ErrProblemNotFound
	}
	r.updates[problemID] = statsUpdate{accepted: accepted, total: total}
	return nil
}

func (r *fakeProblemRepo) ListIDs(ctx context.Context) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]int64(nil), r.ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (r *fakeProblemRepo) update(problemID int64) (statsUpdate, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.updates[problemID]
	return u, ok
}

type fakeInFlight map[int64]bool

func (f fakeInFlight) InFlight(problemID int64) bool { return f[problemID] }

type fakeStorage struct {
	mu          sync.Mutex
	objects     map[string][]byte
	removeCalls int
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte)}
}

func (s *fakeStorage) GetObject(ctx context.Context, bucket, objectKey string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[bucket+"/"+objectKey]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *fakeStorage) PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, sizeBytes int64, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[bucket+"/"+objectKey] = data
	return nil
}

func (s *fakeStorage) StatObject(ctx context.Context, bucket, objectKey string) (storage.ObjectStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[bucket+"/"+objectKey]
	if !ok {
		return storage.ObjectStat{}, storage.ErrObjectNotFound
	}
	return storage.ObjectStat{SizeBytes: int64(len(data))}, nil
}

func (s *fakeStorage) PresignPut(ctx context.Context, bucket, objectKey string, ttl time.Duration) (string, error) {
	return "http://storage.local/" + bucket + "/" + objectKey + "?signed=1", nil
}

func (s *fakeStorage) ListObjects(ctx context.Context, bucket, prefix string) <-chan storage.ObjectInfo {
	s.mu.Lock()
	var keys []string
	for k := range s.objects {
		if strings.HasPrefix(k, bucket+"/"+prefix) {
			keys = append(keys, strings.TrimPrefix(k, bucket+"/"))
		}
	}
	s.mu.Unlock()
	sort.Strings(keys)

	out := make(chan storage.ObjectInfo, len(keys))
	for _, k := range keys {
		out <- storage.ObjectInfo{Key: k}
	}
	close(out)
	return out
}

func (s *fakeStorage) RemoveObjects(ctx context.Context, bucket string, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeCalls++
	for _, k := range keys {
		delete(s.objects, bucket+"/"+k)
	}
	return nil
}

func (s *fakeStorage) has(bucket, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[bucket+"/"+key]
	return ok
}

func (s *fakeStorage) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

func newTestRedis(t *testing.T) (cache.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}
