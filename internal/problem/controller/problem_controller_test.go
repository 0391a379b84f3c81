package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	commonmw "judgebroker/internal/common/http/middleware"
	"judgebroker/internal/problem/model"
	"judgebroker/internal/problem/service"
	pkgerrors "judgebroker/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

type fakeProblems struct{}

func (fakeProblems) Get(_ context.Context, problemID int64) (service.ProblemDetail, error) {
	if problemID != 1 {
		return service.ProblemDetail{}, pkgerrors.New(pkgerrors.ProblemNotFound)
	}
	return service.ProblemDetail{Problem: model.Problem{ID: 1, TotalSubmissions: 3}}, nil
}

type fakeWriter struct {
	created []service.NewTestCase
	inUse   bool
}

func (w *fakeWriter) Create(_ context.Context, problemID int64, input service.NewTestCase) (model.TestCase, error) {
	w.created = append(w.created, input)
	return model.TestCase{ID: 11, ProblemID: problemID, Points: input.Points, Label: input.Label}, nil
}

func (w *fakeWriter) Delete(context.Context, int64, int64) error {
	if w.inUse {
		return pkgerrors.New(pkgerrors.TestCaseInUse)
	}
	return nil
}

type fakeStats struct{ all, dirty int }

func (s *fakeStats) RecalculateDirty(context.Context) (int, error) {
	s.dirty++
	return 2, nil
}

func (s *fakeStats) RecalculateAll(context.Context) (int, error) {
	s.all++
	return 5, nil
}

type fakeIngester struct {
	archives [][]byte
	keys     []string
	purged   []int64
}

func (f *fakeIngester) MaxArchiveBytes() int64 { return 16 }

func (f *fakeIngester) IngestArchive(_ context.Context, problemID int64, data []byte) ([]model.TestCase, error) {
	f.archives = append(f.archives, data)
	return []model.TestCase{{ID: 1, ProblemID: problemID}}, nil
}

func (f *fakeIngester) IngestObject(_ context.Context, problemID int64, objectKey string) ([]model.TestCase, error) {
	f.keys = append(f.keys, objectKey)
	return []model.TestCase{{ID: 1, ProblemID: problemID}, {ID: 2, ProblemID: problemID}}, nil
}

func (f *fakeIngester) PrepareUpload(_ context.Context, problemID int64) (service.UploadTicket, error) {
	return service.UploadTicket{ObjectKey: "testcases/1/x.archive", URL: "http://minio/put"}, nil
}

func (f *fakeIngester) PurgeArchives(_ context.Context, problemID int64) error {
	f.purged = append(f.purged, problemID)
	return nil
}

type problemServer struct {
	router *gin.Engine
	writer *fakeWriter
	stats  *fakeStats
	ingest *fakeIngester
	admin  string
	user   string
}

func newProblemServer(t *testing.T) *problemServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	auth := commonmw.NewAuthenticator("secret", "")
	claims := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	admin, err := auth.Issue(1, commonmw.RoleAdmin, claims)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	user, _ := auth.Issue(2, "user", claims)

	s := &problemServer{writer: &fakeWriter{}, stats: &fakeStats{}, ingest: &fakeIngester{}, admin: "Bearer " + admin, user: "Bearer " + user}
	s.router = gin.New()
	group := s.router.Group("/api/v1/problems")
	NewProblemController(fakeProblems{}, s.writer, s.stats).Register(group, auth)
	NewArchiveController(s.ingest).Register(group, auth)
	return s
}

func (s *problemServer) do(method, path, auth, contentType string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestGetProblem(t *testing.T) {
	s := newProblemServer(t)
	if rec := s.do(http.MethodGet, "/api/v1/problems/1", "", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected public read, got %d", rec.Code)
	}
	if rec := s.do(http.MethodGet, "/api/v1/problems/2", "", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := s.do(http.MethodGet, "/api/v1/problems/abc", "", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreateTestCase(t *testing.T) {
	s := newProblemServer(t)
	body, _ := json.Marshal(map[string]interface{}{"input_data": "1 2", "expected_output": "3", "label": "sum"})

	if rec := s.do(http.MethodPost, "/api/v1/problems/1/testcases", s.user, "application/json", body); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", rec.Code)
	}
	rec := s.do(http.MethodPost, "/api/v1/problems/1/testcases", s.admin, "application/json", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(s.writer.created) != 1 || s.writer.created[0].Points != 1 || s.writer.created[0].Label != "sum" {
		t.Fatalf("unexpected create input %+v", s.writer.created)
	}
}

func TestDeleteTestCaseInUse(t *testing.T) {
	s := newProblemServer(t)
	if rec := s.do(http.MethodDelete, "/api/v1/problems/1/testcases/11", s.admin, "", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	s.writer.inUse = true
	if rec := s.do(http.MethodDelete, "/api/v1/problems/1/testcases/11", s.admin, "", nil); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 while in flight, got %d", rec.Code)
	}
}

func TestRecalculateStats(t *testing.T) {
	s := newProblemServer(t)
	s.do(http.MethodPost, "/api/v1/problems/stats/recalculate", s.admin, "", nil)
	s.do(http.MethodPost, "/api/v1/problems/stats/recalculate?all=true", s.admin, "", nil)
	if s.stats.dirty != 1 || s.stats.all != 1 {
		t.Fatalf("unexpected calls %+v", s.stats)
	}
}

func TestUploadArchive(t *testing.T) {
	s := newProblemServer(t)

	if rec := s.do(http.MethodPost, "/api/v1/problems/1/testcases/archive", s.admin, "application/zip", []byte("PK-raw")); rec.Code != http.StatusOK {
		t.Fatalf("expected raw upload to succeed, got %d", rec.Code)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, _ := w.CreateFormFile("file", "cases.zip")
	_, _ = part.Write([]byte("PK-multipart"))
	_ = w.Close()
	if rec := s.do(http.MethodPost, "/api/v1/problems/1/testcases/archive", s.admin, w.FormDataContentType(), buf.Bytes()); rec.Code != http.StatusOK {
		t.Fatalf("expected multipart upload to succeed, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(s.ingest.archives) != 2 || string(s.ingest.archives[1]) != "PK-multipart" {
		t.Fatalf("unexpected archives %q", s.ingest.archives)
	}

	rec := s.do(http.MethodPost, "/api/v1/problems/1/testcases/archive", s.admin, "application/zip", bytes.Repeat([]byte("x"), 17))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an oversized archive, got %d", rec.Code)
	}
}

func TestIngestObjectAndPrepare(t *testing.T) {
	s := newProblemServer(t)
	body, _ := json.Marshal(IngestObjectRequest{ObjectKey: "testcases/1/x.archive"})
	rec := s.do(http.MethodPost, "/api/v1/problems/1/testcases/archive/ingest", s.admin, "application/json", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Data IngestResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp.Data.Created != 2 {
		t.Fatalf("unexpected response %s", rec.Body.String())
	}

	if rec := s.do(http.MethodPost, "/api/v1/problems/1/testcases/archive/uploads", s.admin, "", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestPurgeArchives(t *testing.T) {
	s := newProblemServer(t)
	if rec := s.do(http.MethodDelete, "/api/v1/problems/3/testcases/archive", s.user, "", nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", rec.Code)
	}
	rec := s.do(http.MethodDelete, "/api/v1/problems/3/testcases/archive", s.admin, "", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if len(s.ingest.purged) != 1 || s.ingest.purged[0] != 3 {
		t.Fatalf("unexpected purge calls %v", s.ingest.purged)
	}
}
