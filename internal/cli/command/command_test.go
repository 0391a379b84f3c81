package command

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"judgebroker/internal/cli/config"
	"judgebroker/internal/cli/state"
	commonmw "judgebroker/internal/common/http/middleware"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"
)

type recordedRequest struct {
	Method        string
	Path          string
	RawQuery      string
	Authorization string
	Idempotency   string
	ContentType   string
	Body          []byte
}

type fakeBroker struct {
	mu       sync.Mutex
	requests []recordedRequest
	handle   func(w http.ResponseWriter, r *http.Request)
}

func (b *fakeBroker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	b.mu.Lock()
	b.requests = append(b.requests, recordedRequest{
		Method:        r.Method,
		Path:          r.URL.Path,
		RawQuery:      r.URL.RawQuery,
		Authorization: r.Header.Get("Authorization"),
		Idempotency:   r.Header.Get("Idempotency-Key"),
		ContentType:   r.Header.Get("Content-Type"),
		Body:          body,
	})
	b.mu.Unlock()
	b.handle(w, r)
}

func writeEnvelope(w http.ResponseWriter, status int, data string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if status >= 300 {
		_, _ = w.Write([]byte(data))
		return
	}
	_, _ = w.Write([]byte(`{"code":10000,"message":"Success","data":` + data + `}`))
}

func runCLI(t *testing.T, baseURL string, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true
	dir := t.TempDir()
	var out bytes.Buffer
	full := []string{
		"judgectl",
		"--config", filepath.Join(dir, "missing.yaml"),
		"--state", filepath.Join(dir, "state.json"),
		"--base", baseURL,
		"--token", "tkn",
	}
	full = append(full, args...)
	err := Root(NewApp(&out, &out)).Run(context.Background(), full)
	return out.String(), err
}

func TestSubmitReadsFileAndGuessesLanguage(t *testing.T) {
	broker := &fakeBroker{handle: func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusAccepted, `{"submission_id":"s-1","status":"Queued"}`)
	}}
	srv := httptest.NewServer(broker)
	defer srv.Close()

	src := filepath.Join(t.TempDir(), "main.py")
	if err := os.WriteFile(src, []byte("print(1)"), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, srv.URL, "submit", "--problem", "7", "--idempotency-key", "k1", src)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(broker.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(broker.requests))
	}
	req := broker.requests[0]
	if req.Method != http.MethodPost || req.Path != "/api/v1/submissions" {
		t.Fatalf("unexpected request %s %s", req.Method, req.Path)
	}
	if req.Authorization != "Bearer tkn" || req.Idempotency != "k1" {
		t.Fatalf("missing headers: %+v", req)
	}
	var body submitRequest
	if err := json.Unmarshal(req.Body, &body); err != nil {
		t.Fatal(err)
	}
	if body.ProblemID != 7 || body.LanguageID != "python3" || body.Code != "print(1)" || body.UserID != 0 {
		t.Fatalf("unexpected body %+v", body)
	}
	if !strings.Contains(out, "s-1") || !strings.Contains(out, "Queued") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestSubmitUnknownExtension(t *testing.T) {
	src := filepath.Join(t.TempDir(), "main.xyz")
	if err := os.WriteFile(src, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := runCLI(t, "http://127.0.0.1:1", "submit", "--problem", "1", src)
	if err == nil || !strings.Contains(err.Error(), "--language") {
		t.Fatalf("expected language hint error, got %v", err)
	}
}

func TestStatusReportsAPIError(t *testing.T) {
	broker := &fakeBroker{handle: func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusNotFound, `{"code":13000,"message":"Submission not found"}`)
	}}
	srv := httptest.NewServer(broker)
	defer srv.Close()

	_, err := runCLI(t, srv.URL, "status", "nope")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "Submission not found") || !strings.Contains(err.Error(), "13000") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestResultsPrintsSummary(t *testing.T) {
	broker := &fakeBroker{handle: func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, `{"submission_id":"s-1","status":"WrongAnswer","results":[
			{"test_case_id":1,"status":"Accepted","runtime_ms":5,"memory_kb":100},
			{"test_case_id":2,"status":"WrongAnswer","runtime_ms":6,"memory_kb":120},
			{"test_case_id":3,"status":"Accepted","runtime_ms":7,"memory_kb":90}]}`)
	}}
	srv := httptest.NewServer(broker)
	defer srv.Close()

	out, err := runCLI(t, srv.URL, "results", "s-1")
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if broker.requests[0].Path != "/api/v1/submissions/s-1/results" {
		t.Fatalf("unexpected path %s", broker.requests[0].Path)
	}
	if !strings.Contains(out, "Accepted x2, WrongAnswer x1") {
		t.Fatalf("missing summary in %q", out)
	}
}

func TestWatchStreamsUntilClose(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tkn" {
			writeEnvelope(w, http.StatusUnauthorized, `{"code":10004,"message":"Unauthorized access"}`)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"submission":{"submission_id":"s-1","status":"Running"},"results":[{"test_case_id":1,"status":"Accepted"}]}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"submission":{"submission_id":"s-1","status":"Accepted","score":2},"results":[{"test_case_id":2,"status":"Accepted"}]}`))
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"), time.Now().Add(time.Second))
	}))
	defer srv.Close()

	out, err := runCLI(t, srv.URL, "watch", "s-1")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	if strings.Count(out, "Accepted") < 3 {
		t.Fatalf("expected both results and final status, got %q", out)
	}
	if !strings.Contains(out, "score:") {
		t.Fatalf("expected final summary, got %q", out)
	}
}

func TestTestcaseUploadSendsZip(t *testing.T) {
	broker := &fakeBroker{handle: func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, `{"problem_id":3,"created":2,"test_cases":[{"test_case_id":10,"label":"1"},{"test_case_id":11,"label":"2"}]}`)
	}}
	srv := httptest.NewServer(broker)
	defer srv.Close()

	archive := filepath.Join(t.TempDir(), "cases.zip")
	if err := os.WriteFile(archive, []byte("PK-not-really"), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, srv.URL, "testcase", "upload", "3", archive)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	req := broker.requests[0]
	if req.Path != "/api/v1/problems/3/testcases/archive" || req.ContentType != "application/zip" {
		t.Fatalf("unexpected request %+v", req)
	}
	if string(req.Body) != "PK-not-really" {
		t.Fatalf("archive not forwarded: %q", req.Body)
	}
	if !strings.Contains(out, "created 2 test cases for problem 3") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestTestcaseInvalidProblemID(t *testing.T) {
	_, err := runCLI(t, "http://127.0.0.1:1", "testcase", "delete", "abc", "1")
	if err == nil || !strings.Contains(err.Error(), "invalid problem id") {
		t.Fatalf("expected invalid problem id, got %v", err)
	}
}

func TestStatsRecalcAll(t *testing.T) {
	broker := &fakeBroker{handle: func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, `{"recalculated":4}`)
	}}
	srv := httptest.NewServer(broker)
	defer srv.Close()

	out, err := runCLI(t, srv.URL, "stats", "recalc", "--all")
	if err != nil {
		t.Fatalf("recalc: %v", err)
	}
	if broker.requests[0].RawQuery != "all=true" {
		t.Fatalf("expected all=true, got %q", broker.requests[0].RawQuery)
	}
	if !strings.Contains(out, "recalculated 4 problems") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestTokenIssueStoresVerifiableToken(t *testing.T) {
	color.NoColor = true
	dir := t.TempDir()
	statePath := filepath.Join(dir, "state.json")
	var out bytes.Buffer
	args := []string{
		"judgectl",
		"--config", filepath.Join(dir, "missing.yaml"),
		"--state", statePath,
		"token", "issue", "--user", "42", "--role", "admin", "--secret", "s3cret",
	}
	if err := Root(NewApp(&out, &out)).Run(context.Background(), args); err != nil {
		t.Fatalf("issue: %v", err)
	}

	store, err := state.Open(statePath)
	if err != nil {
		t.Fatal(err)
	}
	st := store.Get(config.DefaultBaseURL)
	if st.UserID != 42 || st.Role != "admin" {
		t.Fatalf("unexpected state %+v", st)
	}
	identity, err := commonmw.NewAuthenticator("s3cret", "").Authenticate(st.AccessToken)
	if err != nil {
		t.Fatalf("stored token rejected: %v", err)
	}
	if identity.UserID != 42 || identity.Role != "admin" {
		t.Fatalf("unexpected identity %+v", identity)
	}
}
