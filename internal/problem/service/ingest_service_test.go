package service

import (
	"context"
	"strings"
	"testing"

	"judgebroker/internal/problem/model"
	pkgerrors "judgebroker/pkg/errors"
)

func newIngestFixture(t *testing.T) (*IngestService, *fakeTestCaseRepo, *fakeStorage) {
	t.Helper()
	repo := newFakeTestCaseRepo()
	repo.put(model.TestCase{ID: 1, ProblemID: 1, Index: 1, Label: "sample", IsSample: true})
	store := newFakeStorage()
	svc := NewIngestService(newTestCaseService(repo, nil), store, IngestOptions{Bucket: "judge", KeyPrefix: "testcases"})
	return svc, repo, store
}

func TestIngestArchiveCreatesHiddenCases(t *testing.T) {
	svc, _, store := newIngestFixture(t)

	created, err := svc.IngestArchive(context.Background(), 1, buildZip(t, threePairsTwoStrays))
	if err != nil {
		t.Fatalf("IngestArchive: %v", err)
	}
	if len(created) != 3 {
		t.Fatalf("expected 3 test cases, got %d", len(created))
	}
	for i, tc := range created {
		if tc.IsSample || tc.Points != 1 {
			t.Fatalf("case %d should be hidden with one point: %+v", i, tc)
		}
		if tc.Index != int64(i)+2 {
			t.Fatalf("case %d: expected index %d, got %d", i, i+2, tc.Index)
		}
	}
	if created[0].Label != "1" || created[2].Label != "10" {
		t.Fatalf("unexpected label order: %q %q", created[0].Label, created[2].Label)
	}
	if store.count() != 1 {
		t.Fatalf("expected archive to be kept in storage")
	}
}

func TestIngestArchiveWithoutPairs(t *testing.T) {
	svc, repo, _ := newIngestFixture(t)

	_, err := svc.IngestArchive(context.Background(), 1, buildZip(t, []archiveFile{{name: "stray.txt", body: "x"}}))
	if !pkgerrors.Is(err, pkgerrors.TestCaseArchiveInvalid) {
		t.Fatalf("expected TestCaseArchiveInvalid, got %v", err)
	}
	if got, _ := repo.ListByProblem(context.Background(), nil, 1); len(got) != 1 {
		t.Fatalf("no test case should be created, have %d", len(got))
	}
}

func TestIngestObject(t *testing.T) {
	svc, _, store := newIngestFixture(t)
	ctx := context.Background()

	ticket, err := svc.PrepareUpload(ctx, 1)
	if err != nil {
		t.Fatalf("PrepareUpload: %v", err)
	}
	if !strings.HasPrefix(ticket.ObjectKey, "testcases/1/") || ticket.URL == "" {
		t.Fatalf("unexpected ticket %+v", ticket)
	}
	data := buildTarZstd(t, threePairsTwoStrays)
	if err := store.PutObject(ctx, "judge", ticket.ObjectKey, strings.NewReader(string(data)), int64(len(data)), ""); err != nil {
		t.Fatalf("put: %v", err)
	}

	created, err := svc.IngestObject(ctx, 1, ticket.ObjectKey)
	if err != nil {
		t.Fatalf("IngestObject: %v", err)
	}
	if len(created) != 3 {
		t.Fatalf("expected 3 created, got %d", len(created))
	}
}

func TestIngestObjectErrors(t *testing.T) {
	svc, _, _ := newIngestFixture(t)
	ctx := context.Background()

	if _, err := svc.IngestObject(ctx, 1, "testcases/2/other.archive"); !pkgerrors.Is(err, pkgerrors.ValidationFailed) {
		t.Fatalf("expected ValidationFailed for foreign key, got %v", err)
	}
	if _, err := svc.IngestObject(ctx, 1, "testcases/1/missing.archive"); !pkgerrors.Is(err, pkgerrors.NotFound) {
		t.Fatalf("expected NotFound for missing object, got %v", err)
	}
}
