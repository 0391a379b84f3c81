package service

import (
	"archive/tar"
	"bytes"
	"strings"
	"testing"

	pkgerrors "judgebroker/pkg/errors"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

type archiveFile struct {
	name string
	body string
}

func buildZip(t *testing.T, files []archiveFile) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		w, err := zw.Create(f.name)
		if err != nil {
			t.Fatalf("create %s: %v", f.name, err)
		}
		if _, err := w.Write([]byte(f.body)); err != nil {
			t.Fatalf("write %s: %v", f.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func buildTarZstd(t *testing.T, files []archiveFile) []byte {
	t.Helper()
	return buildTarZstdWith(t, files)
}

func buildTarZstdWith(t *testing.T, files []archiveFile, opts ...zstd.EOption) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf, opts...)
	if err != nil {
		t.Fatalf("zstd writer: %v", err)
	}
	tw := tar.NewWriter(enc)
	for _, f := range files {
		hdr := &tar.Header{Name: f.name, Mode: 0644, Size: int64(len(f.body)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tar header %s: %v", f.name, err)
		}
		if _, err := tw.Write([]byte(f.body)); err != nil {
			t.Fatalf("tar write %s: %v", f.name, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close zstd: %v", err)
	}
	return buf.Bytes()
}

var threePairsTwoStrays = []archiveFile{
	{name: "tests/input.10.txt", body: "10"},
	{name: "tests/output.10.txt", body: "100"},
	{name: "input.2.txt", body: "2"},
	{name: "output.2.txt", body: "4"},
	{name: "nested/dir/input.1.txt", body: "1"},
	{name: "output.1.txt", body: "1"},
	{name: "input.orphan.txt", body: "x"},
	{name: "README.md", body: "notes"},
}

func TestParseArchiveFormats(t *testing.T) {
	tests := []struct {
		name  string
		build func(*testing.T, []archiveFile) []byte
	}{
		{name: "zip", build: buildZip},
		{name: "tar.zst", build: buildTarZstd},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			pairs, err := ParseArchive(tt.build(t, threePairsTwoStrays), ArchiveLimits{})
			if err != nil {
				t.Fatalf("ParseArchive: %v", err)
			}
			want := []ArchivePair{
				{Label: "1", Input: "1", Output: "1"},
				{Label: "2", Input: "2", Output: "4"},
				{Label: "10", Input: "10", Output: "100"},
			}
			if len(pairs) != len(want) {
				t.Fatalf("expected %d pairs, got %d", len(want), len(pairs))
			}
			for i := range want {
				if pairs[i] != want[i] {
					t.Fatalf("pair %d: expected %+v, got %+v", i, want[i], pairs[i])
				}
			}
		})
	}
}

func TestParseArchiveErrors(t *testing.T) {
	tests := []struct {
		name     string
		data     func(t *testing.T) []byte
		limits   ArchiveLimits
		wantCode pkgerrors.ErrorCode
	}{
		{
			name: "no pairs",
			data: func(t *testing.T) []byte {
				return buildZip(t, []archiveFile{{name: "input.1.txt", body: "1"}, {name: "notes.txt", body: "n"}})
			},
			wantCode: pkgerrors.TestCaseArchiveInvalid,
		},
		{
			name:     "unknown format",
			data:     func(t *testing.T) []byte { return []byte("plain text") },
			wantCode: pkgerrors.TestCaseInvalid,
		},
		{
			name:     "archive too large",
			data:     func(t *testing.T) []byte { return buildZip(t, threePairsTwoStrays) },
			limits:   ArchiveLimits{MaxArchiveBytes: 16},
			wantCode: pkgerrors.TestCaseTooLarge,
		},
		{
			name:     "too many entries",
			data:     func(t *testing.T) []byte { return buildZip(t, threePairsTwoStrays) },
			limits:   ArchiveLimits{MaxEntries: 3},
			wantCode: pkgerrors.TestCaseTooLarge,
		},
		{
			name: "file too large",
			data: func(t *testing.T) []byte {
				return buildZip(t, []archiveFile{{name: "input.1.txt", body: "0123456789"}, {name: "output.1.txt", body: "1"}})
			},
			limits:   ArchiveLimits{MaxFileBytes: 4},
			wantCode: pkgerrors.TestCaseTooLarge,
		},
		{
			name: "duplicate label in different directories",
			data: func(t *testing.T) []byte {
				return buildZip(t, []archiveFile{
					{name: "a/input.1.txt", body: "1"},
					{name: "b/input.1.txt", body: "2"},
					{name: "output.1.txt", body: "1"},
				})
			},
			wantCode: pkgerrors.TestCaseInvalid,
		},
		{
			name: "duplicate label in different tar directories",
			data: func(t *testing.T) []byte {
				return buildTarZstd(t, []archiveFile{
					{name: "a/output.1.txt", body: "1"},
					{name: "input.1.txt", body: "1"},
					{name: "b/output.1.txt", body: "2"},
				})
			},
			wantCode: pkgerrors.TestCaseInvalid,
		},
		{
			name: "file not utf-8",
			data: func(t *testing.T) []byte {
				return buildZip(t, []archiveFile{{name: "input.1.txt", body: "\xff\xfe"}, {name: "output.1.txt", body: "1"}})
			},
			wantCode: pkgerrors.TestCaseInvalid,
		},
		{
			name: "zstd window larger than archive limit",
			data: func(t *testing.T) []byte {
				return buildTarZstdWith(t, []archiveFile{
					{name: "input.1.txt", body: "1"},
					{name: "output.1.txt", body: "1"},
				}, zstd.WithWindowSize(1<<20))
			},
			limits:   ArchiveLimits{MaxArchiveBytes: 64 << 10},
			wantCode: pkgerrors.TestCaseInvalid,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseArchive(tt.data(t), tt.limits)
			if got := pkgerrors.GetCode(err); got != tt.wantCode {
				t.Fatalf("expected code %d, got %d (%v)", tt.wantCode, got, err)
			}
		})
	}
}

func TestParseArchiveDuplicateNamesBothPaths(t *testing.T) {
	t.Parallel()
	data := buildZip(t, []archiveFile{
		{name: "a/input.1.txt", body: "1"},
		{name: "b/input.1.txt", body: "2"},
		{name: "output.1.txt", body: "1"},
	})
	_, err := ParseArchive(data, ArchiveLimits{})
	if err == nil {
		t.Fatal("expected duplicate error")
	}
	if msg := err.Error(); !strings.Contains(msg, "a/input.1.txt") || !strings.Contains(msg, "b/input.1.txt") {
		t.Fatalf("expected both paths in %q", msg)
	}
}

func TestParseArchiveAcceptsWindowWithinLimit(t *testing.T) {
	t.Parallel()
	data := buildTarZstdWith(t, []archiveFile{
		{name: "input.1.txt", body: "1"},
		{name: "output.1.txt", body: "1"},
	}, zstd.WithWindowSize(32<<10))
	pairs, err := ParseArchive(data, ArchiveLimits{MaxArchiveBytes: 64 << 10})
	if err != nil {
		t.Fatalf("ParseArchive: %v", err)
	}
	if len(pairs) != 1 || pairs[0].Label != "1" {
		t.Fatalf("unexpected pairs %+v", pairs)
	}
}

func TestLabelLess(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"2", "10", true},
		{"10", "2", false},
		{"9", "a", true},
		{"a", "9", false},
		{"a", "b", true},
		{"01", "1", true},
	}
	for _, tt := range tests {
		if got := labelLess(tt.a, tt.b); got != tt.want {
			t.Errorf("labelLess(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
