package service

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strconv"
	"unicode/utf8"

	pkgerrors "judgebroker/pkg/errors"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

const (
	defaultMaxArchiveBytes = 64 << 20
	defaultMaxEntries      = 2000
	defaultMaxFileBytes    = 16 << 20
)

var (
	archiveEntryPattern = regexp.MustCompile(`^(input|output)\.(.+)\.txt$`)

	zipMagic  = []byte("PK\x03\x04")
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// ArchiveLimits bounds what one archive may contain.
type ArchiveLimits struct {
	MaxArchiveBytes int64 `yaml:"maxArchiveBytes"`
	MaxEntries      int   `yaml:"maxEntries"`
	MaxFileBytes    int64 `yaml:"maxFileBytes"`
}

func (l *ArchiveLimits) applyDefaults() {
	if l.MaxArchiveBytes <= 0 {
		l.MaxArchiveBytes = defaultMaxArchiveBytes
	}
	if l.MaxEntries <= 0 {
		l.MaxEntries = defaultMaxEntries
	}
	if l.MaxFileBytes <= 0 {
		l.MaxFileBytes = defaultMaxFileBytes
	}
}

// ArchivePair is one matched input/output pair.
type ArchivePair struct {
	Label  string
	Input  string
	Output string
}

// ParseArchive extracts input.<label>.txt / output.<label>.txt pairs from a zip
// or a zstd-compressed tar. Only base names are matched, so the same file name in
// two directories is a duplicate and rejects the archive. Unmatched files are
// ignored and pairs come back ordered by label.
func ParseArchive(data []byte, limits ArchiveLimits) ([]ArchivePair, error) {
	limits.applyDefaults()
	if int64(len(data)) > limits.MaxArchiveBytes {
		return nil, pkgerrors.Newf(pkgerrors.TestCaseTooLarge, "archive exceeds %d bytes", limits.MaxArchiveBytes)
	}

	inputs := make(map[string]string)
	outputs := make(map[string]string)
	origins := make(map[string]string)
	seen := 0
	visit := func(name string, size int64, r io.Reader) error {
		seen++
		if seen > limits.MaxEntries {
			return pkgerrors.Newf(pkgerrors.TestCaseTooLarge, "archive has more than %d entries", limits.MaxEntries)
		}
		m := archiveEntryPattern.FindStringSubmatch(path.Base(name))
		if m == nil {
			return nil
		}
		if size > limits.MaxFileBytes {
			return pkgerrors.Newf(pkgerrors.TestCaseTooLarge, "%s exceeds %d bytes", name, limits.MaxFileBytes)
		}
		content, err := io.ReadAll(io.LimitReader(r, limits.MaxFileBytes+1))
		if err != nil {
			return pkgerrors.Wrapf(err, pkgerrors.TestCaseInvalid, "read %s failed", name)
		}
		if int64(len(content)) > limits.MaxFileBytes {
			return pkgerrors.Newf(pkgerrors.TestCaseTooLarge, "%s exceeds %d bytes", name, limits.MaxFileBytes)
		}
		if !utf8.Valid(content) {
			return pkgerrors.Newf(pkgerrors.TestCaseInvalid, "%s is not valid UTF-8", name)
		}

		target := inputs
		if m[1] == "output" {
			target = outputs
		}
		label := m[2]
		if first, dup := origins[m[1]+"/"+label]; dup {
			return pkgerrors.Newf(pkgerrors.TestCaseInvalid, "duplicate %s file for label %q: %s and %s", m[1], label, first, name)
		}
		origins[m[1]+"/"+label] = name
		target[label] = string(content)
		return nil
	}

	var err error
	switch {
	case bytes.HasPrefix(data, zipMagic):
		err = walkZip(data, visit)
	case bytes.HasPrefix(data, zstdMagic):
		err = walkTarZstd(data, uint64(limits.MaxArchiveBytes), visit)
	default:
		err = pkgerrors.New(pkgerrors.TestCaseInvalid).WithMessage("unsupported archive format")
	}
	if err != nil {
		return nil, err
	}

	pairs := make([]ArchivePair, 0, len(inputs))
	for label, input := range inputs {
		output, ok := outputs[label]
		if !ok {
			continue
		}
		pairs = append(pairs, ArchivePair{Label: label, Input: input, Output: output})
	}
	if len(pairs) == 0 {
		return nil, pkgerrors.New(pkgerrors.TestCaseArchiveInvalid)
	}
	sort.Slice(pairs, func(i, j int) bool { return labelLess(pairs[i].Label, pairs[j].Label) })
	return pairs, nil
}

func walkZip(data []byte, visit func(name string, size int64, r io.Reader) error) error {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.TestCaseInvalid, "open zip archive failed")
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if err := visitZipFile(f, visit); err != nil {
			return err
		}
	}
	return nil
}

func visitZipFile(f *zip.File, visit func(name string, size int64, r io.Reader) error) error {
	rc, err := f.Open()
	if err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.TestCaseInvalid, "open %s failed", f.Name)
	}
	defer rc.Close()
	return visit(f.Name, int64(f.UncompressedSize64), rc)
}

// walkTarZstd refuses frames whose window exceeds maxWindow.
func walkTarZstd(data []byte, maxWindow uint64, visit func(name string, size int64, r io.Reader) error) error {
	zr, err := zstd.NewReader(bytes.NewReader(data), zstd.WithDecoderMaxMemory(maxWindow))
	if err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.TestCaseInvalid, "create zstd reader failed")
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return pkgerrors.Wrapf(err, pkgerrors.TestCaseInvalid, "read tar entry failed")
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if err := visit(hdr.Name, hdr.Size, tr); err != nil {
			return err
		}
	}
}

// labelLess orders numeric labels numerically and before any other label.
func labelLess(a, b string) bool {
	na, errA := strconv.ParseInt(a, 10, 64)
	nb, errB := strconv.ParseInt(b, 10, 64)
	switch {
	case errA == nil && errB == nil:
		if na != nb {
			return na < nb
		}
		return a < b
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return a < b
	}
}

func archiveObjectPrefix(keyPrefix string, problemID int64) string {
	if keyPrefix == "" {
		keyPrefix = "testcases"
	}
	return fmt.Sprintf("%s/%d/", keyPrefix, problemID)
}
