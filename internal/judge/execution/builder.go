package execution

import (
	"strings"
	"unicode/utf8"

	"judgebroker/internal/judge/language"
	problemmodel "judgebroker/internal/problem/model"
	pkgerrors "judgebroker/pkg/errors"
)

const (
	DefaultTimeLimitMs   = 1000
	DefaultMemoryLimitKB = 256 * 1024
	DefaultMaxCodeBytes  = 64 << 10
)

// Limits are per-test-case resource limits. Zero means unset.
type Limits struct {
	TimeLimitMs   int64 `yaml:"timeLimitMs"`
	MemoryLimitKB int64 `yaml:"memoryLimitKB"`
}

// Source is the part of a submission the backend needs.
type Source struct {
	SubmissionID string
	Code         string
}

// Builder assembles execution requests. It holds only configuration.
type Builder struct {
	defaults     Limits
	maxCodeBytes int
}

func NewBuilder(defaults Limits, maxCodeBytes int) *Builder {
	if defaults.TimeLimitMs <= 0 {
		defaults.TimeLimitMs = DefaultTimeLimitMs
	}
	if defaults.MemoryLimitKB <= 0 {
		defaults.MemoryLimitKB = DefaultMemoryLimitKB
	}
	if maxCodeBytes <= 0 {
		maxCodeBytes = DefaultMaxCodeBytes
	}
	return &Builder{defaults: defaults, maxCodeBytes: maxCodeBytes}
}

// MaxCodeBytes is the largest accepted source.
func (b *Builder) MaxCodeBytes() int {
	return b.maxCodeBytes
}

// Build turns a submission into a request. Limits come from the problem when
// set, else from the language, else from the builder defaults. Test cases keep
// their order.
func (b *Builder) Build(src Source, lang language.Language, cases []problemmodel.TestCase, problem Limits) (*Request, error) {
	if err := b.ValidateCode(src.Code); err != nil {
		return nil, err
	}
	if len(cases) == 0 {
		return nil, pkgerrors.ValidationError("test_cases", "must not be empty")
	}
	if lang.RunCommand == "" || lang.SourceFileExt == "" {
		return nil, pkgerrors.ValidationError("language", "incomplete descriptor")
	}

	timeLimit, err := resolveLimit("time_limit_ms", problem.TimeLimitMs, lang.TimeLimitMs, b.defaults.TimeLimitMs)
	if err != nil {
		return nil, err
	}
	memoryLimit, err := resolveLimit("memory_limit_kb", problem.MemoryLimitKB, lang.MemoryLimitKB, b.defaults.MemoryLimitKB)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]struct{}, len(cases))
	specs := make([]TestCaseSpec, 0, len(cases))
	for _, tc := range cases {
		if _, dup := seen[tc.ID]; dup {
			return nil, pkgerrors.ValidationError("test_cases", "duplicate test case id")
		}
		seen[tc.ID] = struct{}{}
		if !utf8.ValidString(tc.InputData) || !utf8.ValidString(tc.ExpectedOutput) {
			return nil, pkgerrors.Newf(pkgerrors.TestCaseInvalid, "test case %d is not valid UTF-8", tc.ID).
				WithDetail("testcase_id", tc.ID)
		}
		specs = append(specs, TestCaseSpec{
			ID:             tc.ID,
			Input:          tc.InputData,
			ExpectedOutput: tc.ExpectedOutput,
		})
	}

	return &Request{
		SubmissionID: src.SubmissionID,
		Language: LanguageSpec{
			SourceFileExt:  lang.SourceFileExt,
			BinaryFileExt:  lang.BinaryFileExt,
			CompileCommand: lang.ExpandedCompileCommand(),
			RunCommand:     lang.ExpandedRunCommand(),
		},
		Code:          src.Code,
		TimeLimitMs:   timeLimit,
		MemoryLimitKB: memoryLimit,
		TestCases:     specs,
	}, nil
}

// ValidateCode checks the source is non-blank UTF-8 within the size bound.
func (b *Builder) ValidateCode(code string) error {
	if strings.TrimSpace(code) == "" {
		return pkgerrors.ValidationError("code", "must not be empty")
	}
	if !utf8.ValidString(code) {
		return pkgerrors.ValidationError("code", "must be valid UTF-8")
	}
	if len(code) > b.maxCodeBytes {
		return pkgerrors.Newf(pkgerrors.CodeTooLarge, "code exceeds %d bytes", b.maxCodeBytes).
			WithDetail("max_bytes", b.maxCodeBytes)
	}
	return nil
}

func resolveLimit(field string, candidates ...int64) (int64, error) {
	for _, v := range candidates {
		if v < 0 {
			return 0, pkgerrors.ValidationError(field, "must be positive")
		}
		if v > 0 {
			return v, nil
		}
	}
	return 0, pkgerrors.ValidationError(field, "must be positive")
}
