// Package language holds the immutable catalog of languages submissions may use.
package language

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	pkgerrors "judgebroker/pkg/errors"

	"github.com/google/shlex"
)

const (
	PlaceholderSource = "$SourceFileName"
	PlaceholderBinary = "$BinaryFileName"

	baseFileName = "main"
)

var placeholderPattern = regexp.MustCompile(`\$[A-Za-z_][A-Za-z0-9_]*`)

// Config is one language entry as written in the broker config file.
type Config struct {
	ID             string `yaml:"id"`
	Name           string `yaml:"name"`
	Version        string `yaml:"version"`
	SourceFileExt  string `yaml:"sourceFileExt"`
	BinaryFileExt  string `yaml:"binaryFileExt"`
	CompileCommand string `yaml:"compileCommand"`
	RunCommand     string `yaml:"runCommand"`
	TimeLimitMs    int64  `yaml:"timeLimitMs"`
	MemoryLimitKB  int64  `yaml:"memoryLimitKB"`
	Active         *bool  `yaml:"active"`
}

// Language is a resolved, immutable language descriptor.
// An empty BinaryFileExt means the language is interpreted and has no compile step.
type Language struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Version        string `json:"version"`
	SourceFileExt  string `json:"source_file_ext"`
	BinaryFileExt  string `json:"binary_file_ext,omitempty"`
	CompileCommand string `json:"compile_command,omitempty"`
	RunCommand     string `json:"run_command"`
	TimeLimitMs    int64  `json:"time_limit_ms,omitempty"`
	MemoryLimitKB  int64  `json:"memory_limit_kb,omitempty"`
	Active         bool   `json:"active"`
}

// Compiled reports whether the language has a compile step.
func (l Language) Compiled() bool {
	return l.BinaryFileExt != ""
}

// SourceFileName is the file name the sandbox writes the code to.
func (l Language) SourceFileName() string {
	return baseFileName + l.SourceFileExt
}

// BinaryFileName is the compile output file name, empty for interpreted languages.
func (l Language) BinaryFileName() string {
	if !l.Compiled() {
		return ""
	}
	return baseFileName + l.BinaryFileExt
}

// ExpandedCompileCommand returns the compile command with placeholders substituted.
func (l Language) ExpandedCompileCommand() string {
	return Expand(l.CompileCommand, l.SourceFileName(), l.BinaryFileName())
}

// ExpandedRunCommand returns the run command with placeholders substituted.
func (l Language) ExpandedRunCommand() string {
	return Expand(l.RunCommand, l.SourceFileName(), l.BinaryFileName())
}

// Registry resolves language ids against a snapshot taken at construction.
// It is safe for concurrent use and never changes after NewRegistry returns.
type Registry struct {
	byID   map[string]Language
	active []Language
}

// NewRegistry validates every entry and builds the snapshot.
func NewRegistry(configs []Config) (*Registry, error) {
	r := &Registry{byID: make(map[string]Language, len(configs))}
	for i, cfg := range configs {
		lang, err := fromConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("language[%d]: %w", i, err)
		}
		if _, dup := r.byID[lang.ID]; dup {
			return nil, fmt.Errorf("language[%d]: duplicate id %q", i, lang.ID)
		}
		r.byID[lang.ID] = lang
		if lang.Active {
			r.active = append(r.active, lang)
		}
	}
	sort.Slice(r.active, func(i, j int) bool { return r.active[i].ID < r.active[j].ID })
	return r, nil
}

// Resolve returns the descriptor for an active language.
func (r *Registry) Resolve(languageID string) (Language, error) {
	lang, ok := r.byID[strings.TrimSpace(languageID)]
	if !ok || !lang.Active {
		return Language{}, pkgerrors.Newf(pkgerrors.LanguageNotSupported, "language %q is not supported", languageID).
			WithDetail("language_id", languageID)
	}
	return lang, nil
}

// List returns the active languages ordered by id.
func (r *Registry) List() []Language {
	out := make([]Language, len(r.active))
	copy(out, r.active)
	return out
}

func fromConfig(cfg Config) (Language, error) {
	lang := Language{
		ID:             strings.TrimSpace(cfg.ID),
		Name:           cfg.Name,
		Version:        cfg.Version,
		SourceFileExt:  normalizeExt(cfg.SourceFileExt),
		BinaryFileExt:  normalizeExt(cfg.BinaryFileExt),
		CompileCommand: strings.TrimSpace(cfg.CompileCommand),
		RunCommand:     strings.TrimSpace(cfg.RunCommand),
		TimeLimitMs:    cfg.TimeLimitMs,
		MemoryLimitKB:  cfg.MemoryLimitKB,
		Active:         cfg.Active == nil || *cfg.Active,
	}
	if lang.ID == "" {
		return Language{}, fmt.Errorf("id is required")
	}
	if lang.SourceFileExt == "" {
		return Language{}, fmt.Errorf("%s: sourceFileExt is required", lang.ID)
	}
	if lang.RunCommand == "" {
		return Language{}, fmt.Errorf("%s: runCommand is required", lang.ID)
	}
	if lang.BinaryFileExt != "" && lang.CompileCommand == "" {
		return Language{}, fmt.Errorf("%s: binaryFileExt requires compileCommand", lang.ID)
	}
	if lang.TimeLimitMs < 0 || lang.MemoryLimitKB < 0 {
		return Language{}, fmt.Errorf("%s: default limits must not be negative", lang.ID)
	}
	if lang.CompileCommand != "" {
		if err := validateTemplate(lang.CompileCommand); err != nil {
			return Language{}, fmt.Errorf("%s: compileCommand: %w", lang.ID, err)
		}
	}
	if err := validateTemplate(lang.RunCommand); err != nil {
		return Language{}, fmt.Errorf("%s: runCommand: %w", lang.ID, err)
	}
	return lang, nil
}

func validateTemplate(tpl string) error {
	words, err := shlex.Split(tpl)
	if err != nil {
		return fmt.Errorf("tokenize %q: %w", tpl, err)
	}
	if len(words) == 0 {
		return fmt.Errorf("empty command")
	}
	for _, ph := range placeholderPattern.FindAllString(tpl, -1) {
		if ph != PlaceholderSource && ph != PlaceholderBinary {
			return fmt.Errorf("unknown placeholder %s", ph)
		}
	}
	return nil
}

func normalizeExt(ext string) string {
	ext = strings.TrimSpace(ext)
	if ext == "" || strings.HasPrefix(ext, ".") {
		return ext
	}
	return "." + ext
}

// Expand substitutes the file name placeholders in a command template.
func Expand(tpl, sourceFile, binaryFile string) string {
	return strings.NewReplacer(PlaceholderSource, sourceFile, PlaceholderBinary, binaryFile).Replace(tpl)
}
