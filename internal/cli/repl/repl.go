package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"judgebroker/internal/cli/command"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/google/shlex"
)

const prompt = "judgectl> "

var (
	promptColor = color.New(color.FgCyan, color.Bold)
	errorColor  = color.New(color.FgRed)
)

// LineReader yields one input line per call and io.EOF at the end.
type LineReader interface {
	Readline() (string, error)
	Close() error
}

// NewTerminal returns a line editor with history for interactive use.
func NewTerminal(historyFile string) (LineReader, error) {
	return readline.NewEx(&readline.Config{
		Prompt:          promptColor.Sprint(prompt),
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
}

// NewScanner reads lines from r and writes a plain prompt to out.
func NewScanner(r io.Reader, out io.Writer) LineReader {
	return &scanner{reader: bufio.NewReader(r), out: out}
}

type scanner struct {
	reader *bufio.Reader
	out    io.Writer
}

func (s *scanner) Readline() (string, error) {
	_, _ = promptColor.Fprint(s.out, prompt)
	line, err := s.reader.ReadString('\n')
	if err == io.EOF && line != "" {
		return line, nil
	}
	return line, err
}

func (s *scanner) Close() error { return nil }

// Session runs judgectl commands read line by line.
type Session struct {
	newApp  func() *command.App
	globals []string
	lines   LineReader
	out     io.Writer
}

// New creates a session. globals are flags prepended to every line, newApp
// returns a fresh App for each command.
func New(newApp func() *command.App, globals []string, lines LineReader, out io.Writer) *Session {
	return &Session{
		newApp:  newApp,
		globals: globals,
		lines:   lines,
		out:     out,
	}
}

// Run reads commands until EOF, "exit" or ctx ends.
func (s *Session) Run(ctx context.Context) error {
	defer func() { _ = s.lines.Close() }()
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := s.lines.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			_, _ = fmt.Fprintln(s.out)
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input failed: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch line {
		case "exit", "quit":
			_, _ = fmt.Fprintln(s.out, "bye")
			return nil
		case "help":
			line = "--help"
		}
		if err := s.Exec(ctx, line); err != nil {
			_, _ = errorColor.Fprintf(s.out, "error: %v\n", err)
		}
	}
}

// Exec runs one line as a judgectl invocation.
func (s *Session) Exec(ctx context.Context, line string) error {
	tokens, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse command failed: %w", err)
	}
	if len(tokens) > 0 && tokens[0] == "judgectl" {
		tokens = tokens[1:]
	}
	args := make([]string, 0, 1+len(s.globals)+len(tokens))
	args = append(args, "judgectl")
	args = append(args, s.globals...)
	args = append(args, tokens...)
	return command.Root(s.newApp()).Run(ctx, args)
}
