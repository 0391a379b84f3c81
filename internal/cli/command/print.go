package command

import (
	"encoding/json"
	"fmt"
	"strings"

	judgemodel "judgebroker/internal/judge/model"
	submitmodel "judgebroker/internal/submit/model"

	"github.com/fatih/color"
)

var (
	okColor      = color.New(color.FgGreen, color.Bold)
	failColor    = color.New(color.FgRed, color.Bold)
	pendingColor = color.New(color.FgCyan)
	warnColor    = color.New(color.FgYellow)
	labelColor   = color.New(color.Faint)
)

func statusColor(s judgemodel.Status) *color.Color {
	switch {
	case s == judgemodel.StatusAccepted:
		return okColor
	case s == judgemodel.StatusQueued, s == judgemodel.StatusRunning:
		return pendingColor
	case s == judgemodel.StatusCompileError, s == judgemodel.StatusSkipped:
		return warnColor
	default:
		return failColor
	}
}

func (a *App) printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	a.printf("%s\n", data)
	return nil
}

func (a *App) printField(label, format string, args ...interface{}) {
	a.printf("%s %s\n", labelColor.Sprintf("%-12s", label+":"), fmt.Sprintf(format, args...))
}

func (a *App) printSubmission(s *submitmodel.Submission) {
	a.printField("submission", "%s", s.ID)
	a.printField("problem", "%d", s.ProblemID)
	a.printField("language", "%s", s.LanguageID)
	a.printField("status", "%s", statusColor(s.Status).Sprint(s.Status))
	if s.Status.IsCompleted() {
		a.printField("score", "%d", s.Score)
		a.printField("time", "%d ms", s.TimeMs)
		a.printField("memory", "%d KB", s.MemoryKB)
	}
	if s.ErrorMessage != "" {
		a.printField("error", "%s", failColor.Sprint(s.ErrorMessage))
	}
}

func (a *App) printResults(results []judgemodel.TestcaseResult) {
	for _, r := range results {
		a.printResult(r)
	}
}

func (a *App) printResult(r judgemodel.TestcaseResult) {
	a.printf("  #%-6d %-22s %6d ms %8d KB\n",
		r.TestCaseID, statusColor(r.Status).Sprint(r.Status), r.RuntimeMs, r.MemoryKB)
}

func summarize(results []judgemodel.TestcaseResult) string {
	counts := make(map[judgemodel.Status]int)
	order := make([]judgemodel.Status, 0)
	for _, r := range results {
		if counts[r.Status] == 0 {
			order = append(order, r.Status)
		}
		counts[r.Status]++
	}
	parts := make([]string, 0, len(order))
	for _, s := range order {
		parts = append(parts, fmt.Sprintf("%s x%d", s, counts[s]))
	}
	return strings.Join(parts, ", ")
}
