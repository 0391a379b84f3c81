package command

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"judgebroker/internal/judge/language"
	judgemodel "judgebroker/internal/judge/model"
	submitmodel "judgebroker/internal/submit/model"

	"github.com/urfave/cli/v3"
)

type submitRequest struct {
	ProblemID  int64  `json:"problem_id"`
	LanguageID string `json:"language_id"`
	Code       string `json:"code"`
	UserID     int64  `json:"user_id,omitempty"`
}

type submitResponse struct {
	SubmissionID string            `json:"submission_id"`
	Status       judgemodel.Status `json:"status"`
}

type resultsResponse struct {
	SubmissionID string                      `json:"submission_id"`
	Status       judgemodel.Status           `json:"status"`
	Results      []judgemodel.TestcaseResult `json:"results"`
}

type liveUpdate struct {
	Submission *submitmodel.Submission     `json:"submission"`
	Results    []judgemodel.TestcaseResult `json:"results"`
}

type poolStats struct {
	Capacity int `json:"capacity"`
	Busy     int `json:"busy"`
	Running  int `json:"running"`
}

var extLanguages = map[string]string{
	".c":    "c",
	".cc":   "cpp",
	".cpp":  "cpp",
	".go":   "go",
	".java": "java",
	".py":   "python3",
	".rs":   "rust",
}

func submissionPath(id string) string {
	return "/api/v1/submissions/" + url.PathEscape(id)
}

func submitCommand(app *App) *cli.Command {
	return &cli.Command{
		Name:      "submit",
		Usage:     "Submit a source file for judging",
		ArgsUsage: "<source-file>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "problem", Aliases: []string{"p"}, Required: true, Usage: "Problem id"},
			&cli.StringFlag{Name: "language", Aliases: []string{"l"}, Usage: "Language id (guessed from the file extension when empty)"},
			&cli.IntFlag{Name: "user", Usage: "Submit on behalf of a user (admin only)"},
			&cli.StringFlag{Name: "idempotency-key", Usage: "Reuse the submission created with this key"},
			&cli.BoolFlag{Name: "watch", Aliases: []string{"w"}, Usage: "Stream results until the verdict is final"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := requireArgs(cmd, "source-file"); err != nil {
				return err
			}
			path := cmd.Args().First()
			code, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read source file failed: %w", err)
			}
			languageID := cmd.String("language")
			if languageID == "" {
				languageID = extLanguages[strings.ToLower(filepath.Ext(path))]
			}
			if languageID == "" {
				return fmt.Errorf("cannot guess language for %s, pass --language", path)
			}

			req := submitRequest{
				ProblemID:  cmd.Int("problem"),
				LanguageID: languageID,
				Code:       string(code),
				UserID:     cmd.Int("user"),
			}
			headers := map[string]string{"Idempotency-Key": cmd.String("idempotency-key")}
			var resp submitResponse
			if _, err := app.Client.Call(ctx, http.MethodPost, "/api/v1/submissions", req, &resp, headers); err != nil {
				return err
			}
			if app.JSON {
				return app.printJSON(resp)
			}
			app.printField("submission", "%s", resp.SubmissionID)
			app.printField("status", "%s", statusColor(resp.Status).Sprint(resp.Status))
			if cmd.Bool("watch") {
				return app.watch(ctx, resp.SubmissionID)
			}
			return nil
		},
	}
}

func statusCommand(app *App) *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Show the status of a submission",
		ArgsUsage: "<submission-id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := requireArgs(cmd, "submission-id"); err != nil {
				return err
			}
			var sub submitmodel.Submission
			if _, err := app.Client.Call(ctx, http.MethodGet, submissionPath(cmd.Args().First()), nil, &sub, nil); err != nil {
				return err
			}
			if app.JSON {
				return app.printJSON(sub)
			}
			app.printSubmission(&sub)
			return nil
		},
	}
}

func resultsCommand(app *App) *cli.Command {
	return &cli.Command{
		Name:      "results",
		Usage:     "List the per test case results of a submission",
		ArgsUsage: "<submission-id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := requireArgs(cmd, "submission-id"); err != nil {
				return err
			}
			var resp resultsResponse
			if _, err := app.Client.Call(ctx, http.MethodGet, submissionPath(cmd.Args().First())+"/results", nil, &resp, nil); err != nil {
				return err
			}
			if app.JSON {
				return app.printJSON(resp)
			}
			app.printField("status", "%s", statusColor(resp.Status).Sprint(resp.Status))
			app.printResults(resp.Results)
			if len(resp.Results) > 0 {
				app.printField("summary", "%s", summarize(resp.Results))
			}
			return nil
		},
	}
}

func watchCommand(app *App) *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Stream results of a submission until it finishes",
		ArgsUsage: "<submission-id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := requireArgs(cmd, "submission-id"); err != nil {
				return err
			}
			return app.watch(ctx, cmd.Args().First())
		},
	}
}

func (a *App) watch(ctx context.Context, submissionID string) error {
	var last *submitmodel.Submission
	err := a.Client.Stream(ctx, submissionPath(submissionID)+"/live", func(frame []byte) error {
		if a.JSON {
			a.printf("%s\n", frame)
			return nil
		}
		var update liveUpdate
		if err := json.Unmarshal(frame, &update); err != nil {
			return fmt.Errorf("decode update failed: %w", err)
		}
		a.printResults(update.Results)
		if update.Submission != nil {
			last = update.Submission
		}
		return nil
	})
	if err != nil {
		return err
	}
	if last != nil && !a.JSON {
		a.printSubmission(last)
	}
	return nil
}

func cancelCommand(app *App) *cli.Command {
	return &cli.Command{
		Name:      "cancel",
		Usage:     "Abort a running submission (admin only)",
		ArgsUsage: "<submission-id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := requireArgs(cmd, "submission-id"); err != nil {
				return err
			}
			var out map[string]interface{}
			if _, err := app.Client.Call(ctx, http.MethodPost, submissionPath(cmd.Args().First())+"/cancel", nil, &out, nil); err != nil {
				return err
			}
			if app.JSON {
				return app.printJSON(out)
			}
			app.printf("%s\n", okColor.Sprint("cancel requested"))
			return nil
		},
	}
}

func languagesCommand(app *App) *cli.Command {
	return &cli.Command{
		Name:  "languages",
		Usage: "List the languages the broker accepts",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			var langs []language.Language
			if _, err := app.Client.Call(ctx, http.MethodGet, "/api/v1/languages", nil, &langs, nil); err != nil {
				return err
			}
			if app.JSON {
				return app.printJSON(langs)
			}
			for _, l := range langs {
				app.printf("%-12s %s %s\n", okColor.Sprint(l.ID), l.Name, labelColor.Sprint(l.Version))
			}
			return nil
		},
	}
}

func poolCommand(app *App) *cli.Command {
	return &cli.Command{
		Name:  "pool",
		Usage: "Show judge worker pool occupancy (admin only)",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			var stats poolStats
			if _, err := app.Client.Call(ctx, http.MethodGet, "/api/v1/judge/pool", nil, &stats, nil); err != nil {
				return err
			}
			if app.JSON {
				return app.printJSON(stats)
			}
			app.printField("capacity", "%d", stats.Capacity)
			app.printField("busy", "%d", stats.Busy)
			app.printField("running", "%d", stats.Running)
			return nil
		},
	}
}
