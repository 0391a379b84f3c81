package command

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	httpclient "judgebroker/internal/cli/http"
	problemmodel "judgebroker/internal/problem/model"

	"github.com/urfave/cli/v3"
)

type problemDetail struct {
	problemmodel.Problem
	TestCases []problemmodel.TestCaseView `json:"test_cases"`
}

type createTestCaseRequest struct {
	InputData      string `json:"input_data"`
	ExpectedOutput string `json:"expected_output"`
	IsSample       bool   `json:"is_sample"`
	Points         *int64 `json:"points,omitempty"`
	Label          string `json:"label,omitempty"`
}

type ingestResponse struct {
	ProblemID int64                   `json:"problem_id"`
	Created   int                     `json:"created"`
	TestCases []problemmodel.TestCase `json:"test_cases"`
}

type uploadTicket struct {
	ObjectKey string `json:"object_key"`
	URL       string `json:"url"`
}

func problemPath(arg string) (string, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return "", fmt.Errorf("invalid problem id %q", arg)
	}
	return "/api/v1/problems/" + strconv.FormatInt(id, 10), nil
}

func problemCommand(app *App) *cli.Command {
	return &cli.Command{
		Name:  "problem",
		Usage: "Inspect problems",
		Commands: []*cli.Command{
			{
				Name:      "show",
				Usage:     "Show a problem and its test cases",
				ArgsUsage: "<problem-id>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if err := requireArgs(cmd, "problem-id"); err != nil {
						return err
					}
					path, err := problemPath(cmd.Args().First())
					if err != nil {
						return err
					}
					var detail problemDetail
					if _, err := app.Client.Call(ctx, http.MethodGet, path, nil, &detail, nil); err != nil {
						return err
					}
					if app.JSON {
						return app.printJSON(detail)
					}
					app.printField("problem", "%d %s", detail.ID, detail.Title)
					app.printField("limits", "%d ms / %d KB", detail.TimeLimitMs, detail.MemoryLimitKB)
					app.printField("accepted", "%d / %d", detail.AcceptedSubmissions, detail.TotalSubmissions)
					for _, tc := range detail.TestCases {
						kind := "hidden"
						if tc.IsSample {
							kind = "sample"
						}
						app.printf("  #%-6d %-10s %-8s %d pts\n", tc.ID, tc.Label, kind, tc.Points)
					}
					return nil
				},
			},
		},
	}
}

func testcaseCommand(app *App) *cli.Command {
	return &cli.Command{
		Name:  "testcase",
		Usage: "Manage test cases (admin only)",
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Add one test case from input and output files",
				ArgsUsage: "<problem-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Required: true, Usage: "Input file"},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Required: true, Usage: "Expected output file"},
					&cli.StringFlag{Name: "label", Usage: "Test case label"},
					&cli.IntFlag{Name: "points", Value: 1, Usage: "Points awarded when accepted"},
					&cli.BoolFlag{Name: "sample", Usage: "Show the test case to users"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if err := requireArgs(cmd, "problem-id"); err != nil {
						return err
					}
					path, err := problemPath(cmd.Args().First())
					if err != nil {
						return err
					}
					input, err := os.ReadFile(cmd.String("input"))
					if err != nil {
						return fmt.Errorf("read input failed: %w", err)
					}
					output, err := os.ReadFile(cmd.String("output"))
					if err != nil {
						return fmt.Errorf("read output failed: %w", err)
					}
					points := cmd.Int("points")
					req := createTestCaseRequest{
						InputData:      string(input),
						ExpectedOutput: string(output),
						IsSample:       cmd.Bool("sample"),
						Points:         &points,
						Label:          cmd.String("label"),
					}
					var tc problemmodel.TestCase
					if _, err := app.Client.Call(ctx, http.MethodPost, path+"/testcases", req, &tc, nil); err != nil {
						return err
					}
					if app.JSON {
						return app.printJSON(tc)
					}
					app.printf("%s #%d (%s)\n", okColor.Sprint("created"), tc.ID, tc.Label)
					return nil
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a test case",
				ArgsUsage: "<problem-id> <test-case-id>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if err := requireArgs(cmd, "problem-id", "test-case-id"); err != nil {
						return err
					}
					path, err := problemPath(cmd.Args().Get(0))
					if err != nil {
						return err
					}
					if _, err := app.Client.Call(ctx, http.MethodDelete, path+"/testcases/"+cmd.Args().Get(1), nil, nil, nil); err != nil {
						return err
					}
					app.printf("%s\n", okColor.Sprint("deleted"))
					return nil
				},
			},
			{
				Name:      "upload",
				Usage:     "Upload a zip archive of NAME.in/NAME.out pairs",
				ArgsUsage: "<problem-id> <archive.zip>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "multipart", Usage: "Send the archive as a multipart form"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if err := requireArgs(cmd, "problem-id", "archive"); err != nil {
						return err
					}
					path, err := problemPath(cmd.Args().Get(0))
					if err != nil {
						return err
					}
					archive, err := os.ReadFile(cmd.Args().Get(1))
					if err != nil {
						return fmt.Errorf("read archive failed: %w", err)
					}
					contentType := "application/zip"
					var body io.Reader = bytes.NewReader(archive)
					if cmd.Bool("multipart") {
						body, contentType, err = multipartArchive(filepath.Base(cmd.Args().Get(1)), archive)
						if err != nil {
							return err
						}
					}
					info, err := app.Client.Do(ctx, http.MethodPost, path+"/testcases/archive", contentType, nil, body)
					if err != nil {
						return err
					}
					var resp ingestResponse
					if err := httpclient.Decode(info, &resp); err != nil {
						return err
					}
					return app.printIngest(resp)
				},
			},
			{
				Name:      "presign",
				Usage:     "Get a presigned object storage URL for a large archive",
				ArgsUsage: "<problem-id>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if err := requireArgs(cmd, "problem-id"); err != nil {
						return err
					}
					path, err := problemPath(cmd.Args().First())
					if err != nil {
						return err
					}
					var ticket uploadTicket
					if _, err := app.Client.Call(ctx, http.MethodPost, path+"/testcases/archive/uploads", nil, &ticket, nil); err != nil {
						return err
					}
					if app.JSON {
						return app.printJSON(ticket)
					}
					app.printField("object key", "%s", ticket.ObjectKey)
					app.printField("url", "%s", ticket.URL)
					return nil
				},
			},
			{
				Name:      "ingest",
				Usage:     "Ingest an archive already uploaded to object storage",
				ArgsUsage: "<problem-id> <object-key>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if err := requireArgs(cmd, "problem-id", "object-key"); err != nil {
						return err
					}
					path, err := problemPath(cmd.Args().Get(0))
					if err != nil {
						return err
					}
					req := map[string]string{"object_key": cmd.Args().Get(1)}
					var resp ingestResponse
					if _, err := app.Client.Call(ctx, http.MethodPost, path+"/testcases/archive/ingest", req, &resp, nil); err != nil {
						return err
					}
					return app.printIngest(resp)
				},
			},
			{
				Name:      "purge",
				Usage:     "Remove every stored archive of a problem",
				ArgsUsage: "<problem-id>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if err := requireArgs(cmd, "problem-id"); err != nil {
						return err
					}
					path, err := problemPath(cmd.Args().First())
					if err != nil {
						return err
					}
					if _, err := app.Client.Call(ctx, http.MethodDelete, path+"/testcases/archive", nil, nil, nil); err != nil {
						return err
					}
					app.printf("%s\n", okColor.Sprint("purge scheduled"))
					return nil
				},
			},
		},
	}
}

func (a *App) printIngest(resp ingestResponse) error {
	if a.JSON {
		return a.printJSON(resp)
	}
	a.printf("%s %d test cases for problem %d\n", okColor.Sprint("created"), resp.Created, resp.ProblemID)
	for _, tc := range resp.TestCases {
		a.printf("  #%-6d %s\n", tc.ID, tc.Label)
	}
	return nil
}

func multipartArchive(name string, archive []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(archive); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func statsCommand(app *App) *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Problem statistics maintenance (admin only)",
		Commands: []*cli.Command{
			{
				Name:  "recalc",
				Usage: "Recalculate accepted/total counters",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "all", Usage: "Recalculate every problem instead of only dirty ones"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					path := "/api/v1/problems/stats/recalculate"
					if cmd.Bool("all") {
						path += "?all=true"
					}
					var out struct {
						Recalculated int `json:"recalculated"`
					}
					if _, err := app.Client.Call(ctx, http.MethodPost, path, nil, &out, nil); err != nil {
						return err
					}
					if app.JSON {
						return app.printJSON(out)
					}
					app.printf("%s %d problems\n", okColor.Sprint("recalculated"), out.Recalculated)
					return nil
				},
			},
		},
	}
}
