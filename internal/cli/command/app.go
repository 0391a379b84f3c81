// Package command builds the judgectl command tree.
package command

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"judgebroker/internal/cli/config"
	httpclient "judgebroker/internal/cli/http"
	"judgebroker/internal/cli/state"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"
)

const DefaultConfigPath = "configs/judgectl.yaml"

// App is the state shared by every command of one invocation.
type App struct {
	Config config.Config
	Client *httpclient.Client
	Token  state.TokenState
	Tokens *state.Store
	JSON   bool

	out io.Writer
	err io.Writer
}

// NewApp creates an App writing to out and errOut.
func NewApp(out, errOut io.Writer) *App {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	return &App{out: out, err: errOut}
}

// Root returns the judgectl command tree bound to app.
func Root(app *App) *cli.Command {
	return &cli.Command{
		Name:      "judgectl",
		Usage:     "Talk to a judge broker over its HTTP API",
		Writer:    app.out,
		ErrWriter: app.err,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: DefaultConfigPath, Usage: "Path to config file", Sources: cli.EnvVars("JUDGECTL_CONFIG")},
			&cli.StringFlag{Name: "profile", Aliases: []string{"p"}, Usage: "Use a broker profile from the config", Sources: cli.EnvVars("JUDGECTL_PROFILE")},
			&cli.StringFlag{Name: "base", Usage: "Override base URL", Sources: cli.EnvVars("JUDGECTL_BASE_URL")},
			&cli.DurationFlag{Name: "timeout", Usage: "Override HTTP timeout (e.g. 10s)"},
			&cli.StringFlag{Name: "token", Usage: "Override access token", Sources: cli.EnvVars("JUDGECTL_TOKEN")},
			&cli.StringFlag{Name: "state", Usage: "Override token state path"},
			&cli.BoolFlag{Name: "json", Usage: "Print raw response data as JSON"},
			&cli.BoolFlag{Name: "no-color", Usage: "Disable colored output"},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			return ctx, app.setup(cmd)
		},
		Commands: []*cli.Command{
			submitCommand(app),
			statusCommand(app),
			resultsCommand(app),
			watchCommand(app),
			cancelCommand(app),
			languagesCommand(app),
			problemCommand(app),
			testcaseCommand(app),
			statsCommand(app),
			poolCommand(app),
			tokenCommand(app),
		},
	}
}

func (a *App) setup(cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"), cmd.String("profile"))
	if err != nil {
		return err
	}
	if base := cmd.String("base"); base != "" {
		cfg.BaseURL = base
	}
	if err := config.ValidateBaseURL(cfg.BaseURL); err != nil {
		return err
	}
	if timeout := cmd.Duration("timeout"); timeout > 0 {
		cfg.Timeout = timeout
	}
	if path := cmd.String("state"); path != "" {
		cfg.TokenStatePath = path
	}
	if cmd.Bool("no-color") || cfg.NoColor {
		color.NoColor = true
	}

	store, err := state.Open(cfg.TokenStatePath)
	if err != nil {
		return err
	}
	tokenState := store.Get(cfg.BaseURL)
	if token := cmd.String("token"); token != "" {
		tokenState = state.TokenState{AccessToken: token}
	} else if tokenState.Expired(time.Now()) {
		a.warnf("stored token for %s expired at %s\n", cfg.BaseURL, tokenState.ExpiresAt.Format(time.RFC3339))
	}

	a.Config = cfg
	a.Token = tokenState
	a.Tokens = store
	a.JSON = cmd.Bool("json")
	a.Client = httpclient.New(cfg.BaseURL, cfg.Timeout, func() string {
		return a.Token.AccessToken
	})
	return nil
}

func (a *App) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(a.out, format, args...)
}

func (a *App) warnf(format string, args ...interface{}) {
	_, _ = warnColor.Fprintf(a.err, format, args...)
}

func requireArgs(cmd *cli.Command, names ...string) error {
	if cmd.Args().Len() < len(names) {
		return fmt.Errorf("usage: %s %s", cmd.FullName(), joinArgs(names))
	}
	return nil
}

func joinArgs(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += " "
		}
		out += "<" + n + ">"
	}
	return out
}
