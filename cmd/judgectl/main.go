package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"judgebroker/internal/cli/command"
	"judgebroker/internal/cli/repl"

	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := command.Root(command.NewApp(os.Stdout, os.Stderr))
	root.Commands = append(root.Commands, &cli.Command{
		Name:  "shell",
		Usage: "Run judgectl commands interactively",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			lines, err := repl.NewTerminal(filepath.Join(os.TempDir(), ".judgectl_history"))
			if err != nil {
				return err
			}
			newApp := func() *command.App { return command.NewApp(os.Stdout, os.Stderr) }
			return repl.New(newApp, globalArgs(os.Args[1:]), lines, os.Stdout).Run(ctx)
		},
	})

	if err := root.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// globalArgs returns the arguments given before the shell subcommand.
func globalArgs(args []string) []string {
	for i, arg := range args {
		if arg == "shell" {
			return args[:i]
		}
	}
	return nil
}
