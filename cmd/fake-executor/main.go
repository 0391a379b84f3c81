// Command fake-executor serves the execution protocol with scripted verdicts.
// It stands in for a real sandbox during local development and smoke tests.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"judgebroker/internal/judge/execution"
	"judgebroker/pkg/utils/logger"

	"go.uber.org/zap"
	"google.golang.org/grpc"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:9090", "Listen address")
	verdict := flag.String("verdict", "Accepted", "Status reported for every test case")
	delay := flag.Duration("delay", 0, "Delay before each result")
	compileError := flag.Bool("compile-error", false, "Report CompileError for every test case")
	level := flag.String("log-level", "info", "Log level")
	flag.Parse()

	if err := logger.Init(logger.Config{Level: *level, Format: "console"}); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()
	ctx := context.Background()

	executor := execution.ScriptedExecutor{Script: scriptFor(*verdict, *compileError, *delay)}

	listener, err := net.Listen("tcp", *addr)
	if err != nil {
		logger.Error(ctx, "listen failed", zap.String("addr", *addr), zap.Error(err))
		return
	}
	server := grpc.NewServer()
	execution.RegisterServer(server, loggingExecutor{next: executor})

	go func() {
		logger.Info(ctx, "fake executor started",
			zap.String("addr", *addr),
			zap.String("verdict", *verdict),
			zap.Duration("delay", *delay),
		)
		if err := server.Serve(listener); err != nil {
			logger.Error(ctx, "grpc server stopped", zap.Error(err))
		}
	}()

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	done := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		server.Stop()
	}
}

func scriptFor(verdict string, compileError bool, delay time.Duration) func(req *execution.Request) execution.Script {
	if compileError {
		verdict = "CompileError"
	}
	uniform := execution.Uniform(verdict)
	return func(req *execution.Request) execution.Script {
		script := uniform(req)
		script.Delay = delay
		return script
	}
}

type loggingExecutor struct {
	next execution.Executor
}

func (e loggingExecutor) Execute(ctx context.Context, req *execution.Request, send func(*execution.Result) error) error {
	ctx = logger.WithSubmission(ctx, req.SubmissionID)
	logger.Info(ctx, "execute request received",
		zap.String("source_ext", req.Language.SourceFileExt),
		zap.Int("test_cases", len(req.TestCases)),
	)
	err := e.next.Execute(ctx, req, send)
	if err != nil {
		logger.Warn(ctx, "execute request ended with error", zap.Error(err))
	}
	return err
}
