package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"judgebroker/internal/common/cache"
	"judgebroker/internal/common/db"
	commonmw "judgebroker/internal/common/http/middleware"
	"judgebroker/internal/common/mq"
	"judgebroker/internal/common/storage"
	judgecontroller "judgebroker/internal/judge/controller"
	"judgebroker/internal/judge/execution"
	"judgebroker/internal/judge/language"
	judgerepo "judgebroker/internal/judge/repository"
	judgeservice "judgebroker/internal/judge/service"
	problemcontroller "judgebroker/internal/problem/controller"
	problemrepo "judgebroker/internal/problem/repository"
	problemservice "judgebroker/internal/problem/service"
	submitcontroller "judgebroker/internal/submit/controller"
	submitrepo "judgebroker/internal/submit/repository"
	submitservice "judgebroker/internal/submit/service"
	"judgebroker/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/broker.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	envPath := flag.String("env", ".env", "Optional dotenv file loaded before the config")
	flag.Parse()

	if err := loadEnv(*envPath); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return
	}
	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()
	ctx := context.Background()

	database, err := openDatabase(appCfg.Database)
	if err != nil {
		logger.Error(ctx, "init database failed", zap.Error(err))
		return
	}
	defer func() {
		_ = database.Close()
	}()

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		logger.Error(ctx, "init redis failed", zap.Error(err))
		return
	}
	defer func() {
		_ = redisCache.Close()
	}()

	var objStorage storage.ObjectStorage
	if appCfg.MinIO.Endpoint != "" {
		minioStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
		if err != nil {
			logger.Error(ctx, "init minio failed", zap.Error(err))
			return
		}
		if err := minioStorage.EnsureBucket(ctx, appCfg.MinIO.Bucket); err != nil {
			logger.Error(ctx, "init minio bucket failed", zap.Error(err))
			return
		}
		objStorage = minioStorage
	}

	var mqClient *mq.KafkaQueue
	if appCfg.Kafka.enabled() {
		mqClient, err = mq.NewKafkaQueue(appCfg.Kafka.toMQConfig())
		if err != nil {
			logger.Error(ctx, "init kafka failed", zap.Error(err))
			return
		}
		defer func() {
			_ = mqClient.Close()
		}()
	}

	var natsConn *nats.Conn
	if appCfg.NATS.URL != "" {
		natsConn, err = nats.Connect(appCfg.NATS.URL,
			nats.Name("judgebroker"),
			nats.Timeout(appCfg.NATS.Timeout),
			nats.MaxReconnects(-1),
		)
		if err != nil {
			logger.Error(ctx, "init nats failed", zap.Error(err))
			return
		}
		defer natsConn.Close()
	}

	registry, err := language.NewRegistry(appCfg.Languages)
	if err != nil {
		logger.Error(ctx, "init language registry failed", zap.Error(err))
		return
	}

	backend, closeBackend, err := openBackend(appCfg.Execution)
	if err != nil {
		logger.Error(ctx, "init execution backend failed", zap.Error(err))
		return
	}
	defer closeBackend()

	submissionRepo := submitrepo.NewSubmissionRepository(database)
	problemRepo := problemrepo.NewProblemRepository(database, redisCache)
	testCaseRepo := problemrepo.NewTestCaseRepository(database)
	provider := problemservice.NewTestCaseProvider(testCaseRepo, redisCache, problemservice.ProviderOptions{
		TTL:      appCfg.TestCases.CacheTTL,
		EmptyTTL: appCfg.TestCases.EmptyCacheTTL,
	})
	statusRepo := judgerepo.NewStatusRepository(redisCache, appCfg.Judge.StatusTTL)
	progress := judgerepo.NewNATSProgressPublisher(natsConn, appCfg.NATS.SubjectPrefix)

	judgeCfg := judgeservice.Config{
		Submissions:       submissionRepo,
		StatusRepo:        statusRepo,
		TestCases:         provider,
		Problems:          problemRepo,
		Languages:         registry,
		Builder:           execution.NewBuilder(appCfg.Judge.DefaultLimits, appCfg.Judge.MaxCodeBytes),
		Client:            execution.NewClient(backend, appCfg.Judge.MaxStdoutBytes),
		Progress:          progress,
		WorkerPoolSize:    appCfg.Judge.WorkerPoolSize,
		QueueWait:         appCfg.Judge.QueueWait,
		SubmissionTimeout: appCfg.Judge.SubmissionTimeout,
		StatusTimeout:     appCfg.Judge.StatusTimeout,
		MetaTTL:           appCfg.Judge.MetaTTL,
	}
	if mqClient != nil {
		judgeCfg.Events = judgerepo.NewMQStatusEventPublisher(mqClient, appCfg.Kafka.StatusTopic)
		judgeCfg.Queue = mqClient
		judgeCfg.RetryTopic = appCfg.Kafka.RetryTopic
		judgeCfg.PoolRetryMax = appCfg.Kafka.PoolRetryMax
		judgeCfg.PoolRetryBase = appCfg.Kafka.PoolRetryBase
		judgeCfg.PoolRetryMaxD = appCfg.Kafka.PoolRetryMaxD
	}
	judgeSvc, err := judgeservice.NewService(judgeCfg)
	if err != nil {
		logger.Error(ctx, "init judge service failed", zap.Error(err))
		return
	}

	recovered, err := judgeSvc.Recover(ctx)
	if err != nil {
		logger.Error(ctx, "recover unfinished submissions failed", zap.Error(err))
		return
	}
	if recovered > 0 {
		logger.Warn(ctx, "unfinished submissions marked as system error", zap.Int("count", recovered))
	}

	testCaseSvc := problemservice.NewTestCaseService(database, problemRepo, testCaseRepo, provider, judgeSvc)
	ingestSvc := problemservice.NewIngestService(testCaseSvc, objStorage, problemservice.IngestOptions{
		Bucket:    appCfg.MinIO.Bucket,
		KeyPrefix: appCfg.TestCases.KeyPrefix,
		UploadTTL: appCfg.TestCases.UploadTTL,
		Limits:    appCfg.TestCases.Archive,
	})
	var janitor *problemservice.ArchiveJanitor
	if objStorage != nil {
		janitor = problemservice.NewArchiveJanitor(objStorage, problemservice.CleanupOptions{
			Bucket:    appCfg.MinIO.Bucket,
			KeyPrefix: appCfg.TestCases.KeyPrefix,
		})
		if mqClient != nil {
			ingestSvc.WithCleaner(problemservice.NewArchiveCleanupPublisher(mqClient, appCfg.Kafka.CleanupTopic, appCfg.MinIO.Bucket, appCfg.TestCases.KeyPrefix))
		} else {
			ingestSvc.WithCleaner(janitor)
		}
	}
	statsSvc := problemservice.NewStatsService(problemRepo, submissionRepo, redisCache, appCfg.Stats)

	var dispatcher submitservice.Dispatcher = judgeSvc
	if appCfg.Judge.Dispatch == dispatchKafka {
		dispatcher = submitservice.NewMQDispatcher(mqClient, appCfg.Kafka.JudgeTopic)
	}
	submitCfg := submitservice.Config{
		SubmissionRepo: submissionRepo,
		StatusRepo:     statusRepo,
		Languages:      registry,
		TestCases:      provider,
		Dispatcher:     dispatcher,
		Canceller:      judgeSvc,
		Cache:          redisCache,
		MaxCodeBytes:   appCfg.Judge.MaxCodeBytes,
		IdempotencyTTL: appCfg.Judge.IdempotencyTTL,
		Timeouts: submitservice.TimeoutConfig{
			DB:       appCfg.Judge.StatusTimeout,
			Cache:    appCfg.Judge.StatusTimeout,
			Dispatch: appCfg.Judge.QueueWait + appCfg.Judge.StatusTimeout,
		},
	}
	if natsConn != nil {
		submitCfg.Progress = progress
	}
	submitSvc, err := submitservice.NewSubmitService(submitCfg)
	if err != nil {
		logger.Error(ctx, "init submit service failed", zap.Error(err))
		return
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	if mqClient != nil {
		opts := appCfg.Kafka.subscribeOptions(appCfg.Kafka.ConsumerGroup + "-stats")
		if err := statsSvc.Subscribe(runCtx, mqClient, appCfg.Kafka.StatusTopic, opts); err != nil {
			logger.Error(ctx, "subscribe status events failed", zap.Error(err))
			return
		}
		if janitor != nil {
			opts := appCfg.Kafka.subscribeOptions(appCfg.Kafka.ConsumerGroup + "-cleanup")
			if err := janitor.Subscribe(runCtx, mqClient, appCfg.Kafka.CleanupTopic, opts); err != nil {
				logger.Error(ctx, "subscribe archive cleanup failed", zap.Error(err))
				return
			}
		}
		if appCfg.Judge.Dispatch == dispatchKafka {
			opts := appCfg.Kafka.subscribeOptions(appCfg.Kafka.ConsumerGroup)
			opts.StartFromOldest = true
			for _, topic := range []string{appCfg.Kafka.JudgeTopic, appCfg.Kafka.RetryTopic} {
				if err := judgeSvc.Subscribe(runCtx, mqClient, topic, opts); err != nil {
					logger.Error(ctx, "subscribe judge topic failed", zap.String("topic", topic), zap.Error(err))
					return
				}
			}
		}
	}
	go statsSvc.Run(runCtx)

	auth := commonmw.NewAuthenticator(appCfg.Auth.JWTSecret, appCfg.Auth.JWTIssuer)
	httpServer := buildHTTPServer(appCfg, auth, routes{
		submit:  submitcontroller.NewSubmitController(submitSvc, appCfg.Judge.LiveInterval),
		judge:   judgecontroller.NewJudgeController(judgeSvc, registry),
		problem: problemcontroller.NewProblemController(problemservice.NewProblemService(problemRepo, provider), testCaseSvc, statsSvc),
		archive: problemcontroller.NewArchiveController(ingestSvc),
		ready: func(ctx context.Context) error {
			if err := database.Ping(ctx); err != nil {
				return err
			}
			return redisCache.Ping(ctx)
		},
	})
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(ctx, "init http listener failed", zap.Error(err))
		return
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "broker http server started",
			zap.String("addr", appCfg.Server.Addr),
			zap.String("dispatch", appCfg.Judge.Dispatch),
			zap.String("execution", appCfg.Execution.Mode),
		)
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	stopCtx, cancel := context.WithTimeout(ctx, defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(stopCtx); err != nil {
		logger.Error(ctx, "http server shutdown failed", zap.Error(err))
	}
	if mqClient != nil {
		_ = mqClient.Stop()
	}
	cancelRun()
	if err := judgeSvc.Stop(stopCtx); err != nil {
		logger.Error(ctx, "judge pool shutdown failed", zap.Error(err))
	}
	if natsConn != nil {
		_ = natsConn.Drain()
	}
}

func openDatabase(cfg DatabaseConfig) (db.Database, error) {
	if cfg.Driver == db.DriverPostgres {
		return db.NewPostgreSQLWithConfig(&db.PostgreSQLConfig{DSN: cfg.DSN, PoolConfig: cfg.PoolConfig})
	}
	return db.NewMySQLWithConfig(&db.MySQLConfig{DSN: cfg.DSN, PoolConfig: cfg.PoolConfig})
}

func openBackend(cfg ExecutionConfig) (execution.Backend, func(), error) {
	if cfg.Mode == executionLocal {
		return execution.NewLocalBackend(execution.ScriptedExecutor{Script: execution.AcceptAll}), func() {}, nil
	}
	backend, err := execution.DialGRPC(cfg.GRPCConfig)
	if err != nil {
		return nil, nil, err
	}
	return backend, func() { _ = backend.Close() }, nil
}

type routes struct {
	submit  *submitcontroller.SubmitController
	judge   *judgecontroller.JudgeController
	problem *problemcontroller.ProblemController
	archive *problemcontroller.ArchiveController
	ready   func(ctx context.Context) error
}

func buildHTTPServer(cfg *AppConfig, auth *commonmw.Authenticator, r routes) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddlewareWithConfig(commonmw.TraceContextConfig{
		AllowUserIDHeader: cfg.Server.TrustUserIDHeader,
	}))
	router.Use(requestLogger())

	router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := r.ready(ctx); err != nil {
			c.String(http.StatusServiceUnavailable, err.Error())
			return
		}
		c.Status(http.StatusOK)
	})

	api := router.Group("/api/v1")
	r.submit.Register(api.Group("/submissions"), auth)
	problems := api.Group("/problems")
	r.problem.Register(problems, auth)
	r.archive.Register(problems, auth)
	api.GET("/languages", r.judge.Languages)
	api.GET("/judge/pool", commonmw.AuthMiddleware(auth, commonmw.RoleAdmin), r.judge.Pool)

	return &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		logger.Info(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
