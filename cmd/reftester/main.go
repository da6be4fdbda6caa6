package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"reftester/internal/batch"
	"reftester/internal/common/cache"
	"reftester/internal/common/db"
	"reftester/internal/common/mq"
	"reftester/internal/common/storage"
	"reftester/internal/judge/adapter"
	"reftester/internal/judge/service"
	"reftester/internal/judge/session"
	"reftester/internal/report"
	"reftester/internal/testfile"
	"reftester/pkg/utils/clock"
	"reftester/pkg/utils/logger"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

const (
	defaultConfigPath = "reftester.yaml"
	defaultEnvFile    = ".env"
)

// errBatchFailed is returned when at least one test file failed; the report was already printed.
var errBatchFailed = errors.New("batch failed")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newCommand().Run(ctx, os.Args)
	stop()
	if err != nil {
		if !errors.Is(err, errBatchFailed) {
			fmt.Fprintf(os.Stderr, "reftester: %v\n", err)
		}
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:      "reftester",
		Usage:     "submit reference solutions to online judges and check their verdicts",
		ArgsUsage: "[path ...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: defaultConfigPath, Usage: "path to config file"},
			&cli.StringFlag{Name: "env-file", Value: defaultEnvFile, Usage: "dotenv file with judge credentials"},
			&cli.IntFlag{Name: "concurrency", Aliases: []string{"j"}, Usage: "max test files in flight, 0 for unbounded"},
			&cli.StringFlag{Name: "scratch-dir", Usage: "directory for marked submission files"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
		},
		Action: run,
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	if err := godotenv.Load(cmd.String("env-file")); err != nil {
		if cmd.IsSet("env-file") || !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load env file failed: %w", err)
		}
	}

	appCfg, err := loadAppConfig(cmd.String("config"), cmd.IsSet("config"))
	if err != nil {
		return fmt.Errorf("load app config failed: %w", err)
	}
	if cmd.IsSet("concurrency") {
		appCfg.Concurrency = int(cmd.Int("concurrency"))
	}
	if cmd.IsSet("scratch-dir") {
		appCfg.ScratchDir = cmd.String("scratch-dir")
	}
	if cmd.IsSet("log-level") {
		appCfg.Logger.Level = cmd.String("log-level")
	}
	if err := applyDefaults(appCfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		return fmt.Errorf("init logger failed: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	roots := cmd.Args().Slice()
	if len(roots) == 0 {
		roots = []string{"."}
	}
	files, err := testfile.Discover(roots...)
	if err != nil {
		return err
	}

	registry, err := adapter.Build(appCfg.adapterConfigs(), appCfg.Transport.toTransportConfig())
	if err != nil {
		return fmt.Errorf("init judges failed: %w", err)
	}

	store, closeStore, err := buildStore(ctx, appCfg.Session.Store)
	if err != nil {
		return fmt.Errorf("init session store failed: %w", err)
	}
	defer closeStore()

	sessions, err := session.NewManager(session.Config{
		Adapters:        registry,
		Credentials:     session.NewEnvCredentials(appCfg.envVars(), nil),
		Store:           store,
		LoginInitial:    appCfg.Session.LoginInitial,
		LoginMultiplier: appCfg.Session.LoginMultiplier,
		LoginMaxElapsed: appCfg.Session.LoginMaxElapsed,
	})
	if err != nil {
		return fmt.Errorf("init session manager failed: %w", err)
	}

	sub := appCfg.Submission
	orch, err := service.NewOrchestrator(service.Config{
		Judges:          registry,
		Sessions:        sessions,
		Poller:          service.NewPoller(clock.Real{}, sub.PollInterval, sub.PollMaxTransient),
		Scratch:         service.NewScratchDir(appCfg.ScratchDir),
		RetryInitial:    sub.RetryInitial,
		RetryMultiplier: sub.RetryMultiplier,
		RetryMaxElapsed: sub.RetryMaxElapsed,
		Jitter:          sub.Jitter,
		PollTimeout:     sub.PollTimeout,
	})
	if err != nil {
		return fmt.Errorf("init orchestrator failed: %w", err)
	}

	runID := uuid.NewString()
	printer := report.NewPrinter(os.Stdout)
	sinks := []batch.OutcomeSink{printer}
	batchSinks := []batch.BatchSink{printer}
	extra, closeSinks := buildReportSinks(ctx, appCfg.Report, runID)
	defer closeSinks()
	for _, s := range extra {
		if o, ok := s.(batch.OutcomeSink); ok {
			sinks = append(sinks, o)
		}
		batchSinks = append(batchSinks, s)
	}

	runner, err := batch.NewRunner(batch.Config{
		Parser:      testfile.NewParser(appCfg.TestFiles),
		Submitter:   orch,
		Concurrency: appCfg.Concurrency,
		Sinks:       sinks,
		BatchSinks:  batchSinks,
	})
	if err != nil {
		return fmt.Errorf("init batch runner failed: %w", err)
	}

	logger.Info(ctx, "batch started",
		zap.String("run_id", runID),
		zap.Int("files", len(files)),
		zap.Strings("judges", judgeNames(registry)))
	res := runner.RunAll(ctx, files)
	if !res.OK() {
		return errBatchFailed
	}
	return nil
}

func judgeNames(reg *adapter.Registry) []string {
	ids := reg.Judges()
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, string(id))
	}
	return out
}

func buildStore(ctx context.Context, cfg StoreConfig) (session.Store, func(), error) {
	switch cfg.Kind {
	case storeFile:
		return session.NewFileStore(cfg.Path), func() {}, nil
	case storeRedis:
		redisCache, err := cache.NewRedisCacheWithConfig(ctx, &cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return session.NewRedisStore(redisCache, cfg.Prefix, cfg.TTL), func() {
			_ = redisCache.Close()
		}, nil
	default:
		return nil, func() {}, nil
	}
}

// buildReportSinks connects every configured report backend. A backend that cannot
// be reached is skipped with a warning; the run goes on without it.
func buildReportSinks(ctx context.Context, cfg ReportConfig, runID string) ([]batch.BatchSink, func()) {
	var (
		sinks   []batch.BatchSink
		closers []func()
	)

	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := mq.NewKafkaProducer(cfg.Kafka)
		var sink *report.EventSink
		if err == nil {
			closers = append(closers, func() { _ = producer.Close() })
			sink, err = report.NewEventSink(producer, cfg.Kafka.Topic, runID, nil)
		}
		if err != nil {
			logger.Warn(ctx, "init kafka failed, outcome events disabled", zap.Error(err))
		} else {
			sinks = append(sinks, sink)
		}
	}

	if cfg.MySQL.DSN != "" {
		mysqlDB, err := db.NewMySQLWithConfig(ctx, &cfg.MySQL)
		if err != nil {
			logger.Warn(ctx, "init database failed, run history disabled", zap.Error(err))
		} else {
			closers = append(closers, func() { _ = mysqlDB.Close() })
			sink, err := report.NewHistorySink(mysqlDB, runID, nil)
			if err == nil {
				err = sink.EnsureSchema(ctx)
			}
			if err != nil {
				logger.Warn(ctx, "init run history failed", zap.Error(err))
			} else {
				sinks = append(sinks, sink)
			}
		}
	}

	if cfg.MinIO.Endpoint != "" {
		objStorage, err := storage.NewMinIOStorage(cfg.MinIO)
		if err == nil {
			var sink *report.ArchiveSink
			sink, err = report.NewArchiveSink(objStorage, cfg.MinIO.Bucket, cfg.MinIO.Prefix, runID, nil)
			if err == nil {
				sinks = append(sinks, sink)
			}
		}
		if err != nil {
			logger.Warn(ctx, "init minio failed, report archive disabled", zap.Error(err))
		}
	}

	return sinks, func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
}
