package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"autograde/internal/common/http/middleware"
	"autograde/internal/common/mq"
	"autograde/internal/common/storage"
	"autograde/internal/grading/controller"
	"autograde/internal/grading/enumerator"
	"autograde/internal/grading/progress"
	"autograde/internal/grading/repository"
	"autograde/internal/grading/sandbox/engine"
	"autograde/internal/grading/sandbox/plugin"
	"autograde/internal/grading/service"
	"autograde/internal/grading/supervisor"
	appErr "autograde/pkg/errors"
	"autograde/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	appCfg, err := parseConfig(args, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return appErr.GetCode(err).ExitCode()
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return 1
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	grader, err := plugin.Resolve(appCfg.Grading.GraderReference)
	if err != nil {
		logger.Error(ctx, "load grader failed", zap.String("grader", appCfg.Grading.GraderReference), zap.Error(err))
		return appErr.GetCode(err).ExitCode()
	}
	eng, err := engine.NewEngine(engine.Config{OutputLimitBytes: appCfg.Grading.OutputLimitBytes}, grader)
	if err != nil {
		logger.Error(ctx, "init grader engine failed", zap.Error(err))
		return appErr.GetCode(err).ExitCode()
	}
	sup, err := supervisor.New(eng, appCfg.Grading.grace())
	if err != nil {
		logger.Error(ctx, "init supervisor failed", zap.Error(err))
		return 1
	}

	var publisher repository.GradeEventPublisher
	if appCfg.Kafka.enabled() {
		producer, err := mq.NewKafkaProducer(appCfg.Kafka.toMQConfig())
		if err != nil {
			logger.Error(ctx, "init kafka failed", zap.Error(err))
			return 1
		}
		defer func() {
			_ = producer.Close()
		}()
		publisher = repository.NewMQGradeEventPublisher(producer, appCfg.Kafka.GradeTopic)
	}

	tracker := progress.NewTracker()
	gradingSvc, err := service.NewService(service.Config{
		Enumerator:     buildEnumerator(appCfg.Grading),
		Runner:         sup,
		Tracker:        tracker,
		Publisher:      publisher,
		ReportPath:     appCfg.Report.Path,
		Budget:         appCfg.Grading.budget(),
		Concurrency:    appCfg.Grading.Concurrency,
		PublishTimeout: appCfg.Kafka.PublishTimeout,
	})
	if err != nil {
		logger.Error(ctx, "init grading service failed", zap.Error(err))
		return appErr.GetCode(err).ExitCode()
	}

	if appCfg.Server.Addr != "" {
		httpServer := buildHTTPServer(appCfg.Server, tracker)
		listener, err := net.Listen("tcp", appCfg.Server.Addr)
		if err != nil {
			logger.Error(ctx, "init http listener failed", zap.Error(err))
			return 1
		}
		go func() {
			logger.Info(context.Background(), "progress http server started", zap.String("addr", listener.Addr().String()))
			if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error(context.Background(), "http server stopped", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error(context.Background(), "http server shutdown failed", zap.Error(err))
			}
		}()
	}

	summary, err := gradingSvc.Run(ctx)
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			logger.Warn(ctx, "grading interrupted", zap.Int("recorded", summary.Recorded()), zap.String("report", summary.ReportPath))
			return 130
		case appErr.SetupFailure(err):
			logger.Error(ctx, "grading setup failed", zap.Error(err))
		default:
			logger.Error(ctx, "grading failed", zap.Error(err))
		}
		return appErr.GetCode(err).ExitCode()
	}

	if appCfg.Report.UploadKey != "" {
		if err := uploadReport(ctx, appCfg, summary.ReportPath); err != nil {
			logger.Error(ctx, "upload report failed", zap.Error(err))
			return appErr.GetCode(err).ExitCode()
		}
	}

	fmt.Fprintf(os.Stdout, "graded %d submissions (%d completed, %d timed out, %d crashed) in %s, report: %s\n",
		summary.Total, summary.Completed, summary.TimedOut, summary.Crashed,
		summary.Elapsed.Round(time.Millisecond), summary.ReportPath)
	return 0
}

func buildEnumerator(cfg GradingConfig) enumerator.Enumerator {
	if cfg.Roster != "" {
		return enumerator.RosterEnumerator{Root: cfg.WorkRoot, RosterPath: cfg.Roster, Column: cfg.RosterColumn}
	}
	return enumerator.DirEnumerator{Root: cfg.WorkRoot, Match: cfg.Match}
}

func uploadReport(ctx context.Context, cfg *AppConfig, path string) error {
	objStorage, err := storage.NewMinIOStorage(cfg.MinIO)
	if err != nil {
		return appErr.Wrapf(err, appErr.StorageError, "init minio failed")
	}
	file, err := os.Open(path)
	if err != nil {
		return appErr.Wrapf(err, appErr.ReportReadFailed, "open report failed")
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return appErr.Wrapf(err, appErr.ReportReadFailed, "stat report failed")
	}

	ctxUpload, cancel := context.WithTimeout(ctx, cfg.Report.UploadTimeout)
	defer cancel()
	if err := objStorage.PutObject(ctxUpload, cfg.MinIO.Bucket, cfg.Report.UploadKey, file, info.Size(), "text/tab-separated-values"); err != nil {
		return appErr.Wrapf(err, appErr.StorageError, "upload report failed")
	}
	logger.Info(ctx, "report uploaded", zap.String("bucket", cfg.MinIO.Bucket), zap.String("key", cfg.Report.UploadKey))
	return nil
}

func buildHTTPServer(cfg ServerConfig, tracker *progress.Tracker) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger())

	controller.NewProgressController(tracker).Register(router)

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}
