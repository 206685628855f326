package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"autograde/internal/common/storage"
	"autograde/internal/feedback"
	appErr "autograde/pkg/errors"
	"autograde/pkg/utils/logger"

	"go.uber.org/zap"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	appCfg, preview, err := parseConfig(args, os.Stderr)
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

	sheet, tmpl, err := loadInputs(appCfg.Feedback)
	if err != nil {
		logger.Error(ctx, "load feedback inputs failed", zap.Error(err))
		return appErr.GetCode(err).ExitCode()
	}

	pubCfg := feedback.Config{
		Bucket:         appCfg.MinIO.Bucket,
		Prefix:         appCfg.Feedback.Prefix,
		Template:       tmpl,
		EmailColumn:    appCfg.Feedback.EmailColumn,
		Students:       appCfg.Feedback.Students,
		StorageTimeout: appCfg.Feedback.StorageTimeout,
	}
	if !preview {
		objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
		if err != nil {
			logger.Error(ctx, "init minio failed", zap.Error(err))
			return appErr.StorageError.ExitCode()
		}
		pubCfg.Storage = objStorage
	}
	publisher, err := feedback.NewPublisher(pubCfg)
	if err != nil {
		logger.Error(ctx, "init feedback publisher failed", zap.Error(err))
		return appErr.GetCode(err).ExitCode()
	}

	if preview {
		if err := publisher.Preview(os.Stdout, sheet); err != nil {
			logger.Error(ctx, "render feedback failed", zap.Error(err))
			return appErr.GetCode(err).ExitCode()
		}
		return 0
	}

	result, err := publisher.Publish(ctx, sheet)
	if err != nil {
		logger.Error(ctx, "publish feedback failed",
			zap.Int("created", len(result.Created)), zap.Int("updated", len(result.Updated)), zap.Error(err))
		return appErr.GetCode(err).ExitCode()
	}
	fmt.Fprintf(os.Stdout, "published feedback: %d created, %d updated\n", len(result.Created), len(result.Updated))
	return 0
}

func loadInputs(cfg FeedbackConfig) (feedback.Sheet, string, error) {
	tmpl, err := os.ReadFile(cfg.Template)
	if err != nil {
		return feedback.Sheet{}, "", appErr.Wrapf(err, appErr.TemplateFailed, "read template failed")
	}
	file, err := os.Open(cfg.Sheet)
	if err != nil {
		return feedback.Sheet{}, "", appErr.Wrapf(err, appErr.InvalidFormat, "open sheet failed")
	}
	defer file.Close()
	sheet, err := feedback.ReadSheet(file)
	if err != nil {
		return feedback.Sheet{}, "", err
	}
	return sheet, string(tmpl), nil
}
