package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"autograde/internal/common/storage"
	"autograde/internal/submissions"
	appErr "autograde/pkg/errors"
	"autograde/pkg/utils/logger"

	"go.uber.org/zap"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	appCfg, opts, err := parseConfig(args, os.Stderr)
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

	if opts.list {
		return list(ctx, appCfg, opts)
	}

	entries, err := readRoster(appCfg.Fetch)
	if err != nil {
		logger.Error(ctx, "read roster failed", zap.String("roster", appCfg.Fetch.Roster), zap.Error(err))
		return appErr.GetCode(err).ExitCode()
	}
	if opts.preview {
		if err := submissions.Preview(os.Stdout, entries); err != nil {
			logger.Error(ctx, "preview failed", zap.Error(err))
			return 1
		}
		return 0
	}

	objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
	if err != nil {
		logger.Error(ctx, "init minio failed", zap.Error(err))
		return appErr.StorageError.ExitCode()
	}
	fetcher, err := submissions.NewFetcher(submissions.Config{
		Storage:        objStorage,
		Bucket:         appCfg.MinIO.Bucket,
		Prefix:         appCfg.Fetch.Prefix,
		Dest:           appCfg.Fetch.Dest,
		Format:         submissions.ArchiveFormat(appCfg.Fetch.Format),
		NoExtract:      appCfg.Fetch.NoExtract,
		StorageTimeout: appCfg.Fetch.StorageTimeout,
	})
	if err != nil {
		logger.Error(ctx, "init fetcher failed", zap.Error(err))
		return appErr.GetCode(err).ExitCode()
	}

	result, err := fetcher.Fetch(ctx, entries)
	if err != nil {
		logger.Error(ctx, "fetch submissions failed", zap.Int("fetched", len(result.Fetched)), zap.Error(err))
		return appErr.GetCode(err).ExitCode()
	}
	fmt.Fprintf(os.Stdout, "fetched %d submissions into %s\n", len(result.Fetched), appCfg.Fetch.Dest)
	if len(result.Bad) > 0 {
		fmt.Fprintf(os.Stdout, "bad archives (%d):\n", len(result.Bad))
		for _, email := range result.Bad {
			fmt.Fprintf(os.Stdout, "  %s\n", email)
		}
	}
	return 0
}

func readRoster(cfg FetchConfig) ([]submissions.Entry, error) {
	file, err := os.Open(cfg.Roster)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.EnumerationFailed, "open roster failed")
	}
	defer file.Close()
	return submissions.ReadRoster(file, cfg.EmailColumn, cfg.FileColumn)
}

func list(ctx context.Context, appCfg *AppConfig, opts options) int {
	objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
	if err != nil {
		logger.Error(ctx, "init minio failed", zap.Error(err))
		return appErr.StorageError.ExitCode()
	}
	ctxList, cancel := context.WithTimeout(ctx, appCfg.Fetch.StorageTimeout)
	defer cancel()
	usage, err := submissions.ListUsage(ctxList, objStorage, appCfg.MinIO.Bucket, appCfg.Fetch.Prefix, opts.listDepth)
	if err != nil {
		logger.Error(ctx, "list storage failed", zap.String("prefix", appCfg.Fetch.Prefix), zap.Error(err))
		return appErr.GetCode(err).ExitCode()
	}
	if err := usage.Print(os.Stdout, opts.listAll); err != nil {
		return 1
	}
	return 0
}
