package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"autograde/internal/common/storage"
	"autograde/internal/submissions"
	appErr "autograde/pkg/errors"
	"autograde/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultStorageTimeout = 60 * time.Second
	defaultDepth          = 1
)

// FetchConfig holds submission download settings.
type FetchConfig struct {
	Roster         string        `yaml:"roster"`
	EmailColumn    string        `yaml:"emailColumn"`
	FileColumn     string        `yaml:"fileColumn"`
	Prefix         string        `yaml:"prefix"`
	Dest           string        `yaml:"dest"`
	Format         string        `yaml:"format"`
	NoExtract      bool          `yaml:"noExtract"`
	StorageTimeout time.Duration `yaml:"storageTimeout"`
}

// AppConfig holds fetch-submissions config.
type AppConfig struct {
	Logger logger.Config       `yaml:"logger"`
	Fetch  FetchConfig         `yaml:"fetch"`
	MinIO  storage.MinIOConfig `yaml:"minio"`
}

type options struct {
	preview   bool
	list      bool
	listDepth int
	listAll   bool
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if path == "" {
		return &cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file failed: %w", err)
	}
	return &cfg, nil
}

func parseConfig(args []string, stderr io.Writer) (*AppConfig, options, error) {
	var (
		opts       options
		configPath string
		roster     string
		dest       string
		prefix     string
		noExtract  bool
	)
	fset := flag.NewFlagSet("fetch-submissions", flag.ContinueOnError)
	fset.SetOutput(stderr)
	fset.StringVar(&configPath, "config", "", "Path to config file")
	fset.StringVar(&roster, "roster", "", "CSV roster with email and file columns")
	fset.StringVar(&dest, "dest", "", "Directory to download submissions into")
	fset.StringVar(&prefix, "prefix", "", "Object key prefix the roster file names are relative to")
	fset.BoolVar(&noExtract, "no-extract", false, "Keep archives as downloaded")
	fset.BoolVar(&opts.preview, "test", false, "Print the download plan without fetching")
	fset.BoolVar(&opts.list, "list", false, "List storage usage under the prefix and exit")
	fset.IntVar(&opts.listDepth, "depth", defaultDepth, "Directory depth shown by -list")
	fset.BoolVar(&opts.listAll, "all", false, "Show every directory in -list, including empty ones")
	if err := fset.Parse(args); err != nil {
		return nil, opts, appErr.Wrapf(err, appErr.ConfigInvalid, "parse flags failed")
	}

	cfg, err := loadAppConfig(configPath)
	if err != nil {
		return nil, opts, appErr.Wrapf(err, appErr.ConfigInvalid, "load app config failed")
	}
	fset.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "roster":
			cfg.Fetch.Roster = roster
		case "dest":
			cfg.Fetch.Dest = dest
		case "prefix":
			cfg.Fetch.Prefix = prefix
		case "no-extract":
			cfg.Fetch.NoExtract = noExtract
		}
	})

	if cfg.Fetch.StorageTimeout <= 0 {
		cfg.Fetch.StorageTimeout = defaultStorageTimeout
	}
	if err := validate(cfg, opts); err != nil {
		return nil, opts, err
	}
	return cfg, opts, nil
}

func validate(cfg *AppConfig, opts options) error {
	if !opts.preview && cfg.MinIO.Bucket == "" {
		return appErr.ConfigError("minio.bucket", "required")
	}
	if opts.list {
		return nil
	}
	if cfg.Fetch.Roster == "" {
		return appErr.ConfigError("fetch.roster", "required")
	}
	if !opts.preview && cfg.Fetch.Dest == "" {
		return appErr.ConfigError("fetch.dest", "required")
	}
	switch submissions.ArchiveFormat(cfg.Fetch.Format) {
	case submissions.FormatNone, submissions.FormatZip, submissions.FormatTarZst:
	default:
		return appErr.ConfigError("fetch.format", "must be zip or tar.zst")
	}
	return nil
}
