package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"autograde/internal/common/storage"
	appErr "autograde/pkg/errors"
	"autograde/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const defaultStorageTimeout = 30 * time.Second

// FeedbackConfig holds feedback publishing settings.
type FeedbackConfig struct {
	Sheet          string        `yaml:"sheet"`
	Template       string        `yaml:"template"`
	EmailColumn    string        `yaml:"emailColumn"`
	Prefix         string        `yaml:"prefix"`
	Students       []string      `yaml:"students"`
	StorageTimeout time.Duration `yaml:"storageTimeout"`
}

// AppConfig holds publish-feedback config.
type AppConfig struct {
	Logger   logger.Config       `yaml:"logger"`
	Feedback FeedbackConfig      `yaml:"feedback"`
	MinIO    storage.MinIOConfig `yaml:"minio"`
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

// parseConfig returns the merged config and whether only a preview was asked for.
func parseConfig(args []string, stderr io.Writer) (*AppConfig, bool, error) {
	var (
		configPath  string
		sheet       string
		template    string
		emailColumn string
		prefix      string
		students    string
		preview     bool
	)
	fset := flag.NewFlagSet("publish-feedback", flag.ContinueOnError)
	fset.SetOutput(stderr)
	fset.StringVar(&configPath, "config", "", "Path to config file")
	fset.StringVar(&sheet, "sheet", "", "CSV export with one row per student")
	fset.StringVar(&template, "template", "", "Feedback template file using {Column_Name} placeholders")
	fset.StringVar(&emailColumn, "email-column", "", "Header of the email column, detected when empty")
	fset.StringVar(&prefix, "prefix", "", "Object key prefix feedback files are published under")
	fset.StringVar(&students, "students", "", "Comma separated emails to publish, all rows when empty")
	fset.BoolVar(&preview, "test", false, "Print the first rendered feedback without publishing")
	if err := fset.Parse(args); err != nil {
		return nil, false, appErr.Wrapf(err, appErr.ConfigInvalid, "parse flags failed")
	}

	cfg, err := loadAppConfig(configPath)
	if err != nil {
		return nil, false, appErr.Wrapf(err, appErr.ConfigInvalid, "load app config failed")
	}
	fset.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "sheet":
			cfg.Feedback.Sheet = sheet
		case "template":
			cfg.Feedback.Template = template
		case "email-column":
			cfg.Feedback.EmailColumn = emailColumn
		case "prefix":
			cfg.Feedback.Prefix = prefix
		case "students":
			cfg.Feedback.Students = splitList(students)
		}
	})

	if cfg.Feedback.StorageTimeout <= 0 {
		cfg.Feedback.StorageTimeout = defaultStorageTimeout
	}
	if cfg.Feedback.Sheet == "" {
		return nil, false, appErr.ConfigError("feedback.sheet", "required")
	}
	if cfg.Feedback.Template == "" {
		return nil, false, appErr.ConfigError("feedback.template", "required")
	}
	if !preview && cfg.MinIO.Bucket == "" {
		return nil, false, appErr.ConfigError("minio.bucket", "required")
	}
	return cfg, preview, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
