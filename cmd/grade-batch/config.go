package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"autograde/internal/common/mq"
	"autograde/internal/common/storage"
	appErr "autograde/pkg/errors"
	"autograde/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultConfigPath      = "configs/grade_batch.yaml"
	defaultGraceSeconds    = 2
	defaultMatch           = "@"
	defaultReportName      = "grades.csv"
	defaultGradeTopic      = "grading.grades"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 5 * time.Second
	defaultStorageTimeout  = 30 * time.Second
)

// GradingConfig holds batch settings.
type GradingConfig struct {
	BudgetSeconds    float64 `yaml:"budgetSeconds"`
	WorkRoot         string  `yaml:"workRoot"`
	GraderReference  string  `yaml:"graderReference"`
	GraceSeconds     float64 `yaml:"graceSeconds"`
	Concurrency      int     `yaml:"concurrency"`
	Match            string  `yaml:"match"`
	Roster           string  `yaml:"roster"`
	RosterColumn     string  `yaml:"rosterColumn"`
	OutputLimitBytes int64   `yaml:"outputLimitBytes"`
}

// ReportConfig holds report settings.
type ReportConfig struct {
	Path          string        `yaml:"path"`
	UploadKey     string        `yaml:"uploadKey"`
	UploadTimeout time.Duration `yaml:"uploadTimeout"`
}

// ServerConfig holds the optional progress HTTP server settings. An empty
// Addr disables the server.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// KafkaConfig holds grade event settings. No brokers disables publishing.
type KafkaConfig struct {
	Brokers        []string      `yaml:"brokers"`
	ClientID       string        `yaml:"clientID"`
	BatchSize      int           `yaml:"batchSize"`
	BatchTimeout   time.Duration `yaml:"batchTimeout"`
	DialTimeout    time.Duration `yaml:"dialTimeout"`
	WriteTimeout   time.Duration `yaml:"writeTimeout"`
	RequiredAcks   int           `yaml:"requiredAcks"`
	Compression    string        `yaml:"compression"`
	GradeTopic     string        `yaml:"gradeTopic"`
	PublishTimeout time.Duration `yaml:"publishTimeout"`
}

// AppConfig holds grade-batch config.
type AppConfig struct {
	Logger  logger.Config       `yaml:"logger"`
	Grading GradingConfig       `yaml:"grading"`
	Report  ReportConfig        `yaml:"report"`
	Server  ServerConfig        `yaml:"server"`
	Kafka   KafkaConfig         `yaml:"kafka"`
	MinIO   storage.MinIOConfig `yaml:"minio"`
}

func (g GradingConfig) budget() time.Duration {
	return time.Duration(g.BudgetSeconds * float64(time.Second))
}

func (g GradingConfig) grace() time.Duration {
	return time.Duration(g.GraceSeconds * float64(time.Second))
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

// loadAppConfig reads path. A missing file is allowed unless required.
func loadAppConfig(path string, required bool) (*AppConfig, error) {
	var cfg AppConfig
	if path == "" {
		return &cfg, nil
	}
	if err := loadYAML(path, &cfg); err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return &cfg, nil
		}
		return nil, err
	}
	return &cfg, nil
}

type cliFlags struct {
	config      string
	budget      float64
	workRoot    string
	grader      string
	grace       float64
	concurrency int
	match       string
	roster      string
	report      string
	uploadKey   string
	httpAddr    string
	logLevel    string
}

// parseConfig loads the yaml named by -config and applies flag overrides.
func parseConfig(args []string, stderr io.Writer) (*AppConfig, error) {
	var f cliFlags
	fset := flag.NewFlagSet("grade-batch", flag.ContinueOnError)
	fset.SetOutput(stderr)
	fset.StringVar(&f.config, "config", defaultConfigPath, "Path to config file")
	fset.Float64Var(&f.budget, "budget", 0, "Per-submission wall-clock budget in seconds, 0 disables")
	fset.StringVar(&f.workRoot, "work-root", "", "Directory holding one sub-directory per submission")
	fset.StringVar(&f.grader, "grader", "", "Grader command, e.g. './grade.py {location}'")
	fset.Float64Var(&f.grace, "grace", 0, "Seconds between SIGTERM and SIGKILL")
	fset.IntVar(&f.concurrency, "concurrency", 0, "Graders running at once")
	fset.StringVar(&f.match, "match", "", "Substring a submission directory name must contain")
	fset.StringVar(&f.roster, "roster", "", "CSV roster listing the students to grade")
	fset.StringVar(&f.report, "report", "", "Report path")
	fset.StringVar(&f.uploadKey, "upload-key", "", "Object key to upload the report to")
	fset.StringVar(&f.httpAddr, "http", "", "Serve progress on this address")
	fset.StringVar(&f.logLevel, "log-level", "", "Log level")
	if err := fset.Parse(args); err != nil {
		return nil, appErr.Wrapf(err, appErr.ConfigInvalid, "parse flags failed")
	}

	set := map[string]bool{}
	fset.Visit(func(fl *flag.Flag) { set[fl.Name] = true })

	cfg, err := loadAppConfig(f.config, set["config"])
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.ConfigInvalid, "load app config failed")
	}
	if set["budget"] {
		cfg.Grading.BudgetSeconds = f.budget
	}
	if set["work-root"] {
		cfg.Grading.WorkRoot = f.workRoot
	}
	if set["grader"] {
		cfg.Grading.GraderReference = f.grader
	}
	if set["grace"] {
		cfg.Grading.GraceSeconds = f.grace
	}
	if set["concurrency"] {
		cfg.Grading.Concurrency = f.concurrency
	}
	if set["match"] {
		cfg.Grading.Match = f.match
	}
	if set["roster"] {
		cfg.Grading.Roster = f.roster
	}
	if set["report"] {
		cfg.Report.Path = f.report
	}
	if set["upload-key"] {
		cfg.Report.UploadKey = f.uploadKey
	}
	if set["http"] {
		cfg.Server.Addr = f.httpAddr
	}
	if set["log-level"] {
		cfg.Logger.Level = f.logLevel
	}

	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Grading.GraceSeconds <= 0 {
		cfg.Grading.GraceSeconds = defaultGraceSeconds
	}
	if cfg.Grading.Concurrency <= 0 {
		cfg.Grading.Concurrency = 1
	}
	if cfg.Grading.Match == "" {
		cfg.Grading.Match = defaultMatch
	}
	if cfg.Report.Path == "" && cfg.Grading.WorkRoot != "" {
		cfg.Report.Path = filepath.Join(cfg.Grading.WorkRoot, defaultReportName)
	}
	if cfg.Report.UploadTimeout == 0 {
		cfg.Report.UploadTimeout = defaultStorageTimeout
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Kafka.GradeTopic == "" {
		cfg.Kafka.GradeTopic = defaultGradeTopic
	}
}

func validate(cfg *AppConfig) error {
	if cfg.Grading.WorkRoot == "" {
		return appErr.ConfigError("grading.workRoot", "required")
	}
	if cfg.Grading.GraderReference == "" {
		return appErr.ConfigError("grading.graderReference", "required")
	}
	if cfg.Grading.BudgetSeconds < 0 {
		return appErr.ConfigError("grading.budgetSeconds", "must not be negative")
	}
	if cfg.Report.UploadKey != "" && cfg.MinIO.Bucket == "" {
		return appErr.ConfigError("minio.bucket", "required when report.uploadKey is set")
	}
	return nil
}

func (k KafkaConfig) enabled() bool {
	return len(k.Brokers) > 0
}

func (k KafkaConfig) toMQConfig() mq.KafkaConfig {
	return mq.KafkaConfig{
		Brokers:      k.Brokers,
		ClientID:     k.ClientID,
		BatchSize:    k.BatchSize,
		BatchTimeout: k.BatchTimeout,
		DialTimeout:  k.DialTimeout,
		WriteTimeout: k.WriteTimeout,
		RequiredAcks: k.RequiredAcks,
		Compression:  k.Compression,
	}
}
