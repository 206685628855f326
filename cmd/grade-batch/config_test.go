package main

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"autograde/internal/grading/enumerator"
	appErr "autograde/pkg/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "grade_batch.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := parseConfig([]string{
		"-config", filepath.Join(t.TempDir(), "absent.yaml"),
		"-work-root", "/w",
		"-grader", "./grade {location}",
	}, io.Discard)
	if err == nil {
		t.Fatalf("explicit missing config file must fail, got %+v", cfg)
	}

	cfg, err = parseConfig([]string{"-work-root", "/w", "-grader", "./grade"}, io.Discard)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Grading.grace() != 2*time.Second || cfg.Grading.Concurrency != 1 || cfg.Grading.Match != "@" {
		t.Fatalf("unexpected defaults %+v", cfg.Grading)
	}
	if cfg.Grading.budget() != 0 {
		t.Fatalf("budget should default to disabled")
	}
	if cfg.Report.Path != filepath.Join("/w", "grades.csv") {
		t.Fatalf("unexpected report path %q", cfg.Report.Path)
	}
	if cfg.Kafka.enabled() {
		t.Fatalf("kafka should be disabled without brokers")
	}
}

func TestParseConfigFlagsOverrideYAML(t *testing.T) {
	path := writeConfig(t, `
grading:
  budgetSeconds: 30
  workRoot: /from-yaml
  graderReference: ./grade.py
  concurrency: 4
report:
  path: /tmp/out.csv
kafka:
  brokers: ["k1:9092"]
`)
	cfg, err := parseConfig([]string{"-config", path, "-budget", "1.5", "-concurrency", "2"}, io.Discard)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Grading.budget() != 1500*time.Millisecond || cfg.Grading.Concurrency != 2 {
		t.Fatalf("flags did not override: %+v", cfg.Grading)
	}
	if cfg.Grading.WorkRoot != "/from-yaml" || cfg.Report.Path != "/tmp/out.csv" {
		t.Fatalf("yaml values lost: %+v %+v", cfg.Grading, cfg.Report)
	}
	if !cfg.Kafka.enabled() || cfg.Kafka.GradeTopic != defaultGradeTopic {
		t.Fatalf("unexpected kafka config %+v", cfg.Kafka)
	}
	if got := cfg.Kafka.toMQConfig(); len(got.Brokers) != 1 {
		t.Fatalf("unexpected mq config %+v", got)
	}
}

func TestParseConfigValidation(t *testing.T) {
	cases := [][]string{
		{"-grader", "./grade"},
		{"-work-root", "/w"},
		{"-work-root", "/w", "-grader", "./grade", "-budget", "-1"},
		{"-work-root", "/w", "-grader", "./grade", "-upload-key", "grades.csv"},
	}
	for i, args := range cases {
		_, err := parseConfig(args, io.Discard)
		if !appErr.Is(err, appErr.ConfigInvalid) {
			t.Fatalf("case %d: expected ConfigInvalid, got %v", i, err)
		}
		if appErr.GetCode(err).ExitCode() != 2 {
			t.Fatalf("case %d: setup failures exit 2", i)
		}
	}
}

func TestParseConfigBadYAML(t *testing.T) {
	path := writeConfig(t, "grading: [")
	if _, err := parseConfig([]string{"-config", path}, io.Discard); !appErr.Is(err, appErr.ConfigInvalid) {
		t.Fatalf("expected ConfigInvalid, got %v", err)
	}
}

func TestBuildEnumerator(t *testing.T) {
	if _, ok := buildEnumerator(GradingConfig{WorkRoot: "/w", Match: "@"}).(enumerator.DirEnumerator); !ok {
		t.Fatalf("expected directory enumerator without roster")
	}
	got, ok := buildEnumerator(GradingConfig{WorkRoot: "/w", Roster: "students.csv"}).(enumerator.RosterEnumerator)
	if !ok || got.RosterPath != "students.csv" {
		t.Fatalf("expected roster enumerator, got %#v", got)
	}
}
