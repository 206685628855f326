package main

import (
	"io"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	appErr "autograde/pkg/errors"
)

func TestParseConfigStudentsFlag(t *testing.T) {
	cfg, preview, err := parseConfig([]string{
		"-test", "-sheet", "grades.csv", "-template", "fb.html",
		"-students", " a@x.org, ,b@x.org ",
	}, io.Discard)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !preview {
		t.Fatalf("expected preview mode")
	}
	if want := []string{"a@x.org", "b@x.org"}; !reflect.DeepEqual(cfg.Feedback.Students, want) {
		t.Fatalf("students = %v, want %v", cfg.Feedback.Students, want)
	}
	if cfg.Feedback.StorageTimeout != defaultStorageTimeout {
		t.Fatalf("storage timeout default not applied")
	}
}

func TestParseConfigValidation(t *testing.T) {
	cases := [][]string{
		{"-template", "fb.html", "-test"},
		{"-sheet", "grades.csv", "-test"},
		{"-sheet", "grades.csv", "-template", "fb.html"},
	}
	for i, args := range cases {
		if _, _, err := parseConfig(args, io.Discard); !appErr.Is(err, appErr.ConfigInvalid) {
			t.Fatalf("case %d: expected ConfigInvalid, got %v", i, err)
		}
	}
}

func TestLoadInputs(t *testing.T) {
	dir := t.TempDir()
	tmplPath := filepath.Join(dir, "fb.html")
	sheetPath := filepath.Join(dir, "grades.csv")
	if err := os.WriteFile(tmplPath, []byte("<p>{Grade}</p>"), 0644); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if err := os.WriteFile(sheetPath, []byte("Email,Grade\na@x.org,9\n"), 0644); err != nil {
		t.Fatalf("write sheet: %v", err)
	}
	sheet, tmpl, err := loadInputs(FeedbackConfig{Sheet: sheetPath, Template: tmplPath})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tmpl != "<p>{Grade}</p>" || len(sheet.Rows) != 1 || sheet.Headers[1] != "Grade" {
		t.Fatalf("unexpected inputs %q %+v", tmpl, sheet)
	}

	if _, _, err := loadInputs(FeedbackConfig{Sheet: sheetPath, Template: filepath.Join(dir, "none")}); !appErr.Is(err, appErr.TemplateFailed) {
		t.Fatalf("expected TemplateFailed, got %v", err)
	}
}
