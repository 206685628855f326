package report

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	appErr "autograde/pkg/errors"
)

func TestWriterFlushesEachRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "grades.csv")
	w, err := Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "student\tgrade\n" {
		t.Fatalf("header not flushed: %q", data)
	}

	if err := w.Record("alice@x", 10); err != nil {
		t.Fatalf("record: %v", err)
	}
	data, _ = os.ReadFile(path)
	if string(data) != "student\tgrade\nalice@x\t10.0\n" {
		t.Fatalf("row not flushed: %q", data)
	}

	if err := w.Record("bob@x", -1); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := w.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := w.Finalize(); err != nil {
		t.Fatalf("second finalize: %v", err)
	}
	data, _ = os.ReadFile(path)
	want := "student\tgrade\nalice@x\t10.0\nbob@x\t-1.0\n"
	if string(data) != want {
		t.Fatalf("unexpected report %q", data)
	}
	if w.Rows() != 2 {
		t.Fatalf("expected 2 rows, got %d", w.Rows())
	}
}

func TestWriterRejectsAfterFinalize(t *testing.T) {
	w, err := Create(filepath.Join(t.TempDir(), "grades.csv"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_ = w.Finalize()
	err = w.Record("alice@x", 1)
	if !appErr.Is(err, appErr.ReportWriteFailed) {
		t.Fatalf("expected ReportWriteFailed, got %v", err)
	}
}

func TestWriterRejectsDuplicateStudent(t *testing.T) {
	w, err := Create(filepath.Join(t.TempDir(), "grades.csv"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer w.Finalize()
	if err := w.Record("alice@x", 1); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := w.Record("alice@x", 2); !appErr.Is(err, appErr.DuplicateWorkItem) {
		t.Fatalf("expected DuplicateWorkItem, got %v", err)
	}
}

func TestCreateFailsOnDirectory(t *testing.T) {
	dir := t.TempDir()
	_, err := Create(dir)
	if !appErr.Is(err, appErr.ReportWriteFailed) {
		t.Fatalf("expected ReportWriteFailed, got %v", err)
	}
}

func TestFormatGrade(t *testing.T) {
	cases := map[float64]string{
		10:    "10.0",
		-1:    "-1.0",
		7.25:  "7.25",
		0:     "0.0",
		0.125: "0.125",
		100.5: "100.5",
	}
	for in, want := range cases {
		if got := FormatGrade(in); got != want {
			t.Fatalf("FormatGrade(%v) = %q, want %q", in, got, want)
		}
	}
	if got := FormatGrade(math.Copysign(0, -1)); got != "0.0" {
		t.Fatalf("FormatGrade(-0) = %q, want 0.0", got)
	}
}

func TestReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grades.csv")
	w, err := Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_ = w.Record("alice@x", 10)
	_ = w.Record("bob@x", 7.25)
	_ = w.Finalize()

	rows, err := Read(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 2 || rows[0] != (Row{"alice@x", 10}) || rows[1] != (Row{"bob@x", 7.25}) {
		t.Fatalf("unexpected rows %+v", rows)
	}
}

func TestParseRejectsBadHeader(t *testing.T) {
	_, err := Parse(strings.NewReader("name\tscore\nalice\t1\n"))
	if !appErr.Is(err, appErr.ReportReadFailed) {
		t.Fatalf("expected ReportReadFailed, got %v", err)
	}
}

func TestParseRejectsBadGrade(t *testing.T) {
	_, err := Parse(strings.NewReader("student\tgrade\nalice\tten\n"))
	if !appErr.Is(err, appErr.ReportReadFailed) {
		t.Fatalf("expected ReportReadFailed, got %v", err)
	}
}

type memRecorder struct {
	rows []Row
}

func (m *memRecorder) Record(student string, grade float64) error {
	m.rows = append(m.rows, Row{Student: student, Grade: grade})
	return nil
}

func TestSequencerEmitsInIndexOrder(t *testing.T) {
	rec := &memRecorder{}
	seq := NewSequencer(rec)

	if n, err := seq.Add(2, Row{"c", 3}); err != nil || n != 0 {
		t.Fatalf("add 2: n=%d err=%v", n, err)
	}
	if n, err := seq.Add(1, Row{"b", 2}); err != nil || n != 0 {
		t.Fatalf("add 1: n=%d err=%v", n, err)
	}
	if seq.Pending() != 2 {
		t.Fatalf("expected 2 pending, got %d", seq.Pending())
	}
	if n, err := seq.Add(0, Row{"a", 1}); err != nil || n != 3 {
		t.Fatalf("add 0: n=%d err=%v", n, err)
	}
	if seq.Pending() != 0 {
		t.Fatalf("expected nothing pending")
	}
	got := []string{}
	for _, r := range rec.rows {
		got = append(got, r.Student)
	}
	if strings.Join(got, ",") != "a,b,c" {
		t.Fatalf("unexpected order %v", got)
	}
}

func TestSequencerRejectsRepeatedIndex(t *testing.T) {
	seq := NewSequencer(&memRecorder{})
	if _, err := seq.Add(0, Row{"a", 1}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := seq.Add(0, Row{"a", 1}); !appErr.Is(err, appErr.DuplicateWorkItem) {
		t.Fatalf("expected DuplicateWorkItem, got %v", err)
	}
	if _, err := seq.Add(3, Row{"d", 1}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := seq.Add(3, Row{"d", 1}); !appErr.Is(err, appErr.DuplicateWorkItem) {
		t.Fatalf("expected DuplicateWorkItem, got %v", err)
	}
}
