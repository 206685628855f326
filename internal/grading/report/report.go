// Package report persists the ordered (student, grade) report of a batch run.
package report

import (
	"encoding/csv"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	appErr "autograde/pkg/errors"
)

const (
	ColumnStudent = "student"
	ColumnGrade   = "grade"
	Delimiter     = '\t'
)

// Row is one report entry.
type Row struct {
	Student string
	Grade   float64
}

// Recorder receives report rows in processing order.
type Recorder interface {
	Record(student string, grade float64) error
}

// Writer appends rows to a tab-delimited report, flushing after every row so
// an interrupted run leaves a complete file.
type Writer struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	csv    *csv.Writer
	rows   int
	closed bool
	seen   map[string]struct{}
}

// Create truncates path and writes the header.
func Create(path string) (*Writer, error) {
	if path == "" {
		return nil, appErr.New(appErr.ReportWriteFailed).WithMessage("report path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, appErr.Wrapf(err, appErr.ReportWriteFailed, "create report dir failed")
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.ReportWriteFailed, "create report failed")
	}
	w := csv.NewWriter(file)
	w.Comma = Delimiter
	rw := &Writer{path: path, file: file, csv: w, seen: make(map[string]struct{})}
	if err := rw.write([]string{ColumnStudent, ColumnGrade}); err != nil {
		_ = file.Close()
		return nil, err
	}
	return rw, nil
}

// Path returns the report location.
func (w *Writer) Path() string {
	return w.path
}

// Rows returns how many data rows were written.
func (w *Writer) Rows() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows
}

// Record appends one row. A student may be recorded only once.
func (w *Writer) Record(student string, grade float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return appErr.New(appErr.ReportWriteFailed).WithMessage("report already finalized")
	}
	if _, dup := w.seen[student]; dup {
		return appErr.Newf(appErr.DuplicateWorkItem, "student %s already recorded", student)
	}
	if err := w.write([]string{student, FormatGrade(grade)}); err != nil {
		return err
	}
	w.seen[student] = struct{}{}
	w.rows++
	return nil
}

// Finalize flushes, syncs and closes the report. Safe to call twice.
func (w *Writer) Finalize() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	w.csv.Flush()
	flushErr := w.csv.Error()
	syncErr := w.file.Sync()
	closeErr := w.file.Close()
	if err := errors.Join(flushErr, syncErr, closeErr); err != nil {
		return appErr.Wrapf(err, appErr.ReportWriteFailed, "finalize report failed")
	}
	return nil
}

func (w *Writer) write(record []string) error {
	if err := w.csv.Write(record); err != nil {
		return appErr.Wrapf(err, appErr.ReportWriteFailed, "write report row failed")
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return appErr.Wrapf(err, appErr.ReportWriteFailed, "flush report failed")
	}
	return nil
}

// FormatGrade renders a plain decimal with at least one fractional digit.
// Negative zero is written as 0.0.
func FormatGrade(grade float64) string {
	if grade == 0 {
		grade = 0
	}
	if grade == math.Trunc(grade) && !math.IsInf(grade, 0) {
		return strconv.FormatFloat(grade, 'f', 1, 64)
	}
	return strconv.FormatFloat(grade, 'f', -1, 64)
}

// Read parses a report written by Writer.
func Read(path string) ([]Row, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.ReportReadFailed, "open report failed")
	}
	defer file.Close()
	return Parse(file)
}

// Parse reads report rows from r.
func Parse(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.Comma = Delimiter
	cr.FieldsPerRecord = 2
	header, err := cr.Read()
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.ReportReadFailed, "read report header failed")
	}
	if header[0] != ColumnStudent || header[1] != ColumnGrade {
		return nil, appErr.Newf(appErr.ReportReadFailed, "unexpected report header %q", header)
	}
	var rows []Row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, appErr.Wrapf(err, appErr.ReportReadFailed, "read report row failed")
		}
		grade, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return nil, appErr.Wrapf(err, appErr.ReportReadFailed, "parse grade for %s failed", rec[0])
		}
		rows = append(rows, Row{Student: rec[0], Grade: grade})
	}
	return rows, nil
}
