// Package enumerator produces the ordered work items of a grading run.
package enumerator

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"autograde/internal/grading/model"
	appErr "autograde/pkg/errors"
)

const (
	DefaultMatch        = "@"
	DefaultRosterColumn = "email"
)

// Enumerator lists the submissions of one run in a stable order.
type Enumerator interface {
	Enumerate(ctx context.Context) ([]model.WorkItem, error)
}

// DirEnumerator yields every subdirectory of Root whose name contains Match,
// sorted by name.
type DirEnumerator struct {
	Root  string
	Match string
}

// Enumerate scans Root.
func (e DirEnumerator) Enumerate(ctx context.Context) ([]model.WorkItem, error) {
	if e.Root == "" {
		return nil, appErr.New(appErr.EnumerationFailed).WithMessage("work root is required")
	}
	entries, err := os.ReadDir(e.Root)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.EnumerationFailed, "read work root failed")
	}
	match := e.Match
	if match == "" {
		match = DefaultMatch
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, appErr.Wrapf(err, appErr.EnumerationFailed, "enumeration cancelled")
		}
		if !entry.IsDir() || !strings.Contains(entry.Name(), match) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return buildItems(e.Root, names)
}

// RosterEnumerator yields one item per row of a CSV roster, in file order.
// The location of each student is Root/<student>; a missing directory still
// produces an item.
type RosterEnumerator struct {
	Root       string
	RosterPath string
	Column     string
}

// Enumerate reads the roster.
func (e RosterEnumerator) Enumerate(ctx context.Context) ([]model.WorkItem, error) {
	path := e.RosterPath
	if path == "" {
		return nil, appErr.New(appErr.EnumerationFailed).WithMessage("roster path is required")
	}
	if !filepath.IsAbs(path) && e.Root != "" {
		if _, err := os.Stat(path); err != nil {
			path = filepath.Join(e.Root, path)
		}
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.EnumerationFailed, "open roster failed")
	}
	defer file.Close()

	names, err := ReadRoster(file, e.Column)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, appErr.Wrapf(err, appErr.EnumerationFailed, "enumeration cancelled")
	}
	return buildItems(e.Root, names)
}

// ReadRoster returns the non-empty values of column from a CSV with a header row.
func ReadRoster(r io.Reader, column string) ([]string, error) {
	if column == "" {
		column = DefaultRosterColumn
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.EnumerationFailed, "read roster header failed")
	}
	col := -1
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), column) {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, appErr.Newf(appErr.EnumerationFailed, "roster has no %q column", column)
	}
	var names []string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, appErr.Wrapf(err, appErr.EnumerationFailed, "read roster row failed")
		}
		if col >= len(rec) {
			continue
		}
		name := strings.TrimSpace(rec[col])
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// CheckUnique fails with DuplicateWorkItem if two items share a student.
func CheckUnique(items []model.WorkItem) error {
	seen := make(map[string]int, len(items))
	for _, item := range items {
		if first, ok := seen[item.Student]; ok {
			return appErr.Newf(appErr.DuplicateWorkItem, "student %s appears at positions %d and %d", item.Student, first, item.Index)
		}
		seen[item.Student] = item.Index
	}
	return nil
}

// buildItems anchors every location at the absolute form of root.
func buildItems(root string, names []string) ([]model.WorkItem, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.EnumerationFailed, "resolve work root failed")
	}
	items := make([]model.WorkItem, 0, len(names))
	for i, name := range names {
		items = append(items, model.WorkItem{
			Index:    i,
			Student:  name,
			Location: filepath.Join(root, name),
		})
	}
	return items, nil
}
