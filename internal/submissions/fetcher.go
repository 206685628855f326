// Package submissions downloads student submissions from object storage and
// unpacks them into the directory layout the grading run enumerates.
package submissions

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"autograde/internal/common/storage"
	appErr "autograde/pkg/errors"
	"autograde/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	DefaultEmailColumn = "email"
	DefaultFileColumn  = "file"
	StudentsFile       = "students.csv"
)

// Entry pairs a student with the object key of their submission.
type Entry struct {
	Email string
	Key   string
}

// ReadRoster parses a CSV with a header row. Later rows for the same email
// replace the key but keep the first position.
func ReadRoster(r io.Reader, emailColumn, fileColumn string) ([]Entry, error) {
	if emailColumn == "" {
		emailColumn = DefaultEmailColumn
	}
	if fileColumn == "" {
		fileColumn = DefaultFileColumn
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.EnumerationFailed, "read roster header failed")
	}
	emailIdx, fileIdx := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case strings.ToLower(emailColumn):
			emailIdx = i
		case strings.ToLower(fileColumn):
			fileIdx = i
		}
	}
	if emailIdx < 0 || fileIdx < 0 {
		return nil, appErr.Newf(appErr.EnumerationFailed, "roster needs %q and %q columns, got %v", emailColumn, fileColumn, header)
	}

	var entries []Entry
	pos := make(map[string]int)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, appErr.Wrapf(err, appErr.EnumerationFailed, "read roster row failed")
		}
		if emailIdx >= len(rec) || fileIdx >= len(rec) {
			continue
		}
		email := strings.TrimSpace(rec[emailIdx])
		key := strings.TrimSpace(rec[fileIdx])
		if email == "" || key == "" {
			continue
		}
		if i, ok := pos[email]; ok {
			entries[i].Key = key
			continue
		}
		pos[email] = len(entries)
		entries = append(entries, Entry{Email: email, Key: key})
	}
	return entries, nil
}

// Config configures a Fetcher.
type Config struct {
	Storage        storage.ObjectStorage
	Bucket         string
	Prefix         string
	Dest           string
	Format         ArchiveFormat
	NoExtract      bool
	StorageTimeout time.Duration
}

// Fetcher downloads and unpacks submissions.
type Fetcher struct {
	storage        storage.ObjectStorage
	bucket         string
	prefix         string
	dest           string
	format         ArchiveFormat
	noExtract      bool
	storageTimeout time.Duration
}

// Result lists what a fetch produced.
type Result struct {
	Fetched []string
	Bad     []string
}

// NewFetcher validates cfg.
func NewFetcher(cfg Config) (*Fetcher, error) {
	if cfg.Storage == nil {
		return nil, appErr.ConfigError("storage", "required")
	}
	if cfg.Bucket == "" {
		return nil, appErr.ConfigError("storage.bucket", "required")
	}
	if cfg.Dest == "" {
		return nil, appErr.ConfigError("dest", "required")
	}
	return &Fetcher{
		storage:        cfg.Storage,
		bucket:         cfg.Bucket,
		prefix:         cfg.Prefix,
		dest:           cfg.Dest,
		format:         cfg.Format,
		noExtract:      cfg.NoExtract,
		storageTimeout: cfg.StorageTimeout,
	}, nil
}

// Fetch downloads every entry to <dest>/<email>.<ext> and, unless extraction
// is disabled, unpacks it into <dest>/<email>/. A broken archive is reported
// in Result.Bad and does not stop the fetch. students.csv lists every entry.
func (f *Fetcher) Fetch(ctx context.Context, entries []Entry) (Result, error) {
	var res Result
	if err := os.MkdirAll(f.dest, 0755); err != nil {
		return res, appErr.Wrapf(err, appErr.StorageError, "create destination failed")
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		ok, err := f.fetchOne(ctx, e)
		if err != nil {
			return res, err
		}
		if ok {
			res.Fetched = append(res.Fetched, e.Email)
		} else {
			res.Bad = append(res.Bad, e.Email)
		}
	}

	emails := make([]string, 0, len(entries))
	for _, e := range entries {
		emails = append(emails, e.Email)
	}
	if err := WriteStudents(filepath.Join(f.dest, StudentsFile), emails); err != nil {
		return res, err
	}
	if len(res.Bad) > 0 {
		logger.Warn(ctx, "some archives could not be extracted", zap.Strings("students", res.Bad))
	}
	return res, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, e Entry) (bool, error) {
	ctx = logger.WithStudent(ctx, e.Email)
	format := f.format
	if format == FormatNone {
		format = DetectFormat(e.Key)
	}
	ext := string(format)
	if ext == "" {
		ext = strings.TrimPrefix(path.Ext(e.Key), ".")
	}
	studentDir := filepath.Join(f.dest, e.Email)
	download := filepath.Join(f.dest, e.Email)
	if ext != "" {
		download += "." + ext
	}
	if err := os.RemoveAll(download); err != nil {
		return false, appErr.Wrapf(err, appErr.StorageError, "remove previous download failed")
	}
	if err := os.RemoveAll(studentDir); err != nil {
		return false, appErr.Wrapf(err, appErr.StorageError, "remove previous submission failed")
	}

	size, err := f.download(ctx, f.objectKey(e.Key), download)
	if err != nil {
		return false, err
	}
	logger.Info(ctx, "downloaded submission", zap.String("key", e.Key), zap.Int64("bytes", size))

	if f.noExtract || format == FormatNone {
		return true, nil
	}
	if err := Extract(format, download, studentDir); err != nil {
		logger.Warn(ctx, "extract submission failed", zap.String("file", download), zap.Error(err))
		_ = os.Remove(download)
		_ = os.RemoveAll(studentDir)
		return false, nil
	}
	if err := os.Remove(download); err != nil {
		return false, appErr.Wrapf(err, appErr.StorageError, "remove archive failed")
	}
	return true, nil
}

func (f *Fetcher) objectKey(key string) string {
	if f.prefix == "" || strings.HasPrefix(key, f.prefix) {
		return key
	}
	return path.Join(f.prefix, key)
}

func (f *Fetcher) download(ctx context.Context, key, target string) (int64, error) {
	ctxStorage := ctx
	if f.storageTimeout > 0 {
		var cancel context.CancelFunc
		ctxStorage, cancel = context.WithTimeout(ctx, f.storageTimeout)
		defer cancel()
	}
	reader, err := f.storage.GetObject(ctxStorage, f.bucket, key)
	if err != nil {
		return 0, appErr.Wrapf(err, appErr.StorageError, "download %s failed", key)
	}
	defer reader.Close()

	file, err := os.Create(target)
	if err != nil {
		return 0, appErr.Wrapf(err, appErr.StorageError, "create download file failed")
	}
	n, err := io.Copy(file, reader)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return n, appErr.Wrapf(err, appErr.StorageError, "write download file failed")
	}
	return n, nil
}

// Preview writes the roster pairs without downloading anything.
func Preview(w io.Writer, entries []Entry) error {
	for _, e := range entries {
		if _, err := fmt.Fprintln(w, e.Email, e.Key); err != nil {
			return err
		}
	}
	return nil
}

// WriteStudents writes a one-column roster with an email header.
func WriteStudents(target string, emails []string) error {
	file, err := os.Create(target)
	if err != nil {
		return appErr.Wrapf(err, appErr.StorageError, "create student list failed")
	}
	w := csv.NewWriter(file)
	_ = w.Write([]string{DefaultEmailColumn})
	for _, e := range emails {
		_ = w.Write([]string{e})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = file.Close()
		return appErr.Wrapf(err, appErr.StorageError, "write student list failed")
	}
	return file.Close()
}
