// Package feedback renders per-student feedback from a sheet export and
// publishes it to object storage by file name.
package feedback

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"autograde/internal/common/storage"
	appErr "autograde/pkg/errors"
	"autograde/pkg/utils/logger"

	"go.uber.org/zap"
)

const contentType = "text/html; charset=utf-8"

// Sheet is a parsed CSV export with a header row.
type Sheet struct {
	Headers []string
	Rows    [][]string
}

// ReadSheet parses a CSV export.
func ReadSheet(r io.Reader) (Sheet, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	headers, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Sheet{}, appErr.New(appErr.InvalidFormat).WithMessage("feedback sheet is empty")
		}
		return Sheet{}, appErr.Wrapf(err, appErr.InvalidFormat, "read feedback header failed")
	}
	sheet := Sheet{Headers: headers}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Sheet{}, appErr.Wrapf(err, appErr.InvalidFormat, "read feedback row failed")
		}
		sheet.Rows = append(sheet.Rows, rec)
	}
	return sheet, nil
}

// EmailColumn returns the index of the email column. When configured is
// empty, exactly one header must contain "email".
func (s Sheet) EmailColumn(configured string) (int, error) {
	if configured != "" {
		for i, h := range s.Headers {
			if h == configured {
				return i, nil
			}
		}
		return -1, appErr.ConfigError("feedback.emailColumn", fmt.Sprintf("no header %q", configured))
	}
	found := -1
	for i, h := range s.Headers {
		if strings.Contains(strings.ToLower(h), "email") {
			if found >= 0 {
				return -1, appErr.Newf(appErr.InvalidFormat, "could not determine email column from headers %v", s.Headers)
			}
			found = i
		}
	}
	if found < 0 {
		return -1, appErr.Newf(appErr.InvalidFormat, "could not determine email column from headers %v", s.Headers)
	}
	return found, nil
}

// Config configures a Publisher.
type Config struct {
	Storage        storage.ObjectStorage
	Bucket         string
	Prefix         string
	Template       string
	EmailColumn    string
	Students       []string
	StorageTimeout time.Duration
}

// Publisher renders and uploads feedback files.
type Publisher struct {
	storage        storage.ObjectStorage
	bucket         string
	prefix         string
	template       string
	emailColumn    string
	students       map[string]struct{}
	storageTimeout time.Duration
}

// Result lists what a publish did.
type Result struct {
	Created []string
	Updated []string
}

// NewPublisher validates cfg. Storage may be nil when only Preview is used.
func NewPublisher(cfg Config) (*Publisher, error) {
	if cfg.Template == "" {
		return nil, appErr.ConfigError("feedback.template", "required")
	}
	var students map[string]struct{}
	if len(cfg.Students) > 0 {
		students = make(map[string]struct{}, len(cfg.Students))
		for _, s := range cfg.Students {
			if s = strings.TrimSpace(s); s != "" {
				students[s] = struct{}{}
			}
		}
	}
	return &Publisher{
		storage:        cfg.Storage,
		bucket:         cfg.Bucket,
		prefix:         cfg.Prefix,
		template:       cfg.Template,
		emailColumn:    cfg.EmailColumn,
		students:       students,
		storageTimeout: cfg.StorageTimeout,
	}, nil
}

// FileName is the object name feedback for email is published under.
func FileName(email string) string {
	return "feedback_" + email + ".html"
}

type rendered struct {
	email string
	text  string
}

// each renders every selected row in sheet order and stops when fn returns false.
func (p *Publisher) each(sheet Sheet, fn func(r rendered) (bool, error)) error {
	col, err := sheet.EmailColumn(p.emailColumn)
	if err != nil {
		return err
	}
	for _, row := range sheet.Rows {
		if col >= len(row) {
			continue
		}
		email := strings.TrimSpace(row[col])
		if !strings.Contains(email, "@") {
			continue
		}
		if p.students != nil {
			if _, ok := p.students[email]; !ok {
				continue
			}
		}
		text, err := Render(p.template, Fields(sheet.Headers, row))
		if err != nil {
			return appErr.Wrapf(err, appErr.TemplateFailed, "render feedback for %s failed", email)
		}
		more, err := fn(rendered{email: email, text: text})
		if err != nil || !more {
			return err
		}
	}
	return nil
}

// Preview writes the first rendered feedback to w without publishing.
func (p *Publisher) Preview(w io.Writer, sheet Sheet) error {
	return p.each(sheet, func(r rendered) (bool, error) {
		_, err := fmt.Fprintf(w, "Feedback for %s :\n%s\n", r.email, r.text)
		return false, err
	})
}

// Publish uploads one file per selected row, replacing any file of the same name.
func (p *Publisher) Publish(ctx context.Context, sheet Sheet) (Result, error) {
	var res Result
	if p.storage == nil || p.bucket == "" {
		return res, appErr.ConfigError("storage", "required to publish")
	}
	err := p.each(sheet, func(r rendered) (bool, error) {
		created, err := p.upsert(ctx, r)
		if err != nil {
			return false, err
		}
		if created {
			res.Created = append(res.Created, r.email)
		} else {
			res.Updated = append(res.Updated, r.email)
		}
		return true, nil
	})
	return res, err
}

func (p *Publisher) upsert(ctx context.Context, r rendered) (bool, error) {
	ctx = logger.WithStudent(ctx, r.email)
	if p.storageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.storageTimeout)
		defer cancel()
	}
	key := path.Join(p.prefix, FileName(r.email))
	created := false
	if _, err := p.storage.StatObject(ctx, p.bucket, key); err != nil {
		if !errors.Is(err, storage.ErrObjectNotFound) {
			return false, appErr.Wrapf(err, appErr.PublishFailed, "stat %s failed", key)
		}
		created = true
	}
	body := strings.NewReader(r.text)
	if err := p.storage.PutObject(ctx, p.bucket, key, body, int64(body.Len()), contentType); err != nil {
		return false, appErr.Wrapf(err, appErr.PublishFailed, "upload %s failed", key)
	}
	if created {
		logger.Info(ctx, "created feedback", zap.String("key", key))
	} else {
		logger.Info(ctx, "updated feedback", zap.String("key", key))
	}
	return created, nil
}
