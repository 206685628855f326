package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"autograde/internal/grading/enumerator"
	"autograde/internal/grading/model"
	"autograde/internal/grading/progress"
	"autograde/internal/grading/report"
	"autograde/internal/grading/repository"
	"autograde/internal/grading/supervisor"
	appErr "autograde/pkg/errors"
	"autograde/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultPublishTimeout = 5 * time.Second

// Runner grades one item under a budget.
type Runner interface {
	Run(ctx context.Context, item model.WorkItem, budget time.Duration, onStart supervisor.StartFunc) (model.Outcome, error)
}

// Service drives one grading batch from enumeration to the final report.
type Service struct {
	enumerator     enumerator.Enumerator
	runner         Runner
	tracker        *progress.Tracker
	publisher      repository.GradeEventPublisher
	reportPath     string
	budget         time.Duration
	concurrency    int
	publishTimeout time.Duration
	newRunID       func() string
	createReport   func(path string) (reportSink, error)
}

// reportSink is the report as the driver uses it.
type reportSink interface {
	report.Recorder
	Finalize() error
	Rows() int
}

func createReport(path string) (reportSink, error) {
	w, err := report.Create(path)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Config holds service dependencies and settings.
type Config struct {
	Enumerator     enumerator.Enumerator
	Runner         Runner
	Tracker        *progress.Tracker
	Publisher      repository.GradeEventPublisher
	ReportPath     string
	Budget         time.Duration
	Concurrency    int
	PublishTimeout time.Duration
}

// Summary describes a finished run.
type Summary struct {
	RunID      string
	Total      int
	Completed  int
	TimedOut   int
	Crashed    int
	ReportPath string
	Elapsed    time.Duration
}

// Recorded returns how many rows were written.
func (s Summary) Recorded() int {
	return s.Completed + s.TimedOut + s.Crashed
}

// NewService creates a new grading service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Enumerator == nil {
		return nil, appErr.ConfigError("enumerator", "required")
	}
	if cfg.Runner == nil {
		return nil, appErr.ConfigError("runner", "required")
	}
	if cfg.ReportPath == "" {
		return nil, appErr.ConfigError("report.path", "required")
	}
	if cfg.Budget < 0 {
		return nil, appErr.ConfigError("grading.budgetSeconds", "must not be negative")
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	tracker := cfg.Tracker
	if tracker == nil {
		tracker = progress.NewTracker()
	}
	publishTimeout := cfg.PublishTimeout
	if publishTimeout <= 0 {
		publishTimeout = defaultPublishTimeout
	}
	return &Service{
		enumerator:     cfg.Enumerator,
		runner:         cfg.Runner,
		tracker:        tracker,
		publisher:      cfg.Publisher,
		reportPath:     cfg.ReportPath,
		budget:         cfg.Budget,
		concurrency:    concurrency,
		publishTimeout: publishTimeout,
		newRunID:       uuid.NewString,
		createReport:   createReport,
	}, nil
}

// Tracker exposes the live attempt states.
func (s *Service) Tracker() *progress.Tracker {
	return s.tracker
}

// Run grades every enumerated item and writes the report. Setup failures
// return before any row is written; per-item faults never abort the run.
func (s *Service) Run(ctx context.Context) (Summary, error) {
	started := time.Now()
	summary := Summary{RunID: s.newRunID(), ReportPath: s.reportPath}
	ctx = logger.WithRunID(ctx, summary.RunID)

	items, err := s.enumerator.Enumerate(ctx)
	if err != nil {
		return summary, err
	}
	if err := enumerator.CheckUnique(items); err != nil {
		return summary, err
	}
	summary.Total = len(items)

	writer, err := s.createReport(s.reportPath)
	if err != nil {
		return summary, err
	}
	s.tracker.Reset(summary.RunID, items)
	defer s.tracker.Close()

	logger.Info(ctx, "grading run started",
		zap.Int("total", len(items)),
		zap.Duration("budget", s.budget),
		zap.Int("concurrency", s.concurrency),
		zap.String("report", s.reportPath))

	rec := &trackedRecorder{ctx: ctx, writer: writer, tracker: s.tracker}
	if s.concurrency <= 1 {
		err = s.runSequential(ctx, items, rec, &summary)
	} else {
		err = s.runPool(ctx, items, rec, &summary)
	}
	if finErr := writer.Finalize(); err == nil {
		err = finErr
	}
	summary.Elapsed = time.Since(started)
	if err != nil {
		logger.Error(ctx, "grading run aborted",
			zap.Int("recorded", writer.Rows()),
			zap.Int("total", summary.Total),
			zap.Error(err))
		return summary, err
	}
	logger.Info(ctx, "grading run finished",
		zap.Int("total", summary.Total),
		zap.Int("completed", summary.Completed),
		zap.Int("timed_out", summary.TimedOut),
		zap.Int("crashed", summary.Crashed),
		zap.Duration("elapsed", summary.Elapsed))
	return summary, nil
}

func (s *Service) runSequential(ctx context.Context, items []model.WorkItem, rec report.Recorder, summary *Summary) error {
	for _, item := range items {
		out, err := s.attempt(ctx, item)
		if err != nil {
			return err
		}
		s.finish(ctx, item, out, summary)
		if err := rec.Record(item.Student, out.ReportGrade()); err != nil {
			return err
		}
	}
	return nil
}

type attemptResult struct {
	item    model.WorkItem
	outcome model.Outcome
	err     error
}

// runPool keeps up to s.concurrency graders running and emits rows in
// enumeration order through a sequencer.
func (s *Service) runPool(parent context.Context, items []model.WorkItem, rec report.Recorder, summary *Summary) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	seq := report.NewSequencer(rec)
	sem := make(chan struct{}, s.concurrency)
	results := make(chan attemptResult, len(items))

	go func() {
		var wg sync.WaitGroup
		defer func() {
			wg.Wait()
			close(results)
		}()
		for _, item := range items {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			wg.Add(1)
			go func(item model.WorkItem) {
				defer wg.Done()
				defer func() { <-sem }()
				out, err := s.attempt(ctx, item)
				results <- attemptResult{item: item, outcome: out, err: err}
			}(item)
		}
	}()

	var firstErr error
	for res := range results {
		if firstErr != nil {
			continue
		}
		if res.err != nil {
			firstErr = res.err
			cancel()
			continue
		}
		s.finish(ctx, res.item, res.outcome, summary)
		row := report.Row{Student: res.item.Student, Grade: res.outcome.ReportGrade()}
		if _, err := seq.Add(res.item.Index, row); err != nil {
			firstErr = err
			cancel()
		}
	}
	if firstErr != nil {
		return firstErr
	}
	if err := parent.Err(); err != nil {
		return err
	}
	if n := seq.Pending(); n > 0 {
		return appErr.Newf(appErr.InternalServerError, "%d rows left unflushed", n)
	}
	return nil
}

func (s *Service) attempt(ctx context.Context, item model.WorkItem) (model.Outcome, error) {
	ctx = logger.WithStudent(ctx, item.Student)
	if err := ctx.Err(); err != nil {
		return model.Outcome{}, err
	}
	if err := s.tracker.Start(item.Student, 0); err != nil {
		logger.Warn(ctx, "update attempt state failed", zap.Error(err))
	}
	logger.Info(ctx, "grading submission",
		zap.Int("index", item.Index),
		zap.String("location", item.Location))

	out, err := s.runner.Run(ctx, item, s.budget, func(pid int) {
		s.tracker.SetPID(item.Student, pid)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return model.Outcome{}, err
		}
		// Runners only fail on cancellation; anything else is still a per-item fault.
		logger.Warn(ctx, "grader crashed", zap.Error(err))
		out = model.Crashed(err.Error(), out.Duration)
	}
	return out, nil
}

func (s *Service) finish(ctx context.Context, item model.WorkItem, out model.Outcome, summary *Summary) {
	ctx = logger.WithStudent(ctx, item.Student)
	switch out.Kind {
	case model.OutcomeCompleted:
		summary.Completed++
	case model.OutcomeTimedOut:
		summary.TimedOut++
	default:
		summary.Crashed++
	}
	if err := s.tracker.Finish(item.Student, out); err != nil {
		logger.Warn(ctx, "update attempt state failed", zap.Error(err))
	}
	logger.Info(ctx, "graded submission",
		zap.Int("index", item.Index),
		zap.Float64("grade", out.ReportGrade()),
		zap.String("outcome", string(out.Kind)),
		zap.Duration("elapsed", out.Duration))
	s.publish(ctx, item, out, summary.RunID)
}

func (s *Service) publish(ctx context.Context, item model.WorkItem, out model.Outcome, runID string) {
	if s.publisher == nil {
		return
	}
	ctxPub, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()
	event := model.GradeEvent{
		RunID:      runID,
		Index:      item.Index,
		Student:    item.Student,
		Grade:      out.ReportGrade(),
		Outcome:    string(out.Kind),
		Detail:     out.Detail,
		DurationMs: out.Duration.Milliseconds(),
		FinishedAt: time.Now().Unix(),
	}
	if err := s.publisher.PublishGrade(ctxPub, event); err != nil {
		logger.Warn(ctx, "publish grade event failed", zap.Error(err))
	}
}

// trackedRecorder writes a report row and marks the attempt Recorded.
// Only the row write can fail the run.
type trackedRecorder struct {
	ctx     context.Context
	writer  report.Recorder
	tracker *progress.Tracker
}

func (r *trackedRecorder) Record(student string, grade float64) error {
	if err := r.writer.Record(student, grade); err != nil {
		return err
	}
	if err := r.tracker.Record(student); err != nil {
		logger.Warn(logger.WithStudent(r.ctx, student), "update attempt state failed", zap.Error(err))
	}
	return nil
}
