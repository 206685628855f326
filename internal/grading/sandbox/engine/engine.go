// Package engine runs one grader invocation in a separate, killable process.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"autograde/internal/grading/model"
	"autograde/internal/grading/sandbox/plugin"
	"autograde/internal/grading/sandbox/slot"
	appErr "autograde/pkg/errors"
)

const (
	EnvStudent  = "AUTOGRADE_STUDENT"
	EnvLocation = "AUTOGRADE_LOCATION"
)

// Engine starts grader processes.
type Engine interface {
	Spawn(ctx context.Context, item model.WorkItem) (*Handle, error)
}

// AwaitResult is returned by Handle.Await.
type AwaitResult int

const (
	Exited AwaitResult = iota
	StillRunning
)

func (r AwaitResult) String() string {
	if r == Exited {
		return "Exited"
	}
	return "StillRunning"
}

type processEngine struct {
	cfg    Config
	plugin plugin.Plugin
}

// NewEngine creates an engine running the resolved grader plugin.
func NewEngine(cfg Config, p plugin.Plugin) (Engine, error) {
	if p.Path == "" {
		return nil, appErr.New(appErr.GraderLoadFailed).WithMessage("grader plugin is not resolved")
	}
	return &processEngine{cfg: cfg.withDefaults(), plugin: p}, nil
}

func (e *processEngine) Spawn(ctx context.Context, item model.WorkItem) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if item.Student == "" {
		return nil, appErr.ValidationError("student", "required")
	}
	// The child runs inside its location, so a relative path would no longer resolve there.
	if !filepath.IsAbs(item.Location) {
		abs, err := filepath.Abs(item.Location)
		if err != nil {
			return nil, appErr.Wrapf(err, appErr.WorkerSpawnFailed, "resolve submission location failed")
		}
		item.Location = abs
	}
	payload, err := json.Marshal(model.GraderRequest{Student: item.Student, Location: item.Location})
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.WorkerSpawnFailed, "encode grader request failed")
	}

	argv := e.plugin.Command(item)
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = item.Location
	cmd.Env = append(os.Environ(), EnvStudent+"="+item.Student, EnvLocation+"="+item.Location)
	cmd.Env = append(cmd.Env, e.cfg.Env...)
	cmd.Stdin = bytes.NewReader(append(payload, '\n'))
	cmd.SysProcAttr = buildSysProcAttr()
	cmd.WaitDelay = e.cfg.WaitDelay

	h := &Handle{
		item:   item,
		result: slot.New(),
		stdout: newTailBuffer(e.cfg.OutputLimitBytes),
		stderr: newTailBuffer(e.cfg.OutputLimitBytes),
		done:   make(chan struct{}),
	}
	cmd.Stdout = h.stdout
	cmd.Stderr = h.stderr

	h.started = time.Now()
	if err := cmd.Start(); err != nil {
		return nil, appErr.Wrapf(err, appErr.WorkerSpawnFailed, "start grader failed")
	}
	h.cmd = cmd
	h.pid = cmd.Process.Pid

	go h.reap()
	return h, nil
}

// Handle is one running grader process.
type Handle struct {
	item    model.WorkItem
	cmd     *exec.Cmd
	pid     int
	result  *slot.Slot
	stdout  *tailBuffer
	stderr  *tailBuffer
	started time.Time

	done       chan struct{}
	finished   time.Time
	crash      string
	terminated atomic.Bool
}

func (h *Handle) reap() {
	err := h.cmd.Wait()
	h.finished = time.Now()
	if errors.Is(err, exec.ErrWaitDelay) {
		// Exited cleanly but left its pipes open; the captured output still counts.
		err = nil
	}
	if err != nil {
		h.crash = describeExit(err)
	} else if grade, perr := parseGrade(h.stdout.Bytes()); perr != nil {
		h.crash = perr.Error()
	} else if !h.result.Store(grade) {
		h.crash = "grade arrived after the result was read"
	}
	close(h.done)
}

// PID returns the grader process id.
func (h *Handle) PID() int {
	return h.pid
}

// Item returns the work item this process grades.
func (h *Handle) Item() model.WorkItem {
	return h.item
}

// Slot exposes the pre-seeded result slot.
func (h *Handle) Slot() *slot.Slot {
	return h.result
}

// Done is closed once the process has been reaped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Await waits for the process to exit. A zero timeout waits without bound;
// ctx cancellation ends the wait early with StillRunning.
func (h *Handle) Await(ctx context.Context, timeout time.Duration) AwaitResult {
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}
	select {
	case <-h.done:
		return Exited
	case <-timer:
	case <-ctx.Done():
	}
	// Prefer the exit if both fired.
	select {
	case <-h.done:
		return Exited
	default:
		return StillRunning
	}
}

// Terminate asks the process group to stop, escalating to SIGKILL when it
// does not exit within grace. It blocks for at most 2*grace and reports
// whether the process was reaped.
func (h *Handle) Terminate(grace time.Duration) bool {
	if h.exited() {
		return true
	}
	_ = terminateGroup(h.cmd.Process)
	if h.waitFor(grace) {
		return true
	}
	h.terminated.Store(true)
	_ = killGroup(h.cmd.Process)
	return h.waitFor(grace)
}

// Killed reports whether Terminate had to escalate to a forced kill.
func (h *Handle) Killed() bool {
	return h.terminated.Load()
}

// Outcome seals the result slot and returns the tagged outcome. Call it only
// after Await returned Exited or Terminate returned.
func (h *Handle) Outcome() model.Outcome {
	entry := h.result.Seal()
	elapsed := h.Elapsed()
	if entry.Done {
		return model.Completed(entry.Grade, elapsed)
	}
	if !h.exited() {
		return model.Crashed("grader did not exit after kill", elapsed)
	}
	return model.Crashed(h.crash, elapsed)
}

// Elapsed is the wall time from start to reap, or to now if still running.
func (h *Handle) Elapsed() time.Duration {
	if h.exited() {
		return h.finished.Sub(h.started)
	}
	return time.Since(h.started)
}

// Stderr returns the captured stderr tail. Valid after the process exited.
func (h *Handle) Stderr() string {
	if !h.exited() {
		return ""
	}
	return strings.TrimSpace(string(h.stderr.Bytes()))
}

func (h *Handle) exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *Handle) waitFor(d time.Duration) bool {
	if d <= 0 {
		return h.exited()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-h.done:
		return true
	case <-t.C:
		return false
	}
}

func describeExit(err error) string {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Error()
	}
	return err.Error()
}

// parseGrade reads the last non-empty stdout line: either {"grade": n} or a
// bare decimal.
func parseGrade(out []byte) (float64, error) {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	line := strings.TrimSpace(lines[len(lines)-1])
	if line == "" {
		return 0, fmt.Errorf("grader printed no grade")
	}
	var grade float64
	if strings.HasPrefix(line, "{") {
		var resp model.GraderResponse
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			return 0, fmt.Errorf("decode grader response: %w", err)
		}
		if resp.Grade == nil {
			return 0, fmt.Errorf("grader response has no grade")
		}
		grade = *resp.Grade
	} else {
		val, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return 0, fmt.Errorf("parse grade %q: %w", truncate(line, 64), err)
		}
		grade = val
	}
	if math.IsNaN(grade) || math.IsInf(grade, 0) {
		return 0, fmt.Errorf("grade is not finite")
	}
	return grade, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int64
	buf []byte
}

func newTailBuffer(max int64) *tailBuffer {
	return &tailBuffer{max: max}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(p)
	if int64(n) >= b.max {
		b.buf = append(b.buf[:0], p[int64(n)-b.max:]...)
		return n, nil
	}
	b.buf = append(b.buf, p...)
	if over := int64(len(b.buf)) - b.max; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return n, nil
}

func (b *tailBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, len(b.buf))
	copy(out, b.buf)
	return out
}
