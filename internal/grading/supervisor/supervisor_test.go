package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"autograde/internal/grading/model"
	"autograde/internal/grading/sandbox/engine"
	"autograde/internal/grading/sandbox/plugin"
	"autograde/internal/testutil/graderfake"
	"autograde/pkg/utils/logger"

	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	graderfake.RunIfRequested()
	os.Exit(m.Run())
}

func newSupervisor(t *testing.T, grace time.Duration) *Supervisor {
	t.Helper()
	eng, err := engine.NewEngine(engine.Config{Env: graderfake.Env(), WaitDelay: grace}, graderfake.Plugin(t))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	sup, err := New(eng, grace)
	if err != nil {
		t.Fatalf("new supervisor: %v", err)
	}
	return sup
}

func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	prev := logger.SetLogger(logger.NewFromCore(core))
	t.Cleanup(func() { logger.SetLogger(prev) })
	return logs
}

func items(t *testing.T, students ...string) []model.WorkItem {
	t.Helper()
	root := t.TempDir()
	graderfake.Locations(t, root, students...)
	out := make([]model.WorkItem, 0, len(students))
	for i, s := range students {
		out = append(out, model.WorkItem{Index: i, Student: s, Location: filepath.Join(root, s)})
	}
	return out
}

func TestAliceBobScenario(t *testing.T) {
	logs := observe(t)
	sup := newSupervisor(t, 500*time.Millisecond)
	work := items(t, "alice@example.com", "bob@example.com")

	alice, err := sup.Run(context.Background(), work[0], time.Second, nil)
	if err != nil {
		t.Fatalf("run alice: %v", err)
	}
	if alice.Kind != model.OutcomeCompleted || alice.ReportGrade() != 10 {
		t.Fatalf("expected alice 10.0, got %+v", alice)
	}

	start := time.Now()
	bob, err := sup.Run(context.Background(), work[1], time.Second, nil)
	if err != nil {
		t.Fatalf("run bob: %v", err)
	}
	if bob.Kind != model.OutcomeTimedOut || bob.ReportGrade() != model.SentinelGrade {
		t.Fatalf("expected bob timed out with sentinel, got %+v", bob)
	}
	if elapsed := time.Since(start); elapsed > time.Second+2*sup.Grace()+time.Second {
		t.Fatalf("timeout path took %s", elapsed)
	}

	timeouts := logs.FilterMessage("grader timed out").All()
	if len(timeouts) != 1 {
		t.Fatalf("expected one timeout line, got %d", len(timeouts))
	}
	if timeouts[0].ContextMap()["student"] != "bob@example.com" {
		t.Fatalf("timeout line for wrong student: %v", timeouts[0].ContextMap())
	}
}

func TestHangingGraderIsBounded(t *testing.T) {
	sup := newSupervisor(t, 300*time.Millisecond)
	work := items(t, "hang@example.com", "ignoreterm@example.com")
	for _, it := range work {
		start := time.Now()
		out, err := sup.Run(context.Background(), it, 300*time.Millisecond, nil)
		if err != nil {
			t.Fatalf("run %s: %v", it.Student, err)
		}
		if out.Kind != model.OutcomeTimedOut {
			t.Fatalf("%s: expected timed out, got %s", it.Student, out.Kind)
		}
		if elapsed := time.Since(start); elapsed > 300*time.Millisecond+2*sup.Grace()+time.Second {
			t.Fatalf("%s: supervisor blocked for %s", it.Student, elapsed)
		}
	}
}

func TestCrashIsLoggedDistinctly(t *testing.T) {
	logs := observe(t)
	sup := newSupervisor(t, 300*time.Millisecond)
	work := items(t, "crash@example.com")

	out, err := sup.Run(context.Background(), work[0], 5*time.Second, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Kind != model.OutcomeCrashed || out.ReportGrade() != model.SentinelGrade {
		t.Fatalf("expected crashed sentinel, got %+v", out)
	}
	if logs.FilterMessage("grader crashed").Len() != 1 {
		t.Fatal("expected one crash line")
	}
	if logs.FilterMessage("grader timed out").Len() != 0 {
		t.Fatal("crash must not be logged as timeout")
	}
}

func TestZeroBudgetWaitsForSlowGrader(t *testing.T) {
	sup := newSupervisor(t, 100*time.Millisecond)
	work := items(t, "sleep-1500-4.5@example.com")

	out, err := sup.Run(context.Background(), work[0], 0, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Kind != model.OutcomeCompleted || out.Grade != 4.5 {
		t.Fatalf("expected completed 4.5 with budget disabled, got %+v", out)
	}
	if out.Duration < 1500*time.Millisecond {
		t.Fatalf("expected duration >= 1.5s, got %s", out.Duration)
	}
}

func TestSpawnFailureIsCrash(t *testing.T) {
	sup := newSupervisor(t, 100*time.Millisecond)
	it := model.WorkItem{Student: "alice@example.com", Location: filepath.Join(t.TempDir(), "missing")}

	var started bool
	out, err := sup.Run(context.Background(), it, time.Second, func(int) { started = true })
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Kind != model.OutcomeCrashed {
		t.Fatalf("expected crashed, got %s", out.Kind)
	}
	if started {
		t.Fatal("onStart must not run when spawn fails")
	}
}

func TestCancelledContextStopsWorker(t *testing.T) {
	sup := newSupervisor(t, 200*time.Millisecond)
	work := items(t, "hang@example.com")
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := sup.Run(ctx, work[0], 0, nil)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestNewRequiresEngine(t *testing.T) {
	if _, err := New(nil, time.Second); err == nil {
		t.Fatal("expected error for nil engine")
	}
	eng, err := engine.NewEngine(engine.Config{}, plugin.Plugin{Path: "/bin/true"})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	sup, err := New(eng, 0)
	if err != nil {
		t.Fatalf("new supervisor: %v", err)
	}
	if sup.Grace() != defaultGrace {
		t.Fatalf("expected default grace, got %s", sup.Grace())
	}
}
