package graderkit

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"autograde/internal/grading/sandbox/engine"
)

func run(t *testing.T, stdin string, fn GradeFunc) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := Run(context.Background(), strings.NewReader(stdin), &out, &errOut, fn)
	return code, out.String(), errOut.String()
}

func TestRunPrintsGrade(t *testing.T) {
	code, out, _ := run(t, `{"student":"amy@x","location":"/w/amy@x"}`, func(ctx context.Context, req Request) (float64, error) {
		if req.Student != "amy@x" || req.Location != "/w/amy@x" {
			t.Fatalf("unexpected request %+v", req)
		}
		return 9.5, nil
	})
	if code != ExitOK || out != "{\"grade\":9.5}\n" {
		t.Fatalf("unexpected result %d %q", code, out)
	}
}

func TestRunErrorExitCodes(t *testing.T) {
	req := `{"student":"amy@x"}`
	if code, _, stderr := run(t, req, func(context.Context, Request) (float64, error) {
		return 0, errors.New("tests failed to build")
	}); code != ExitFailed || !strings.Contains(stderr, "tests failed to build") {
		t.Fatalf("error: %d %q", code, stderr)
	}
	if code, out, _ := run(t, req, func(context.Context, Request) (float64, error) {
		panic("boom")
	}); code != ExitPanic || out != "" {
		t.Fatalf("panic: %d %q", code, out)
	}
	if code, _, _ := run(t, req, func(context.Context, Request) (float64, error) {
		return math.NaN(), nil
	}); code != ExitFailed {
		t.Fatalf("nan: %d", code)
	}
	if code, _, _ := run(t, "{not json", func(context.Context, Request) (float64, error) {
		return 1, nil
	}); code != ExitBadCall {
		t.Fatalf("bad request: %d", code)
	}
}

func TestRunFallsBackToEnv(t *testing.T) {
	t.Setenv(EnvStudent, "bob@x")
	t.Setenv(EnvLocation, "/w/bob@x")
	code, _, _ := run(t, "", func(ctx context.Context, req Request) (float64, error) {
		if req.Student != "bob@x" || req.Location != "/w/bob@x" {
			t.Fatalf("unexpected request %+v", req)
		}
		return 1, nil
	})
	if code != ExitOK {
		t.Fatalf("unexpected exit %d", code)
	}
}

func TestProtocolMatchesEngine(t *testing.T) {
	if EnvStudent != engine.EnvStudent || EnvLocation != engine.EnvLocation {
		t.Fatalf("environment names drifted from the engine")
	}
}
