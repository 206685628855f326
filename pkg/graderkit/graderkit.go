// Package graderkit implements the grader side of the autograde worker
// protocol for graders written in Go.
//
// A grader process receives one JSON request on stdin and the same values in
// the AUTOGRADE_STUDENT and AUTOGRADE_LOCATION environment variables. Its
// working directory is the submission. It reports success by exiting 0 after
// printing {"grade": <number>} as its last stdout line.
package graderkit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
)

const (
	EnvStudent  = "AUTOGRADE_STUDENT"
	EnvLocation = "AUTOGRADE_LOCATION"

	ExitOK      = 0
	ExitFailed  = 1
	ExitPanic   = 2
	ExitBadCall = 3
)

// Request identifies the submission to grade.
type Request struct {
	Student  string `json:"student"`
	Location string `json:"location"`
}

// Response is printed on success.
type Response struct {
	Grade float64 `json:"grade"`
}

// GradeFunc grades one submission. ctx is cancelled when the grader is asked
// to terminate.
type GradeFunc func(ctx context.Context, req Request) (float64, error)

// Serve runs fn against the request of the current process and exits.
func Serve(fn GradeFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := Run(ctx, os.Stdin, os.Stdout, os.Stderr, fn)
	stop()
	os.Exit(code)
}

// Run is Serve without the process plumbing. It returns the exit code.
func Run(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, fn GradeFunc) (code int) {
	req, err := readRequest(stdin)
	if err != nil {
		fmt.Fprintln(stderr, "graderkit:", err)
		return ExitBadCall
	}

	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(stderr, "graderkit: grader panicked: %v\n%s", r, debug.Stack())
			code = ExitPanic
		}
	}()

	grade, err := fn(ctx, req)
	if err != nil {
		fmt.Fprintln(stderr, "graderkit:", err)
		return ExitFailed
	}
	if math.IsNaN(grade) || math.IsInf(grade, 0) {
		fmt.Fprintln(stderr, "graderkit: grade is not finite")
		return ExitFailed
	}
	if err := json.NewEncoder(stdout).Encode(Response{Grade: grade}); err != nil {
		fmt.Fprintln(stderr, "graderkit: write grade:", err)
		return ExitFailed
	}
	return ExitOK
}

func readRequest(stdin io.Reader) (Request, error) {
	var req Request
	if stdin != nil {
		err := json.NewDecoder(stdin).Decode(&req)
		if err != nil && !errors.Is(err, io.EOF) {
			return Request{}, fmt.Errorf("decode request: %w", err)
		}
	}
	if req.Student == "" {
		req.Student = os.Getenv(EnvStudent)
	}
	if req.Location == "" {
		req.Location = os.Getenv(EnvLocation)
	}
	if req.Student == "" {
		return Request{}, errors.New("no student in request")
	}
	return req, nil
}
