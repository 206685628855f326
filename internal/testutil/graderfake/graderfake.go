// Package graderfake turns a test binary into a misbehaving grader process.
//
// A test package calls RunIfRequested from TestMain; the engine then re-executes
// the test binary with EnvMode set, and the child behaves according to the
// part of the student identity before '@':
//
//	alice          prints {"grade": 10.0}
//	bob            sleeps 5s, then prints {"grade": 7}
//	grade-<v>      prints <v> as a bare decimal
//	sleep-<ms>-<v> sleeps <ms> milliseconds, then prints <v>
//	hang           spins forever
//	ignoreterm     ignores SIGTERM and sleeps
//	crash          writes to stderr and exits 3
//	panic          panics
//	garbage        prints a non-numeric line
//	silent         exits 0 without output
//	cwd            prints 1 when started inside its location, 0 otherwise
package graderfake

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"autograde/internal/grading/sandbox/plugin"
)

// EnvMode enables the fake grader in a re-executed test binary.
const EnvMode = "AUTOGRADE_FAKE_GRADER"

type request struct {
	Student  string `json:"student"`
	Location string `json:"location"`
}

// RunIfRequested exits the process after acting as a grader when EnvMode is set.
func RunIfRequested() {
	if os.Getenv(EnvMode) == "" {
		return
	}
	os.Exit(run())
}

// Plugin returns a plugin that re-executes the current test binary.
func Plugin(t testing.TB) plugin.Plugin {
	t.Helper()
	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("resolve test binary: %v", err)
	}
	return plugin.Plugin{Reference: exe, Path: exe}
}

// Env is the engine environment that activates the fake grader.
func Env() []string {
	// Race-enabled children otherwise sleep a second before exiting.
	return []string{EnvMode + "=1", "GORACE=atexit_sleep_ms=0"}
}

// Locations creates one submission directory per student under root.
func Locations(t testing.TB, root string, students ...string) {
	t.Helper()
	for _, s := range students {
		if err := os.MkdirAll(filepath.Join(root, s), 0755); err != nil {
			t.Fatalf("create submission dir: %v", err)
		}
	}
}

func run() int {
	var req request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		fmt.Fprintln(os.Stderr, "decode request:", err)
		return 4
	}
	if req.Student != os.Getenv("AUTOGRADE_STUDENT") {
		fmt.Fprintln(os.Stderr, "student env mismatch")
		return 5
	}
	name := strings.SplitN(req.Student, "@", 2)[0]
	switch {
	case name == "alice":
		fmt.Println(`{"grade": 10.0}`)
	case name == "bob":
		time.Sleep(5 * time.Second)
		fmt.Println(`{"grade": 7}`)
	case strings.HasPrefix(name, "grade-"):
		fmt.Println(strings.TrimPrefix(name, "grade-"))
	case strings.HasPrefix(name, "sleep-"):
		parts := strings.SplitN(strings.TrimPrefix(name, "sleep-"), "-", 2)
		ms, _ := strconv.Atoi(parts[0])
		time.Sleep(time.Duration(ms) * time.Millisecond)
		fmt.Println(parts[1])
	case name == "hang":
		for {
		}
	case name == "ignoreterm":
		signal.Ignore(syscall.SIGTERM)
		time.Sleep(time.Hour)
	case name == "crash":
		fmt.Fprintln(os.Stderr, "grader exploded")
		return 3
	case name == "panic":
		panic("grader panic")
	case name == "garbage":
		fmt.Println("not a number")
	case name == "silent":
	case name == "cwd":
		wd, _ := os.Getwd()
		want, _ := filepath.EvalSymlinks(req.Location)
		got, _ := filepath.EvalSymlinks(wd)
		if got == want {
			fmt.Println("1")
		} else {
			fmt.Println("0")
		}
	case name == "located":
		// Grades 1 only when the location it was handed reaches main.py.
		_, err := os.Stat(filepath.Join(req.Location, "main.py"))
		if err == nil && os.Getenv("AUTOGRADE_LOCATION") == req.Location && filepath.IsAbs(req.Location) {
			fmt.Println("1")
		} else {
			fmt.Println("0")
		}
	default:
		fmt.Fprintln(os.Stderr, "unknown behaviour", name)
		return 6
	}
	return 0
}
