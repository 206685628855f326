// Command example-grader is a reference grader plugin. It awards points for
// each required file present in the submission and for each expected line
// found in the output file, if any.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"autograde/pkg/graderkit"
)

func main() {
	var (
		required = flag.String("require", "main.py", "comma-separated files that must exist")
		expected = flag.String("expect", "", "file holding expected output lines")
		output   = flag.String("output", "output.txt", "file in the submission holding produced output")
		maxGrade = flag.Float64("max", 10, "maximum grade")
	)
	flag.Parse()

	graderkit.Serve(func(ctx context.Context, req graderkit.Request) (float64, error) {
		return grade(req.Location, splitList(*required), *expected, *output, *maxGrade)
	})
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// grade splits maxGrade evenly between file checks and output checks.
func grade(location string, required []string, expectedPath, outputName string, maxGrade float64) (float64, error) {
	if location == "" {
		return 0, fmt.Errorf("submission location is empty")
	}
	var checks, passed int
	for _, name := range required {
		checks++
		if info, err := os.Stat(filepath.Join(location, name)); err == nil && info.Mode().IsRegular() {
			passed++
		}
	}
	if expectedPath != "" {
		want, err := readLines(expectedPath)
		if err != nil {
			return 0, fmt.Errorf("read expected output: %w", err)
		}
		got, _ := readLines(filepath.Join(location, outputName))
		have := make(map[string]bool, len(got))
		for _, l := range got {
			have[l] = true
		}
		for _, l := range want {
			checks++
			if have[l] {
				passed++
			}
		}
	}
	if checks == 0 {
		return maxGrade, nil
	}
	return maxGrade * float64(passed) / float64(checks), nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if l := strings.TrimSpace(sc.Text()); l != "" {
			lines = append(lines, l)
		}
	}
	return lines, sc.Err()
}
