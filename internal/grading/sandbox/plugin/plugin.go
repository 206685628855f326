// Package plugin resolves the grader reference into a runnable command.
package plugin

import (
	"os/exec"
	"path/filepath"
	"strings"

	"autograde/internal/grading/model"
	appErr "autograde/pkg/errors"

	"github.com/google/shlex"
)

const (
	placeholderLocation = "{location}"
	placeholderStudent  = "{student}"
)

// Plugin is a grader command resolved once at startup.
type Plugin struct {
	Reference string
	Path      string
	Args      []string
}

// Resolve parses a grader reference such as `./grader --strict {location}` and
// checks that its executable exists.
func Resolve(reference string) (Plugin, error) {
	if strings.TrimSpace(reference) == "" {
		return Plugin{}, appErr.New(appErr.GraderLoadFailed).WithMessage("grader reference is required")
	}
	fields, err := shlex.Split(reference)
	if err != nil {
		return Plugin{}, appErr.Wrapf(err, appErr.GraderLoadFailed, "parse grader reference failed")
	}
	if len(fields) == 0 {
		return Plugin{}, appErr.New(appErr.GraderLoadFailed).WithMessage("grader reference is empty after parsing")
	}
	path, err := exec.LookPath(fields[0])
	if err != nil {
		return Plugin{}, appErr.Wrapf(err, appErr.GraderLoadFailed, "resolve grader %q failed", fields[0])
	}
	// Children run with the submission as working directory.
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return Plugin{
		Reference: reference,
		Path:      path,
		Args:      fields[1:],
	}, nil
}

// Command expands the placeholders for one work item. The location is appended
// when the reference names neither placeholder.
func (p Plugin) Command(item model.WorkItem) []string {
	argv := make([]string, 0, len(p.Args)+2)
	argv = append(argv, p.Path)
	expanded := false
	for _, arg := range p.Args {
		if strings.Contains(arg, placeholderLocation) || strings.Contains(arg, placeholderStudent) {
			expanded = true
			arg = strings.ReplaceAll(arg, placeholderLocation, item.Location)
			arg = strings.ReplaceAll(arg, placeholderStudent, item.Student)
		}
		argv = append(argv, arg)
	}
	if !expanded {
		argv = append(argv, item.Location)
	}
	return argv
}
