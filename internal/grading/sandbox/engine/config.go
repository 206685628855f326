package engine

import "time"

const (
	defaultOutputLimitBytes int64 = 64 * 1024
	defaultWaitDelay              = 2 * time.Second
)

// Config controls how grader processes are started.
type Config struct {
	// OutputLimitBytes caps the stdout/stderr tail kept per grader run.
	OutputLimitBytes int64
	// WaitDelay bounds how long the reaper waits for output pipes after the
	// grader exits, e.g. when a stray grandchild keeps them open.
	WaitDelay time.Duration
	// Env is appended to the inherited environment.
	Env []string
}

func (c Config) withDefaults() Config {
	if c.OutputLimitBytes <= 0 {
		c.OutputLimitBytes = defaultOutputLimitBytes
	}
	if c.WaitDelay <= 0 {
		c.WaitDelay = defaultWaitDelay
	}
	return c
}
