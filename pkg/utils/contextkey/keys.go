package contextkey

// key is a private type to avoid context key collisions across packages.
type key string

const (
	RunID     key = "run_id"
	Student   key = "student"
	Worker    key = "worker_pid"
	RequestID key = "request_id"
)
