package task

// Status is a task's lifecycle state. At most one task in the table may be
// Running at a time, and that task's tid must equal the table's current tid.
type Status uint8

const (
	// Initializing is the state a task is created in: its Context exists
	// but it has never been scheduled.
	Initializing Status = iota
	// Ready means the task is eligible to be selected the next time the
	// scheduler looks for a candidate.
	Ready
	// Running is the state of the single task currently loaded onto the
	// CPU.
	Running
	// Terminated means the task has exited; it is reaped (removed from
	// the table and its Context destroyed) on the next scheduler tick.
	Terminated
)

// String renders a Status for logging and test failure messages.
func (s Status) String() string {
	switch s {
	case Initializing:
		return "Initializing"
	case Ready:
		return "Ready"
	case Running:
		return "Running"
	case Terminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// Task is one schedulable unit: a stable identifier, its lifecycle state, an
// exit code set when it terminates itself, and the saved CPU context
// switch_to resumes it from.
type Task struct {
	TID      uint32
	Status   Status
	ExitCode int
	Context  *Context
}

// Exit marks t Terminated with the given exit code. The caller's own
// scheduler tick reaps it; Exit never removes it from the table itself.
func (t *Task) Exit(code int) {
	t.ExitCode = code
	t.Status = Terminated
}
