package models

// StepState values that count as terminal for a workflow invocation step.
// "scheduled" is terminal in the step-progression sense: scheduling has
// finished even though the underlying jobs may still be queued or running.
const (
	StepStateScheduled = "scheduled"
	StepStateCancelled = "cancelled"
	StepStateFailed    = "failed"
)

// Job states that count as terminal. This vocabulary is disjoint from the
// step states above; the two lists must not be mixed.
const (
	JobStateOK      = "ok"
	JobStateError   = "error"
	JobStateDeleted = "deleted"
	JobStatePaused  = "paused"
)

// StepJob is the slice of a job's state carried on an invocation step.
type StepJob struct {
	State string `json:"state"`
}

// Terminal reports whether the job will not change state again on its own.
func (j StepJob) Terminal() bool {
	switch j.State {
	case JobStateOK, JobStateError, JobStateDeleted, JobStatePaused:
		return true
	}
	return false
}

// InvocationStep is a snapshot of a workflow invocation step and the jobs
// it spawned, as returned by the invocation API.
type InvocationStep struct {
	ID    string    `json:"id"`
	State string    `json:"state"`
	Jobs  []StepJob `json:"jobs"`
}

// Terminal reports whether the step has reached a state from which no
// further transition is expected without external re-invocation: the step
// itself finished scheduling (or was cancelled/failed) and every spawned
// job has settled.
func (s *InvocationStep) Terminal() bool {
	switch s.State {
	case StepStateScheduled, StepStateCancelled, StepStateFailed:
	default:
		return false
	}
	for _, job := range s.Jobs {
		if !job.Terminal() {
			return false
		}
	}
	return true
}
