package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStepTerminal(t *testing.T) {
	tests := []struct {
		name     string
		step     InvocationStep
		terminal bool
	}{
		{
			name:     "scheduled with no jobs",
			step:     InvocationStep{State: StepStateScheduled},
			terminal: true,
		},
		{
			name:     "cancelled with no jobs",
			step:     InvocationStep{State: StepStateCancelled},
			terminal: true,
		},
		{
			name:     "failed with settled jobs",
			step:     InvocationStep{State: StepStateFailed, Jobs: []StepJob{{State: JobStateOK}, {State: JobStateError}}},
			terminal: true,
		},
		{
			name:     "scheduled with running job",
			step:     InvocationStep{State: StepStateScheduled, Jobs: []StepJob{{State: JobStateOK}, {State: "running"}}},
			terminal: false,
		},
		{
			name:     "running step with settled jobs",
			step:     InvocationStep{State: "running", Jobs: []StepJob{{State: JobStateOK}}},
			terminal: false,
		},
		{
			name:     "new step",
			step:     InvocationStep{State: "new"},
			terminal: false,
		},
		{
			name:     "all job terminal states",
			step:     InvocationStep{State: StepStateScheduled, Jobs: []StepJob{{State: JobStateOK}, {State: JobStateError}, {State: JobStateDeleted}, {State: JobStatePaused}}},
			terminal: true,
		},
		{
			// The step and job vocabularies are disjoint: "ok" is a job
			// state, not a step state.
			name:     "job vocabulary used as step state",
			step:     InvocationStep{State: JobStateOK},
			terminal: false,
		},
		{
			// And "scheduled" is a step state, not a job state.
			name:     "step vocabulary used as job state",
			step:     InvocationStep{State: StepStateScheduled, Jobs: []StepJob{{State: StepStateScheduled}}},
			terminal: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.step.Terminal())
		})
	}
}
