package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/vigil/internal/interfaces"
)

// runStep monitors one workflow invocation step by re-polling on a fixed
// interval until the step is terminal. The output sequence is finite:
// either just the initial snapshot (already terminal) or every poll result
// up to and including the first terminal one.
func (s *Service) runStep(ctx context.Context, id string, out chan<- interfaces.StepEvent) {
	initial, err := s.fetcher.FetchInvocationStep(ctx, id)
	if err != nil {
		s.emitStep(ctx, out, interfaces.StepEvent{ID: id, Err: fmt.Errorf("failed to fetch invocation step: %w", err)})
		return
	}

	if initial.Terminal() {
		s.emitStep(ctx, out, interfaces.StepEvent{ID: id, Step: initial})
		return
	}

	// The non-terminal initial value has been checked and is excluded from
	// the poll loop's own output.
	s.logger.Debug().Str("step_id", id).Str("state", initial.State).Msg("Step not terminal, polling")

	timer := time.NewTimer(s.config.PollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		// Polls are strictly sequential: the next interval starts only
		// after this fetch's result has been observed.
		step, err := s.fetcher.FetchInvocationStep(ctx, id)
		if err != nil {
			s.emitStep(ctx, out, interfaces.StepEvent{ID: id, Err: fmt.Errorf("failed to poll invocation step: %w", err)})
			return
		}

		if !s.emitStep(ctx, out, interfaces.StepEvent{ID: id, Step: step}) {
			return
		}

		// Inclusive stop: the terminal value has been emitted before the
		// repetition ends.
		if step.Terminal() {
			s.logger.Debug().Str("step_id", id).Str("state", step.State).Msg("Step reached terminal state")
			return
		}

		timer.Reset(s.config.PollInterval)
	}
}

// emitStep delivers an event unless the combinator has been cancelled.
func (s *Service) emitStep(ctx context.Context, out chan<- interfaces.StepEvent, event interfaces.StepEvent) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- event:
		return true
	}
}
