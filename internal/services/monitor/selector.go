package monitor

import (
	"context"
	"fmt"

	"github.com/ternarybob/vigil/internal/interfaces"
)

// session tracks the active combinator so a new target can supersede it.
type session struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// stop cancels the combinator and waits for it to wind down, so at most
// one combinator is ever active per selector instance.
func (s *session) stop() {
	if s == nil {
		return
	}
	s.cancel()
	<-s.done
}

// ContentMonitor runs the monitor selector for cache-backed entities. Each
// request received supersedes the previous one: the running combinator is
// cancelled (abandoning any in-flight fetch) before the new one starts.
// Closing the requests channel unsubscribes the selector.
func (s *Service) ContentMonitor(ctx context.Context, requests <-chan interfaces.MonitorRequest) <-chan interfaces.ContentEvent {
	out := make(chan interfaces.ContentEvent)

	go func() {
		defer close(out)

		var active *session
		defer func() { active.stop() }()

		for {
			select {
			case <-ctx.Done():
				return
			case req, ok := <-requests:
				if !ok {
					return
				}

				active.stop()
				active = nil

				if !req.ContentType.IsValid() {
					// Reported, not fatal: the selector keeps serving
					// subsequent identifiers.
					err := fmt.Errorf("%w: %s", interfaces.ErrUnknownContentType, req.ContentType)
					s.logger.Error().
						Str("id", req.ID).
						Str("content_type", req.ContentType.String()).
						Msg("Cannot monitor unknown content type")
					select {
					case <-ctx.Done():
						return
					case out <- interfaces.ContentEvent{Request: req, Err: err}:
					}
					continue
				}

				s.logger.Debug().
					Str("id", req.ID).
					Str("content_type", req.ContentType.String()).
					Msg("Monitoring content")

				runCtx, cancel := context.WithCancel(ctx)
				active = &session{cancel: cancel, done: make(chan struct{})}
				go func(sess *session, req interfaces.MonitorRequest) {
					defer close(sess.done)
					s.runContent(runCtx, req, out)
				}(active, req)
			}
		}
	}()

	return out
}

// InvocationStepMonitor runs the monitor selector for workflow invocation
// steps. Per identifier the output is finite; a new identifier cancels any
// polling still in flight for the previous one. When the ids channel
// closes, the active poll sequence is allowed to finish before the output
// channel closes.
func (s *Service) InvocationStepMonitor(ctx context.Context, ids <-chan string) <-chan interfaces.StepEvent {
	out := make(chan interfaces.StepEvent)

	go func() {
		defer close(out)

		var active *session

		for {
			select {
			case <-ctx.Done():
				active.stop()
				return
			case id, ok := <-ids:
				if !ok {
					// Let the finite sequence complete before closing.
					if active != nil {
						select {
						case <-ctx.Done():
							active.stop()
						case <-active.done:
						}
					}
					return
				}

				active.stop()

				s.logger.Debug().Str("step_id", id).Msg("Monitoring invocation step")

				runCtx, cancel := context.WithCancel(ctx)
				active = &session{cancel: cancel, done: make(chan struct{})}
				go func(sess *session, id string) {
					defer close(sess.done)
					s.runStep(runCtx, id, out)
				}(active, id)
			}
		}
	}()

	return out
}
