package interfaces

import (
	"context"
	"errors"

	"github.com/ternarybob/vigil/internal/models"
)

// ErrUnknownContentType is reported when a monitor request names a content
// type outside the closed dataset/dataset_collection mapping.
var ErrUnknownContentType = errors.New("unknown content type")

// MonitorRequest targets one cache-backed entity for monitoring.
type MonitorRequest struct {
	ID          string             `json:"id"`
	ContentType models.ContentType `json:"content_type"`
}

// Selector returns the cache selector for the requested entity.
func (r MonitorRequest) Selector() models.Selector {
	return models.Selector{ID: r.ID, HistoryContentType: r.ContentType}
}

// ContentEvent is one emission from a content monitor. Err is terminal:
// the stream for the current request ends after an error event.
type ContentEvent struct {
	Request MonitorRequest
	Record  *models.CacheRecord
	Err     error
}

// StepEvent is one emission from an invocation step monitor. Err is
// terminal for the current identifier's sequence.
type StepEvent struct {
	ID   string
	Step *models.InvocationStep
	Err  error
}

// MonitorService exposes the live-status monitors. Each call consumes a
// stream of targets; submitting a new target cancels the combinator running
// for the previous one, and switching is the only per-target cancellation
// path. Closing the input channel unsubscribes the selector: a content
// monitor stops immediately (its stream is infinite), a step monitor lets
// the active finite poll sequence complete first.
type MonitorService interface {
	ContentMonitor(ctx context.Context, requests <-chan MonitorRequest) <-chan ContentEvent
	InvocationStepMonitor(ctx context.Context, ids <-chan string) <-chan StepEvent
}
