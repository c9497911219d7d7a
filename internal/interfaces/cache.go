package interfaces

import (
	"context"
	"errors"

	"github.com/ternarybob/vigil/internal/models"
)

// ErrRecordNotFound is returned by CacheStorage.Get when no record matches
// the selector.
var ErrRecordNotFound = errors.New("cache record not found")

// CacheStorage provides read, write/merge and delete access to the entity
// cache. Every successful mutation publishes an EventCacheChanged event so
// feed subscriptions can re-query.
type CacheStorage interface {
	// Get returns the record matching the selector or ErrRecordNotFound.
	Get(ctx context.Context, selector models.Selector) (*models.CacheRecord, error)

	// Write merges a fetched payload into the store and returns the
	// resulting record. The payload must carry an "id" field. When
	// incremental is true the payload is merged over any existing record's
	// payload instead of replacing it.
	Write(ctx context.Context, contentType models.ContentType, payload models.RawPayload, incremental bool) (*models.CacheRecord, error)

	// Delete removes the record matching the selector. Deleting an absent
	// record is not an error.
	Delete(ctx context.Context, selector models.Selector) error
}
