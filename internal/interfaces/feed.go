package interfaces

import (
	"context"

	"github.com/ternarybob/vigil/internal/models"
)

// CacheSubscription is a live view of one selector's record. Changes()
// emits the current matching record (nil for absent) at subscribe time and
// again after every store mutation matching the selector, in mutation
// order. Close releases the subscription; the channel is closed afterwards.
type CacheSubscription interface {
	Changes() <-chan *models.CacheRecord
	Close()
}

// CacheFeed hands out subscriptions to the cache change feed. Subscriptions
// for the same selector share one underlying query so concurrent consumers
// do not multiply store reads.
type CacheFeed interface {
	Subscribe(ctx context.Context, selector models.Selector) (CacheSubscription, error)
}
