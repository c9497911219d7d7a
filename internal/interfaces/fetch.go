package interfaces

import (
	"context"

	"github.com/ternarybob/vigil/internal/models"
)

// FetchService performs network fetches against the upstream API, one
// method per entity kind. Dataset and collection fetches return the raw
// payload for the cache writer; step fetches decode directly since steps
// are never cached.
type FetchService interface {
	FetchDataset(ctx context.Context, id string) (models.RawPayload, error)
	FetchDatasetCollection(ctx context.Context, id string) (models.RawPayload, error)
	FetchInvocationStep(ctx context.Context, id string) (*models.InvocationStep, error)
}
