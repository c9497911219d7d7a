package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
)

// fakeSubscription is a feed subscription backed by a plain channel.
type fakeSubscription struct {
	ch        chan *models.CacheRecord
	closeOnce sync.Once
	closed    chan struct{}
}

func (f *fakeSubscription) Changes() <-chan *models.CacheRecord { return f.ch }

func (f *fakeSubscription) Close() {
	f.closeOnce.Do(func() { close(f.closed) })
}

// fakeFeed hands out subscriptions that immediately emit the configured
// snapshot, matching the live feed's behavior, and lets tests push further
// changes by hand.
type fakeFeed struct {
	mu      sync.Mutex
	initial *models.CacheRecord
	subs    []*fakeSubscription
}

func (f *fakeFeed) Subscribe(ctx context.Context, selector models.Selector) (interfaces.CacheSubscription, error) {
	sub := &fakeSubscription{
		ch:     make(chan *models.CacheRecord, 16),
		closed: make(chan struct{}),
	}
	f.mu.Lock()
	sub.ch <- f.initial
	f.subs = append(f.subs, sub)
	f.mu.Unlock()
	return sub, nil
}

func (f *fakeFeed) push(record *models.CacheRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.subs {
		select {
		case <-sub.closed:
		case sub.ch <- record:
		}
	}
}

// fakeCache counts writes and mirrors each successful write onto the feed
// the way the live store's change event does.
type fakeCache struct {
	mu       sync.Mutex
	writes   []models.RawPayload
	writeErr error
	feed     *fakeFeed
}

func (c *fakeCache) Get(ctx context.Context, selector models.Selector) (*models.CacheRecord, error) {
	return nil, interfaces.ErrRecordNotFound
}

func (c *fakeCache) Write(ctx context.Context, contentType models.ContentType, payload models.RawPayload, incremental bool) (*models.CacheRecord, error) {
	c.mu.Lock()
	c.writes = append(c.writes, payload)
	err := c.writeErr
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var body map[string]interface{}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, err
	}
	id, _ := body["id"].(string)

	record := &models.CacheRecord{
		ID:                 id,
		HistoryContentType: contentType,
		Payload:            body,
		Incremental:        incremental,
	}
	if c.feed != nil {
		c.feed.push(record)
	}
	return record, nil
}

func (c *fakeCache) Delete(ctx context.Context, selector models.Selector) error { return nil }

func (c *fakeCache) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

// mockFetcher routes fetch calls to per-test functions.
type mockFetcher struct {
	fetchDataset    func(ctx context.Context, id string) (models.RawPayload, error)
	fetchCollection func(ctx context.Context, id string) (models.RawPayload, error)
	fetchStep       func(ctx context.Context, id string) (*models.InvocationStep, error)
}

func (m *mockFetcher) FetchDataset(ctx context.Context, id string) (models.RawPayload, error) {
	if m.fetchDataset == nil {
		return nil, errors.New("unexpected dataset fetch")
	}
	return m.fetchDataset(ctx, id)
}

func (m *mockFetcher) FetchDatasetCollection(ctx context.Context, id string) (models.RawPayload, error) {
	if m.fetchCollection == nil {
		return nil, errors.New("unexpected collection fetch")
	}
	return m.fetchCollection(ctx, id)
}

func (m *mockFetcher) FetchInvocationStep(ctx context.Context, id string) (*models.InvocationStep, error) {
	if m.fetchStep == nil {
		return nil, errors.New("unexpected step fetch")
	}
	return m.fetchStep(ctx, id)
}
