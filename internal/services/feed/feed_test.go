package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
	"github.com/ternarybob/vigil/internal/services/events"
	badgerstorage "github.com/ternarybob/vigil/internal/storage/badger"
)

func newTestFeed(t *testing.T) (*Service, interfaces.CacheStorage) {
	t.Helper()

	logger := arbor.NewLogger()
	db, err := badgerstorage.NewBadgerDB(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	eventService := events.NewService(logger)
	t.Cleanup(func() { eventService.Close() })

	cache := badgerstorage.NewCacheStorage(db, eventService, logger)

	svc, err := NewService(cache, eventService, logger)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })

	return svc, cache
}

func receiveChange(t *testing.T, sub interfaces.CacheSubscription) *models.CacheRecord {
	t.Helper()
	select {
	case record, ok := <-sub.Changes():
		require.True(t, ok, "subscription channel closed")
		return record
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a change")
		return nil
	}
}

func TestSubscribeEmitsInitialSnapshot(t *testing.T) {
	svc, cache := newTestFeed(t)
	ctx := context.Background()
	selector := models.Selector{ID: "ds1", HistoryContentType: models.ContentTypeDataset}

	// Cold cache: the first emission is nil.
	cold, err := svc.Subscribe(ctx, selector)
	require.NoError(t, err)
	defer cold.Close()
	assert.Nil(t, receiveChange(t, cold))

	_, err = cache.Write(ctx, models.ContentTypeDataset, models.RawPayload(`{"id":"ds1","state":"ok"}`), false)
	require.NoError(t, err)

	// Warm cache: the first emission is the stored record.
	warm, err := svc.Subscribe(ctx, selector)
	require.NoError(t, err)
	defer warm.Close()
	record := receiveChange(t, warm)
	require.NotNil(t, record)
	assert.Equal(t, "ds1", record.ID)
}

func TestMutationsEmitInOrder(t *testing.T) {
	svc, cache := newTestFeed(t)
	ctx := context.Background()
	selector := models.Selector{ID: "ds1", HistoryContentType: models.ContentTypeDataset}

	sub, err := svc.Subscribe(ctx, selector)
	require.NoError(t, err)
	defer sub.Close()
	assert.Nil(t, receiveChange(t, sub))

	states := []string{"queued", "running", "ok"}
	for _, state := range states {
		_, err = cache.Write(ctx, models.ContentTypeDataset, models.RawPayload(`{"id":"ds1","state":"`+state+`"}`), false)
		require.NoError(t, err)
	}

	for _, want := range states {
		record := receiveChange(t, sub)
		require.NotNil(t, record)
		assert.Equal(t, want, record.Payload["state"])
	}
}

func TestDeleteEmitsNil(t *testing.T) {
	svc, cache := newTestFeed(t)
	ctx := context.Background()
	selector := models.Selector{ID: "ds1", HistoryContentType: models.ContentTypeDataset}

	_, err := cache.Write(ctx, models.ContentTypeDataset, models.RawPayload(`{"id":"ds1"}`), false)
	require.NoError(t, err)

	sub, err := svc.Subscribe(ctx, selector)
	require.NoError(t, err)
	defer sub.Close()
	require.NotNil(t, receiveChange(t, sub))

	require.NoError(t, cache.Delete(ctx, selector))
	assert.Nil(t, receiveChange(t, sub))
}

func TestUnrelatedSelectorsDoNotEmit(t *testing.T) {
	svc, cache := newTestFeed(t)
	ctx := context.Background()

	sub, err := svc.Subscribe(ctx, models.Selector{ID: "ds1", HistoryContentType: models.ContentTypeDataset})
	require.NoError(t, err)
	defer sub.Close()
	assert.Nil(t, receiveChange(t, sub))

	_, err = cache.Write(ctx, models.ContentTypeDataset, models.RawPayload(`{"id":"other"}`), false)
	require.NoError(t, err)

	select {
	case record := <-sub.Changes():
		t.Fatalf("unexpected emission: %+v", record)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubscriptionsShareQueries(t *testing.T) {
	svc, _ := newTestFeed(t)
	ctx := context.Background()
	selector := models.Selector{ID: "ds1", HistoryContentType: models.ContentTypeDataset}

	first, err := svc.Subscribe(ctx, selector)
	require.NoError(t, err)
	second, err := svc.Subscribe(ctx, selector)
	require.NoError(t, err)

	svc.mu.Lock()
	assert.Len(t, svc.queries, 1)
	assert.Len(t, svc.queries[selector.Key()].subs, 2)
	svc.mu.Unlock()

	first.Close()
	svc.mu.Lock()
	assert.Len(t, svc.queries[selector.Key()].subs, 1)
	svc.mu.Unlock()

	second.Close()
	svc.mu.Lock()
	assert.Empty(t, svc.queries, "last close removes the query")
	svc.mu.Unlock()
}

func TestCloseEndsChangeChannel(t *testing.T) {
	svc, _ := newTestFeed(t)
	selector := models.Selector{ID: "ds1", HistoryContentType: models.ContentTypeDataset}

	sub, err := svc.Subscribe(context.Background(), selector)
	require.NoError(t, err)
	assert.Nil(t, receiveChange(t, sub))

	sub.Close()
	sub.Close() // idempotent

	_, ok := <-sub.Changes()
	assert.False(t, ok, "channel closed after Close")
}

func TestContextCancelClosesSubscription(t *testing.T) {
	svc, _ := newTestFeed(t)
	selector := models.Selector{ID: "ds1", HistoryContentType: models.ContentTypeDataset}

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := svc.Subscribe(ctx, selector)
	require.NoError(t, err)
	assert.Nil(t, receiveChange(t, sub))

	cancel()

	select {
	case _, ok := <-sub.Changes():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed after context cancel")
	}
}

// gatedCache blocks its first Get until released, so a mutation can be
// published while a subscribe-time snapshot read is still in flight.
type gatedCache struct {
	mu      sync.Mutex
	calls   int
	gate    chan struct{}
	reading chan struct{}
	old     *models.CacheRecord
	fresh   *models.CacheRecord
}

func (c *gatedCache) Get(ctx context.Context, selector models.Selector) (*models.CacheRecord, error) {
	c.mu.Lock()
	c.calls++
	first := c.calls == 1
	c.mu.Unlock()

	if first {
		close(c.reading)
		<-c.gate
		return c.old, nil
	}
	return c.fresh, nil
}

func (c *gatedCache) Write(ctx context.Context, contentType models.ContentType, payload models.RawPayload, incremental bool) (*models.CacheRecord, error) {
	return nil, errors.New("not implemented")
}

func (c *gatedCache) Delete(ctx context.Context, selector models.Selector) error { return nil }

func TestSubscribeSnapshotOrderedWithConcurrentMutation(t *testing.T) {
	logger := arbor.NewLogger()
	eventService := events.NewService(logger)
	defer eventService.Close()

	selector := models.Selector{ID: "ds1", HistoryContentType: models.ContentTypeDataset}
	cache := &gatedCache{
		gate:    make(chan struct{}),
		reading: make(chan struct{}),
		old:     &models.CacheRecord{ID: "ds1", HistoryContentType: models.ContentTypeDataset, Payload: map[string]interface{}{"state": "queued"}},
		fresh:   &models.CacheRecord{ID: "ds1", HistoryContentType: models.ContentTypeDataset, Payload: map[string]interface{}{"state": "ok"}},
	}

	svc, err := NewService(cache, eventService, logger)
	require.NoError(t, err)
	defer svc.Close()

	subs := make(chan interfaces.CacheSubscription, 1)
	go func() {
		sub, err := svc.Subscribe(context.Background(), selector)
		if err == nil {
			subs <- sub
		}
	}()

	// The subscribe-time snapshot read is now in flight.
	select {
	case <-cache.reading:
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe snapshot never started")
	}

	// A mutation commits and publishes while that read is still blocked.
	published := make(chan struct{})
	go func() {
		defer close(published)
		eventService.PublishSync(context.Background(), interfaces.Event{
			Type:    interfaces.EventCacheChanged,
			Payload: interfaces.CacheChangedPayload{Selector: selector},
		})
	}()

	time.Sleep(50 * time.Millisecond)
	close(cache.gate)

	var sub interfaces.CacheSubscription
	select {
	case sub = <-subs:
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe did not return")
	}
	defer sub.Close()

	select {
	case <-published:
	case <-time.After(2 * time.Second):
		t.Fatal("mutation publish did not complete")
	}

	// The pre-mutation snapshot comes first, the mutation's re-query
	// second. The inverse order would hand consumers a stale record last.
	first := receiveChange(t, sub)
	require.NotNil(t, first)
	assert.Equal(t, "queued", first.Payload["state"])

	second := receiveChange(t, sub)
	require.NotNil(t, second)
	assert.Equal(t, "ok", second.Payload["state"])
}

func TestSlowSubscriberDoesNotStallWriters(t *testing.T) {
	svc, cache := newTestFeed(t)
	ctx := context.Background()
	selector := models.Selector{ID: "ds1", HistoryContentType: models.ContentTypeDataset}

	// This subscriber reads nothing while the writes land.
	sub, err := svc.Subscribe(ctx, selector)
	require.NoError(t, err)
	defer sub.Close()

	writes := changeBuffer * 3
	wrote := make(chan struct{})
	go func() {
		defer close(wrote)
		for i := 0; i < writes; i++ {
			if _, err := cache.Write(ctx, models.ContentTypeDataset, models.RawPayload(fmt.Sprintf(`{"id":"ds1","n":%d}`, i)), false); err != nil {
				return
			}
		}
	}()

	select {
	case <-wrote:
	case <-time.After(5 * time.Second):
		t.Fatal("writers stalled behind an idle subscriber")
	}

	// Every mutation is still delivered, in mutation order.
	require.Nil(t, receiveChange(t, sub), "cold cache snapshot")
	for i := 0; i < writes; i++ {
		record := receiveChange(t, sub)
		require.NotNil(t, record)
		assert.Equal(t, float64(i), record.Payload["n"])
	}
}
