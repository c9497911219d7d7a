package feed

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
)

// changeBuffer is the per-subscription channel depth. It absorbs bursts of
// store mutations before the subscription's own queue starts growing.
const changeBuffer = 16

// Service implements CacheFeed on top of the event bus. Subscriptions for
// one selector share a single query entry, so the existing-record check and
// the long-lived tail of a monitor read from the same underlying query
// instead of duplicating store reads.
type Service struct {
	cache  interfaces.CacheStorage
	events interfaces.EventService
	logger arbor.ILogger

	mu      sync.Mutex
	queries map[string]*query

	// orderMu serializes snapshot enqueues: a subscription's initial
	// snapshot and the per-mutation re-queries are queued under this lock,
	// so every subscription observes snapshots in store mutation order.
	// Enqueueing never blocks on a consumer; each subscription drains its
	// own queue independently.
	orderMu sync.Mutex

	handlerID string
}

type query struct {
	selector models.Selector
	subs     map[*subscription]struct{}
}

// subscription decouples snapshot ordering from consumer speed: enqueue
// appends under the feed's order lock, and a per-subscription pump drains
// the queue into the consumer channel. A slow consumer grows its own queue
// without stalling the store's mutation path.
type subscription struct {
	svc *Service
	q   *query
	ch  chan *models.CacheRecord

	mu      sync.Mutex
	pending []*models.CacheRecord

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewService creates the feed and registers its change handler on the
// event bus.
func NewService(cache interfaces.CacheStorage, events interfaces.EventService, logger arbor.ILogger) (*Service, error) {
	s := &Service{
		cache:   cache,
		events:  events,
		logger:  logger,
		queries: make(map[string]*query),
	}

	id, err := events.Subscribe(interfaces.EventCacheChanged, s.onCacheChanged)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to cache changes: %w", err)
	}
	s.handlerID = id

	return s, nil
}

// Subscribe opens a live view of the selector's record. The current
// snapshot (nil for absent) is emitted first; every subsequent matching
// store mutation emits again, in mutation order.
func (s *Service) Subscribe(ctx context.Context, selector models.Selector) (interfaces.CacheSubscription, error) {
	sub := &subscription{
		svc:  s,
		ch:   make(chan *models.CacheRecord, changeBuffer),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}

	// Registration, the snapshot read and its enqueue happen under the
	// order lock as one unit. A mutation committing while the snapshot is
	// being read cannot slip its re-query in front of the initial
	// emission.
	s.orderMu.Lock()

	s.mu.Lock()
	q, ok := s.queries[selector.Key()]
	if !ok {
		q = &query{selector: selector, subs: make(map[*subscription]struct{})}
		s.queries[selector.Key()] = q
	}
	q.subs[sub] = struct{}{}
	sub.q = q
	s.mu.Unlock()

	sub.enqueue(s.snapshot(ctx, selector))

	s.orderMu.Unlock()

	go sub.pump()

	// Release the subscription when the caller's context ends.
	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()

	s.logger.Debug().Str("selector", selector.String()).Msg("Cache feed subscription opened")

	return sub, nil
}

// Close unregisters the feed from the event bus and closes all
// subscriptions.
func (s *Service) Close() error {
	if err := s.events.Unsubscribe(interfaces.EventCacheChanged, s.handlerID); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to unsubscribe cache change handler")
	}

	s.mu.Lock()
	var subs []*subscription
	for _, q := range s.queries {
		for sub := range q.subs {
			subs = append(subs, sub)
		}
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}

	return nil
}

// onCacheChanged re-queries the mutated selector and fans the fresh
// snapshot out to its subscribers. Fan-out only appends to subscription
// queues, so a slow consumer never blocks the mutation publishing this
// event.
func (s *Service) onCacheChanged(ctx context.Context, event interfaces.Event) error {
	payload, ok := event.Payload.(interfaces.CacheChangedPayload)
	if !ok {
		return fmt.Errorf("unexpected cache change payload: %T", event.Payload)
	}

	s.mu.Lock()
	q, ok := s.queries[payload.Selector.Key()]
	var subs []*subscription
	if ok {
		for sub := range q.subs {
			subs = append(subs, sub)
		}
	}
	s.mu.Unlock()

	if len(subs) == 0 {
		return nil
	}

	var record *models.CacheRecord
	if !payload.Deleted {
		record = s.snapshot(ctx, payload.Selector)
	}

	s.orderMu.Lock()
	for _, sub := range subs {
		sub.enqueue(record)
	}
	s.orderMu.Unlock()

	return nil
}

// snapshot reads the current record for a selector, mapping absence to nil.
func (s *Service) snapshot(ctx context.Context, selector models.Selector) *models.CacheRecord {
	record, err := s.cache.Get(ctx, selector)
	if err != nil {
		if err != interfaces.ErrRecordNotFound {
			s.logger.Warn().Err(err).Str("selector", selector.String()).Msg("Cache snapshot failed")
		}
		return nil
	}
	return record
}

// enqueue appends a snapshot to the subscription's queue and wakes the
// pump. Never blocks.
func (s *subscription) enqueue(record *models.CacheRecord) {
	s.mu.Lock()
	s.pending = append(s.pending, record)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// pump drains the queue into the consumer channel in order, and closes the
// channel once the subscription is released.
func (s *subscription) pump() {
	defer close(s.ch)

	for {
		s.mu.Lock()
		batch := s.pending
		s.pending = nil
		s.mu.Unlock()

		for _, record := range batch {
			select {
			case <-s.done:
				return
			case s.ch <- record:
			}
		}

		select {
		case <-s.done:
			return
		case <-s.wake:
		}
	}
}

// Changes returns the subscription's emission channel.
func (s *subscription) Changes() <-chan *models.CacheRecord {
	return s.ch
}

// Close releases the subscription. Safe to call more than once.
func (s *subscription) Close() {
	s.closeOnce.Do(func() {
		close(s.done)

		s.svc.mu.Lock()
		delete(s.q.subs, s)
		if len(s.q.subs) == 0 {
			delete(s.svc.queries, s.q.selector.Key())
		}
		s.svc.mu.Unlock()
	})
}
