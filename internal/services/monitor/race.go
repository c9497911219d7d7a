package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
)

// runContent monitors one cache-backed entity until ctx is cancelled:
// it races the shared cache feed against a delayed fetch-and-write, emits
// the first value obtained from either, then tails the full feed.
func (s *Service) runContent(ctx context.Context, req interfaces.MonitorRequest, out chan<- interfaces.ContentEvent) {
	selector := req.Selector()

	// One shared subscription serves both the existing-record check and
	// the long-lived tail.
	sub, err := s.feed.Subscribe(ctx, selector)
	if err != nil {
		s.emitContent(ctx, out, interfaces.ContentEvent{Request: req, Err: fmt.Errorf("failed to open cache feed: %w", err)})
		return
	}
	defer sub.Close()

	fetchCtx, cancelFetch := context.WithCancel(ctx)
	defer cancelFetch()

	fetchFailed := make(chan error, 1)
	go s.fetchOnce(fetchCtx, req, fetchFailed)

	// Race: the first present record on the feed wins, whether it was
	// already cached or just written by the fetch branch. The loser is
	// cancelled and its late output dropped. No tie-break beyond first
	// observed completion.
	var first *models.CacheRecord
race:
	for {
		select {
		case <-ctx.Done():
			return
		case record, ok := <-sub.Changes():
			if !ok {
				return
			}
			if record == nil {
				// Absence events are suppressed until a value wins.
				continue
			}
			first = record
			cancelFetch()
			break race
		case err := <-fetchFailed:
			// No cache value arrived first, so the error surfaces.
			s.logger.Warn().Err(err).Str("selector", selector.String()).Msg("Content fetch failed")
			s.emitContent(ctx, out, interfaces.ContentEvent{Request: req, Err: err})
			return
		}
	}

	if !s.emitContent(ctx, out, interfaces.ContentEvent{Request: req, Record: first}) {
		return
	}

	// Tail: every subsequent matching store mutation, deletions included,
	// until the caller switches targets or unsubscribes.
	for {
		select {
		case <-ctx.Done():
			return
		case record, ok := <-sub.Changes():
			if !ok {
				return
			}
			if !s.emitContent(ctx, out, interfaces.ContentEvent{Request: req, Record: record}) {
				return
			}
		}
	}
}

// fetchOnce waits out the spin-up grace period, fetches the entity and
// passes the payload through the cache writer. The write's own feed
// emission carries the fetched record into the race; only failures are
// reported back directly. The delay lets a near-simultaneous cache write
// win the race without a redundant network fetch.
func (s *Service) fetchOnce(ctx context.Context, req interfaces.MonitorRequest, failed chan<- error) {
	timer := time.NewTimer(s.config.SpinUpDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	payload, err := s.fetchContent(ctx, req)
	if err != nil {
		failed <- err
		return
	}

	// A fetch that lost the race, or whose monitor was superseded, must
	// not write its stale payload to the cache.
	if ctx.Err() != nil {
		return
	}

	if _, err := s.cache.Write(ctx, req.ContentType, payload, false); err != nil {
		failed <- fmt.Errorf("failed to cache fetched payload: %w", err)
	}
}

// fetchContent dispatches to the entity kind's fetcher. The mapping is
// closed; anything else is a configuration error.
func (s *Service) fetchContent(ctx context.Context, req interfaces.MonitorRequest) (models.RawPayload, error) {
	switch req.ContentType {
	case models.ContentTypeDataset:
		return s.fetcher.FetchDataset(ctx, req.ID)
	case models.ContentTypeDatasetCollection:
		return s.fetcher.FetchDatasetCollection(ctx, req.ID)
	default:
		return nil, fmt.Errorf("%w: %s", interfaces.ErrUnknownContentType, req.ContentType)
	}
}

// emitContent delivers an event unless the combinator has been cancelled.
// Returns false when the monitor should stop.
func (s *Service) emitContent(ctx context.Context, out chan<- interfaces.ContentEvent, event interfaces.ContentEvent) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- event:
		return true
	}
}
