package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// CacheStorage implements the CacheStorage interface for Badger. Every
// mutation publishes EventCacheChanged synchronously so feed subscriptions
// observe mutations in order.
type CacheStorage struct {
	db     *BadgerDB
	events interfaces.EventService
	logger arbor.ILogger
}

// NewCacheStorage creates a new CacheStorage instance
func NewCacheStorage(db *BadgerDB, events interfaces.EventService, logger arbor.ILogger) interfaces.CacheStorage {
	return &CacheStorage{
		db:     db,
		events: events,
		logger: logger,
	}
}

func (s *CacheStorage) Get(ctx context.Context, selector models.Selector) (*models.CacheRecord, error) {
	var record models.CacheRecord
	if err := s.db.Store().Get(selector.Key(), &record); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, interfaces.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get cache record: %w", err)
	}
	return &record, nil
}

func (s *CacheStorage) Write(ctx context.Context, contentType models.ContentType, payload models.RawPayload, incremental bool) (*models.CacheRecord, error) {
	if !contentType.IsValid() {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrUnknownContentType, contentType)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}

	id, _ := body["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("payload has no id field")
	}

	selector := models.Selector{ID: id, HistoryContentType: contentType}
	now := time.Now()

	record := &models.CacheRecord{
		ID:                 id,
		HistoryContentType: contentType,
		Payload:            body,
		Incremental:        incremental,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	var existing models.CacheRecord
	err := s.db.Store().Get(selector.Key(), &existing)
	switch err {
	case nil:
		record.CreatedAt = existing.CreatedAt
		if incremental {
			// Merge the new fields over the previous payload instead of
			// replacing it.
			merged := existing.Payload
			if merged == nil {
				merged = make(map[string]interface{})
			}
			for k, v := range body {
				merged[k] = v
			}
			record.Payload = merged
		}
	case badgerhold.ErrNotFound:
		// First write for this selector
	default:
		return nil, fmt.Errorf("failed to read existing record: %w", err)
	}

	if err := s.db.Store().Upsert(selector.Key(), record); err != nil {
		return nil, fmt.Errorf("failed to save cache record: %w", err)
	}

	if err := s.events.PublishSync(ctx, interfaces.Event{
		Type:    interfaces.EventCacheChanged,
		Payload: interfaces.CacheChangedPayload{Selector: selector},
	}); err != nil {
		s.logger.Warn().Err(err).Str("selector", selector.String()).Msg("Cache change notification failed")
	}

	return record, nil
}

func (s *CacheStorage) Delete(ctx context.Context, selector models.Selector) error {
	if err := s.db.Store().Delete(selector.Key(), &models.CacheRecord{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete cache record: %w", err)
	}

	if err := s.events.PublishSync(ctx, interfaces.Event{
		Type:    interfaces.EventCacheChanged,
		Payload: interfaces.CacheChangedPayload{Selector: selector, Deleted: true},
	}); err != nil {
		s.logger.Warn().Err(err).Str("selector", selector.String()).Msg("Cache change notification failed")
	}

	return nil
}
