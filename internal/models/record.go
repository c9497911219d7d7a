package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ContentType represents the kind of history content a cache record holds.
// This provides explicit type-safety for routing an identifier to the
// appropriate fetcher.
type ContentType string

const (
	ContentTypeDataset           ContentType = "dataset"
	ContentTypeDatasetCollection ContentType = "dataset_collection"
)

// IsValid checks if the ContentType is a known, valid type
func (c ContentType) IsValid() bool {
	switch c {
	case ContentTypeDataset, ContentTypeDatasetCollection:
		return true
	}
	return false
}

// String returns the string representation of the ContentType
func (c ContentType) String() string {
	return string(c)
}

// AllContentTypes returns a slice of all valid ContentType values
func AllContentTypes() []ContentType {
	return []ContentType{
		ContentTypeDataset,
		ContentTypeDatasetCollection,
	}
}

// Selector identifies a single cache record by id and content type.
// Both fields are exact-match; this shape is the structural contract with
// the cache store and must not grow range semantics.
type Selector struct {
	ID                 string      `json:"id"`
	HistoryContentType ContentType `json:"history_content_type"`
}

// Key returns the storage key for the selected record.
func (s Selector) Key() string {
	return fmt.Sprintf("%s:%s", s.HistoryContentType, s.ID)
}

// String returns a log-friendly representation of the selector.
func (s Selector) String() string {
	return s.Key()
}

// RawPayload is the entity representation returned by a network fetch,
// pre-cache-normalization. It is consumed exactly once by the cache writer
// and never retained by the monitor core.
type RawPayload = json.RawMessage

// CacheRecord represents a stored entity snapshot. The monitor core only
// inspects presence (a nil *CacheRecord means no match); everything else is
// passed through to consumers untouched.
type CacheRecord struct {
	ID                 string      `json:"id"`
	HistoryContentType ContentType `json:"history_content_type"`

	// Payload is the normalized entity body as last merged by the cache
	// writer. Kept free-form so the store stays agnostic of entity schemas.
	Payload map[string]interface{} `json:"payload"`

	// Incremental marks records whose last write was a partial merge rather
	// than a full replacement.
	Incremental bool `json:"incremental"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Selector returns the selector matching this record.
func (r *CacheRecord) Selector() Selector {
	return Selector{ID: r.ID, HistoryContentType: r.HistoryContentType}
}
