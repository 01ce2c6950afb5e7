package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Transcript is one recorded chat completion exchange.
type Transcript struct {
	ID     string `json:"id"`
	Tenant string `json:"tenant,omitempty"`
	Model  string `json:"model"`
	Stream bool   `json:"stream"`

	// Request is the JSON payload that was sent.
	Request json.RawMessage `json:"request"`

	// Response is the raw response body of a non-streaming exchange.
	Response json.RawMessage `json:"response,omitempty"`

	// Chunks holds the raw JSON of every decoded chunk of a streamed exchange.
	Chunks []json.RawMessage `json:"chunks,omitempty"`

	StatusCode int       `json:"status_code"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewID returns a fresh transcript identifier.
func NewID() string {
	return "tr_" + uuid.NewString()
}

// ListOptions filters and paginates List.
type ListOptions struct {
	// Model restricts results to one model.
	Model string

	// After and Before are transcript IDs used as exclusive cursors.
	After  string
	Before string

	// Limit caps the page size. Default 20, maximum 100.
	Limit int

	// Order is "asc" or "desc" by creation time. Default "desc".
	Order string
}

// Normalize applies the defaults and bounds for Limit and Order.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 20
	}
	if o.Limit > 100 {
		o.Limit = 100
	}
	if o.Order != "asc" {
		o.Order = "desc"
	}
	return o
}

// TranscriptList is a page of transcripts.
type TranscriptList struct {
	Data    []*Transcript `json:"data"`
	HasMore bool          `json:"has_more"`
	FirstID string        `json:"first_id,omitempty"`
	LastID  string        `json:"last_id,omitempty"`
}

// TranscriptStore persists recorded exchanges. Implementations scope every
// call to the tenant carried by the context.
type TranscriptStore interface {
	Save(ctx context.Context, t *Transcript) error
	Get(ctx context.Context, id string) (*Transcript, error)
	List(ctx context.Context, opts ListOptions) (*TranscriptList, error)
	Delete(ctx context.Context, id string) error
	HealthCheck(ctx context.Context) error
	Close() error
}
