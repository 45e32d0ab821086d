package harvest

import (
	"context"
	"time"
)

// Fetcher retrieves one request. Implementations retry transient failures
// internally and return an error wrapping ErrNoResult once they give up.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (*RawDocument, error)
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// Phase is one output stream of an adapter run.
type Phase interface {
	// Stream names the output dataset, e.g. "games" or "athletes".
	Stream() string
	// CheckpointKey is the adapter-scoped key that records progress.
	CheckpointKey() string
	// Extract turns a fetched document into an output item. ok is false when
	// the document yields nothing worth writing.
	Extract(target Target, doc *RawDocument) (item any, ok bool)
}

// KeyedPhase walks an increasing range of discovery keys.
type KeyedPhase interface {
	Phase
	Keys(ctx context.Context, client *Client) ([]DiscoveryKey, error)
	Discover(ctx context.Context, client *Client, key DiscoveryKey) ([]Target, error)
}

// BatchedPhase walks a flat, stably ordered target list in fixed-size batches.
type BatchedPhase interface {
	Phase
	List(ctx context.Context, client *Client) ([]Target, error)
}

// Adapter carries per-source knowledge.
type Adapter interface {
	Name() string
	Phases() []Phase
}
