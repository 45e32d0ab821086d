// Package checkpoint persists harvest progress as one key/value document that
// is rewritten in full on every update.
package checkpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"sync"

	"go.uber.org/zap"
)

// Backend stores the serialized checkpoint document.
type Backend interface {
	// Read returns the stored document, or nil when none exists.
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Delete(ctx context.Context) error
}

// Store is the in-memory view of the checkpoint document. Only the
// orchestrator mutates it; the mutex lets the status server read snapshots.
type Store struct {
	mu      sync.RWMutex
	backend Backend
	state   map[string]any
	logger  *zap.Logger
}

// New returns an empty Store over backend. Call Load to read prior state.
func New(backend Backend, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		backend: backend,
		state:   make(map[string]any),
		logger:  logger.Named("checkpoint"),
	}
}

// Load reads the persisted document. A missing, unreadable or corrupt
// document yields an empty mapping and a warning; it never fails.
func (s *Store) Load(ctx context.Context) map[string]any {
	state := make(map[string]any)
	data, err := s.backend.Read(ctx)
	switch {
	case err != nil:
		s.logger.Warn("checkpoint unreadable, starting fresh", zap.Error(err))
	case len(bytes.TrimSpace(data)) == 0:
		s.logger.Debug("no checkpoint found")
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&state); err != nil {
			s.logger.Warn("checkpoint corrupt, starting fresh", zap.Error(err))
			state = make(map[string]any)
		}
	}

	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	return s.Snapshot()
}

// Save merges one key and persists the whole document.
func (s *Store) Save(ctx context.Context, key string, value any) error {
	return s.Update(ctx, map[string]any{key: value})
}

// Update merges several keys with a single persist.
func (s *Store) Update(ctx context.Context, values map[string]any) error {
	s.mu.Lock()
	maps.Copy(s.state, values)
	data, err := json.MarshalIndent(s.state, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := s.backend.Write(ctx, data); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}

// Get returns the value for key, or def when absent.
func (s *Store) Get(key string, def any) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.state[key]; ok {
		return v
	}
	return def
}

// GetInt returns the value for key as an int, or def when absent or not numeric.
func (s *Store) GetInt(key string, def int) int {
	switch v := s.Get(key, nil).(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
		if f, err := v.Float64(); err == nil {
			return int(f)
		}
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// Clear deletes the persisted document and resets the in-memory state.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.backend.Delete(ctx); err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	s.mu.Lock()
	s.state = make(map[string]any)
	s.mu.Unlock()
	s.logger.Info("checkpoint cleared")
	return nil
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.state)
}
