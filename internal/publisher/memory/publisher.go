// Package memory contains an in-memory publisher for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/heavy-aggregator/internal/harvest"
)

// Publisher stores published reports for inspection.
type Publisher struct {
	mu      sync.RWMutex
	reports []harvest.Report
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the report and returns a pseudo ID.
func (p *Publisher) Publish(_ context.Context, report harvest.Report) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reports = append(p.reports, report)
	return fmt.Sprintf("memory-%d", len(p.reports)), nil
}

// Reports returns the recorded reports.
func (p *Publisher) Reports() []harvest.Report {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]harvest.Report, len(p.reports))
	copy(out, p.reports)
	return out
}
