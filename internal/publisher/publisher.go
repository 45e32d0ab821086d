// Package publisher announces finished harvest runs.
package publisher

import (
	"context"

	"github.com/JakeFAU/heavy-aggregator/internal/harvest"
)

// Publisher delivers a run report and returns the broker's message id.
type Publisher interface {
	Publish(ctx context.Context, report harvest.Report) (string, error)
}
