// Package source registers the result archives the harvester knows about.
package source

import (
	"errors"
	"fmt"

	"github.com/JakeFAU/heavy-aggregator/internal/harvest"
	"github.com/JakeFAU/heavy-aggregator/internal/source/heavyathlete"
	"github.com/JakeFAU/heavy-aggregator/internal/source/nasga"
	"github.com/JakeFAU/heavy-aggregator/internal/source/scottishscores"
)

// ErrUnknown is returned for a source name that is not registered.
var ErrUnknown = errors.New("unknown source")

// Settings carries per-source configuration.
type Settings struct {
	HeavyAthlete   heavyathlete.Config
	NASGA          nasga.Config
	ScottishScores scottishscores.Config
}

// Names lists the registered sources.
func Names() []string {
	return []string{heavyathlete.Name, nasga.Name, scottishscores.Name}
}

// New builds the adapter registered under name.
func New(name string, s Settings) (harvest.Adapter, error) {
	switch name {
	case heavyathlete.Name:
		return heavyathlete.New(s.HeavyAthlete), nil
	case nasga.Name:
		return nasga.New(s.NASGA), nil
	case scottishscores.Name:
		return scottishscores.New(s.ScottishScores), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknown, name)
	}
}
