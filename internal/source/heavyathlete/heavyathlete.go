// Package heavyathlete harvests game results from heavyathlete.com.
//
// Games are discovered per year through the twelve monthly calendar pages and
// their scores are read from the htmx score fragment of each game.
package heavyathlete

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/heavy-aggregator/internal/extract"
	"github.com/JakeFAU/heavy-aggregator/internal/harvest"
)

const (
	// Name identifies the source.
	Name = "heavyathlete"
	// YearKey stores the last completed year.
	YearKey = "heavyathlete_year"

	sourceLabel = "heavyathlete.com"
)

var gamePath = regexp.MustCompile(`^/game/(\d+)/?$`)

// Config holds source-specific settings.
type Config struct {
	BaseURL   string
	StartYear int
	Clock     harvest.Clock
}

// Profile is the extractor configuration for score fragments.
var Profile = extract.Profile{
	IdentityHeaders:   []string{"Athlete Name"},
	RankHeaders:       []string{"Place", "Rank"},
	PointsHeaders:     []string{"Pts", "Points", "Total"},
	BoilerplateTokens: []string{"Historic Scores", "NASGA Clone"},
	Layout:            extract.LayoutIndexed,
}

// Game is one output item.
type Game struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Year    string         `json:"year"`
	Month   string         `json:"month"`
	Source  string         `json:"source"`
	Results extract.Record `json:"results"`
}

// Adapter implements harvest.Adapter.
type Adapter struct {
	games *gamesPhase
}

// New builds the adapter.
func New(cfg Config) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://heavyathlete.com"
	}
	if cfg.StartYear == 0 {
		cfg.StartYear = 1999
	}
	if cfg.Clock == nil {
		cfg.Clock = harvest.SystemClock{}
	}
	return &Adapter{games: &gamesPhase{
		base:      strings.TrimRight(cfg.BaseURL, "/"),
		startYear: cfg.StartYear,
		clock:     cfg.Clock,
		extractor: extract.New(Profile),
	}}
}

// Name returns the source name.
func (a *Adapter) Name() string { return Name }

// Phases returns the games phase.
func (a *Adapter) Phases() []harvest.Phase {
	return []harvest.Phase{a.games}
}

type gamesPhase struct {
	base      string
	startYear int
	clock     harvest.Clock
	extractor *extract.Extractor
}

func (p *gamesPhase) Stream() string        { return "games" }
func (p *gamesPhase) CheckpointKey() string { return YearKey }

// Keys runs from the start year through next year, since calendars list
// scheduled games ahead of time.
func (p *gamesPhase) Keys(_ context.Context, _ *harvest.Client) ([]harvest.DiscoveryKey, error) {
	last := p.clock.Now().Year() + 1
	keys := make([]harvest.DiscoveryKey, 0, max(last-p.startYear+1, 0))
	for y := p.startYear; y <= last; y++ {
		keys = append(keys, harvest.DiscoveryKey(y))
	}
	return keys, nil
}

func (p *gamesPhase) Discover(ctx context.Context, client *harvest.Client, key harvest.DiscoveryKey) ([]harvest.Target, error) {
	reqs := make([]harvest.Request, 12)
	for m := 1; m <= 12; m++ {
		reqs[m-1] = harvest.NewGet(fmt.Sprintf("%s/game/calendar_list/%d/%d/", p.base, key, m))
	}
	results := client.DoAll(ctx, reqs)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		targets []harvest.Target
		seen    = make(map[string]struct{})
		failed  int
	)
	for i, res := range results {
		month := strconv.Itoa(i + 1)
		if res.Err != nil {
			failed++
			client.Logger().Warn("calendar page skipped",
				zap.Int("year", int(key)),
				zap.String("month", month),
				zap.Error(res.Err),
			)
			continue
		}
		doc, err := extract.Parse(res.Doc.Body)
		if err != nil {
			continue
		}
		for _, a := range extract.Anchors(doc) {
			id := gameID(a.Href)
			if id == "" {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			name := a.Text
			if name == "" {
				name = "Game " + id
			}
			req := harvest.NewGet(fmt.Sprintf("%s/game/%s/scores_htmx/", p.base, id))
			req.Referer = fmt.Sprintf("%s/game/%s/", p.base, id)
			targets = append(targets, harvest.Target{
				ID:      id,
				Name:    name,
				Key:     key,
				Request: req,
				Attrs:   map[string]string{"month": month},
			})
		}
	}
	if failed == len(reqs) {
		return nil, fmt.Errorf("all calendar pages for %d failed", key)
	}
	return targets, nil
}

func (p *gamesPhase) Extract(target harvest.Target, doc *harvest.RawDocument) (any, bool) {
	return Game{
		ID:      target.ID,
		Name:    target.Name,
		Year:    strconv.Itoa(int(target.Key)),
		Month:   target.Attrs["month"],
		Source:  sourceLabel,
		Results: p.extractor.ExtractFirstTable(doc.Body),
	}, true
}

func gameID(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	m := gamePath.FindStringSubmatch(u.Path)
	if m == nil {
		return ""
	}
	return m[1]
}
