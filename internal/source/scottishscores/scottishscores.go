// Package scottishscores harvests games and athlete ranking histories from
// scottishscores.com. The site keeps the selected year in the server-side
// session, so year discovery posts the year before reading the index.
package scottishscores

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/JakeFAU/heavy-aggregator/internal/extract"
	"github.com/JakeFAU/heavy-aggregator/internal/harvest"
)

const (
	// Name identifies the source.
	Name = "scottishscores"
	// YearKey stores the last completed year of the games phase.
	YearKey = "scottishscores_year"
	// AthleteKey stores the next athlete offset.
	AthleteKey = "scottishscores_athlete_idx"

	sourceLabel = "scottishscores.com"
)

// Config holds source-specific settings.
type Config struct {
	BaseURL   string
	StartYear int
	Clock     harvest.Clock
}

// Profile is the extractor configuration for class result pages. Place sits
// right after the athlete column and events follow the Points column.
var Profile = extract.Profile{
	IdentityHeaders:      []string{"Athlete"},
	RankHeaders:          []string{"Place"},
	PointsHeaders:        []string{"Points"},
	PositionalRankPoints: true,
	NonClassTokens:       []string{"Athlete"},
	BoilerplateTokens:    []string{"Print", "View", "Done", "Extra Throws"},
	Layout:               extract.LayoutIndexed,
	EventsAfterPoints:    true,
	MinClassLength:       4,
	MinDataCells:         3,
	RankPattern:          regexp.MustCompile(`^\d+$|(st|nd|rd|th)$`),
	NormalizeNames:       true,
}

// Game is one games-stream item.
type Game struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Year    string         `json:"year"`
	Source  string         `json:"source"`
	Results extract.Record `json:"results"`
}

// Athlete is one athletes-stream item.
type Athlete struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	History [][][]string `json:"history"`
}

// Adapter implements harvest.Adapter.
type Adapter struct {
	games    *gamesPhase
	athletes *athletesPhase
}

// New builds the adapter.
func New(cfg Config) *Adapter {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://scottishscores.com"
	}
	if cfg.StartYear == 0 {
		cfg.StartYear = 1990
	}
	if cfg.Clock == nil {
		cfg.Clock = harvest.SystemClock{}
	}
	return &Adapter{
		games: &gamesPhase{
			base:      base,
			startYear: cfg.StartYear,
			clock:     cfg.Clock,
			extractor: extract.New(Profile),
		},
		athletes: &athletesPhase{base: base},
	}
}

// Name returns the source name.
func (a *Adapter) Name() string { return Name }

// Phases returns games then athletes.
func (a *Adapter) Phases() []harvest.Phase {
	return []harvest.Phase{a.games, a.athletes}
}

type gamesPhase struct {
	base      string
	startYear int
	clock     harvest.Clock
	extractor *extract.Extractor
}

func (p *gamesPhase) Stream() string        { return "games" }
func (p *gamesPhase) CheckpointKey() string { return YearKey }

func (p *gamesPhase) Keys(_ context.Context, _ *harvest.Client) ([]harvest.DiscoveryKey, error) {
	last := p.clock.Now().Year() + 1
	keys := make([]harvest.DiscoveryKey, 0, max(last-p.startYear+1, 0))
	for y := p.startYear; y <= last; y++ {
		keys = append(keys, harvest.DiscoveryKey(y))
	}
	return keys, nil
}

func (p *gamesPhase) Discover(ctx context.Context, client *harvest.Client, key harvest.DiscoveryKey) ([]harvest.Target, error) {
	set := harvest.NewPost(p.base+"/SessionYrSet.cfm", map[string]string{"FilterYear": strconv.Itoa(int(key))})
	if _, err := client.Do(ctx, set); err != nil {
		return nil, fmt.Errorf("select year %d: %w", key, err)
	}
	doc, err := client.Do(ctx, harvest.NewGet(p.base+"/index.cfm"))
	if err != nil {
		return nil, err
	}
	page, err := extract.Parse(doc.Body)
	if err != nil {
		return nil, err
	}

	var (
		targets []harvest.Target
		seen    = make(map[string]struct{})
	)
	for _, a := range extract.Anchors(page) {
		if !strings.Contains(a.Href, "classesListNew.cfm") {
			continue
		}
		link, code := resolve(p.base, a.Href, "GameCode")
		if code == "" {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		req := harvest.NewGet(link)
		req.Referer = p.base + "/index.cfm"
		targets = append(targets, harvest.Target{
			ID:      code,
			Name:    a.Text,
			Key:     key,
			Request: req,
		})
	}
	return targets, nil
}

func (p *gamesPhase) Extract(target harvest.Target, doc *harvest.RawDocument) (any, bool) {
	return Game{
		ID:      target.ID,
		Name:    target.Name,
		Year:    strconv.Itoa(int(target.Key)),
		Source:  sourceLabel,
		Results: p.extractor.ExtractHTML(doc.Body),
	}, true
}

type athletesPhase struct {
	base string
}

func (p *athletesPhase) Stream() string        { return "athletes" }
func (p *athletesPhase) CheckpointKey() string { return AthleteKey }

// List reads the master ranking menu, keeping the first link of every SysID
// in page order.
func (p *athletesPhase) List(ctx context.Context, client *harvest.Client) ([]harvest.Target, error) {
	doc, err := client.Do(ctx, harvest.NewGet(p.base+"/prMenu.cfm?FC=0"))
	if err != nil {
		return nil, err
	}
	page, err := extract.Parse(doc.Body)
	if err != nil {
		return nil, err
	}

	var (
		targets []harvest.Target
		seen    = make(map[string]struct{})
	)
	for _, a := range extract.Anchors(page) {
		if !strings.Contains(a.Href, "rankingHistory.cfm") {
			continue
		}
		link, sysID := resolve(p.base, a.Href, "SysID")
		if sysID == "" {
			continue
		}
		if _, dup := seen[sysID]; dup {
			continue
		}
		seen[sysID] = struct{}{}
		q := queryOf(a.Href)
		name := extract.NormalizeName(strings.TrimSpace(q.Get("FN") + " " + q.Get("LN")))
		if name == "" {
			name = a.Text
		}
		targets = append(targets, harvest.Target{
			ID:      sysID,
			Name:    name,
			Request: harvest.NewGet(link),
		})
	}
	return targets, nil
}

// Extract keeps tables with a header and at least one data row.
func (p *athletesPhase) Extract(target harvest.Target, doc *harvest.RawDocument) (any, bool) {
	history := [][][]string{}
	if page, err := extract.Parse(doc.Body); err == nil {
		for _, table := range extract.Tables(page) {
			if len(table) > 1 {
				history = append(history, table)
			}
		}
	}
	return Athlete{ID: target.ID, Name: target.Name, History: history}, true
}

// resolve makes href absolute against base and returns it with the value of
// the named query parameter.
func resolve(base, href, param string) (string, string) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", ""
	}
	root, err := url.Parse(base + "/")
	if err != nil {
		return "", ""
	}
	abs := root.ResolveReference(ref)
	return abs.String(), abs.Query().Get(param)
}

func queryOf(href string) url.Values {
	u, err := url.Parse(href)
	if err != nil {
		return url.Values{}
	}
	return u.Query()
}
