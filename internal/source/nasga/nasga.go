// Package nasga harvests games and athlete histories from the NASGA results
// database.
package nasga

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/heavy-aggregator/internal/extract"
	"github.com/JakeFAU/heavy-aggregator/internal/harvest"
)

const (
	// Name identifies the source.
	Name = "nasga"
	// YearKey stores the last completed year of the games phase.
	YearKey = "nasga_year"
	// AthleteKey stores the next athlete offset.
	AthleteKey = "nasga_athlete_idx"

	sourceLabel = "nasgaweb.com"

	mainPath    = "/dbase/main.asp"
	resultsPath = "/dbase/results2.asp"
	athletePath = "/dbase/resultsathlete3.asp"
)

// ErrNoYears is returned when the year dropdown cannot be read.
var ErrNoYears = errors.New("no years in resultsyear dropdown")

// Config holds source-specific settings.
type Config struct {
	BaseURL string
}

// Profile is the extractor configuration for results2.asp pages. Each event
// occupies a distance column followed by a points column.
var Profile = extract.Profile{
	IdentityHeaders:      []string{"Athlete"},
	PositionalRankPoints: true,
	NonClassTokens:       []string{"Athlete", "Dist", "Pts"},
	BoilerplateTokens:    []string{"Notes:", "View the log", "Copyright", "Database Main", "Home|"},
	JunkCells:            []string{"Dist", "Pts"},
	Layout:               extract.LayoutStride,
	StrideStart:          3,
	Stride:               2,
}

// Game is one games-stream item.
type Game struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Year    string         `json:"year"`
	Source  string         `json:"source"`
	Results extract.Record `json:"results"`
}

// Athlete is one athletes-stream item. History holds the raw tables of the
// athlete page.
type Athlete struct {
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
		base = "http://www.nasgaweb.com"
	}
	s := &site{base: base}
	return &Adapter{
		games:    &gamesPhase{site: s, extractor: extract.New(Profile)},
		athletes: &athletesPhase{site: s},
	}
}

// Name returns the source name.
func (a *Adapter) Name() string { return Name }

// Phases returns games then athletes.
func (a *Adapter) Phases() []harvest.Phase {
	return []harvest.Phase{a.games, a.athletes}
}

type site struct {
	base string
}

func (s *site) mainURL() string { return s.base + mainPath }

func (s *site) yearURL(year harvest.DiscoveryKey) string {
	return fmt.Sprintf("%s?resultsyear=%d", s.mainURL(), year)
}

// years reads the resultsyear dropdown. Option values are links, so the
// four-digit option text is the year.
func (s *site) years(ctx context.Context, client *harvest.Client) ([]harvest.DiscoveryKey, error) {
	doc, err := client.Do(ctx, harvest.NewGet(s.mainURL()))
	if err != nil {
		return nil, err
	}
	page, err := extract.Parse(doc.Body)
	if err != nil {
		return nil, err
	}
	var years []harvest.DiscoveryKey
	for _, opt := range extract.SelectOptions(page, "resultsyear") {
		if len(opt.Text) != 4 {
			continue
		}
		y, err := strconv.Atoi(opt.Text)
		if err != nil {
			continue
		}
		years = append(years, harvest.DiscoveryKey(y))
	}
	if len(years) == 0 {
		return nil, ErrNoYears
	}
	slices.Sort(years)
	return slices.Compact(years), nil
}

type gamesPhase struct {
	site      *site
	extractor *extract.Extractor
}

func (p *gamesPhase) Stream() string        { return "games" }
func (p *gamesPhase) CheckpointKey() string { return YearKey }

func (p *gamesPhase) Keys(ctx context.Context, client *harvest.Client) ([]harvest.DiscoveryKey, error) {
	return p.site.years(ctx, client)
}

func (p *gamesPhase) Discover(ctx context.Context, client *harvest.Client, key harvest.DiscoveryKey) ([]harvest.Target, error) {
	doc, err := client.Do(ctx, harvest.NewGet(p.site.yearURL(key)))
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
	for _, opt := range extract.SelectOptions(page, "gamesid") {
		if !validGame(opt) {
			continue
		}
		if _, dup := seen[opt.Value]; dup {
			continue
		}
		seen[opt.Value] = struct{}{}
		req := harvest.NewPost(p.site.base+resultsPath, map[string]string{
			"gamesid": opt.Value,
			"Submit":  "Select",
		})
		req.Referer = p.site.yearURL(key)
		targets = append(targets, harvest.Target{
			ID:      opt.Value,
			Name:    opt.Text,
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

func validGame(opt extract.Option) bool {
	switch strings.ToLower(opt.Value) {
	case "0", "none":
		return false
	}
	return !strings.HasPrefix(opt.Text, "Select") && !strings.HasPrefix(opt.Text, "---")
}

type athletesPhase struct {
	site *site
}

func (p *athletesPhase) Stream() string        { return "athletes" }
func (p *athletesPhase) CheckpointKey() string { return AthleteKey }

// List unions the athlete dropdowns of every year page. The result is
// sorted so batch offsets stay stable between runs.
func (p *athletesPhase) List(ctx context.Context, client *harvest.Client) ([]harvest.Target, error) {
	years, err := p.site.years(ctx, client)
	if err != nil {
		return nil, err
	}
	reqs := make([]harvest.Request, len(years))
	for i, y := range years {
		reqs[i] = harvest.NewGet(p.site.yearURL(y))
	}
	results := client.DoAll(ctx, reqs)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	names := make(map[string]struct{})
	for i, res := range results {
		if res.Err != nil {
			client.Logger().Warn("year page skipped while listing athletes",
				zap.Int("year", int(years[i])),
				zap.Error(res.Err),
			)
			continue
		}
		page, err := extract.Parse(res.Doc.Body)
		if err != nil {
			continue
		}
		for _, opt := range extract.SelectOptions(page, "athletename") {
			if opt.Value == "0" || strings.HasPrefix(opt.Text, "Select") {
				continue
			}
			names[opt.Value] = struct{}{}
		}
	}

	sorted := make([]string, 0, len(names))
	for n := range names {
		sorted = append(sorted, n)
	}
	slices.Sort(sorted)

	targets := make([]harvest.Target, len(sorted))
	for i, n := range sorted {
		targets[i] = harvest.Target{
			ID:      n,
			Name:    n,
			Request: harvest.NewGet(p.site.base + athletePath + "?" + url.Values{"athletename": {n}}.Encode()),
		}
	}
	return targets, nil
}

func (p *athletesPhase) Extract(target harvest.Target, doc *harvest.RawDocument) (any, bool) {
	page, err := extract.Parse(doc.Body)
	if err != nil {
		return Athlete{Name: target.Name, History: [][][]string{}}, true
	}
	history := extract.Tables(page)
	if history == nil {
		history = [][][]string{}
	}
	return Athlete{Name: target.Name, History: history}, true
}
