package heavyathlete

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/heavy-aggregator/internal/harvest"
	"github.com/JakeFAU/heavy-aggregator/internal/harvest/harvesttest"
)

const base = "https://heavyathlete.test"

const scoresFragment = `<table>
<tr><th>Men Amateur</th></tr>
<tr><th>Place</th><th>Athlete Name</th><th>Open Stone</th><th>Caber</th><th>Pts</th></tr>
<tr><td>T1</td><td>Sam Reid</td><td>34'-6"</td><td>12:00</td><td>5.5</td></tr>
<tr><td>2</td><td>Ian Ross</td><td>NT</td><td>1:30</td><td>9</td></tr>
<tr><td>3</td><td>Alex Bain</td><td>30.25</td><td>DNS</td><td>12</td></tr>
<tr><th>Historic Scores</th></tr>
</table>`

func newAdapter() *Adapter {
	return New(Config{BaseURL: base + "/", StartYear: 1999, Clock: harvesttest.Year(2000)})
}

func gamesOf(t *testing.T, a *Adapter) harvest.KeyedPhase {
	t.Helper()
	phases := a.Phases()
	require.Len(t, phases, 1)
	p, ok := phases[0].(harvest.KeyedPhase)
	require.True(t, ok)
	return p
}

func TestKeysSpanStartYearThroughNextYear(t *testing.T) {
	p := gamesOf(t, newAdapter())
	keys, err := p.Keys(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []harvest.DiscoveryKey{1999, 2000, 2001}, keys)
	assert.Equal(t, "games", p.Stream())
	assert.Equal(t, YearKey, p.CheckpointKey())
}

func TestDiscoverReadsEveryMonth(t *testing.T) {
	f := harvesttest.NewFetcher().
		Get(base+"/game/calendar_list/1999/3/", `<a href="/game/5630/">Central Florida Highland Games</a><a href="/game/calendar_list/1999/4/">next</a>`).
		Get(base+"/game/calendar_list/1999/7/", `<a href="/game/5631/"></a><a href="/game/5630/">Central Florida Highland Games</a>`)
	for _, m := range []int{1, 2, 4, 5, 6, 8, 9, 10, 11, 12} {
		f.Get(base+"/game/calendar_list/1999/"+strconv.Itoa(m)+"/", "<p>no games</p>")
	}
	client := harvest.NewClient(f, harvest.NewGate(4), Name, nil)

	targets, err := gamesOf(t, newAdapter()).Discover(context.Background(), client, 1999)
	require.NoError(t, err)
	require.Len(t, targets, 2)

	assert.Equal(t, "5630", targets[0].ID)
	assert.Equal(t, "Central Florida Highland Games", targets[0].Name)
	assert.Equal(t, "3", targets[0].Attrs["month"])
	assert.Equal(t, base+"/game/5630/scores_htmx/", targets[0].Request.URL)
	assert.Equal(t, harvest.DiscoveryKey(1999), targets[0].Key)

	assert.Equal(t, "Game 5631", targets[1].Name)
	assert.Equal(t, "7", targets[1].Attrs["month"])
	assert.Len(t, f.Calls(), 12)
}

func TestDiscoverFailsWhenEveryCalendarFails(t *testing.T) {
	client := harvest.NewClient(harvesttest.NewFetcher(), harvest.NewGate(2), Name, nil)
	_, err := gamesOf(t, newAdapter()).Discover(context.Background(), client, 2000)
	require.Error(t, err)
}

func TestExtractGame(t *testing.T) {
	p := gamesOf(t, newAdapter())
	target := harvest.Target{ID: "5630", Name: "Central Florida", Key: 1999, Attrs: map[string]string{"month": "3"}}
	item, ok := p.Extract(target, &harvest.RawDocument{Body: []byte(scoresFragment)})
	require.True(t, ok)

	game := item.(Game)
	assert.Equal(t, "1999", game.Year)
	assert.Equal(t, "heavyathlete.com", game.Source)
	assert.Equal(t, []string{"Men Amateur"}, game.Results.Classes())
	rows := game.Results.Rows("Men Amateur")
	require.Len(t, rows, 3)

	place, _ := rows[0].Get("Place")
	assert.Equal(t, 1, place)
	stone, _ := rows[0].Get("Open Stone")
	assert.Equal(t, 34.5, stone)
	caber, _ := rows[0].Get("Caber")
	assert.Equal(t, "12:00", caber)
	_, has := rows[1].Get("Open Stone")
	assert.False(t, has)

	raw, err := json.Marshal(game)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"GamesPoints":5.5`)
	assert.Contains(t, string(raw), `"month":"3"`)
}

func TestExtractGameIgnoresTrailingTables(t *testing.T) {
	t.Parallel()

	body := scoresFragment + `
<table>
<tr><td>Women Open</td></tr>
<tr><th>Place</th><th>Athlete Name</th><th>Pts</th></tr>
<tr><td>1</td><td>Stray Row</td><td>3</td></tr>
</table>`
	p := gamesOf(t, newAdapter())
	item, ok := p.Extract(harvest.Target{ID: "5630", Key: 1999}, &harvest.RawDocument{Body: []byte(body)})
	require.True(t, ok)

	game := item.(Game)
	assert.Equal(t, []string{"Men Amateur"}, game.Results.Classes())
	assert.Len(t, game.Results.Rows("Men Amateur"), 3)
}
