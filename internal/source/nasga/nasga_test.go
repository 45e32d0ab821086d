package nasga

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/heavy-aggregator/internal/harvest"
	"github.com/JakeFAU/heavy-aggregator/internal/harvest/harvesttest"
)

const base = "http://nasga.test"

const mainPage = `<form><select name="resultsyear">
<option value="">Select a year</option>
<option value="main.asp?resultsyear=2024">2024</option>
<option value="main.asp?resultsyear=2023">2023</option>
<option value="main.asp?resultsyear=all">All</option>
</select></form>`

const year2023 = `<select name="gamesid">
<option value="0">Select a game</option>
<option value="101">Pleasanton</option>
<option value="none">---------</option>
<option value="101">Pleasanton</option>
</select>
<select name="athletename">
<option value="0">Select an athlete</option>
<option value="Smith,Bob">Smith, Bob</option>
<option value="Anthony,Laura">Anthony, Laura</option>
</select>`

const year2024 = `<select name="gamesid">
<option value="202">Loon Mountain</option>
</select>
<select name="athletename">
<option value="Anthony,Laura">Anthony, Laura</option>
<option value="Zed,Al">Zed, Al</option>
</select>`

const resultsPage = `<table>
<tr><td>Women Amateur</td></tr>
<tr><td>Athlete</td><td>Place</td><td>Points</td><td>Open Stone</td><td></td><td>Braemar</td><td></td></tr>
<tr><td></td><td></td><td></td><td>Dist</td><td>Pts</td><td>Dist</td><td>Pts</td></tr>
<tr><td>Anthony,Laura</td><td>T1</td><td>8</td><td>30'-6"</td><td>1</td><td>NT</td><td>0</td></tr>
<tr><td>Notes: scores unofficial</td></tr>
</table>`

func fixture() *harvesttest.Fetcher {
	return harvesttest.NewFetcher().
		Get(base+"/dbase/main.asp", mainPage).
		Get(base+"/dbase/main.asp?resultsyear=2023", year2023).
		Get(base+"/dbase/main.asp?resultsyear=2024", year2024)
}

func phases(t *testing.T) (harvest.KeyedPhase, harvest.BatchedPhase) {
	t.Helper()
	ps := New(Config{BaseURL: base}).Phases()
	require.Len(t, ps, 2)
	games, ok := ps[0].(harvest.KeyedPhase)
	require.True(t, ok)
	athletes, ok := ps[1].(harvest.BatchedPhase)
	require.True(t, ok)
	return games, athletes
}

func TestKeysFromYearDropdown(t *testing.T) {
	games, _ := phases(t)
	client := harvest.NewClient(fixture(), harvest.NewGate(1), Name, nil)
	keys, err := games.Keys(context.Background(), client)
	require.NoError(t, err)
	assert.Equal(t, []harvest.DiscoveryKey{2023, 2024}, keys)
}

func TestKeysWithoutDropdown(t *testing.T) {
	games, _ := phases(t)
	f := harvesttest.NewFetcher().Get(base+"/dbase/main.asp", "<p>maintenance</p>")
	_, err := games.Keys(context.Background(), harvest.NewClient(f, nil, Name, nil))
	require.ErrorIs(t, err, ErrNoYears)
}

func TestDiscoverGames(t *testing.T) {
	games, _ := phases(t)
	client := harvest.NewClient(fixture(), harvest.NewGate(1), Name, nil)
	targets, err := games.Discover(context.Background(), client, 2023)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, "101", targets[0].ID)
	assert.Equal(t, "Pleasanton", targets[0].Name)
	assert.Equal(t, http.MethodPost, targets[0].Request.Method)
	assert.Equal(t, base+"/dbase/results2.asp", targets[0].Request.URL)
	assert.Equal(t, map[string]string{"gamesid": "101", "Submit": "Select"}, targets[0].Request.Form)
}

func TestExtractGameUsesStrideLayout(t *testing.T) {
	games, _ := phases(t)
	item, ok := games.Extract(harvest.Target{ID: "101", Name: "Pleasanton", Key: 2023}, &harvest.RawDocument{Body: []byte(resultsPage)})
	require.True(t, ok)
	game := item.(Game)
	assert.Equal(t, "2023", game.Year)
	assert.Equal(t, "nasgaweb.com", game.Source)

	rows := game.Results.Rows("Women Amateur")
	require.Len(t, rows, 1)
	row := rows[0]
	assert.Equal(t, []string{"Athlete", "Place", "GamesPoints", "Open Stone"}, row.Keys())
	place, _ := row.Get("Place")
	assert.Equal(t, 1, place)
	pts, _ := row.Get("GamesPoints")
	assert.Equal(t, 8.0, pts)
	stone, _ := row.Get("Open Stone")
	assert.Equal(t, 30.5, stone)
}

func TestListAthletesUnionsYears(t *testing.T) {
	_, athletes := phases(t)
	f := fixture()
	client := harvest.NewClient(f, harvest.NewGate(2), Name, nil)
	targets, err := athletes.List(context.Background(), client)
	require.NoError(t, err)

	names := make([]string, len(targets))
	for i, tg := range targets {
		names[i] = tg.Name
	}
	assert.Equal(t, []string{"Anthony,Laura", "Smith,Bob", "Zed,Al"}, names)
	assert.Equal(t, base+"/dbase/resultsathlete3.asp?athletename=Anthony%2CLaura", targets[0].Request.URL)
	assert.Equal(t, AthleteKey, athletes.CheckpointKey())
	assert.Equal(t, "athletes", athletes.Stream())
}

func TestListAthletesQueryEncodesNames(t *testing.T) {
	t.Parallel()

	_, athletes := phases(t)
	f := harvesttest.NewFetcher().
		Get(base+"/dbase/main.asp", `<select name="resultsyear"><option value="main.asp?resultsyear=2024">2024</option></select>`).
		Get(base+"/dbase/main.asp?resultsyear=2024", `<select name="athletename">
<option value="A&amp;B+C">A and B</option>
<option value="Mac Donald,Ian">Mac Donald, Ian</option>
<option value="x=1;y?">odd</option>
</select>`)
	client := harvest.NewClient(f, harvest.NewGate(1), Name, nil)
	targets, err := athletes.List(context.Background(), client)
	require.NoError(t, err)
	require.Len(t, targets, 3)

	tests := []struct {
		name    string
		rawTail string
	}{
		{name: "A&B+C", rawTail: "athletename=A%26B%2BC"},
		{name: "Mac Donald,Ian", rawTail: "athletename=Mac+Donald%2CIan"},
		{name: "x=1;y?", rawTail: "athletename=x%3D1%3By%3F"},
	}
	for i, tt := range tests {
		u, err := url.Parse(targets[i].Request.URL)
		require.NoError(t, err)
		assert.Equal(t, tt.rawTail, u.RawQuery)
		assert.Equal(t, tt.name, u.Query().Get("athletename"))
		assert.Equal(t, "/dbase/resultsathlete3.asp", u.Path)
	}
}

func TestExtractAthleteKeepsRawTables(t *testing.T) {
	_, athletes := phases(t)
	body := `<table><tr><th>Year</th><th>Games</th></tr><tr><td>2023</td><td>Pleasanton</td></tr></table><table><tr><td>Totals</td></tr></table>`
	item, ok := athletes.Extract(harvest.Target{Name: "Anthony,Laura"}, &harvest.RawDocument{Body: []byte(body)})
	require.True(t, ok)
	a := item.(Athlete)
	assert.Equal(t, "Anthony,Laura", a.Name)
	assert.Equal(t, [][][]string{
		{{"Year", "Games"}, {"2023", "Pleasanton"}},
		{{"Totals"}},
	}, a.History)
}
