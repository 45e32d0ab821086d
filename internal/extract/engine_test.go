package extract

import (
	"encoding/json"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scoresProfile() Profile {
	return Profile{
		IdentityHeaders:   []string{"Athlete Name"},
		RankHeaders:       []string{"Place", "Rank"},
		PointsHeaders:     []string{"Pts", "Points", "Total"},
		BoilerplateTokens: []string{"Historic Scores", "NASGA Clone"},
	}
}

func TestExtractSingleClassScenario(t *testing.T) {
	t.Parallel()

	rows := [][]string{
		{"Historic Scores"},
		{"Men Amateur"},
		{"Athlete Name", "Place", "Pts", "Open Stone", "WFD", "Caber"},
		{"John Smith", "1", "4", `38'-2"`, "NT", "12:00"},
		{"Rob Jones", "T2", "7.5", `35'`, "40.5", "1:30"},
		{"Al Brown", "T2", "7.5", "DNS", "41", "F"},
		{"Historic Scores - view all"},
	}

	rec := New(scoresProfile()).Extract(rows)

	require.Equal(t, []string{"Men Amateur"}, rec.Classes())
	entries := rec.Rows("Men Amateur")
	require.Len(t, entries, 3)

	first := entries[0]
	assert.Equal(t, []string{"Athlete", "Place", "GamesPoints", "Open Stone", "Caber"}, first.Keys())
	place, _ := first.Get("Place")
	assert.Equal(t, 1, place)
	stone, _ := first.Get("Open Stone")
	assert.Equal(t, 38.167, stone)
	_, hasWFD := first.Get("WFD")
	assert.False(t, hasWFD, "NT is omitted")
	caber, _ := first.Get("Caber")
	assert.Equal(t, "12:00", caber)

	second := entries[1]
	name, _ := second.Get("Athlete")
	assert.Equal(t, "Rob Jones", name)
	tied, _ := second.Get("Place")
	assert.Equal(t, 2, tied)
	pts, _ := second.Get("GamesPoints")
	assert.Equal(t, 7.5, pts)
	feet, _ := second.Get("Open Stone")
	assert.Equal(t, 35.0, feet)

	third := entries[2]
	assert.Equal(t, []string{"Athlete", "Place", "GamesPoints", "WFD"}, third.Keys())
}

func TestExtractIsIdempotent(t *testing.T) {
	t.Parallel()

	rows := [][]string{
		{"Women Masters"},
		{"Athlete Name", "Place", "Pts", "Sheaf"},
		{"Ann Lee", "1", "2", "20'-4\""},
		{"Women Open"},
		{"Athlete Name", "Rank", "Sheaf"},
		{"Kim Ray", "1", "18'"},
	}
	ext := New(scoresProfile())

	a, err := json.Marshal(ext.Extract(rows))
	require.NoError(t, err)
	b, err := json.Marshal(ext.Extract(rows))
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))
	assert.Equal(t,
		`{"Women Masters":[{"Athlete":"Ann Lee","Place":1,"GamesPoints":2.0,"Sheaf":20.333}],`+
			`"Women Open":[{"Athlete":"Kim Ray","Place":1,"Sheaf":18.0}]}`,
		string(a))
}

func TestClassHeaderResetsSchema(t *testing.T) {
	t.Parallel()

	rows := [][]string{
		{"Men Open"},
		{"Athlete Name", "Place", "Pts"},
		{"A One", "1", "3"},
		{"Men Lightweight"},
		{"B Two", "1", "3"},
	}
	rec := New(scoresProfile()).Extract(rows)

	assert.Equal(t, []string{"Men Open", "Men Lightweight"}, rec.Classes())
	assert.Len(t, rec.Rows("Men Open"), 1)
	assert.Empty(t, rec.Rows("Men Lightweight"), "data without a schema is dropped")
}

func TestRowsBeforeClassAreDropped(t *testing.T) {
	t.Parallel()

	rows := [][]string{
		{"Athlete Name", "Place", "Pts"},
		{"Lost Row", "1", "3"},
		{"", " ", " "},
		{"2024"},
	}
	rec := New(scoresProfile()).Extract(rows)
	assert.Empty(t, rec.Classes(), "numeric single cells are not classes")
	assert.Zero(t, rec.Entries())
}

func TestStrideLayout(t *testing.T) {
	t.Parallel()

	profile := Profile{
		IdentityHeaders:      []string{"Athlete"},
		PositionalRankPoints: true,
		NonClassTokens:       []string{"Athlete", "Dist", "Pts"},
		BoilerplateTokens:    []string{"Notes:", "View the log", "Copyright", "Database Main", "Home|"},
		JunkCells:            []string{"Dist", "Pts"},
		Layout:               LayoutStride,
		StrideStart:          3,
		Stride:               2,
	}
	rows := [][]string{
		{"Home|Database Main"},
		{"Unknown Division?"},
		{"Masters 50+"},
		{"Athlete", "Place", "Points", "Braemar", "", "Sheaf", ""},
		{"", "", "", "Dist", "Pts", "Dist", "Pts"},
		{"Smith, Bob", "1", "3.5", `30'-6"`, "1", "NT", "0"},
		{"Notes: results unofficial"},
		{"Copyright 2024"},
	}
	rec := New(profile).Extract(rows)

	require.Equal(t, []string{"Unknown Division?", "Masters 50+"}, rec.Classes())
	entries := rec.Rows("Masters 50+")
	require.Len(t, entries, 1)
	assert.Equal(t, []string{"Athlete", "Place", "GamesPoints", "Braemar"}, entries[0].Keys())
	braemar, _ := entries[0].Get("Braemar")
	assert.Equal(t, 30.5, braemar)
	points, _ := entries[0].Get("GamesPoints")
	assert.Equal(t, 3.5, points)
}

func TestIndexedLayoutWithEventsAfterPoints(t *testing.T) {
	t.Parallel()

	profile := Profile{
		IdentityHeaders:      []string{"Athlete"},
		PointsHeaders:        []string{"Points"},
		PositionalRankPoints: true,
		EventsAfterPoints:    true,
		BoilerplateTokens:    []string{"Print", "View", "Done", "Extra Throws"},
		MinClassLength:       4,
		MinDataCells:         3,
		RankPattern:          regexp.MustCompile(`^\d+$|(st|nd|rd|th)$`),
		NormalizeNames:       true,
		PointsField:          "Points",
	}
	rows := [][]string{
		{"MENS PROFESSIONAL"},
		{"Athlete", "Place", "Class", "Points", "Braemar", "Open"},
		{"McKim,  Daniel", "1st", "A", "12", "44 - 9", "-"},
		{"Reserve", "DNF", "A", "0", "40", "41"},
		{"Print Class Results"},
		{"Extra Throws", "x", "y"},
		{"Pro"},
	}
	rec := New(profile).Extract(rows)

	require.Equal(t, []string{"MENS PROFESSIONAL"}, rec.Classes(), "short labels are not classes")
	entries := rec.Rows("MENS PROFESSIONAL")
	require.Len(t, entries, 1)
	row := entries[0]
	assert.Equal(t, []string{"Athlete", "Place", "Points", "Braemar"}, row.Keys())
	name, _ := row.Get("Athlete")
	assert.Equal(t, "Daniel McKim", name)
	place, _ := row.Get("Place")
	assert.Equal(t, "1st", place)
	braemar, _ := row.Get("Braemar")
	assert.Equal(t, 44.75, braemar)
}
