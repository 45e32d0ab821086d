package extract

import "regexp"

// Layout selects how measurement columns line up with header labels.
type Layout int

const (
	// LayoutIndexed maps every labelled column to the data cell at the same index.
	LayoutIndexed Layout = iota
	// LayoutStride reads measurement i from StrideStart + i*Stride, for
	// tables that interleave derived score columns with measurements.
	LayoutStride
)

// Profile configures the engine for one source.
type Profile struct {
	// IdentityHeaders label the entity-name column and mark column-header rows.
	IdentityHeaders []string
	RankHeaders     []string
	PointsHeaders   []string
	// PositionalRankPoints places unlabelled rank and points columns directly
	// after the identity column.
	PositionalRankPoints bool

	// NonClassTokens can never be class labels.
	NonClassTokens []string
	// BoilerplateTokens are matched as substrings of a row's first non-empty cell.
	BoilerplateTokens []string
	// JunkCells mark repeated sub-header rows when any cell equals one of them.
	JunkCells  []string
	NullTokens []string

	Layout            Layout
	StrideStart       int
	Stride            int
	EventsAfterPoints bool

	MinClassLength int
	MinDataCells   int
	RankPattern    *regexp.Regexp
	NormalizeNames bool

	NameField   string
	RankField   string
	PointsField string
}

func (p Profile) withDefaults() Profile {
	if p.NameField == "" {
		p.NameField = "Athlete"
	}
	if p.RankField == "" {
		p.RankField = "Place"
	}
	if p.PointsField == "" {
		p.PointsField = "GamesPoints"
	}
	if p.NullTokens == nil {
		p.NullTokens = DefaultNullTokens
	}
	if p.Stride <= 0 {
		p.Stride = 1
	}
	return p
}
