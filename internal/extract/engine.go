package extract

import (
	"slices"
	"strings"
)

// Extractor applies a Profile to decomposed rows. It holds no per-document
// state and is safe for concurrent use.
type Extractor struct {
	profile Profile
}

// New builds an Extractor for profile.
func New(profile Profile) *Extractor {
	return &Extractor{profile: profile.withDefaults()}
}

type column struct {
	label string
	index int
}

type schema struct {
	identity int
	rank     int
	points   int
	measures []column
}

// Extract scans rows in order and returns the accumulated Record. Rows that
// fit no rule are dropped; malformed input yields a partial Record.
func (e *Extractor) Extract(rows [][]string) Record {
	var (
		rec    Record
		class  string
		active *schema
	)
	for _, raw := range rows {
		row := make([]string, len(raw))
		for i, cell := range raw {
			row[i] = Clean(cell)
		}
		nonEmpty := nonEmptyCells(row)
		if len(nonEmpty) == 0 {
			continue
		}

		switch {
		case e.isClassHeader(row, nonEmpty):
			class = nonEmpty[0]
			rec.AddClass(class)
			active = nil
		case e.isColumnHeader(row):
			active = e.buildSchema(row)
		case e.isJunk(row, nonEmpty):
			// skipped, state unchanged
		case class == "" || active == nil:
			// data before any class or schema is dropped
		default:
			if entry, ok := e.dataRow(row, active); ok {
				rec.Append(class, entry)
			}
		}
	}
	return rec
}

func (e *Extractor) isClassHeader(row, nonEmpty []string) bool {
	if len(nonEmpty) > 2 {
		return false
	}
	first := nonEmpty[0]
	if isNumeric(first) || len(first) < e.profile.MinClassLength {
		return false
	}
	if slices.Contains(e.profile.NonClassTokens, first) {
		return false
	}
	if containsAny(first, e.profile.BoilerplateTokens) {
		return false
	}
	return !e.isColumnHeader(row)
}

func (e *Extractor) isColumnHeader(row []string) bool {
	for _, cell := range row {
		if slices.Contains(e.profile.IdentityHeaders, cell) {
			return true
		}
	}
	return false
}

func (e *Extractor) isJunk(row, nonEmpty []string) bool {
	for _, cell := range row {
		if slices.Contains(e.profile.JunkCells, cell) {
			return true
		}
	}
	return containsAny(nonEmpty[0], e.profile.BoilerplateTokens)
}

func (e *Extractor) buildSchema(labels []string) *schema {
	s := &schema{
		identity: indexOfAny(labels, e.profile.IdentityHeaders),
		rank:     indexOfAny(labels, e.profile.RankHeaders),
		points:   indexOfAny(labels, e.profile.PointsHeaders),
	}
	if e.profile.PositionalRankPoints {
		if s.rank < 0 {
			s.rank = s.identity + 1
		}
		if s.points < 0 {
			s.points = s.identity + 2
		}
	}

	switch e.profile.Layout {
	case LayoutStride:
		start := e.profile.StrideStart
		k := 0
		for i := start; i < len(labels); i++ {
			if labels[i] == "" {
				continue
			}
			s.measures = append(s.measures, column{label: labels[i], index: start + k*e.profile.Stride})
			k++
		}
	default:
		for i, label := range labels {
			if label == "" || i == s.identity || i == s.rank || i == s.points {
				continue
			}
			if e.profile.EventsAfterPoints && s.points >= 0 && i < s.points {
				continue
			}
			s.measures = append(s.measures, column{label: label, index: i})
		}
	}
	return s
}

func (e *Extractor) dataRow(row []string, s *schema) (Row, bool) {
	var entry Row
	if len(row) < e.profile.MinDataCells {
		return entry, false
	}
	name := cellAt(row, s.identity)
	if name == "" {
		return entry, false
	}
	rankRaw := cellAt(row, s.rank)
	if e.profile.RankPattern != nil && !e.profile.RankPattern.MatchString(rankRaw) {
		return entry, false
	}
	if e.profile.NormalizeNames {
		name = NormalizeName(name)
	}

	entry.Set(e.profile.NameField, name)
	if v, ok := ParseRank(rankRaw); ok {
		entry.Set(e.profile.RankField, v)
	}
	if v, ok := ParsePoints(cellAt(row, s.points)); ok {
		entry.Set(e.profile.PointsField, v)
	}
	for _, col := range s.measures {
		if v, ok := ParseMeasurement(cellAt(row, col.index), e.profile.NullTokens); ok {
			entry.Set(col.label, v)
		}
	}
	return entry, true
}

func nonEmptyCells(row []string) []string {
	out := make([]string, 0, len(row))
	for _, cell := range row {
		if cell != "" {
			out = append(out, cell)
		}
	}
	return out
}

func cellAt(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func indexOfAny(labels, candidates []string) int {
	for i, label := range labels {
		if slices.Contains(candidates, label) {
			return i
		}
	}
	return -1
}

func containsAny(s string, tokens []string) bool {
	for _, tok := range tokens {
		if tok != "" && strings.Contains(s, tok) {
			return true
		}
	}
	return false
}
