package extract

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// DefaultNullTokens mark measurements that were not recorded: no throw, did
// not start, blank, dash and foul.
var DefaultNullTokens = []string{"NT", "DNS", "", "-", "F"}

var (
	tieMarker  = regexp.MustCompile(`^[A-Za-z](\d+)$`)
	feetInches = regexp.MustCompile(`^(\d+)'\s*-?\s*(\d*\.?\d*)"?`)
)

// Clean turns non-breaking spaces into spaces and trims the cell.
func Clean(cell string) string {
	return strings.TrimSpace(strings.ReplaceAll(cell, "\u00a0", " "))
}

// ParseRank coerces a place column. A leading tie marker such as "T1" is
// stripped and the number truncated to an int; anything unparseable or out of
// int range is kept as trimmed text. ok is false for an empty cell.
func ParseRank(text string) (any, bool) {
	t := strings.TrimSpace(text)
	if t == "" {
		return nil, false
	}
	num := t
	if m := tieMarker.FindStringSubmatch(t); m != nil {
		num = m[1]
	}
	f, ok := parseFloat(num)
	if !ok || !(f >= math.MinInt && f < math.MaxInt) {
		return t, true
	}
	return int(f), true
}

// ParsePoints coerces a score column to a float, keeping text on failure.
func ParsePoints(text string) (any, bool) {
	t := strings.TrimSpace(text)
	if t == "" {
		return nil, false
	}
	num := t
	if m := tieMarker.FindStringSubmatch(t); m != nil {
		num = m[1]
	}
	f, ok := parseFloat(num)
	if !ok {
		return t, true
	}
	return f, true
}

// ParseMeasurement coerces a throw, height or time. Null tokens are absent,
// times stay verbatim, feet-and-inches become decimal feet and other values
// are parsed as floats where possible.
func ParseMeasurement(text string, nullTokens []string) (any, bool) {
	t := strings.TrimSpace(text)
	upper := strings.ToUpper(t)
	for _, tok := range nullTokens {
		if upper == strings.ToUpper(tok) {
			return nil, false
		}
	}
	if strings.Contains(t, ":") {
		return t, true
	}
	if m := feetInches.FindStringSubmatch(t); m != nil {
		feet, _ := strconv.ParseFloat(m[1], 64)
		inches, ok := parseFloat(m[2])
		if !ok {
			inches = 0
		}
		return round3(feet + inches/12), true
	}
	if parts := strings.Split(t, "-"); len(parts) == 2 {
		feet, okFeet := parseFloat(strings.TrimSpace(parts[0]))
		inches, okInches := parseFloat(strings.TrimSpace(parts[1]))
		if okFeet && okInches {
			return round3(feet + inches/12), true
		}
	}
	if f, ok := parseFloat(t); ok {
		return f, true
	}
	return t, true
}

// NormalizeName collapses whitespace and rewrites "Last, First" as "First Last".
func NormalizeName(name string) string {
	name = strings.Join(strings.Fields(Clean(name)), " ")
	if strings.Count(name, ",") != 1 {
		return name
	}
	last, first, _ := strings.Cut(name, ",")
	last, first = strings.TrimSpace(last), strings.TrimSpace(first)
	if last == "" || first == "" {
		return name
	}
	return first + " " + last
}

func parseFloat(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func isNumeric(s string) bool {
	digits := strings.ReplaceAll(s, ".", "")
	if digits == "" {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
