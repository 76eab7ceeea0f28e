// Package coords recognises leaked world coordinates in chat lines.
//
// Three-axis layouts are always tried first. A three-axis hit ends detection for the
// line even when the spawn-radius policy suppresses it; two-axis layouts are only tried
// when no three-axis layout matched.
package coords

import (
	"math"
	"regexp"
	"strconv"
)

// Kind is the number of axes recovered.
type Kind int

const (
	XYZ Kind = iota
	XZ
)

// String returns XYZ or XZ.
func (k Kind) String() string {
	if k == XZ {
		return "XZ"
	}
	return "XYZ"
}

// Outcome classifies the result of Extract.
type Outcome int

const (
	// NoMatch means no layout matched or the numbers were rejected.
	NoMatch Outcome = iota
	// Matched means a coordinate should be recorded.
	Matched
	// Suppressed means a coordinate was found inside the spawn radius.
	Suppressed
)

// Match is one recognised coordinate. For XZ matches Y is "?".
// The textual fields keep the digits exactly as typed.
type Match struct {
	Kind                Kind
	X, Z                int
	XText, YText, ZText string
}

// Config is the detection policy.
type Config struct {
	DetectXZ          bool
	IgnoreSpawnRadius bool
	SpawnRadius       int
	MinCoordValue     int
}

var (
	xyzPattern = regexp.MustCompile(`(?i)(?:` +
		`(?:.*(?:x|pos)\s*[:=]?\s*(-?\d+).*(?:y|height)\s*[:=]?\s*(-?\d+).*(?:z)\s*[:=]?\s*(-?\d+).*)|` +
		`(?:.*\(\s*(-?\d+)\s*,\s*(-?\d+)\s*,\s*(-?\d+)\s*\).*)|` +
		`(?:.*\b(-?\d+)\s+(-?\d+)\s+(-?\d+)\b.*)` +
		`)`)
	xzPattern = regexp.MustCompile(`(?i)(?:` +
		`(?:.*(?:x|pos)\s*[:=]?\s*(-?\d+).*(?:z)\s*[:=]?\s*(-?\d+).*)|` +
		`(?:.*\(\s*(-?\d+)\s*,\s*(-?\d+)\s*\).*)|` +
		`(?:.*\b(-?\d{3,})\s+(-?\d{3,})\b.*)` +
		`)`)
)

// Extractor applies the coordinate layouts under a fixed policy. It is stateless and safe
// for concurrent use.
type Extractor struct {
	cfg Config
}

// NewExtractor builds an Extractor for cfg.
func NewExtractor(cfg Config) *Extractor {
	return &Extractor{cfg: cfg}
}

// Extract finds the coordinate in line, if any.
func (e *Extractor) Extract(line string) (Match, Outcome) {
	if m, ok := e.matchXYZ(line); ok {
		return m, e.spawnPolicy(m)
	}
	if !e.cfg.DetectXZ {
		return Match{}, NoMatch
	}
	m, ok := e.matchXZ(line)
	if !ok {
		return Match{}, NoMatch
	}
	if abs(m.X) < e.cfg.MinCoordValue && abs(m.Z) < e.cfg.MinCoordValue {
		return Match{}, NoMatch
	}
	return m, e.spawnPolicy(m)
}

func (e *Extractor) matchXYZ(line string) (Match, bool) {
	groups := xyzPattern.FindStringSubmatch(line)
	if groups == nil {
		return Match{}, false
	}
	x, y, z, ok := firstTriple(groups)
	if !ok {
		return Match{}, false
	}
	return build(XYZ, x, y, z)
}

func (e *Extractor) matchXZ(line string) (Match, bool) {
	groups := xzPattern.FindStringSubmatch(line)
	if groups == nil {
		return Match{}, false
	}
	x, z, ok := firstPair(groups)
	if !ok {
		return Match{}, false
	}
	return build(XZ, x, "?", z)
}

// firstTriple returns the first populated group set of 1-3, 4-6 or 7-9.
func firstTriple(groups []string) (string, string, string, bool) {
	for i := 1; i+2 < len(groups); i += 3 {
		if groups[i] != "" {
			return groups[i], groups[i+1], groups[i+2], true
		}
	}
	return "", "", "", false
}

// firstPair returns the first populated group set of 1-2, 3-4 or 5-6.
func firstPair(groups []string) (string, string, bool) {
	for i := 1; i+1 < len(groups); i += 2 {
		if groups[i] != "" {
			return groups[i], groups[i+1], true
		}
	}
	return "", "", false
}

// build parses x and z as 32-bit integers. Out-of-range text abandons the layout.
func build(kind Kind, xText, yText, zText string) (Match, bool) {
	x, err := strconv.ParseInt(xText, 10, 32)
	if err != nil {
		return Match{}, false
	}
	z, err := strconv.ParseInt(zText, 10, 32)
	if err != nil {
		return Match{}, false
	}
	return Match{Kind: kind, X: int(x), Z: int(z), XText: xText, YText: yText, ZText: zText}, true
}

func (e *Extractor) spawnPolicy(m Match) Outcome {
	if e.cfg.IgnoreSpawnRadius && math.Hypot(float64(m.X), float64(m.Z)) <= float64(e.cfg.SpawnRadius) {
		return Suppressed
	}
	return Matched
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
