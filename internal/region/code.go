// Package region models Chinese administrative division codes and the
// read-only dataset of regions served by the API.
package region

import (
	"fmt"
	"strings"
)

const codeLength = 12

// groupEnds holds the exclusive end offset of each code group:
// province (2), city (2), county (2), town (3), village (3).
var groupEnds = [...]int{2, 4, 6, 9, 12}

// municipalities are the province-level cities whose data carries a
// placeholder city level.
var municipalities = map[string]struct{}{
	"11": {}, // Beijing
	"12": {}, // Tianjin
	"31": {}, // Shanghai
	"50": {}, // Chongqing
}

// Level identifies the depth of a region in the administrative hierarchy.
type Level int

const (
	LevelUnknown Level = iota
	LevelProvince
	LevelCity
	LevelCounty
	LevelTown
	LevelVillage
)

func (l Level) String() string {
	switch l {
	case LevelProvince:
		return "province"
	case LevelCity:
		return "city"
	case LevelCounty:
		return "county"
	case LevelTown:
		return "town"
	case LevelVillage:
		return "village"
	default:
		return "unknown"
	}
}

// MarshalText encodes the level by name.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// Code is a division code normalised to its 12-digit form.
type Code string

// ParseCode validates a 6, 9 or 12 digit division code and right-pads it
// to 12 digits.
func ParseCode(raw string) (Code, error) {
	raw = strings.TrimSpace(raw)
	switch len(raw) {
	case 6, 9, 12:
	default:
		return "", fmt.Errorf("%w: %q must have 6, 9 or 12 digits", ErrInvalidCode, raw)
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("%w: %q contains non-digit characters", ErrInvalidCode, raw)
		}
	}

	full := raw + strings.Repeat("0", codeLength-len(raw))
	if full[:groupEnds[0]] == "00" {
		return "", fmt.Errorf("%w: %q has an empty province part", ErrInvalidCode, raw)
	}
	return Code(full), nil
}

// MustParseCode is ParseCode for literals known to be valid.
func MustParseCode(raw string) Code {
	code, err := ParseCode(raw)
	if err != nil {
		panic(err)
	}
	return code
}

// Level reports the level implied by the lowest non-zero group.
func (c Code) Level() Level {
	if len(c) != codeLength {
		return LevelUnknown
	}
	for i := len(groupEnds) - 1; i >= 0; i-- {
		if !c.groupZero(i) {
			return Level(i + 1)
		}
	}
	return LevelUnknown
}

// Parent clears the lowest non-zero group. Provinces have no parent.
func (c Code) Parent() (Code, bool) {
	level := c.Level()
	if level <= LevelProvince {
		return "", false
	}
	idx := int(level) - 1
	start := groupEnds[idx-1]
	end := groupEnds[idx]
	return c[:start] + Code(strings.Repeat("0", end-start)) + c[end:], true
}

// Short returns the conventional printed form: 6 digits down to county,
// 9 for towns, 12 for villages.
func (c Code) Short() string {
	switch c.Level() {
	case LevelTown:
		return string(c[:groupEnds[3]])
	case LevelVillage:
		return string(c)
	case LevelUnknown:
		return string(c)
	default:
		return string(c[:groupEnds[2]])
	}
}

// IsMunicipality reports whether c is one of the province-level cities.
func (c Code) IsMunicipality() bool {
	if c.Level() != LevelProvince {
		return false
	}
	_, ok := municipalities[string(c[:groupEnds[0]])]
	return ok
}

func (c Code) groupZero(idx int) bool {
	start := 0
	if idx > 0 {
		start = groupEnds[idx-1]
	}
	for _, r := range c[start:groupEnds[idx]] {
		if r != '0' {
			return false
		}
	}
	return true
}
