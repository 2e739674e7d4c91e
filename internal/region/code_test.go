package region

import (
	"errors"
	"testing"
)

func TestParseCode(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		raw   string
		want  Code
		level Level
		short string
	}{
		{raw: "110000", want: "110000000000", level: LevelProvince, short: "110000"},
		{raw: "130100", want: "130100000000", level: LevelCity, short: "130100"},
		{raw: " 110101 ", want: "110101000000", level: LevelCounty, short: "110101"},
		{raw: "110101001", want: "110101001000", level: LevelTown, short: "110101001"},
		{raw: "110101001001", want: "110101001001", level: LevelVillage, short: "110101001001"},
		{raw: "441900003", want: "441900003000", level: LevelTown, short: "441900003"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.raw, func(t *testing.T) {
			got, err := ParseCode(tc.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
			if got.Level() != tc.level {
				t.Fatalf("expected level %s, got %s", tc.level, got.Level())
			}
			if got.Short() != tc.short {
				t.Fatalf("expected short form %s, got %s", tc.short, got.Short())
			}
		})
	}
}

func TestParseCodeRejectsInvalid(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "11", "1100000", "11a000", "000000", "１１００００"} {
		raw := raw
		t.Run(raw, func(t *testing.T) {
			if _, err := ParseCode(raw); !errors.Is(err, ErrInvalidCode) {
				t.Fatalf("expected ErrInvalidCode for %q, got %v", raw, err)
			}
		})
	}
}

func TestCodeParent(t *testing.T) {
	t.Parallel()

	testCases := map[string]string{
		"130100":       "130000",
		"110101":       "110100",
		"110101001":    "110101",
		"110101001001": "110101001",
		"441900003":    "441900",
		"429004":       "429000",
	}

	for raw, wantRaw := range testCases {
		got, ok := MustParseCode(raw).Parent()
		if !ok {
			t.Fatalf("expected %s to have a parent", raw)
		}
		if want := MustParseCode(wantRaw); got != want {
			t.Fatalf("expected parent of %s to be %s, got %s", raw, want.Short(), got.Short())
		}
	}

	if _, ok := MustParseCode("110000").Parent(); ok {
		t.Fatalf("expected province to have no parent")
	}
}

func TestIsMunicipality(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"110000", "120000", "310000", "500000"} {
		if !MustParseCode(raw).IsMunicipality() {
			t.Fatalf("expected %s to be a municipality", raw)
		}
	}
	for _, raw := range []string{"130000", "440000", "110100", "110101"} {
		if MustParseCode(raw).IsMunicipality() {
			t.Fatalf("expected %s not to be a municipality", raw)
		}
	}
}

func TestLevelMarshalText(t *testing.T) {
	t.Parallel()

	text, err := LevelCounty.MarshalText()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(text) != "county" {
		t.Fatalf("expected county, got %s", text)
	}
	if Level(42).String() != "unknown" {
		t.Fatalf("expected unknown for out of range level")
	}
}
