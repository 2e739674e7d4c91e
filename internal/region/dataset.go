package region

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// placeholderNames are the pass-through city entries listed under
// municipalities.
var placeholderNames = map[string]struct{}{
	"市辖区": {},
	"县":   {},
}

// Region is a single administrative division.
type Region struct {
	Code       Code
	Name       string
	Level      Level
	ParentCode Code
}

// IsPlaceholder reports whether r is a pass-through city under a municipality.
func (r Region) IsPlaceholder() bool {
	if r.Level != LevelCity {
		return false
	}
	parent, ok := r.Code.Parent()
	if !ok || !parent.IsMunicipality() {
		return false
	}
	_, ok = placeholderNames[strings.TrimSpace(r.Name)]
	return ok
}

// Stats counts regions per level.
type Stats struct {
	Provinces int
	Cities    int
	Counties  int
	Towns     int
	Villages  int
	Total     int
}

// Dataset is an immutable, indexed set of regions.
type Dataset struct {
	byCode    map[Code]Region
	children  map[Code][]Code
	provinces []Code
	ordered   []Code
	stats     Stats
}

type entry struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Parent string `json:"parent,omitempty"`
}

// LoadFile reads a dataset from a JSON file.
func LoadFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	ds, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return ds, nil
}

// Load parses a JSON array of {code, name, parent?} entries. When parent
// is omitted it is derived from the code, skipping levels absent from the
// dataset.
func Load(r io.Reader) (*Dataset, error) {
	dec := json.NewDecoder(r)
	var entries []entry
	if err := dec.Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	// A truncated or concatenated file must not load as its first value.
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode dataset: %w", ErrTrailingData)
	}
	return build(entries)
}

func build(entries []entry) (*Dataset, error) {
	if len(entries) == 0 {
		return nil, ErrEmptyDataset
	}

	ds := &Dataset{
		byCode:   make(map[Code]Region, len(entries)),
		children: make(map[Code][]Code),
	}
	explicit := make(map[Code]Code)

	for _, e := range entries {
		code, err := ParseCode(e.Code)
		if err != nil {
			return nil, err
		}
		if _, exists := ds.byCode[code]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCode, code.Short())
		}
		name := strings.TrimSpace(e.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: %s has no name", ErrInvalidCode, code.Short())
		}
		if e.Parent != "" {
			parent, err := ParseCode(e.Parent)
			if err != nil {
				return nil, fmt.Errorf("parent of %s: %w", code.Short(), err)
			}
			explicit[code] = parent
		}
		ds.byCode[code] = Region{Code: code, Name: name, Level: code.Level()}
		ds.ordered = append(ds.ordered, code)
	}

	sort.Slice(ds.ordered, func(i, j int) bool { return ds.ordered[i] < ds.ordered[j] })

	for _, code := range ds.ordered {
		reg := ds.byCode[code]
		if reg.Level == LevelProvince {
			ds.provinces = append(ds.provinces, code)
			ds.count(reg.Level)
			continue
		}

		parent, err := ds.resolveParent(code, explicit)
		if err != nil {
			return nil, err
		}
		reg.ParentCode = parent
		ds.byCode[code] = reg
		ds.children[parent] = append(ds.children[parent], code)
		ds.count(reg.Level)
	}

	return ds, nil
}

func (d *Dataset) resolveParent(code Code, explicit map[Code]Code) (Code, error) {
	if parent, ok := explicit[code]; ok {
		preg, exists := d.byCode[parent]
		if !exists || preg.Level >= code.Level() {
			return "", fmt.Errorf("%w: %s -> %s", ErrOrphan, code.Short(), parent.Short())
		}
		return parent, nil
	}

	for cur, ok := code.Parent(); ok; cur, ok = cur.Parent() {
		if _, exists := d.byCode[cur]; exists {
			return cur, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrOrphan, code.Short())
}

func (d *Dataset) count(level Level) {
	switch level {
	case LevelProvince:
		d.stats.Provinces++
	case LevelCity:
		d.stats.Cities++
	case LevelCounty:
		d.stats.Counties++
	case LevelTown:
		d.stats.Towns++
	case LevelVillage:
		d.stats.Villages++
	}
	d.stats.Total++
}

// Len returns the number of regions.
func (d *Dataset) Len() int {
	return len(d.ordered)
}

// Stats returns per-level counts.
func (d *Dataset) Stats() Stats {
	return d.stats
}

// Provinces returns all province-level regions ordered by code.
func (d *Dataset) Provinces() []Region {
	return d.collect(d.provinces)
}

// Lookup returns the region identified by code.
func (d *Dataset) Lookup(code Code) (Region, error) {
	reg, ok := d.byCode[code]
	if !ok {
		return Region{}, fmt.Errorf("%w: %s", ErrNotFound, code.Short())
	}
	return reg, nil
}

// Children returns the direct children of code ordered by code.
func (d *Dataset) Children(code Code) ([]Region, error) {
	if _, err := d.Lookup(code); err != nil {
		return nil, err
	}
	return d.collect(d.children[code]), nil
}

// AdaptedChildren behaves like Children, except that under a municipality
// placeholder cities are replaced by their own children. The boolean
// reports whether any placeholder was skipped.
func (d *Dataset) AdaptedChildren(code Code) ([]Region, bool, error) {
	direct, err := d.Children(code)
	if err != nil {
		return nil, false, err
	}
	if !code.IsMunicipality() {
		return direct, false, nil
	}

	adapted := false
	out := make([]Region, 0, len(direct))
	for _, reg := range direct {
		if !reg.IsPlaceholder() {
			out = append(out, reg)
			continue
		}
		adapted = true
		out = append(out, d.collect(d.children[reg.Code])...)
	}
	if adapted {
		sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	}
	return out, adapted, nil
}

// Path returns the chain of regions from the province down to code.
func (d *Dataset) Path(code Code) ([]Region, error) {
	reg, err := d.Lookup(code)
	if err != nil {
		return nil, err
	}

	path := []Region{reg}
	for reg.ParentCode != "" {
		reg = d.byCode[reg.ParentCode]
		path = append(path, reg)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// Search returns up to limit regions whose name contains query, in code order.
func (d *Dataset) Search(query string, limit int) []Region {
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 {
		return []Region{}
	}

	out := make([]Region, 0, limit)
	for _, code := range d.ordered {
		reg := d.byCode[code]
		if strings.Contains(reg.Name, query) {
			out = append(out, reg)
			if len(out) == limit {
				break
			}
		}
	}
	return out
}

func (d *Dataset) collect(codes []Code) []Region {
	out := make([]Region, 0, len(codes))
	for _, code := range codes {
		out = append(out, d.byCode[code])
	}
	return out
}

// HasChildren reports whether any region lists code as its parent.
func (d *Dataset) HasChildren(code Code) bool {
	return len(d.children[code]) > 0
}
