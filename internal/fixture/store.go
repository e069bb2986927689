package fixture

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SaveAll writes one JSON file per fixture into dir (named `<id>.json`) plus
// `_index.json` (spec §6: `fixtures/_index.json` + `NNNN_METHOD_pattern.json`
// per fixture). fixtures is assumed already deduplicated/sorted.
func SaveAll(dir string, fixtures []*Fixture) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating fixtures dir: %w", err)
	}

	ids := make([]string, 0, len(fixtures))
	for _, f := range fixtures {
		raw, err := json.MarshalIndent(f, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling fixture %s: %w", f.ID, err)
		}
		path := filepath.Join(dir, f.ID+".json")
		if err := os.WriteFile(path, raw, 0o644); err != nil {
			return fmt.Errorf("writing fixture %s: %w", f.ID, err)
		}
		ids = append(ids, f.ID)
	}

	idx := Index{Count: len(ids), FixtureIDs: ids}
	raw, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling fixture index: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "_index.json"), raw, 0o644); err != nil {
		return fmt.Errorf("writing fixture index: %w", err)
	}
	return nil
}

// LoadAll reads `_index.json` from dir and every fixture it names, then
// recomputes each fixture's Priority from its Pattern (Priority is derived,
// never persisted — see Fixture.Priority's doc comment).
func LoadAll(dir string) ([]*Fixture, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "_index.json"))
	if err != nil {
		return nil, fmt.Errorf("reading fixture index: %w", err)
	}
	var idx Index
	if err := json.Unmarshal(raw, &idx); err != nil {
		return nil, fmt.Errorf("parsing fixture index: %w", err)
	}

	out := make([]*Fixture, 0, len(idx.FixtureIDs))
	for _, id := range idx.FixtureIDs {
		data, err := os.ReadFile(filepath.Join(dir, id+".json"))
		if err != nil {
			return nil, fmt.Errorf("reading fixture %s: %w", id, err)
		}
		var f Fixture
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parsing fixture %s: %w", id, err)
		}
		f.Priority = ExtractPattern(f.Request.Path).Priority
		out = append(out, &f)
	}
	return out, nil
}
