// Package review serves the records flagged for manual review - merge
// conflicts and ambiguous certificate matches - over a small JSON API.
// Ambiguity is never resolved silently: every tied candidate list is kept
// and exposed here.
package review

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/comps-engine/internal/selector"
)

// Item is one record awaiting a human decision.
type Item struct {
	ID         int               `json:"id"`
	Address    string            `json:"address"`
	Postcode   string            `json:"postcode,omitempty"`
	Reason     string            `json:"reason"`
	Candidates []selector.Scored `json:"candidates,omitempty"`
	Resolved   bool              `json:"resolved"`
	Resolution string            `json:"resolution,omitempty"`
}

// Save writes review items to a JSON file next to the pipeline output.
func Save(path string, items []Item) error {
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal review items: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Load reads review items saved by a previous run.
func Load(path string) ([]Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return items, nil
}
