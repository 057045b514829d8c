package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default() invalid: %v", err)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Selector.MinStreetSimilarity != 0.30 {
		t.Errorf("min street similarity = %v, want 0.30", cfg.Selector.MinStreetSimilarity)
	}
	if cfg.Ranking.FloorArea != 0.40 {
		t.Errorf("floor area weight = %v, want 0.40", cfg.Ranking.FloorArea)
	}
	if len(cfg.Target.Markers) == 0 {
		t.Error("marker vocabulary empty")
	}
}

func TestLoadFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("selector:\n  min_street_similarity: 0.5\nranking:\n  floor_area: 0.5\n  proximity: 0.2\n  bedrooms: 0.2\n  recency: 0.1\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Selector.MinStreetSimilarity != 0.5 {
		t.Errorf("min street similarity = %v, want 0.5", cfg.Selector.MinStreetSimilarity)
	}
	if cfg.Ranking.FloorArea != 0.5 {
		t.Errorf("floor area weight = %v, want 0.5", cfg.Ranking.FloorArea)
	}
	// Untouched sections keep their defaults.
	if cfg.Dedupe.FloorAreaTolerance != 0.02 {
		t.Errorf("floor area tolerance = %v, want default 0.02", cfg.Dedupe.FloorAreaTolerance)
	}
}

func TestValidateRejectsBadWeights(t *testing.T) {
	cfg := Default()
	cfg.Ranking.FloorArea = 0.9
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() accepted weights that do not sum to 1")
	}
}
