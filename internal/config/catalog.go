package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

//go:embed catalog.toml
var defaultCatalog []byte

// Catalog is the static set of XP rules and seed quests.
type Catalog struct {
	Rules  []CatalogRule  `toml:"rule"`
	Quests []CatalogQuest `toml:"quest"`
}

// CatalogRule maps an event type to its award policy.
type CatalogRule struct {
	EventType       string `toml:"event_type"`
	XP              int64  `toml:"xp"`
	MaxPerWindow    int    `toml:"max_per_window"`
	Window          string `toml:"window"`
	CooldownSeconds int64  `toml:"cooldown_seconds"`
	Disabled        bool   `toml:"disabled"`
	Description     string `toml:"description"`
}

// CatalogQuest is a seed quest definition.
type CatalogQuest struct {
	Name         string `toml:"name"`
	Description  string `toml:"description"`
	Cadence      string `toml:"cadence"`
	Rule         string `toml:"rule"`
	EventType    string `toml:"event_type"`
	TargetCount  int64  `toml:"target_count"`
	TargetXP     int64  `toml:"target_xp"`
	TargetAmount int64  `toml:"target_amount"`
	RewardXP     int64  `toml:"reward_xp"`
	Icon         string `toml:"icon"`
	Category     string `toml:"category"`
	Difficulty   string `toml:"difficulty"`
	DisplayOrder int    `toml:"display_order"`
	Disabled     bool   `toml:"disabled"`
}

// ParseCatalog decodes a TOML catalog. Unknown keys are rejected so typos
// do not silently drop a policy.
func ParseCatalog(b []byte) (*Catalog, error) {
	var c Catalog
	dec := toml.NewDecoder(bytes.NewReader(b)).DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return &c, nil
}

// LoadCatalog reads the catalog at path, or the embedded default when path
// is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return ParseCatalog(defaultCatalog)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return ParseCatalog(b)
}
