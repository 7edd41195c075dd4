package command

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed presets.yaml
var defaultCatalog []byte

// DefaultPreset is used when no preset has been selected
const DefaultPreset = "action"

// KeywordSet holds the phrase variants for the camera start and stop commands
type KeywordSet struct {
	Name  string   `yaml:"name"`
	Label string   `yaml:"label"`
	Start []string `yaml:"start"`
	Stop  []string `yaml:"stop"`
}

// Validate checks that every phrase fits the camera window and that start and
// stop never share a phrase.
func (k KeywordSet) Validate() error {
	if strings.TrimSpace(k.Name) == "" {
		return errors.New("keyword set name must not be empty")
	}
	if len(k.Start) == 0 || len(k.Stop) == 0 {
		return fmt.Errorf("keyword set %q needs at least one start and one stop phrase", k.Name)
	}

	window := Camera.Window()
	starts := make(map[string]struct{}, len(k.Start))
	for _, phrase := range k.Start {
		normalized := normalizePhrase(phrase)
		if n := len(Tokenize(phrase)); n != window {
			return fmt.Errorf("keyword set %q: start phrase %q has %d words, want %d", k.Name, phrase, n, window)
		}
		starts[normalized] = struct{}{}
	}
	for _, phrase := range k.Stop {
		normalized := normalizePhrase(phrase)
		if n := len(Tokenize(phrase)); n != window {
			return fmt.Errorf("keyword set %q: stop phrase %q has %d words, want %d", k.Name, phrase, n, window)
		}
		if _, clash := starts[normalized]; clash {
			return fmt.Errorf("keyword set %q: phrase %q used for both start and stop", k.Name, phrase)
		}
	}
	return nil
}

// Catalog is the closed set of keyword presets a user can pick from
type Catalog struct {
	presets map[string]KeywordSet
	order   []string
}

type catalogFile struct {
	Presets []KeywordSet `yaml:"presets"`
}

// DefaultCatalog returns the presets compiled into the binary
func DefaultCatalog() *Catalog {
	catalog, err := ParseCatalog(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded keyword catalog is invalid: %v", err))
	}
	return catalog
}

// LoadCatalog reads a preset catalog from a YAML file. An empty path yields the
// embedded catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keyword catalog: %w", err)
	}
	catalog, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse keyword catalog %q: %w", path, err)
	}
	return catalog, nil
}

// ParseCatalog decodes and validates a YAML preset list
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	if len(file.Presets) == 0 {
		return nil, errors.New("catalog contains no presets")
	}

	catalog := &Catalog{presets: make(map[string]KeywordSet, len(file.Presets))}
	for _, preset := range file.Presets {
		preset.Name = strings.ToLower(strings.TrimSpace(preset.Name))
		if err := preset.Validate(); err != nil {
			return nil, err
		}
		if _, dup := catalog.presets[preset.Name]; dup {
			return nil, fmt.Errorf("duplicate preset %q", preset.Name)
		}
		catalog.presets[preset.Name] = preset
		catalog.order = append(catalog.order, preset.Name)
	}
	return catalog, nil
}

// Lookup returns the preset with the given name
func (c *Catalog) Lookup(name string) (KeywordSet, bool) {
	preset, ok := c.presets[strings.ToLower(strings.TrimSpace(name))]
	return preset, ok
}

// Default returns the "action" preset, or the first preset of a custom catalog
func (c *Catalog) Default() KeywordSet {
	if preset, ok := c.presets[DefaultPreset]; ok {
		return preset
	}
	return c.presets[c.order[0]]
}

// Names lists preset names in catalog order
func (c *Catalog) Names() []string {
	names := make([]string, len(c.order))
	copy(names, c.order)
	return names
}
