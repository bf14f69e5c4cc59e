package assistant

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

type Category string

const (
	CategoryAppreciation Category = "appreciation"
	CategoryExplanation  Category = "explanation"
	CategoryCreation     Category = "creation"
	CategoryGeneral      Category = "general"
)

// classifyOrder is the keyword precedence; the first family that matches wins.
var classifyOrder = []Category{CategoryAppreciation, CategoryExplanation, CategoryCreation}

// Categories lists every template category, general last.
var Categories = []Category{CategoryAppreciation, CategoryExplanation, CategoryCreation, CategoryGeneral}

//go:embed catalog.toml
var defaultCatalog []byte

// Catalog holds the templates and vocabulary the generator draws from.
type Catalog struct {
	Openings   []string            `toml:"openings"`
	Closing    string              `toml:"closing"`
	MinLength  int                 `toml:"min_length"`
	Keywords   map[string][]string `toml:"keywords"`
	Templates  map[string][]string `toml:"templates"`
	Vocabulary map[string][]string `toml:"vocabulary"`
}

// ParseCatalog decodes and validates a TOML catalogue.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if _, err := toml.Decode(string(data), &c); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadCatalog reads a catalogue from path, or returns the embedded default
// when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return ParseCatalog(defaultCatalog)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	return ParseCatalog(data)
}

// DefaultCatalog returns the embedded catalogue.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog is invalid: %v", err))
	}
	return c
}

func (c *Catalog) validate() error {
	if len(c.Openings) == 0 {
		return fmt.Errorf("catalog has no openings")
	}
	for _, cat := range Categories {
		if len(c.Templates[string(cat)]) == 0 {
			return fmt.Errorf("catalog has no templates for category %q", cat)
		}
	}
	if c.MinLength < 0 {
		return fmt.Errorf("catalog min_length must not be negative")
	}
	return nil
}
