package parser

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Ramsey-B/bynight/pkg/models"
)

// Definition describes how one source's JSON payload maps onto raw records.
type Definition struct {
	Name             string            `yaml:"name"`
	Version          string            `yaml:"version"`
	ExternalIDPrefix string            `yaml:"external_id_prefix"`
	Records          string            `yaml:"records"`
	Fields           map[string]string `yaml:"fields"`
	Defaults         map[string]string `yaml:"defaults"`
}

func (d *Definition) validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("source definition without a name")
	}
	if len(d.Fields) == 0 {
		return fmt.Errorf("source %q has no fields", d.Name)
	}
	for key := range d.Fields {
		if !isKnownField(key) {
			return fmt.Errorf("source %q maps unknown field %q", d.Name, key)
		}
	}
	var scratch models.RawRecord
	for key, value := range d.Defaults {
		if !isKnownField(key) {
			return fmt.Errorf("source %q has a default for unknown field %q", d.Name, key)
		}
		if err := setField(&scratch, key, value); err != nil {
			return fmt.Errorf("source %q default %s: %w", d.Name, key, err)
		}
	}
	return nil
}

// Catalog holds the source definitions by name.
type Catalog struct {
	sources map[string]*Definition
}

type catalogFile struct {
	Sources []*Definition `yaml:"sources"`
}

func NewCatalog(definitions ...*Definition) (*Catalog, error) {
	c := &Catalog{sources: make(map[string]*Definition, len(definitions))}
	for _, d := range definitions {
		if err := d.validate(); err != nil {
			return nil, err
		}
		if _, exists := c.sources[d.Name]; exists {
			return nil, fmt.Errorf("source %q is defined twice", d.Name)
		}
		c.sources[d.Name] = d
	}
	return c, nil
}

// ParseCatalog reads a YAML document with a top level "sources" list.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse source catalog: %w", err)
	}
	return NewCatalog(file.Sources...)
}

func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read source catalog %s: %w", path, err)
	}
	return ParseCatalog(data)
}

func (c *Catalog) Get(name string) (*Definition, bool) {
	if c == nil {
		return nil, false
	}
	d, ok := c.sources[name]
	return d, ok
}

func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.sources))
	for name := range c.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
