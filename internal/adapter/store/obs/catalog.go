// Package obs resolves observational datasets through a YAML catalog and
// maps their climatologies onto the model grid.
package obs

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// ErrUnknownDataset is returned for a dataset id absent from the catalog.
var ErrUnknownDataset = errors.New("unknown observational dataset")

// Catalog lists observational datasets by id.
type Catalog struct {
	Datasets map[string]Entry `yaml:"datasets"`

	dir string
}

// Entry describes one observational climatology file.
type Entry struct {
	Path        string `yaml:"path"`
	Description string `yaml:"description,omitempty"`
	// Coordinate variable names; defaults cover WOA and most CMIP-style files.
	Lon string `yaml:"lon,omitempty"`
	Lat string `yaml:"lat,omitempty"`
	// Variables maps a diagnostic field name (MLD, SSH) to the variable in
	// the file.
	Variables map[string]string `yaml:"variables"`
}

// LoadCatalog reads a catalog file. Relative dataset paths resolve against
// the catalog's directory.
func LoadCatalog(path string) (*Catalog, error) {
	//nolint:gosec // G304: Path comes from configuration.
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	var c Catalog
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}
	for id, e := range c.Datasets {
		if e.Path == "" {
			return nil, fmt.Errorf("catalog %s: dataset %s has no path", path, id)
		}
	}
	c.dir = filepath.Dir(path)
	return &c, nil
}

// IDs returns the dataset ids in sorted order.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.Datasets))
	for id := range c.Datasets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Lookup returns the entry for id with its path resolved.
func (c *Catalog) Lookup(id string) (Entry, error) {
	e, ok := c.Datasets[id]
	if !ok {
		return Entry{}, fmt.Errorf("%w %q (available: %v)", ErrUnknownDataset, id, c.IDs())
	}
	if !filepath.IsAbs(e.Path) && c.dir != "" {
		e.Path = filepath.Join(c.dir, e.Path)
	}
	return e, nil
}

// Save writes the catalog as YAML.
func (c *Catalog) Save(path string) error {
	raw, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode catalog: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("failed to write catalog %s: %w", path, err)
	}
	return nil
}
