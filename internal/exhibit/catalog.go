package exhibit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Catalog is the top-level structure of a museum catalog YAML file.
//
// Example:
//
//	museum:
//	  name: "City Museum"
//	features:
//	  - name: "Rosetta Stone"
//	    anchor: "hall-egypt-04"
//	    description: "A granodiorite stele inscribed in three scripts."
type Catalog struct {
	Museum   MuseumMeta `yaml:"museum"`
	Features []Feature  `yaml:"features"`
}

// MuseumMeta holds catalog-level metadata.
type MuseumMeta struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// LoadCatalogFile reads and parses a catalog YAML file from disk.
func LoadCatalogFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("exhibit: open catalog %q: %w", path, err)
	}
	defer f.Close()

	cat, err := LoadCatalogFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("exhibit: parse catalog %q: %w", path, err)
	}
	return cat, nil
}

// LoadCatalogFromReader parses catalog YAML from r. Unknown keys are
// rejected to catch typos. Every feature is validated; all problems are
// reported together.
func LoadCatalogFromReader(r io.Reader) (*Catalog, error) {
	var cat Catalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cat); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("exhibit: decode catalog yaml: %w", err)
	}

	var errs []error
	for i, f := range cat.Features {
		if err := Validate(f); err != nil {
			errs = append(errs, fmt.Errorf("features[%d] (%q): %w", i, f.Name, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &cat, nil
}

// ImportCatalog imports every feature of cat into store, in file order.
func ImportCatalog(ctx context.Context, store Store, cat *Catalog) (int, error) {
	if cat == nil {
		return 0, errors.New("exhibit: catalog must not be nil")
	}
	n, err := store.BulkImport(ctx, cat.Features)
	if err != nil {
		return n, fmt.Errorf("exhibit: import catalog %q: %w", cat.Museum.Name, err)
	}
	return n, nil
}
