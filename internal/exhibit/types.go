// Package exhibit holds the museum's feature catalog: the exhibits, rooms and
// points of interest a visitor can ask about or be guided to.
//
// The catalog is loaded from a YAML file at startup (see [LoadCatalogFile])
// and imported into a [Store]. The chat layer reads it through [Store.List],
// whose ordering is significant: when several features could match a message
// the first one in catalog order wins.
//
// All store operations are safe for concurrent use.
package exhibit

// Feature is a single catalog entry.
type Feature struct {
	// ID is a unique identifier. Generated on import when empty.
	ID string `yaml:"id" json:"id"`

	// Name is the display name, matched against visitor messages as a
	// whole-word, case-insensitive phrase (e.g. "Rosetta Stone").
	Name string `yaml:"name" json:"name"`

	// Description is read back to the visitor for information requests.
	Description string `yaml:"description" json:"description"`

	// Anchor identifies the navigation destination on the client (the AR
	// anchor or waypoint the avatar walks towards).
	Anchor string `yaml:"anchor" json:"anchor"`

	// Tags are free-form labels (gallery, floor, era...).
	Tags []string `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// Names returns the names of features in order.
func Names(features []Feature) []string {
	names := make([]string, len(features))
	for i, f := range features {
		names[i] = f.Name
	}
	return names
}
