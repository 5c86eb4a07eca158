package models

import "slices"

// DefaultGroup is the debounce group of fields not listed in Collection.Groups.
const DefaultGroup = "fields"

// Collection describes one kind of record.
type Collection struct {
	Name       string
	LabelField string
	// Fields lists the editable fields in display order.
	Fields []string
	// Groups assigns fields to debounce groups; unlisted fields use DefaultGroup.
	Groups  map[string]string
	Scoped  bool
	Ordered bool
}

func (c Collection) Editable(field string) bool {
	return slices.Contains(c.Fields, field)
}

func (c Collection) GroupOf(field string) string {
	if g, ok := c.Groups[field]; ok {
		return g
	}
	return DefaultGroup
}

// GroupFields lists the editable fields belonging to group.
func (c Collection) GroupFields(group string) []string {
	var out []string
	for _, f := range c.Fields {
		if c.GroupOf(f) == group {
			out = append(out, f)
		}
	}
	return out
}

// GroupNames lists the debounce groups in field order.
func (c Collection) GroupNames() []string {
	var out []string
	for _, f := range c.Fields {
		if g := c.GroupOf(f); !slices.Contains(out, g) {
			out = append(out, g)
		}
	}
	return out
}

var (
	Projects = Collection{
		Name:       "projects",
		LabelField: "name",
		Fields:     []string{"name", "description", "url"},
	}
	Locations = Collection{
		Name:       "locations",
		LabelField: "name",
		Fields:     []string{"name", "description", "geolocation", "comment", "thumbnailUrl", "images"},
		Scoped:     true,
		Ordered:    true,
	}
	Characters = Collection{
		Name:       "characters",
		LabelField: "name",
		Fields:     []string{"name", "description", "comment", "imageUrl"},
		Scoped:     true,
		Ordered:    true,
	}
	Scenes = Collection{
		Name:       "scenes",
		LabelField: "name",
		Fields:     []string{"number", "name", "description", "comment", "locationId", "characters", "shots"},
		Groups:     map[string]string{"shots": "shots"},
		Scoped:     true,
		Ordered:    true,
	}
	// Singletons holds scope-independent documents such as settings.
	Singletons = Collection{
		Name:   "singletons",
		Fields: []string{"aspectRatio", "useRandomSeed", "customSeed", "aiApiKey"},
	}
)

// ScopedCollections lists every collection partitioned by project.
func ScopedCollections() []Collection {
	return []Collection{Locations, Characters, Scenes}
}

// Lookup finds a built-in collection by name.
func Lookup(name string) (Collection, bool) {
	for _, c := range append(ScopedCollections(), Projects, Singletons) {
		if c.Name == name {
			return c, true
		}
	}
	return Collection{}, false
}
