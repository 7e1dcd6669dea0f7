package search

import (
	"fmt"
	"regexp"
	"strings"
)

// ModelIdentity is the combination of model name and output dimensionality.
// Vector collections are partitioned by it.
type ModelIdentity struct {
	name      string
	dimension int
}

// NewModelIdentity creates a ModelIdentity.
func NewModelIdentity(name string, dimension int) (ModelIdentity, error) {
	if strings.TrimSpace(name) == "" {
		return ModelIdentity{}, fmt.Errorf("model identity: name is required")
	}
	if dimension <= 0 {
		return ModelIdentity{}, fmt.Errorf("model identity: dimension must be positive, got %d", dimension)
	}
	return ModelIdentity{name: name, dimension: dimension}, nil
}

// Name returns the model name.
func (m ModelIdentity) Name() string { return m.name }

// Dimension returns the vector length the model produces.
func (m ModelIdentity) Dimension() int { return m.dimension }

// String renders the identity as name/dimension.
func (m ModelIdentity) String() string { return fmt.Sprintf("%s/%d", m.name, m.dimension) }

// Collection is a named vector collection bound to a model identity.
type Collection struct {
	name     string
	identity ModelIdentity
}

var collectionNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// NewCollection creates a Collection. Names are lower-case identifiers so
// they can double as table names.
func NewCollection(name string, identity ModelIdentity) (Collection, error) {
	if !collectionNamePattern.MatchString(name) {
		return Collection{}, fmt.Errorf("collection name %q must match %s", name, collectionNamePattern)
	}
	return Collection{name: name, identity: identity}, nil
}

// CollectionName derives a collection name from a model identity, e.g.
// "text-embedding-3-small" at 1536 becomes "text_embedding_3_small_1536".
func CollectionName(identity ModelIdentity) string {
	var b strings.Builder
	for _, r := range strings.ToLower(identity.Name()) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	name := strings.Trim(b.String(), "_")
	if name == "" || name[0] < 'a' || name[0] > 'z' {
		name = "m_" + name
	}
	suffix := fmt.Sprintf("_%d", identity.Dimension())
	if len(name)+len(suffix) > 63 {
		name = name[:63-len(suffix)]
	}
	return name + suffix
}

// Name returns the collection name.
func (c Collection) Name() string { return c.name }

// Identity returns the declared model identity.
func (c Collection) Identity() ModelIdentity { return c.identity }

// Model returns the declared model name.
func (c Collection) Model() string { return c.identity.Name() }

// Dimension returns the declared dimensionality.
func (c Collection) Dimension() int { return c.identity.Dimension() }
