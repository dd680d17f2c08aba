// Package registry holds the static catalogs the call-flow engines read:
// objection flow definitions and the milestone script.
package registry

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/callflow/internal/model"
)

// Catalog is an immutable, validated set of objection flow definitions.
type Catalog struct {
	defs  map[model.ObjectionType]model.ObjectionFlowDefinition
	order []model.ObjectionType
}

// NewCatalog validates defs and indexes them by type. Duplicate types are
// rejected.
func NewCatalog(defs []model.ObjectionFlowDefinition) (*Catalog, error) {
	c := &Catalog{defs: make(map[model.ObjectionType]model.ObjectionFlowDefinition, len(defs))}
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return nil, eris.Wrap(err, "registry: invalid definition")
		}
		if _, dup := c.defs[d.Type]; dup {
			return nil, eris.Errorf("registry: duplicate definition for %s", d.Type)
		}
		c.defs[d.Type] = d
		c.order = append(c.order, d.Type)
	}
	return c, nil
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := NewCatalog(builtinDefinitions())
	if err != nil {
		panic(err)
	}
	return c
}

// Lookup returns the definition registered for t.
func (c *Catalog) Lookup(t model.ObjectionType) (model.ObjectionFlowDefinition, bool) {
	d, ok := c.defs[t]
	return d, ok
}

// Definitions returns all definitions in registration order.
func (c *Catalog) Definitions() []model.ObjectionFlowDefinition {
	out := make([]model.ObjectionFlowDefinition, 0, len(c.order))
	for _, t := range c.order {
		out = append(out, c.defs[t])
	}
	return out
}

// Len returns the number of registered definitions.
func (c *Catalog) Len() int {
	return len(c.order)
}
