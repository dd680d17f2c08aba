package registry

import (
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/callflow/internal/model"
)

type catalogFile struct {
	Flows []model.ObjectionFlowDefinition `yaml:"flows"`
}

// LoadCatalogFromFile reads a YAML catalog and layers it over the built-in
// definitions. A type defined in the file replaces the built-in one.
func LoadCatalogFromFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "registry: read catalog file")
	}

	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "registry: unmarshal catalog file")
	}

	overrides := make(map[model.ObjectionType]model.ObjectionFlowDefinition, len(f.Flows))
	for _, d := range f.Flows {
		if _, dup := overrides[d.Type]; dup {
			return nil, eris.Errorf("registry: catalog file defines %s twice", d.Type)
		}
		overrides[d.Type] = d
	}

	var defs []model.ObjectionFlowDefinition
	for _, d := range builtinDefinitions() {
		if o, ok := overrides[d.Type]; ok {
			d = o
			delete(overrides, d.Type)
			zap.L().Info("registry: overriding built-in flow", zap.String("type", string(d.Type)), zap.Int("steps", len(d.Steps)))
		}
		defs = append(defs, d)
	}
	// Anything left names a type the enumeration doesn't know.
	for t := range overrides {
		return nil, eris.Errorf("registry: catalog file defines unknown objection type %q", t)
	}

	return NewCatalog(defs)
}
