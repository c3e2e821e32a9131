package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/alfredjeanlab/refguard/internal/model"
	"github.com/alfredjeanlab/refguard/internal/odm"
)

// Reference-check scopes for [refs].scope.
const (
	ScopeGlobal = "global" // every model is checked
	ScopeModel  = "model"  // only models with strict_refs = true
)

// SchemaFile is the decoded form of the TOML file named by
// REFGUARD_SCHEMA_FILE.
//
//	[refs]
//	scope = "global"
//
//	[[models]]
//	name = "Profile"
//	  [[models.fields]]
//	  path = "image"
//	  type = "objectid"
//	  ref = "Image"
//	  strict = true
type SchemaFile struct {
	Refs   RefsConfig    `toml:"refs"`
	Models []ModelConfig `toml:"models"`
}

type RefsConfig struct {
	Scope string `toml:"scope"`
}

type ModelConfig struct {
	Name       string        `toml:"name"`
	StrictRefs bool          `toml:"strict_refs"`
	Fields     []FieldConfig `toml:"fields"`
}

// FieldConfig declares one field. Arrays describe their element under "of".
type FieldConfig struct {
	Path   string       `toml:"path"`
	Type   string       `toml:"type"`
	Ref    string       `toml:"ref"`
	Strict bool         `toml:"strict"`
	Of     *FieldConfig `toml:"of"`
}

// LoadSchemaFile reads and decodes path. Unknown keys are errors so that a
// misspelled "strict" cannot silently disable a check.
func LoadSchemaFile(path string) (*SchemaFile, error) {
	var f SchemaFile
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return nil, fmt.Errorf("schema file %s: %w", path, err)
	}
	if err := f.check(md); err != nil {
		return nil, fmt.Errorf("schema file %s: %w", path, err)
	}
	return &f, nil
}

// ParseSchema decodes a schema document held in memory.
func ParseSchema(data string) (*SchemaFile, error) {
	var f SchemaFile
	md, err := toml.Decode(data, &f)
	if err != nil {
		return nil, err
	}
	if err := f.check(md); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *SchemaFile) check(md toml.MetaData) error {
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	switch f.Refs.Scope {
	case "":
		f.Refs.Scope = ScopeGlobal
	case ScopeGlobal, ScopeModel:
	default:
		return fmt.Errorf("refs.scope: unknown scope %q", f.Refs.Scope)
	}

	seen := make(map[string]bool, len(f.Models))
	for i, m := range f.Models {
		if m.Name == "" {
			return fmt.Errorf("models[%d]: name is required", i)
		}
		if seen[m.Name] {
			return fmt.Errorf("model %s: declared more than once", m.Name)
		}
		seen[m.Name] = true
	}
	return nil
}

// Schema converts the declared fields into a model.Schema, keeping file order.
func (m ModelConfig) Schema() (*model.Schema, error) {
	fields := make([]model.FieldDesc, 0, len(m.Fields))
	for _, fc := range m.Fields {
		fd := fc.desc()
		if fc.Of != nil {
			if fd.Kind != model.KindArray {
				return nil, fmt.Errorf("model %s: field %s: \"of\" is only allowed on arrays, got type %q", m.Name, fc.Path, fc.Type)
			}
			if fc.Of.Of != nil {
				return nil, fmt.Errorf("model %s: field %s: nested arrays are not supported", m.Name, fc.Path)
			}
			elem := fc.Of.desc()
			fd.Elem = &elem
		}
		fields = append(fields, fd)
	}
	s := model.NewSchema(fields...)
	if err := model.ValidateSchema(s); err != nil {
		return nil, fmt.Errorf("model %s: %w", m.Name, err)
	}
	return s, nil
}

func (fc FieldConfig) desc() model.FieldDesc {
	fd := model.FieldDesc{
		Path:   fc.Path,
		Kind:   model.Kind(strings.ToLower(fc.Type)),
		Strict: fc.Strict,
	}
	if fc.Ref != "" {
		fd.Ref = model.RefName(fc.Ref)
	}
	return fd
}

// Register defines every model on reg in file order. With global scope
// check is installed with Use before the first definition; with model scope
// it is passed only to models that set strict_refs.
func (f *SchemaFile) Register(reg *odm.Registry, check model.Plugin) error {
	if f.Refs.Scope == ScopeGlobal && check != nil {
		reg.Use(check)
	}
	for _, mc := range f.Models {
		s, err := mc.Schema()
		if err != nil {
			return err
		}
		var plugins []model.Plugin
		if f.Refs.Scope == ScopeModel && mc.StrictRefs && check != nil {
			plugins = append(plugins, check)
		}
		if _, err := reg.Define(mc.Name, s, plugins...); err != nil {
			return err
		}
	}
	return nil
}
