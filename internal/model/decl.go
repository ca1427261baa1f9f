package model

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gkeb/node4j/internal/types"
)

// Declarations is the YAML form of a set of kinds, used by the CLI to
// apply schemas and compile filters without Go model code.
//
//	kinds:
//	  - name: Person
//	    fields:
//	      - {name: name, type: string, required: true}
//	    constraints: [[email]]
//	    relationships:
//	      - {name: works_at, type: WORKS_AT, target: Company}
type Declarations struct {
	Kinds []KindDecl `yaml:"kinds"`
}

// KindDecl is the YAML form of an EntityKind.
type KindDecl struct {
	Name          string      `yaml:"name"`
	Labels        []string    `yaml:"labels,omitempty"`
	Extends       string      `yaml:"extends,omitempty"`
	Fields        []FieldDecl `yaml:"fields,omitempty"`
	Indexes       [][]string  `yaml:"indexes,omitempty"`
	Constraints   [][]string  `yaml:"constraints,omitempty"`
	Relationships []RelDecl   `yaml:"relationships,omitempty"`
	SoftDelete    bool        `yaml:"soft_delete,omitempty"`
	TTL           string      `yaml:"ttl,omitempty"`
}

// FieldDecl is the YAML form of a Field.
type FieldDecl struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Required bool   `yaml:"required,omitempty"`
	Validate string `yaml:"validate,omitempty"`
	Default  any    `yaml:"default,omitempty"`
}

// RelDecl is the YAML form of a Relationship.
type RelDecl struct {
	Name       string      `yaml:"name"`
	Type       string      `yaml:"type"`
	Direction  string      `yaml:"direction,omitempty"`
	Target     string      `yaml:"target"`
	Properties []FieldDecl `yaml:"properties,omitempty"`
}

// LoadDeclarationsFile reads declarations from a YAML file.
func LoadDeclarationsFile(path string) (*Declarations, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.WrapError(types.CONFIG_LOAD_FAILED, fmt.Sprintf("failed to read model file %s", path), err)
	}
	return LoadDeclarations(bytes.NewReader(data))
}

// LoadDeclarations decodes declarations from YAML. Unknown keys are errors.
func LoadDeclarations(r io.Reader) (*Declarations, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var d Declarations
	if err := dec.Decode(&d); err != nil && err != io.EOF {
		return nil, types.WrapError(types.CONFIG_PARSE_FAILED, "failed to parse model declarations", err)
	}
	return &d, nil
}

// EntityKinds converts the declarations to EntityKinds.
func (d *Declarations) EntityKinds() ([]EntityKind, error) {
	out := make([]EntityKind, 0, len(d.Kinds))
	for _, kd := range d.Kinds {
		k := EntityKind{
			Name:       kd.Name,
			Labels:     kd.Labels,
			Extends:    kd.Extends,
			Fields:     convertFields(kd.Fields),
			SoftDelete: kd.SoftDelete,
		}
		for _, idx := range kd.Indexes {
			k.Indexes = append(k.Indexes, Index{Fields: idx})
		}
		for _, c := range kd.Constraints {
			k.Constraints = append(k.Constraints, Constraint{Fields: c})
		}
		for _, rd := range kd.Relationships {
			k.Relationships = append(k.Relationships, Relationship{
				Name:   rd.Name,
				Target: rd.Target,
				Edge: EdgeKind{
					Type:       rd.Type,
					Direction:  Direction(rd.Direction),
					Properties: convertFields(rd.Properties),
				},
			})
		}
		if kd.TTL != "" {
			ttl, err := time.ParseDuration(kd.TTL)
			if err != nil {
				return nil, types.WrapError(types.CONFIG_PARSE_FAILED, fmt.Sprintf("kind %s: invalid ttl", kd.Name), err)
			}
			k.TTL = &ttl
		}
		out = append(out, k)
	}
	return out, nil
}

// Registry registers the declared kinds in a new registry and freezes it.
func (d *Declarations) Registry() (*Registry, error) {
	kinds, err := d.EntityKinds()
	if err != nil {
		return nil, err
	}
	reg := NewRegistry()
	for _, k := range kinds {
		if err := reg.Register(k); err != nil {
			return nil, err
		}
	}
	if err := reg.Freeze(); err != nil {
		return nil, err
	}
	return reg, nil
}

func convertFields(decls []FieldDecl) []Field {
	out := make([]Field, 0, len(decls))
	for _, fd := range decls {
		out = append(out, Field{
			Name:     fd.Name,
			Type:     FieldType(fd.Type),
			Required: fd.Required,
			Validate: fd.Validate,
			Default:  fd.Default,
		})
	}
	return out
}
