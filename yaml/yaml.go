// Package yaml loads engine configuration and schema registrations from a
// YAML file.
//
//	max_line_length: 65536
//	inactivity_timeout: 30s
//	output_schema: answer
//	schemas:
//	  - name: get_weather
//	    strict: true
//	    schema:
//	      type: object
//	      properties:
//	        city: {type: string}
//	      required: [city]
//	  - name: answer
//	    file: schemas/answer.json
//
// Inline schemas keep their key order. File paths are relative to the
// configuration file.
package yaml

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fwojciec/relay"
	"github.com/fwojciec/relay/schema"
	"gopkg.in/yaml.v3"
)

// File is a loaded configuration file.
type File struct {
	Config  relay.Config
	Schemas []relay.SchemaDefinition
}

// Registry compiles the file's schemas.
func (f File) Registry() (*schema.Registry, error) {
	return schema.NewRegistry(f.Schemas...)
}

type fileDTO struct {
	MaxLineLength     int         `yaml:"max_line_length"`
	InactivityTimeout string      `yaml:"inactivity_timeout"`
	OutputSchema      string      `yaml:"output_schema"`
	Schemas           []schemaDTO `yaml:"schemas"`
}

type schemaDTO struct {
	Name         string    `yaml:"name"`
	File         string    `yaml:"file"`
	Schema       yaml.Node `yaml:"schema"`
	Strict       bool      `yaml:"strict"`
	AllowUnknown bool      `yaml:"allow_unknown"`
	MaxDepth     int       `yaml:"max_depth"`
}

// Load reads a configuration file. Schema file paths are resolved
// relative to the directory containing path.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read config file: %w", err)
	}
	f, err := Parse(data, filepath.Dir(path))
	if err != nil {
		return File{}, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes configuration data. Schema file paths are resolved
// relative to dir. Unknown keys are rejected.
func Parse(data []byte, dir string) (File, error) {
	var dto fileDTO
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&dto); err != nil && !errors.Is(err, io.EOF) {
		return File{}, fmt.Errorf("parse config: %w", err)
	}

	f := File{
		Config: relay.Config{
			MaxLineLength: dto.MaxLineLength,
			OutputSchema:  dto.OutputSchema,
		},
	}
	if dto.InactivityTimeout != "" {
		d, err := time.ParseDuration(dto.InactivityTimeout)
		if err != nil {
			return File{}, fmt.Errorf("inactivity_timeout: %w: %w", relay.ErrValidation, err)
		}
		f.Config.InactivityTimeout = d
	}
	if err := f.Config.Validate(); err != nil {
		return File{}, err
	}

	names := make(map[string]bool, len(dto.Schemas))
	for i, s := range dto.Schemas {
		def, err := s.definition(dir)
		if err != nil {
			return File{}, fmt.Errorf("schemas[%d]: %w", i, err)
		}
		names[def.Name] = true
		f.Schemas = append(f.Schemas, def)
	}
	if o := f.Config.OutputSchema; o != "" && !names[o] {
		return File{}, fmt.Errorf("output_schema %q: %w", o, relay.ErrSchemaNotFound)
	}
	return f, nil
}

func (s schemaDTO) definition(dir string) (relay.SchemaDefinition, error) {
	if s.Name == "" {
		return relay.SchemaDefinition{}, fmt.Errorf("name is required: %w", relay.ErrValidation)
	}
	inline := s.Schema.Kind != 0
	if inline == (s.File != "") {
		return relay.SchemaDefinition{}, fmt.Errorf("%s: exactly one of schema and file is required: %w", s.Name, relay.ErrValidation)
	}
	opts := relay.SchemaOptions{Strict: s.Strict, AllowUnknown: s.AllowUnknown, MaxDepth: s.MaxDepth}
	if err := opts.Validate(); err != nil {
		return relay.SchemaDefinition{}, fmt.Errorf("%s: %w", s.Name, err)
	}

	var (
		doc *relay.Schema
		err error
	)
	if inline {
		doc, err = decodeSchema(&s.Schema)
	} else {
		path := s.File
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		doc, err = LoadSchema(path)
	}
	if err != nil {
		return relay.SchemaDefinition{}, fmt.Errorf("%s: %w", s.Name, err)
	}
	return relay.SchemaDefinition{Name: s.Name, Schema: doc, Options: opts}, nil
}

// LoadSchema reads a schema document. JSON is accepted as a subset of YAML.
func LoadSchema(path string) (*relay.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	var n yaml.Node
	if err := yaml.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("parse schema file %s: %w", path, err)
	}
	if n.Kind == 0 {
		return nil, fmt.Errorf("schema file %s is empty: %w", path, relay.ErrValidation)
	}
	return decodeSchema(&n)
}

func decodeSchema(n *yaml.Node) (*relay.Schema, error) {
	data, err := toJSON(n)
	if err != nil {
		return nil, err
	}
	var s relay.Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	return &s, nil
}
