// Package schema declares the payload shape of each event source.
//
// Schemas back two boundaries: the normalizer rejects payloads that do not
// conform, and listener creation rejects conditions referencing fields a
// source never produces. Both checks happen before anything enters the
// pipeline, so the matcher can assume well-shaped payloads.
package schema

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/alfredjeanlab/reflex/internal/model"
)

//go:embed sources.toml
var defaultSources []byte

// Source describes the payload contract of a single event source.
type Source struct {
	Fields   map[string]model.FieldType
	Required []string
}

// Registry holds the schemas of all known sources.
type Registry struct {
	sources map[model.SourceID]Source
}

// tomlFile mirrors the on-disk schema layout.
type tomlFile struct {
	Sources map[string]tomlSource `toml:"sources"`
}

type tomlSource struct {
	Fields   map[string]string `toml:"fields"`
	Required []string          `toml:"required"`
}

// Default returns the registry built from the embedded sources.toml.
func Default() (*Registry, error) {
	return parse(defaultSources)
}

// LoadFile reads a schema registry from a TOML file, replacing the defaults.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file %s: %w", path, err)
	}
	return parse(data)
}

func parse(data []byte) (*Registry, error) {
	var f tomlFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}

	r := &Registry{sources: make(map[model.SourceID]Source, len(f.Sources))}
	for name, ts := range f.Sources {
		src := model.SourceID(name)
		if !src.IsValid() {
			return nil, fmt.Errorf("schema declares unknown source %q", name)
		}
		fields := make(map[string]model.FieldType, len(ts.Fields))
		for fname, ftype := range ts.Fields {
			t := model.FieldType(ftype)
			switch t {
			case model.FieldString, model.FieldNumber, model.FieldBool:
			default:
				return nil, fmt.Errorf("source %q field %q: unknown type %q", name, fname, ftype)
			}
			fields[fname] = t
		}
		for _, req := range ts.Required {
			if _, ok := fields[req]; !ok {
				return nil, fmt.Errorf("source %q requires undeclared field %q", name, req)
			}
		}
		r.sources[src] = Source{Fields: fields, Required: ts.Required}
	}
	return r, nil
}

// Fields returns the declared payload fields for a source.
func (r *Registry) Fields(src model.SourceID) (map[string]model.FieldType, bool) {
	s, ok := r.sources[src]
	if !ok {
		return nil, false
	}
	return s.Fields, true
}

// Sources returns the IDs of all declared sources, sorted.
func (r *Registry) Sources() []model.SourceID {
	out := make([]model.SourceID, 0, len(r.sources))
	for id := range r.sources {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ValidatePayload checks a raw payload against the source's declared fields.
// Undeclared keys, missing required fields, and type mismatches are all
// violations; the payload never enters the pipeline on failure.
func (r *Registry) ValidatePayload(src model.SourceID, payload map[string]any) error {
	s, ok := r.sources[src]
	if !ok {
		return fmt.Errorf("unknown source %q", src)
	}

	var ve model.ValidationError
	for key, val := range payload {
		ft, declared := s.Fields[key]
		if !declared {
			ve.Errors = append(ve.Errors, model.FieldError{
				Field:   key,
				Message: fmt.Sprintf("not declared for source %q", src),
			})
			continue
		}
		if !matchesType(val, ft) {
			ve.Errors = append(ve.Errors, model.FieldError{
				Field:   key,
				Message: fmt.Sprintf("expected %s, got %T", ft, val),
			})
		}
	}
	for _, req := range s.Required {
		if _, present := payload[req]; !present {
			ve.Errors = append(ve.Errors, model.FieldError{Field: req, Message: "is required"})
		}
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}

func matchesType(v any, ft model.FieldType) bool {
	switch ft {
	case model.FieldString:
		_, ok := v.(string)
		return ok
	case model.FieldNumber:
		switch v.(type) {
		case float64, float32, int, int64:
			return true
		}
		return false
	case model.FieldBool:
		_, ok := v.(bool)
		return ok
	}
	return false
}
