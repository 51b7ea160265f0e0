// Package dataset reads the dataset descriptor shared by training and serving.
package dataset

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.yaml.in/yaml/v3"
)

//go:embed dataset.schema.json
var schemaSource string

const schemaURL = "dataset.schema.json"

// Descriptor is the subset of the descriptor this application relies on.
type Descriptor struct {
	Path  string     `yaml:"path"`
	Train Split      `yaml:"train"`
	Val   Split      `yaml:"val"`
	Test  Split      `yaml:"test"`
	NC    int        `yaml:"nc"`
	Names ClassNames `yaml:"names"`
}

// Split accepts either a single path or a list of paths.
type Split []string

func (s *Split) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*s = Split{value.Value}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := value.Decode(&items); err != nil {
			return err
		}
		*s = items
		return nil
	default:
		return fmt.Errorf("line %d: split must be a path or a list of paths", value.Line)
	}
}

// ClassNames is the name table indexed by class id. It accepts both the list
// form and the {id: name} mapping form.
type ClassNames []string

func (n *ClassNames) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var names []string
		if err := value.Decode(&names); err != nil {
			return err
		}
		*n = names
		return nil
	case yaml.MappingNode:
		var byID map[int]string
		if err := value.Decode(&byID); err != nil {
			return err
		}
		ids := make([]int, 0, len(byID))
		for id := range byID {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		names := make([]string, 0, len(ids))
		for i, id := range ids {
			if id != i {
				return fmt.Errorf("line %d: class ids must be contiguous from 0, missing %d", value.Line, i)
			}
			names = append(names, byID[id])
		}
		*n = names
		return nil
	default:
		return fmt.Errorf("line %d: names must be a list or a mapping", value.Line)
	}
}

// Load reads, validates, and decodes the descriptor at path.
func Load(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: failed to read descriptor: %w", err)
	}
	return Parse(data)
}

// Parse validates data against the descriptor schema and decodes it.
func Parse(data []byte) (*Descriptor, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("dataset: invalid YAML: %w", err)
	}

	schema, err := jsonschema.CompileString(schemaURL, schemaSource)
	if err != nil {
		return nil, fmt.Errorf("dataset: failed to compile schema: %w", err)
	}

	if err := schema.Validate(normalize(raw)); err != nil {
		return nil, fmt.Errorf("dataset: descriptor validation failed: %w", err)
	}

	var descriptor Descriptor
	if err := yaml.Unmarshal(data, &descriptor); err != nil {
		return nil, fmt.Errorf("dataset: failed to decode descriptor: %w", err)
	}

	if descriptor.NC != 0 && descriptor.NC != len(descriptor.Names) {
		return nil, fmt.Errorf("dataset: nc is %d but %d names are listed", descriptor.NC, len(descriptor.Names))
	}

	return &descriptor, nil
}

// normalize turns YAML-decoded values into JSON-compatible ones: mappings with
// non-string keys (the {0: name} form) become string-keyed maps.
func normalize(v any) any {
	switch value := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(value))
		for k, item := range value {
			out[k] = normalize(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(value))
		for k, item := range value {
			out[keyString(k)] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(value))
		for i, item := range value {
			out[i] = normalize(item)
		}
		return out
	default:
		return value
	}
}

func keyString(k any) string {
	switch key := k.(type) {
	case string:
		return key
	case int:
		return strconv.Itoa(key)
	default:
		return fmt.Sprint(key)
	}
}

// Name returns the class name for id, or a synthetic one when id is outside the table.
func (n ClassNames) Name(id int) string {
	if id >= 0 && id < len(n) {
		return n[id]
	}
	return "class_" + strconv.Itoa(id)
}
