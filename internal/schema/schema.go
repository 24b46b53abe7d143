package schema

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"finstat/internal"
	"finstat/internal/extractor"
)

const registrySchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["metrics"],
  "properties": {
    "metrics": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["standard_name", "candidate_labels", "value_kind"],
        "additionalProperties": false,
        "properties": {
          "standard_name": {"type": "string", "pattern": "^[a-z][a-z0-9_]*$"},
          "candidate_labels": {
            "type": "array",
            "minItems": 1,
            "items": {"type": "string", "minLength": 1}
          },
          "value_kind": {"enum": ["amount", "ratio", "count"]}
        }
      }
    }
  }
}`

type registryFile struct {
	Metrics []internal.MetricDefinition `json:"metrics" yaml:"metrics"`
}

// Load returns the registry stored at path, or the built-in registry when
// path is empty.
func Load(path string) ([]internal.MetricDefinition, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read metric registry %s", path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return Parse(blob, false)
	default:
		return Parse(blob, true)
	}
}

// Parse decodes a registry document, validates it against the registry JSON
// Schema and checks the invariants the extractor relies on.
func Parse(blob []byte, isYAML bool) ([]internal.MetricDefinition, error) {
	data := blob
	if isYAML {
		var doc any
		if err := yaml.Unmarshal(blob, &doc); err != nil {
			return nil, eris.Wrap(err, "parse metric registry yaml")
		}
		converted, err := json.Marshal(doc)
		if err != nil {
			return nil, eris.Wrap(err, "convert metric registry yaml")
		}
		data = converted
	}

	if err := validateDocument(data); err != nil {
		return nil, err
	}

	var file registryFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, eris.Wrap(err, "decode metric registry")
	}
	if err := extractor.ValidateSchema(file.Metrics); err != nil {
		return nil, err
	}
	return file.Metrics, nil
}

func validateDocument(data []byte) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("registry.json", strings.NewReader(registrySchema)); err != nil {
		return eris.Wrap(err, "add registry schema")
	}
	compiled, err := compiler.Compile("registry.json")
	if err != nil {
		return eris.Wrap(err, "compile registry schema")
	}
	var v any
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&v); err != nil {
		return eris.Wrap(extractor.ErrMalformedInput, "metric registry is not valid json: "+err.Error())
	}
	if err := compiled.Validate(v); err != nil {
		return eris.Wrap(extractor.ErrMalformedInput, "metric registry does not match schema: "+err.Error())
	}
	return nil
}

// Marshal renders a registry as YAML in the format Load reads.
func Marshal(defs []internal.MetricDefinition) ([]byte, error) {
	out, err := yaml.Marshal(registryFile{Metrics: defs})
	if err != nil {
		return nil, eris.Wrap(err, "marshal metric registry")
	}
	return out, nil
}

// Names lists standard names in registry order.
func Names(defs []internal.MetricDefinition) []string {
	out := make([]string, 0, len(defs))
	for _, d := range defs {
		out = append(out, d.StandardName)
	}
	return out
}

// Subset keeps the definitions named in names, in registry order. Unknown
// names are ignored.
func Subset(defs []internal.MetricDefinition, names []string) []internal.MetricDefinition {
	want := map[string]struct{}{}
	for _, n := range names {
		want[strings.TrimSpace(n)] = struct{}{}
	}
	out := make([]internal.MetricDefinition, 0, len(names))
	for _, d := range defs {
		if _, ok := want[d.StandardName]; ok {
			out = append(out, d)
		}
	}
	return out
}
