package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Binding describes how to construct one instrument driver: a module and
// class pair resolved against the driver registry, plus a free-form parameter
// mapping that the selected driver validates itself.
type Binding struct {
	Module string         `yaml:"module"`
	Class  string         `yaml:"class"`
	Params map[string]any `yaml:"params"`
}

// Key returns the registry lookup key for this binding.
func (b *Binding) Key() string {
	return b.Module + "." + b.Class
}

// DecodeParams re-marshals the binding's parameter mapping into the driver's
// typed parameter struct.
func (b *Binding) DecodeParams(out any) error {
	raw, err := yaml.Marshal(b.Params)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(raw, out)
}

// Scan describes the scan chain bit-definition file and how many extra bytes
// surround the chain content when reading back from the FPGA.
type Scan struct {
	Fname     string `yaml:"fname"`
	PreBytes  int    `yaml:"pre_bytes"`
	PostBytes int    `yaml:"post_bytes"`
}

// Config is the controller configuration document. It is read once at startup
// and never mutated afterwards.
type Config struct {
	Fpga Binding            `yaml:"fpga"`
	Scan Scan               `yaml:"scan"`
	Gpib map[string]Binding `yaml:"gpib"`
}

// Load reads and parses the configuration document at the given path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse parses and validates a configuration document. Unknown keys at any
// level are ignored so that newer documents keep loading on older builds.
func Parse(raw []byte) (*Config, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, &ParseError{Err: err}
	}

	if err := validate(doc); err != nil {
		return nil, err
	}

	config := Config{}
	if err := yaml.Unmarshal(raw, &config); err != nil {
		return nil, &ParseError{Err: err}
	}
	if config.Gpib == nil {
		config.Gpib = map[string]Binding{}
	}
	return &config, nil
}

func validate(doc map[string]any) error {
	fpga, err := mappingField(doc, "", "fpga")
	if err != nil {
		return err
	}
	if err := validateBinding(fpga, "fpga"); err != nil {
		return err
	}

	scan, err := mappingField(doc, "", "scan")
	if err != nil {
		return err
	}
	if err := stringField(scan, "scan", "fname"); err != nil {
		return err
	}
	for _, key := range []string{"pre_bytes", "post_bytes"} {
		if err := countField(scan, "scan", key); err != nil {
			return err
		}
	}

	// gpib may be absent or empty, device names are free-form
	raw, ok := doc["gpib"]
	if !ok || raw == nil {
		return nil
	}
	gpib, ok := raw.(map[string]any)
	if !ok {
		return &SchemaError{Path: "gpib", Reason: fmt.Sprintf("expected mapping, got %T", raw)}
	}
	for name, rawBinding := range gpib {
		path := "gpib." + name
		binding, ok := rawBinding.(map[string]any)
		if !ok {
			return &SchemaError{Path: path, Reason: fmt.Sprintf("expected mapping, got %T", rawBinding)}
		}
		if err := validateBinding(binding, path); err != nil {
			return err
		}
	}
	return nil
}

func validateBinding(binding map[string]any, path string) error {
	if err := stringField(binding, path, "module"); err != nil {
		return err
	}
	if err := stringField(binding, path, "class"); err != nil {
		return err
	}

	raw, ok := binding["params"]
	if !ok {
		return &SchemaError{Path: path + ".params", Reason: "missing required key"}
	}
	params, ok := raw.(map[string]any)
	if !ok {
		return &SchemaError{Path: path + ".params", Reason: fmt.Sprintf("expected mapping, got %T", raw)}
	}
	for key, value := range params {
		switch value.(type) {
		case string, int, int64, uint64, float64, bool:
		default:
			return &SchemaError{
				Path:   path + ".params." + key,
				Reason: fmt.Sprintf("expected scalar, got %T", value),
			}
		}
	}
	return nil
}

func mappingField(doc map[string]any, path, key string) (map[string]any, error) {
	full := joinPath(path, key)
	raw, ok := doc[key]
	if !ok {
		return nil, &SchemaError{Path: full, Reason: "missing required key"}
	}
	value, ok := raw.(map[string]any)
	if !ok {
		return nil, &SchemaError{Path: full, Reason: fmt.Sprintf("expected mapping, got %T", raw)}
	}
	return value, nil
}

func stringField(doc map[string]any, path, key string) error {
	full := joinPath(path, key)
	raw, ok := doc[key]
	if !ok {
		return &SchemaError{Path: full, Reason: "missing required key"}
	}
	value, ok := raw.(string)
	if !ok {
		return &SchemaError{Path: full, Reason: fmt.Sprintf("expected string, got %T", raw)}
	}
	if value == "" {
		return &SchemaError{Path: full, Reason: "must not be empty"}
	}
	return nil
}

// countField checks an optional non-negative integer field.
func countField(doc map[string]any, path, key string) error {
	full := joinPath(path, key)
	raw, ok := doc[key]
	if !ok {
		return nil
	}
	value, ok := raw.(int)
	if !ok {
		return &SchemaError{Path: full, Reason: fmt.Sprintf("expected integer, got %T", raw)}
	}
	if value < 0 {
		return &SchemaError{Path: full, Reason: fmt.Sprintf("must not be negative, got %d", value)}
	}
	return nil
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
