package config

import "fmt"

// ParseError reports a document that is not well-formed YAML.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("config: %s", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// SchemaError reports a missing or mistyped field, identified by its dotted
// path in the document, e.g. "gpib.siggen.params".
type SchemaError struct {
	Path   string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Path, e.Reason)
}
