package document

import (
	"embed"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/udaisingh93/bluesky-blissdata/errors"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// schemaFiles maps each document kind to its event-model schema
var schemaFiles = map[Kind]string{
	KindStart:      "schemas/run_start.json",
	KindDescriptor: "schemas/event_descriptor.json",
	KindEvent:      "schemas/event.json",
	KindStop:       "schemas/run_stop.json",
}

// validators holds the compiled schema per document kind, compiled once at
// package load. A schema that fails to compile is a build defect, so this
// panics rather than deferring the error to the first document.
var validators = func() map[Kind]*gojsonschema.Schema {
	compiled := make(map[Kind]*gojsonschema.Schema, len(schemaFiles))
	for kind, path := range schemaFiles {
		raw, err := schemaFS.ReadFile(path)
		if err != nil {
			panic(fmt.Sprintf("document: read schema %s: %v", path, err))
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			panic(fmt.Sprintf("document: compile schema %s: %v", path, err))
		}
		compiled[kind] = schema
	}
	return compiled
}()

// ValidationError reports a document that failed schema validation,
// naming the document kind and every violation the validator found.
type ValidationError struct {
	Kind       Kind
	Violations []string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s document validation failed: %d violation(s): %v",
		e.Kind, len(e.Violations), e.Violations)
}

// Unwrap ties ValidationError into the bridge error taxonomy
func (e *ValidationError) Unwrap() error {
	return errors.ErrValidation
}

// Validate checks a document against the schema registered for its kind.
// Unknown kinds validate trivially; the dispatcher ignores them anyway.
func Validate(kind Kind, doc Document) error {
	schema, ok := validators[kind]
	if !ok {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(map[string]any(doc)))
	if err != nil {
		return errors.WrapInvalid(err, "document", "Validate", fmt.Sprintf("validate %s document", kind))
	}

	if !result.Valid() {
		violations := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			violations = append(violations, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
		}
		return &ValidationError{Kind: kind, Violations: violations}
	}

	return nil
}
