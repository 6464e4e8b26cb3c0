package snapshot

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

type Kind string

const (
	KindPolicy    Kind = "policy"
	KindReference Kind = "reference"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

// ValidationError reports a snapshot that is present but malformed.
type ValidationError struct {
	Kind Kind
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s snapshot: %v", e.Kind, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

var (
	compileOnce sync.Once
	compiled    map[Kind]*jsonschema.Schema
	compileErr  error
)

func compileSchemas() {
	compiled = map[Kind]*jsonschema.Schema{}
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	for _, kind := range []Kind{KindPolicy, KindReference} {
		blob, err := schemaFS.ReadFile("schemas/" + string(kind) + ".schema.json")
		if err != nil {
			compileErr = err
			return
		}
		url := fmt.Sprintf("https://orderflow.local/schemas/%s.schema.json", kind)
		if err := c.AddResource(url, bytes.NewReader(blob)); err != nil {
			compileErr = fmt.Errorf("schema load failed: %w", err)
			return
		}
		schema, err := c.Compile(url)
		if err != nil {
			compileErr = fmt.Errorf("schema compile failed: %w", err)
			return
		}
		compiled[kind] = schema
	}
}

// Validate checks raw JSON against the embedded schema for kind.
func Validate(kind Kind, data []byte) error {
	compileOnce.Do(compileSchemas)
	if compileErr != nil {
		return compileErr
	}
	schema, ok := compiled[kind]
	if !ok {
		return fmt.Errorf("no schema for snapshot kind %q", kind)
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return &ValidationError{Kind: kind, Err: err}
	}
	if err := schema.Validate(doc); err != nil {
		return &ValidationError{Kind: kind, Err: err}
	}
	return nil
}
