package rules

import (
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// Validator checks ruleset files against the JSON schema plus the semantic
// rules that the schema cannot express
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the schema at the given path
func NewValidator(schemaPath string) (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// ValidateFile validates one ruleset file, returning every problem found
func (v *Validator) ValidateFile(path string) []ValidationError {
	data, err := os.ReadFile(path)
	if err != nil {
		return []ValidationError{{File: path, Message: fmt.Sprintf("failed to read file: %v", err)}}
	}

	var generic interface{}
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return []ValidationError{{File: path, Message: fmt.Sprintf("failed to parse YAML: %v", err)}}
	}

	var errs []ValidationError
	if err := v.schema.Validate(generic); err != nil {
		if validationErr, ok := err.(*jsonschema.ValidationError); ok {
			errs = append(errs, extractSchemaErrors(path, validationErr)...)
		} else {
			errs = append(errs, ValidationError{File: path, Message: err.Error()})
		}
	}

	var rs Ruleset
	if err := yaml.Unmarshal(data, &rs); err != nil {
		errs = append(errs, ValidationError{File: path, Message: fmt.Sprintf("failed to decode ruleset: %v", err)})
		return errs
	}

	errs = append(errs, checkSemantics(path, &rs)...)
	return errs
}

func extractSchemaErrors(file string, err *jsonschema.ValidationError) []ValidationError {
	var errs []ValidationError

	path := strings.Join(err.InstanceLocation, ".")
	if path == "" {
		path = "(root)"
	}
	errs = append(errs, ValidationError{File: file, Path: path, Message: err.Error()})

	for _, cause := range err.Causes {
		errs = append(errs, extractSchemaErrors(file, cause)...)
	}
	return errs
}
