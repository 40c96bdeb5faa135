package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/gqlgate/gqlgate/pkg/errdefs"
)

//go:embed config.schema.json
var configSchemaJSON string

const configSchemaURL = "config.schema.json"

var (
	configSchema     *jsonschema.Schema
	configSchemaErr  error
	configSchemaOnce sync.Once
)

func compiledConfigSchema() (*jsonschema.Schema, error) {
	configSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource(configSchemaURL, strings.NewReader(configSchemaJSON)); err != nil {
			configSchemaErr = fmt.Errorf("failed to add schema resource: %w", err)
			return
		}
		configSchema, configSchemaErr = compiler.Compile(configSchemaURL)
	})
	return configSchema, configSchemaErr
}

// ValidateStructure checks a decoded YAML document against the embedded
// configuration JSON Schema. Every violation becomes one ConfigError whose
// path is the dotted instance location.
func ValidateStructure(raw any) error {
	s, err := compiledConfigSchema()
	if err != nil {
		return err
	}

	// Round-trip through JSON so YAML scalars get JSON types.
	data, err := json.Marshal(raw)
	if err != nil {
		return &errdefs.ConfigError{Message: fmt.Sprintf("configuration is not representable as JSON: %v", err)}
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return &errdefs.ConfigError{Message: fmt.Sprintf("configuration is not representable as JSON: %v", err)}
	}

	if err := s.Validate(doc); err != nil {
		var errs errdefs.ConfigErrors
		if ve, ok := err.(*jsonschema.ValidationError); ok {
			collectSchemaErrors(ve, &errs)
		} else {
			errs.Add("", "%v", err)
		}
		return errs.OrNil()
	}
	return nil
}

func collectSchemaErrors(err *jsonschema.ValidationError, errs *errdefs.ConfigErrors) {
	if len(err.Causes) == 0 {
		errs.Add(pointerToPath(err.InstanceLocation), "%s", err.Message)
		return
	}
	for _, cause := range err.Causes {
		collectSchemaErrors(cause, errs)
	}
}

// pointerToPath converts a JSON Pointer to dot notation.
func pointerToPath(pointer string) string {
	if pointer == "" || pointer == "/" {
		return ""
	}
	pointer = strings.TrimPrefix(pointer, "/")
	pointer = strings.ReplaceAll(pointer, "~1", "/")
	pointer = strings.ReplaceAll(pointer, "~0", "~")
	return strings.ReplaceAll(pointer, "/", ".")
}
