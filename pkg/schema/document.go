package schema

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Document is the YAML configuration file as written by users.
// It is decoded, merged with the SDL and validated into a Configuration.
type Document struct {
	// Version is the configuration format version; only "1" is supported.
	Version string `yaml:"version"`
	// Schema is inline GraphQL SDL.
	Schema string `yaml:"schema,omitempty"`
	// SchemaFiles are SDL file globs resolved relative to the configuration file.
	// "**" matches across directories.
	SchemaFiles []string `yaml:"schemaFiles,omitempty"`
	// Backends maps backend names to their connection settings.
	Backends map[string]BackendConfig `yaml:"backends"`
	// Templates maps template names to response templates.
	Templates map[string]TemplateConfig `yaml:"templates,omitempty"`
	// Types maps GraphQL object type names to their backend mapping.
	Types map[string]TypeDocument `yaml:"types"`
}

// Backend kinds.
const (
	BackendJSON   = "json"
	BackendSQL    = "sql"
	BackendSPARQL = "sparql"
)

// BackendConfig configures one data source.
type BackendConfig struct {
	// Type is one of "json", "sql" or "sparql".
	Type string `yaml:"type" json:"type"`
	// File is the JSON document path (json).
	File string `yaml:"file,omitempty" json:"file,omitempty"`
	// Driver is the database/sql driver name (sql). Defaults to "sqlite3".
	Driver string `yaml:"driver,omitempty" json:"driver,omitempty"`
	// DSN is the data source name (sql).
	DSN string `yaml:"dsn,omitempty" json:"dsn,omitempty"`
	// Endpoint is the SPARQL query endpoint URL (sparql).
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	// Timeout bounds each remote request, e.g. "5s" (sparql).
	Timeout string `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// TemplateConfig is a named response template.
type TemplateConfig struct {
	// MimeType is the content type the template produces, e.g. "text/html".
	MimeType string `yaml:"mimeType"`
	// Template is the inline template source.
	Template string `yaml:"template,omitempty"`
	// File is a template file resolved relative to the configuration file.
	File string `yaml:"file,omitempty"`
}

// TypeDocument maps one object type to a backend.
type TypeDocument struct {
	Backend string `yaml:"backend"`
	// Table is the relational table (sql). Defaults to the type name.
	Table string `yaml:"table,omitempty"`
	// Class is the rdf:type IRI of instances (sparql).
	Class string `yaml:"class,omitempty"`
	// Keys lists the identifying fields in order.
	Keys []string `yaml:"keys,omitempty"`
	// QueryPaths maps query names to JSONPath templates (json).
	QueryPaths map[string]string `yaml:"queryPaths,omitempty"`
	// Fields are the field mappings in declaration order.
	Fields FieldList `yaml:"fields,omitempty"`
}

// FieldDocument maps one field.
type FieldDocument struct {
	Name string `yaml:"-"`
	// Type is the GraphQL named type. Taken from the SDL when omitted.
	Type     string `yaml:"type,omitempty"`
	Nullable *bool  `yaml:"nullable,omitempty"`
	List     *bool  `yaml:"list,omitempty"`
	// AggregateOf names a list field of the same type this field aggregates.
	AggregateOf string `yaml:"aggregateOf,omitempty"`
	// Aggregate is the aggregate function: count (default), sum, min, max or avg.
	Aggregate string `yaml:"aggregate,omitempty"`
	// AggregateField is the field of the list elements sum/min/max/avg read.
	AggregateField string `yaml:"aggregateField,omitempty"`
	// Column is the relational column (sql). Defaults to the field name.
	Column string `yaml:"column,omitempty"`
	// Predicate is the property IRI (sparql).
	Predicate string `yaml:"predicate,omitempty"`
	// KeyField names a field of the same type whose value is the key of the
	// referenced object; the reference is batch-loaded from its own backend.
	KeyField string `yaml:"keyField,omitempty"`
}

// FieldList is an ordered list of field documents decoded from a YAML mapping.
type FieldList []FieldDocument

// UnmarshalYAML decodes a mapping of field name to field document, keeping
// the order the fields were written in.
func (l *FieldList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: fields must be a mapping", value.Line)
	}
	fields := make(FieldList, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		keyNode, valNode := value.Content[i], value.Content[i+1]
		var fd FieldDocument
		// A bare "name:" entry declares the field with defaults.
		if valNode.Kind != yaml.ScalarNode || valNode.Tag != "!!null" {
			if err := valNode.Decode(&fd); err != nil {
				return fmt.Errorf("field %q: %w", keyNode.Value, err)
			}
		}
		fd.Name = keyNode.Value
		fields = append(fields, fd)
	}
	*l = fields
	return nil
}
