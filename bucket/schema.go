// Package bucket adapts the engine's bucket model onto PostgreSQL tables:
// it holds the declared schemas, the CRUD adapter, and the bucket registry
// that backs cross-bucket queries.
package bucket

import (
	"fmt"
)

// FieldType enumerates the scalar types a bucket field can declare.
type FieldType int

const (
	TypeUnknown FieldType = iota
	TypeBool
	TypeDate
	TypeDateTime
	TypeDuration
	TypeDecimal
	TypeDict
	TypeEnum
	TypeFile
	TypeFloat
	TypeInt
	TypeObj
	TypeString
)

var fieldTypeNames = map[FieldType]string{
	TypeBool:     "boolean",
	TypeDate:     "date",
	TypeDateTime: "datetime",
	TypeDuration: "duration",
	TypeDecimal:  "decimal",
	TypeDict:     "dict",
	TypeEnum:     "enum",
	TypeFile:     "file",
	TypeFloat:    "float",
	TypeInt:      "int",
	TypeObj:      "obj",
	TypeString:   "string",
}

var fieldTypeValues = func() map[string]FieldType {
	m := make(map[string]FieldType, len(fieldTypeNames))
	for t, n := range fieldTypeNames {
		m[n] = t
	}
	return m
}()

// String returns the schema spelling of the type.
func (t FieldType) String() string {
	if n, ok := fieldTypeNames[t]; ok {
		return n
	}
	return "unknown"
}

// ParseFieldType maps a schema spelling back to its type.
func ParseFieldType(s string) (FieldType, error) {
	if t, ok := fieldTypeValues[s]; ok {
		return t, nil
	}
	return TypeUnknown, fmt.Errorf("bucket: unknown field type %q", s)
}

// MarshalYAML implements yaml.Marshaler.
func (t FieldType) MarshalYAML() (any, error) {
	return t.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *FieldType) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseFieldType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// DecimalMeta carries the precision of a decimal field: digits left and
// right of the point.
type DecimalMeta struct {
	Left  int `yaml:"left"`
	Right int `yaml:"right"`
}

// Field is one declared bucket field.
type Field struct {
	Name     string       `yaml:"name"`
	Type     FieldType    `yaml:"type"`
	Array    bool         `yaml:"array,omitempty"`
	Required bool         `yaml:"required,omitempty"`
	Decimal  *DecimalMeta `yaml:"decimal,omitempty"`
}

// Schema is the declared shape of one bucket. Fields keep declaration
// order.
type Schema struct {
	Name   string  `yaml:"name"`
	Module string  `yaml:"module,omitempty"`
	Table  string  `yaml:"table"`
	Fields []Field `yaml:"fields"`
}

// Field looks a field up by name.
func (s *Schema) Field(name string) (*Field, bool) {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i], true
		}
	}
	return nil, false
}

// FieldNames returns the declared field names in order.
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// TrashTable returns the name of the trash table capturing soft-deleted
// records of the given bucket table.
func TrashTable(table string) string {
	return "__pgbucket_trash_" + table
}

// MetaFields names the audit columns every bucket table carries.
type MetaFields struct {
	CreatedBy string `yaml:"created_by"`
	CreatedAt string `yaml:"created_at"`
	UpdatedBy string `yaml:"updated_by"`
	UpdatedAt string `yaml:"updated_at"`
}

// DefaultMeta returns the conventional audit column names.
func DefaultMeta() MetaFields {
	return MetaFields{
		CreatedBy: "created_by",
		CreatedAt: "created_at",
		UpdatedBy: "updated_by",
		UpdatedAt: "updated_at",
	}
}

// Columns returns the audit column names in a fixed order.
func (m MetaFields) Columns() []string {
	return []string{m.CreatedBy, m.CreatedAt, m.UpdatedBy, m.UpdatedAt}
}

// Has reports whether name is one of the audit columns.
func (m MetaFields) Has(name string) bool {
	for _, c := range m.Columns() {
		if c == name {
			return true
		}
	}
	return false
}
