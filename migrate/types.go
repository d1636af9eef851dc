// Package migrate generates, reviews and runs schema migrations for bucket
// tables: it introspects the live catalog, diffs it against the declared
// bucket schema, produces reversible DDL change-sets and keeps a
// bookkeeping table of what has been applied.
package migrate

import (
	"fmt"

	"github.com/syssam/pgbucket"
	"github.com/syssam/pgbucket/bucket"
)

// PrimaryKeySQL is the derived type of the "id" field. The id column is
// hard-coded and never altered.
const PrimaryKeySQL = "SERIAL PRIMARY KEY"

// fieldUDT maps a declared field to its low-level catalog type tag. Arrays
// prefix the tag with an underscore.
func fieldUDT(f bucket.Field) (string, error) {
	if f.Name == "id" {
		if f.Type == bucket.TypeString {
			return "bpchar", nil
		}
		return "int4", nil
	}
	var udt string
	switch f.Type {
	case bucket.TypeBool:
		udt = "bool"
	case bucket.TypeDate:
		udt = "date"
	case bucket.TypeDateTime:
		udt = "timestamp"
	case bucket.TypeDuration:
		udt = "interval"
	case bucket.TypeDecimal:
		udt = "numeric"
	case bucket.TypeDict, bucket.TypeFile, bucket.TypeObj:
		udt = "jsonb"
	case bucket.TypeEnum:
		// TODO: read the length from the schema's enum values.
		udt = "bpchar"
	case bucket.TypeFloat:
		udt = "float8"
	case bucket.TypeInt:
		udt = "int4"
	case bucket.TypeString:
		udt = "varchar"
	default:
		return "", fmt.Errorf("%w: field %q", pgbucket.ErrUnknownFieldType, f.Name)
	}
	if f.Array {
		udt = "_" + udt
	}
	return udt, nil
}

// sqlTypeFromUDT reconstructs the SQL type string from a catalog type tag
// plus numeric precision and scale. Array tags append the [] marker.
func sqlTypeFromUDT(udt string, precision, scale int) (string, error) {
	array := len(udt) > 0 && udt[0] == '_'
	if array {
		udt = udt[1:]
	}
	var typ string
	switch udt {
	case "bool":
		typ = "boolean"
	case "date":
		typ = "date"
	case "timestamp":
		typ = "timestamp"
	case "interval":
		typ = "interval"
	case "numeric":
		typ = fmt.Sprintf("numeric(%d,%d)", precision, scale)
	case "jsonb":
		typ = "jsonb"
	case "bpchar":
		typ = "character(64)"
	case "float8":
		typ = "double precision"
	case "int4":
		typ = "integer"
	case "varchar":
		typ = "character varying"
	default:
		return "", fmt.Errorf("%w: udt %q", pgbucket.ErrUnknownFieldType, udt)
	}
	if array {
		typ += "[]"
	}
	return typ, nil
}

// FieldSQLType derives the SQL type of a declared field. The id field is
// always the primary-key type regardless of its declared scalar type.
func FieldSQLType(f bucket.Field) (string, error) {
	if f.Name == "id" {
		return PrimaryKeySQL, nil
	}
	udt, err := fieldUDT(f)
	if err != nil {
		return "", err
	}
	left, right := 9, 9
	if f.Decimal != nil {
		if f.Decimal.Left > 0 {
			left = f.Decimal.Left
		}
		if f.Decimal.Right > 0 {
			right = f.Decimal.Right
		}
	}
	return sqlTypeFromUDT(udt, left+right, right)
}
