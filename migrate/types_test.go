package migrate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/syssam/pgbucket"
	"github.com/syssam/pgbucket/bucket"
)

func TestFieldSQLType(t *testing.T) {
	tests := []struct {
		field bucket.Field
		want  string
	}{
		{bucket.Field{Name: "id", Type: bucket.TypeInt}, "SERIAL PRIMARY KEY"},
		{bucket.Field{Name: "id", Type: bucket.TypeString}, "SERIAL PRIMARY KEY"},
		{bucket.Field{Name: "ok", Type: bucket.TypeBool}, "boolean"},
		{bucket.Field{Name: "day", Type: bucket.TypeDate}, "date"},
		{bucket.Field{Name: "at", Type: bucket.TypeDateTime}, "timestamp"},
		{bucket.Field{Name: "span", Type: bucket.TypeDuration}, "interval"},
		{bucket.Field{Name: "price", Type: bucket.TypeDecimal}, "numeric(18,9)"},
		{bucket.Field{Name: "price", Type: bucket.TypeDecimal, Decimal: &bucket.DecimalMeta{Left: 6, Right: 2}}, "numeric(8,2)"},
		{bucket.Field{Name: "props", Type: bucket.TypeDict}, "jsonb"},
		{bucket.Field{Name: "doc", Type: bucket.TypeObj}, "jsonb"},
		{bucket.Field{Name: "blob", Type: bucket.TypeFile}, "jsonb"},
		{bucket.Field{Name: "kind", Type: bucket.TypeEnum}, "character(64)"},
		{bucket.Field{Name: "ratio", Type: bucket.TypeFloat}, "double precision"},
		{bucket.Field{Name: "size", Type: bucket.TypeInt}, "integer"},
		{bucket.Field{Name: "name", Type: bucket.TypeString}, "character varying"},
		{bucket.Field{Name: "tags", Type: bucket.TypeString, Array: true}, "character varying[]"},
		{bucket.Field{Name: "sizes", Type: bucket.TypeInt, Array: true}, "integer[]"},
	}
	for _, tt := range tests {
		t.Run(tt.field.Name+"_"+tt.field.Type.String(), func(t *testing.T) {
			got, err := FieldSQLType(tt.field)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestFieldSQLTypeUnknown(t *testing.T) {
	_, err := FieldSQLType(bucket.Field{Name: "x", Type: bucket.TypeUnknown})
	require.ErrorIs(t, err, pgbucket.ErrUnknownFieldType)
}

func TestSQLTypeFromUDTArray(t *testing.T) {
	got, err := sqlTypeFromUDT("_int4", 0, 0)
	require.NoError(t, err)
	require.Equal(t, "integer[]", got)
}
