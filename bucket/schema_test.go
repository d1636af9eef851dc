package bucket

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseFieldType(t *testing.T) {
	for _, name := range []string{"boolean", "date", "datetime", "duration", "decimal", "dict", "enum", "file", "float", "int", "obj", "string"} {
		typ, err := ParseFieldType(name)
		require.NoError(t, err)
		require.Equal(t, name, typ.String())
	}
	_, err := ParseFieldType("uuid")
	require.Error(t, err)
}

func TestSchemaYAML(t *testing.T) {
	raw := `
name: shape
module: geo
table: shapes
fields:
  - name: id
    type: int
  - name: name
    type: string
    required: true
  - name: price
    type: decimal
    decimal: {left: 6, right: 2}
  - name: tags
    type: string
    array: true
`
	var s Schema
	require.NoError(t, yaml.Unmarshal([]byte(raw), &s))
	require.Equal(t, "shapes", s.Table)
	require.Len(t, s.Fields, 4)
	require.Equal(t, TypeDecimal, s.Fields[2].Type)
	require.Equal(t, &DecimalMeta{Left: 6, Right: 2}, s.Fields[2].Decimal)
	require.True(t, s.Fields[3].Array)

	f, ok := s.Field("name")
	require.True(t, ok)
	require.True(t, f.Required)
	_, ok = s.Field("ghost")
	require.False(t, ok)
}

func TestMetaFields(t *testing.T) {
	meta := DefaultMeta()
	require.Equal(t, []string{"created_by", "created_at", "updated_by", "updated_at"}, meta.Columns())
	require.True(t, meta.Has("updated_at"))
	require.False(t, meta.Has("name"))
}

func TestTrashTable(t *testing.T) {
	require.Equal(t, "__pgbucket_trash_shapes", TrashTable("shapes"))
}
