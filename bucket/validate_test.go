package bucket

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validationMessages(errs []*ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Error()
	}
	return out
}

func TestValidateCleanSchema(t *testing.T) {
	result := Validate([]*Schema{{
		Name:   "shape",
		Module: "geo",
		Table:  "shapes",
		Fields: []Field{
			{Name: "id", Type: TypeInt},
			{Name: "name", Type: TypeString, Required: true},
			{Name: "price", Type: TypeDecimal, Decimal: &DecimalMeta{Left: 6, Right: 2}},
		},
	}}, DefaultMeta())

	require.False(t, result.HasErrors())
	require.Empty(t, result.Warnings)
	require.Equal(t, "No issues found", result.String())
}

func TestValidateRejections(t *testing.T) {
	result := Validate([]*Schema{
		{
			Name:  "shape",
			Table: "shapes",
			Fields: []Field{
				{Name: "id", Type: TypeString},
				{Name: "name", Type: TypeString},
				{Name: "name", Type: TypeString},
				{Name: "updated_at", Type: TypeDateTime},
				{Name: "Bad-Name", Type: TypeString},
				{Name: "mystery"},
			},
		},
		{Name: "polygon", Table: "shapes", Fields: []Field{{Name: "id", Type: TypeInt}}},
	}, DefaultMeta())

	require.True(t, result.HasErrors())
	msgs := validationMessages(result.Errors)
	require.Contains(t, msgs, "shape.id: id must be an int, got string")
	require.Contains(t, msgs, "shape.name: duplicate field")
	require.Contains(t, msgs, `shape.updated_at: collides with the "updated_at" audit column`)
	require.Contains(t, msgs, "shape.Bad-Name: invalid field name")
	require.Contains(t, msgs, "shape.mystery: unknown fields cannot be stored on SQL")
	require.Contains(t, msgs, `polygon: table "shapes" is already used by bucket "shape"`)
}

func TestValidateWarnings(t *testing.T) {
	result := Validate([]*Schema{{
		Name:  "note",
		Table: "notes",
		Fields: []Field{
			{Name: "body", Type: TypeString, Decimal: &DecimalMeta{Left: 3}},
		},
	}}, DefaultMeta())

	require.False(t, result.HasErrors())
	msgs := validationMessages(result.Warnings)
	require.Contains(t, msgs, "note.body: decimal precision is ignored on string fields")
	require.Contains(t, msgs, "note: no id field declared; get, update and delete need an id column")
}
