package bucket

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/syssam/pgbucket"
	"github.com/syssam/pgbucket/dialect/sql"
	"github.com/syssam/pgbucket/nql"
	"github.com/syssam/pgbucket/service"
	"github.com/syssam/pgbucket/trx"
)

func shapeAdapter(t *testing.T) (*Adapter, sqlmock.Sqlmock, *trx.Trx) {
	t.Helper()
	db, mk, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	svc := service.New("pg", service.Config{}).OpenWith(sql.OpenDB("postgres", db))

	schema := &Schema{
		Name:   "shape",
		Module: "geo",
		Table:  "shapes",
		Fields: []Field{
			{Name: "id", Type: TypeInt},
			{Name: "name", Type: TypeString, Required: true},
			{Name: "sides", Type: TypeInt},
			{Name: "props", Type: TypeDict},
		},
	}
	a := NewAdapter(schema, svc, nil)

	// Idempotent transactions resolve to the ambient connection, which is
	// the scope the mock expectations run against.
	tx := trx.New("geo", trx.Idempotent())
	require.NoError(t, svc.Bridge().Begin(context.Background(), tx))
	return a, mk, tx
}

func TestAdapterCreateMany(t *testing.T) {
	a, mk, tx := shapeAdapter(t)

	mk.ExpectQuery(`INSERT INTO "shapes" ("name", "sides", "props", "created_by", "created_at", "updated_by", "updated_at") VALUES ($1, $2, $3, $4, $5, $6, $7), ($8, $9, $10, $11, $12, $13, $14) RETURNING *`).
		WithArgs(
			"triangle", 3, `{"color":"red"}`, nil, nil, nil, nil,
			"square", 4, `{"color":"blue"}`, nil, nil, nil, nil,
		).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "sides"}).
			AddRow(1, "triangle", 3).
			AddRow(2, "square", 4))

	objs, err := a.CreateMany(context.Background(), tx, []map[string]any{
		{"name": "triangle", "sides": 3, "props": map[string]any{"color": "red"}},
		{"name": "square", "sides": 4, "props": map[string]any{"color": "blue"}},
	})
	require.NoError(t, err)
	require.Len(t, objs, 2)
	require.Equal(t, "square", objs[1]["name"])
	require.NoError(t, mk.ExpectationsWereMet())
}

func TestAdapterGet(t *testing.T) {
	a, mk, tx := shapeAdapter(t)

	mk.ExpectQuery(`SELECT * FROM "shapes" WHERE id = $1`).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(7, "circle"))
	obj, err := a.Get(context.Background(), tx, 7)
	require.NoError(t, err)
	require.Equal(t, "circle", obj["name"])

	// A missing id is not an error: the record is simply nil.
	mk.ExpectQuery(`SELECT * FROM "shapes" WHERE id = $1`).
		WithArgs(8).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))
	obj, err = a.Get(context.Background(), tx, 8)
	require.NoError(t, err)
	require.Nil(t, obj)
	require.NoError(t, mk.ExpectationsWereMet())
}

func TestAdapterPatch(t *testing.T) {
	a, mk, tx := shapeAdapter(t)

	// Only the fields present on the object are set, plus the update audit
	// pair; the id never moves.
	mk.ExpectQuery(`UPDATE "shapes" SET "name" = $1, "updated_by" = $2, "updated_at" = $3 WHERE id = $4 RETURNING *`).
		WithArgs("pentagon", nil, nil, 7).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(7, "pentagon"))

	obj, err := a.Patch(context.Background(), tx, map[string]any{"id": 7, "name": "pentagon"})
	require.NoError(t, err)
	require.Equal(t, "pentagon", obj["name"])
	require.NoError(t, mk.ExpectationsWereMet())
}

func TestAdapterPut(t *testing.T) {
	a, mk, tx := shapeAdapter(t)

	mk.ExpectQuery(`INSERT INTO "shapes" ("id", "name", "created_by", "created_at", "updated_by", "updated_at") VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (id) DO UPDATE SET "id" = $7, "name" = $8, "updated_by" = $9, "updated_at" = $10 RETURNING *`).
		WithArgs(7, "hexagon", nil, nil, nil, nil, 7, "hexagon", nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(7, "hexagon"))

	obj, err := a.Put(context.Background(), tx, map[string]any{"id": 7, "name": "hexagon"})
	require.NoError(t, err)
	require.Equal(t, "hexagon", obj["name"])
	require.NoError(t, mk.ExpectationsWereMet())
}

func TestAdapterDeleteSnapshotsToTrash(t *testing.T) {
	a, mk, tx := shapeAdapter(t)

	mk.ExpectQuery(`SELECT * FROM "shapes" WHERE id = $1`).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(7, "circle"))
	mk.ExpectExec(`INSERT INTO "__pgbucket_trash_shapes" ("module", "bucket", "object_id", "object", "delete_trx_id", "created_at", "updated_at") VALUES ($1, $2, $3, $4, $5, NOW(), NOW())`).
		WithArgs("geo", "shape", "7", `{"id":7,"name":"circle"}`, tx.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mk.ExpectExec(`DELETE FROM "shapes" WHERE id = $1`).
		WithArgs(7).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, a.Delete(context.Background(), tx, 7))
	require.NoError(t, mk.ExpectationsWereMet())
}

func TestAdapterDeleteMissingSkipsTrash(t *testing.T) {
	a, mk, tx := shapeAdapter(t)

	mk.ExpectQuery(`SELECT * FROM "shapes" WHERE id = $1`).
		WithArgs(8).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))
	mk.ExpectExec(`DELETE FROM "shapes" WHERE id = $1`).
		WithArgs(8).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, a.Delete(context.Background(), tx, 8))
	require.NoError(t, mk.ExpectationsWereMet())
}

func TestAdapterQueryDefaultSort(t *testing.T) {
	a, mk, tx := shapeAdapter(t)

	mk.ExpectQuery(`SELECT * FROM "shapes" WHERE ("name" = ($1)) ORDER BY "updated_at" DESC`).
		WithArgs("circle").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(7, "circle"))

	res, err := a.Query(context.Background(), tx, nql.Query{
		Union: nql.Match(nql.Field("name").Eq("circle")),
	}, nql.RunOptions{})
	require.NoError(t, err)
	require.Len(t, res.Data, 1)
	require.NoError(t, mk.ExpectationsWereMet())
}

func TestAdapterGuardHidesDriverDetail(t *testing.T) {
	a, mk, tx := shapeAdapter(t)

	mk.ExpectQuery(`SELECT * FROM "shapes" WHERE id = $1`).
		WithArgs(7).
		WillReturnError(fmt.Errorf("pq: relation %q does not exist", "shapes"))

	_, err := a.Get(context.Background(), tx, 7)
	require.True(t, errors.Is(err, pgbucket.ErrDatabase))
	require.NotContains(t, err.Error(), "relation")
	require.NoError(t, mk.ExpectationsWereMet())
}

func TestAdapterQueryUnsupportedOperator(t *testing.T) {
	a, _, tx := shapeAdapter(t)

	_, err := a.Query(context.Background(), tx, nql.Query{
		Union: nql.Match(nql.Field("name").ContainsAny("a", "b")),
	}, nql.RunOptions{})
	require.True(t, errors.Is(err, pgbucket.ErrUnsupportedOperator))
}
