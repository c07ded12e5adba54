package store_test

import (
	"context"
	"testing"

	"github.com/caesium-cloud/sweep/internal/store"
	"github.com/caesium-cloud/sweep/internal/store/query"
	"github.com/caesium-cloud/sweep/internal/testutil"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type StoreTestSuite struct {
	suite.Suite
	ctx   context.Context
	store store.Store
	close func()
}

func (s *StoreTestSuite) SetupTest() {
	db := testutil.OpenTestDB(s.T())
	s.close = func() { testutil.CloseDB(db) }
	s.ctx = context.Background()
	s.store = store.New(db)

	s.Require().NoError(s.store.CreateTable(s.ctx, "units", store.Schema{
		Columns: []store.Column{
			{Name: "wu_id", Type: store.Integer, NotNull: true},
			{Name: "x", Type: store.Text},
			{Name: "status", Type: store.Text},
			{Name: "input_file", Type: store.Blob},
			{Name: "mtime", Type: store.Real},
		},
		PrimaryKey: []string{"wu_id"},
	}))
}

func (s *StoreTestSuite) TearDownTest() {
	s.close()
}

func (s *StoreTestSuite) TestCreateTableIdempotent() {
	ok, err := s.store.HasTable(s.ctx, "units")
	s.Require().NoError(err)
	s.True(ok)

	s.Require().NoError(s.store.CreateTable(s.ctx, "units", store.Schema{
		Columns: []store.Column{{Name: "wu_id", Type: store.Integer}},
	}))

	ok, err = s.store.HasTable(s.ctx, "missing")
	s.Require().NoError(err)
	s.False(ok)
}

func (s *StoreTestSuite) TestInsertSelectOrder() {
	s.Require().NoError(s.store.Insert(s.ctx, "units", map[string]any{
		"wu_id": 1, "x": "1", "status": "incomplete", "input_file": []byte{0x1, 0x2}, "mtime": 1.5,
	}))

	rows, err := s.store.Select(s.ctx, "units", []string{"status", "wu_id", "input_file"}, nil)
	s.Require().NoError(err)
	s.Require().Len(rows, 1)

	s.Equal("incomplete", store.String(rows[0][0]))
	id, ok := store.Int64(rows[0][1])
	s.True(ok)
	s.Equal(int64(1), id)
	s.Equal([]byte{0x1, 0x2}, store.Bytes(rows[0][2]))
}

func (s *StoreTestSuite) TestInsertManyChunksAndCounts() {
	cols := []string{"wu_id", "x", "status"}
	rows := make([]store.Row, 0, 1000)
	for i := 1; i <= 1000; i++ {
		status := "incomplete"
		if i%2 == 0 {
			status = "complete"
		}
		rows = append(rows, store.Row{i, "v", status})
	}
	s.Require().NoError(s.store.InsertMany(s.ctx, "units", cols, rows))

	n, err := s.store.Count(s.ctx, "units", nil)
	s.Require().NoError(err)
	s.Equal(int64(1000), n)

	n, err = s.store.Count(s.ctx, "units", query.Where("status", query.Eq, "complete"))
	s.Require().NoError(err)
	s.Equal(int64(500), n)

	max, err := s.store.Max(s.ctx, "units", "wu_id", nil)
	s.Require().NoError(err)
	s.Equal(int64(1000), max)
}

func (s *StoreTestSuite) TestInsertManyRowArity() {
	err := s.store.InsertMany(s.ctx, "units", []string{"wu_id", "x"}, []store.Row{{1}})
	s.Error(err)
}

func (s *StoreTestSuite) TestMaxEmptyTable() {
	max, err := s.store.Max(s.ctx, "units", "wu_id", nil)
	s.Require().NoError(err)
	s.Zero(max)
}

func (s *StoreTestSuite) TestUpdateRequiresFilter() {
	_, err := s.store.Update(s.ctx, "units", map[string]any{"status": "complete"}, nil)
	s.ErrorIs(err, store.ErrUnfilteredUpdate)
}

func (s *StoreTestSuite) TestUpdateAndFilter() {
	s.Require().NoError(s.store.InsertMany(s.ctx, "units", []string{"wu_id", "status"}, []store.Row{
		{1, "incomplete"}, {2, "incomplete"}, {3, "submitted"},
	}))

	n, err := s.store.Update(s.ctx, "units",
		map[string]any{"status": "submitted", "x": "batch"},
		query.Where("wu_id", query.In, 1, 2))
	s.Require().NoError(err)
	s.Equal(int64(2), n)

	rows, err := s.store.Select(s.ctx, "units", []string{"wu_id"},
		query.Where("status", query.Eq, "submitted").And("x", query.NotNull).OrderBy("wu_id"))
	s.Require().NoError(err)
	s.Require().Len(rows, 2)
	first, _ := store.Int64(rows[0][0])
	s.Equal(int64(1), first)
}

func (s *StoreTestSuite) TestSelectDistinct() {
	s.Require().NoError(s.store.InsertMany(s.ctx, "units", []string{"wu_id", "x"}, []store.Row{
		{1, "s/b_1"}, {2, "s/b_1"}, {3, "s/b_2"}, {4, "other"},
	}))

	rows, err := s.store.Select(s.ctx, "units", []string{"x"},
		query.Where("x", query.Like, "s/b_%").Distinct())
	s.Require().NoError(err)
	s.Len(rows, 2)
}

func (s *StoreTestSuite) TestTransactionRollback() {
	err := s.store.Transaction(s.ctx, func(tx store.Store) error {
		if err := tx.Insert(s.ctx, "units", map[string]any{"wu_id": 9}); err != nil {
			return err
		}
		return tx.Insert(s.ctx, "units", map[string]any{"wu_id": 9})
	})
	s.Error(err)

	n, err := s.store.Count(s.ctx, "units", nil)
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *StoreTestSuite) TestRejectsBadIdentifiers() {
	_, err := s.store.Select(s.ctx, "units; DROP TABLE units", []string{"wu_id"}, nil)
	s.ErrorIs(err, query.ErrInvalidIdentifier)
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

func TestSchemaDDL(t *testing.T) {
	schema := store.Schema{
		Columns: []store.Column{
			{Name: "task_id", Type: store.Integer, NotNull: true},
			{Name: "wu_id", Type: store.Integer},
			{Name: "out", Type: store.Blob},
		},
		PrimaryKey:  []string{"task_id"},
		ForeignKeys: []store.ForeignKey{{Columns: []string{"wu_id"}, Table: "a_wu", References: []string{"wu_id"}}},
	}

	ddl, err := schema.DDL("a_task", "sqlite")
	require.NoError(t, err)
	require.Equal(t, `CREATE TABLE IF NOT EXISTS "a_task" ("task_id" INTEGER NOT NULL, "wu_id" INTEGER, "out" BLOB, PRIMARY KEY ("task_id"), FOREIGN KEY ("wu_id") REFERENCES "a_wu" ("wu_id"))`, ddl)

	ddl, err = schema.DDL("a_task", "postgres")
	require.NoError(t, err)
	require.Contains(t, ddl, `"out" BYTEA`)
	require.Contains(t, ddl, `"task_id" BIGINT NOT NULL`)

	_, err = store.Schema{Columns: []store.Column{{Name: "a"}, {Name: "a"}}}.DDL("t", "sqlite")
	require.Error(t, err)

	require.Equal(t, []string{"task_id", "wu_id", "out"}, schema.Names())
}

func TestValueCoercion(t *testing.T) {
	n, ok := store.Int64([]byte("42"))
	require.True(t, ok)
	require.Equal(t, int64(42), n)

	_, ok = store.Int64(nil)
	require.False(t, ok)

	_, ok = store.Int64(1.5)
	require.False(t, ok)

	f, ok := store.Float64("2.5")
	require.True(t, ok)
	require.Equal(t, 2.5, f)

	require.Equal(t, "", store.String(nil))
	require.Equal(t, "abc", store.String([]byte("abc")))
	require.Equal(t, "7", store.String(int64(7)))
}
