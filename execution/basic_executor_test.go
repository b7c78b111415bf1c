package execution

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marbledb/marble/catalog"
	"github.com/marbledb/marble/common"
	"github.com/marbledb/marble/config"
	"github.com/marbledb/marble/indexing"
	"github.com/marbledb/marble/planner"
	"github.com/marbledb/marble/storage"
	"github.com/marbledb/marble/transaction"
)

// valuesPlanNode is a test-only leaf producing a fixed schema.
type valuesPlanNode struct {
	schema []common.Type
}

func (n *valuesPlanNode) OutputSchema() []common.Type { return n.schema }
func (n *valuesPlanNode) Children() []planner.PlanNode {
	return nil
}
func (n *valuesPlanNode) String() string { return "Values" }

// valuesExecutor emits a fixed list of rows.
type valuesExecutor struct {
	plan *valuesPlanNode
	rows [][]common.Value
	pos  int
}

func newValuesExecutor(schema []common.Type, rows [][]common.Value) *valuesExecutor {
	return &valuesExecutor{plan: &valuesPlanNode{schema: schema}, rows: rows}
}

func (e *valuesExecutor) PlanNode() planner.PlanNode { return e.plan }
func (e *valuesExecutor) Init(ctx *ExecutorContext) error {
	e.pos = -1
	return nil
}
func (e *valuesExecutor) Next() bool {
	e.pos++
	return e.pos < len(e.rows)
}
func (e *valuesExecutor) Current() storage.Tuple {
	return storage.FromValues(e.rows[e.pos]...)
}
func (e *valuesExecutor) Error() error { return nil }
func (e *valuesExecutor) Close() error { return nil }

type testEngine struct {
	bpm      *storage.BufferPoolManager
	cat      *catalog.Catalog
	provider catalog.PersistenceProvider
	tables   *TableManager
	indexes  *indexing.IndexManager
	txns     *transaction.Manager
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	dir := t.TempDir()
	dm, err := storage.NewFileDiskManager(filepath.Join(dir, "exec.db"))
	require.NoError(t, err)
	scheduler := storage.NewDiskScheduler(dm)
	t.Cleanup(func() {
		scheduler.Shutdown()
		_ = dm.Close()
	})

	provider := catalog.NewDiskCatalogManager(dir)
	cat, err := catalog.NewCatalog(provider)
	require.NoError(t, err)

	bpm := storage.NewBufferPoolManager(128, scheduler, 2)
	return &testEngine{
		bpm:      bpm,
		cat:      cat,
		provider: provider,
		tables:   NewTableManager(cat, bpm, provider),
		txns:     transaction.NewManager(),
	}
}

// usersTable creates `users(id int, name string)` and, if indexed is set, a
// hash index on id.
func (te *testEngine) usersTable(t *testing.T, indexed bool) *catalog.Table {
	t.Helper()
	table, err := te.cat.AddTable("users", []catalog.Column{
		{Name: "id", Type: common.IntType},
		{Name: "name", Type: common.StringType},
	}, te.provider)
	require.NoError(t, err)

	if indexed {
		_, err = te.cat.AddIndex("users_id", "users", catalog.IndexKindHash, []string{"id"}, te.provider)
		require.NoError(t, err)
	}

	indexManager, err := indexing.NewIndexManager(te.cat, te.provider, te.bpm, config.Default())
	require.NoError(t, err)
	te.indexes = indexManager
	return table
}

func (te *testEngine) ctx() *ExecutorContext {
	return NewExecutorContext(te.txns.Begin())
}

func (te *testEngine) heap(t *testing.T, oid common.ObjectID) *TableHeap {
	t.Helper()
	heap, err := te.tables.GetTableHeap(oid)
	require.NoError(t, err)
	return heap
}

// collect drains an executor, copying each row's values out of the scan
// buffers.
func collect(t *testing.T, e Executor, ctx *ExecutorContext) [][]common.Value {
	t.Helper()
	require.NoError(t, e.Init(ctx))
	var rows [][]common.Value
	for e.Next() {
		tuple := e.Current()
		values := make([]common.Value, tuple.NumColumns())
		for i := 0; i < tuple.NumColumns(); i++ {
			values[i] = tuple.GetValue(i).Copy()
		}
		rows = append(rows, values)
	}
	require.NoError(t, e.Error())
	require.NoError(t, e.Close())
	return rows
}

func userRows(rows ...[]common.Value) [][]common.Value { return rows }

func user(id int64, name string) []common.Value {
	return []common.Value{common.NewIntValue(id), common.NewStringValue(name)}
}

func (te *testEngine) insertUsers(t *testing.T, table *catalog.Table, rows [][]common.Value) {
	t.Helper()
	heap := te.heap(t, table.Oid)
	insert := NewInsertExecutor(
		planner.NewInsertNode(table.Oid, &valuesPlanNode{schema: table.ColumnTypes()}),
		newValuesExecutor(table.ColumnTypes(), rows),
		heap, te.indexes.IndexesForTable(table.Oid))
	result := collect(t, insert, te.ctx())
	require.Len(t, result, 1, "insert emits exactly one count row")
	require.Equal(t, int64(len(rows)), result[0][0].IntValue())
}

func TestInsertAndSeqScan(t *testing.T) {
	te := newTestEngine(t)
	table := te.usersTable(t, false)

	te.insertUsers(t, table, userRows(user(1, "ada"), user(2, "bob"), user(3, "cyd")))

	scan := NewSeqScanExecutor(
		planner.NewSeqScanNode(table.Oid, table.ColumnTypes(), nil),
		te.heap(t, table.Oid))
	rows := collect(t, scan, te.ctx())
	require.Len(t, rows, 3)
	assert.Equal(t, int64(1), rows[0][0].IntValue())
	assert.Equal(t, "ada", rows[0][1].StringValue())
	assert.Equal(t, "cyd", rows[2][1].StringValue())
}

func TestSeqScanWithFilter(t *testing.T) {
	te := newTestEngine(t)
	table := te.usersTable(t, false)
	te.insertUsers(t, table, userRows(user(1, "ada"), user(2, "bob"), user(3, "cyd")))

	filter := planner.NewComparisonExpr(
		planner.NewColumnValueExpr(0, table.ColumnTypes(), "id"),
		planner.NewConstantValueExpr(common.NewIntValue(2)),
		planner.GreaterThanOrEqual)
	scan := NewSeqScanExecutor(
		planner.NewSeqScanNode(table.Oid, table.ColumnTypes(), filter),
		te.heap(t, table.Oid))

	rows := collect(t, scan, te.ctx())
	require.Len(t, rows, 2)
	assert.Equal(t, "bob", rows[0][1].StringValue())
	assert.Equal(t, "cyd", rows[1][1].StringValue())
}

func TestDeleteExecutor(t *testing.T) {
	te := newTestEngine(t)
	table := te.usersTable(t, false)
	te.insertUsers(t, table, userRows(user(1, "ada"), user(2, "bob"), user(3, "cyd")))

	filter := planner.NewComparisonExpr(
		planner.NewColumnValueExpr(0, table.ColumnTypes(), "id"),
		planner.NewConstantValueExpr(common.NewIntValue(2)),
		planner.Equal)
	child := NewSeqScanExecutor(
		planner.NewSeqScanNode(table.Oid, table.ColumnTypes(), filter),
		te.heap(t, table.Oid))
	del := NewDeleteExecutor(
		planner.NewDeleteNode(table.Oid, child.PlanNode()),
		child, te.heap(t, table.Oid), nil)

	result := collect(t, del, te.ctx())
	require.Len(t, result, 1)
	assert.Equal(t, int64(1), result[0][0].IntValue())

	scan := NewSeqScanExecutor(
		planner.NewSeqScanNode(table.Oid, table.ColumnTypes(), nil),
		te.heap(t, table.Oid))
	rows := collect(t, scan, te.ctx())
	require.Len(t, rows, 2, "tombstoned rows are invisible to scans")
	assert.Equal(t, "ada", rows[0][1].StringValue())
	assert.Equal(t, "cyd", rows[1][1].StringValue())
}

func TestUpdateExecutor(t *testing.T) {
	te := newTestEngine(t)
	table := te.usersTable(t, true)
	te.insertUsers(t, table, userRows(user(1, "ada"), user(2, "bob")))

	// SET name = 'zed' WHERE id = 2 (delete-then-insert, indexes
	// re-maintained).
	filter := planner.NewComparisonExpr(
		planner.NewColumnValueExpr(0, table.ColumnTypes(), "id"),
		planner.NewConstantValueExpr(common.NewIntValue(2)),
		planner.Equal)
	child := NewSeqScanExecutor(
		planner.NewSeqScanNode(table.Oid, table.ColumnTypes(), filter),
		te.heap(t, table.Oid))
	targets := []planner.Expr{
		planner.NewColumnValueExpr(0, table.ColumnTypes(), "id"),
		planner.NewConstantValueExpr(common.NewStringValue("zed")),
	}
	update := NewUpdateExecutor(
		planner.NewUpdateNode(table.Oid, child.PlanNode(), targets),
		child, te.heap(t, table.Oid), te.indexes.IndexesForTable(table.Oid))

	result := collect(t, update, te.ctx())
	require.Len(t, result, 1)
	assert.Equal(t, int64(1), result[0][0].IntValue())

	// The rewritten row is reachable through the maintained index.
	idx := te.indexes.IndexesForTable(table.Oid)[0]
	probe := NewIndexScanExecutor(
		planner.NewIndexScanNode(idx.Metadata().Oid, table.Oid, table.ColumnTypes(),
			common.NewIntValue(2), nil),
		te.heap(t, table.Oid), idx)
	rows := collect(t, probe, te.ctx())
	require.Len(t, rows, 1)
	assert.Equal(t, "zed", rows[0][1].StringValue())
}

func TestIndexScanExecutor(t *testing.T) {
	te := newTestEngine(t)
	table := te.usersTable(t, true)
	te.insertUsers(t, table, userRows(user(1, "ada"), user(2, "bob"), user(3, "cyd")))

	idx := te.indexes.IndexesForTable(table.Oid)[0]
	probe := NewIndexScanExecutor(
		planner.NewIndexScanNode(idx.Metadata().Oid, table.Oid, table.ColumnTypes(),
			common.NewIntValue(3), nil),
		te.heap(t, table.Oid), idx)
	rows := collect(t, probe, te.ctx())
	require.Len(t, rows, 1)
	assert.Equal(t, "cyd", rows[0][1].StringValue())

	// Probing an absent key yields no rows.
	probeMiss := NewIndexScanExecutor(
		planner.NewIndexScanNode(idx.Metadata().Oid, table.Oid, table.ColumnTypes(),
			common.NewIntValue(99), nil),
		te.heap(t, table.Oid), idx)
	assert.Empty(t, collect(t, probeMiss, te.ctx()))
}

func TestIndexScanSkipsTombstones(t *testing.T) {
	te := newTestEngine(t)
	table := te.usersTable(t, true)
	te.insertUsers(t, table, userRows(user(1, "ada"), user(2, "bob")))

	// Tombstone id=2 directly in the heap, leaving the index entry behind.
	heap := te.heap(t, table.Oid)
	scan := NewSeqScanExecutor(
		planner.NewSeqScanNode(table.Oid, table.ColumnTypes(), nil), heap)
	ctx := te.ctx()
	require.NoError(t, scan.Init(ctx))
	var staleRID common.RecordID
	for scan.Next() {
		tuple := scan.Current()
		if tuple.GetValue(0).IntValue() == 2 {
			staleRID = tuple.RID()
		}
	}
	require.NoError(t, scan.Close())
	require.False(t, staleRID.IsNil())
	require.NoError(t, heap.DeleteTuple(ctx.GetTransaction(), staleRID))

	idx := te.indexes.IndexesForTable(table.Oid)[0]
	probe := NewIndexScanExecutor(
		planner.NewIndexScanNode(idx.Metadata().Oid, table.Oid, table.ColumnTypes(),
			common.NewIntValue(2), nil),
		heap, idx)
	assert.Empty(t, collect(t, probe, te.ctx()), "stale index entries emit no rows")
}

func TestNestedLoopJoin_Inner(t *testing.T) {
	te := newTestEngine(t)

	intSchema := []common.Type{common.IntType}
	left := newValuesExecutor(intSchema, [][]common.Value{
		{common.NewIntValue(1)}, {common.NewIntValue(2)}, {common.NewIntValue(3)},
	})
	right := newValuesExecutor(intSchema, [][]common.Value{
		{common.NewIntValue(2)}, {common.NewIntValue(3)}, {common.NewIntValue(4)},
	})

	joinedSchema := []common.Type{common.IntType, common.IntType}
	predicate := planner.NewComparisonExpr(
		planner.NewColumnValueExpr(0, joinedSchema, "l"),
		planner.NewColumnValueExpr(1, joinedSchema, "r"),
		planner.Equal)
	join := NewNestedLoopJoinExecutor(
		planner.NewNestedLoopJoinNode(left.PlanNode(), right.PlanNode(), predicate, planner.InnerJoin),
		left, right)

	rows := collect(t, join, te.ctx())
	require.Len(t, rows, 2)
	assert.Equal(t, int64(2), rows[0][0].IntValue())
	assert.Equal(t, int64(2), rows[0][1].IntValue())
	assert.Equal(t, int64(3), rows[1][0].IntValue())
}

func TestNestedLoopJoin_LeftOuterEmptyInner(t *testing.T) {
	te := newTestEngine(t)

	intSchema := []common.Type{common.IntType}
	left := newValuesExecutor(intSchema, [][]common.Value{
		{common.NewIntValue(1)}, {common.NewIntValue(2)},
	})
	right := newValuesExecutor(intSchema, nil)

	joinedSchema := []common.Type{common.IntType, common.IntType}
	predicate := planner.NewComparisonExpr(
		planner.NewColumnValueExpr(0, joinedSchema, "l"),
		planner.NewColumnValueExpr(1, joinedSchema, "r"),
		planner.Equal)
	join := NewNestedLoopJoinExecutor(
		planner.NewNestedLoopJoinNode(left.PlanNode(), right.PlanNode(), predicate, planner.LeftOuterJoin),
		left, right)

	rows := collect(t, join, te.ctx())
	require.Len(t, rows, 2, "every outer row appears once")
	assert.Equal(t, int64(1), rows[0][0].IntValue())
	assert.True(t, rows[0][1].IsNull(), "right columns are null-filled")
	assert.Equal(t, int64(2), rows[1][0].IntValue())
	assert.True(t, rows[1][1].IsNull())
}

func TestNestedLoopJoin_LeftOuterPartialMatch(t *testing.T) {
	te := newTestEngine(t)

	intSchema := []common.Type{common.IntType}
	left := newValuesExecutor(intSchema, [][]common.Value{
		{common.NewIntValue(1)}, {common.NewIntValue(2)},
	})
	right := newValuesExecutor(intSchema, [][]common.Value{
		{common.NewIntValue(2)},
	})

	joinedSchema := []common.Type{common.IntType, common.IntType}
	predicate := planner.NewComparisonExpr(
		planner.NewColumnValueExpr(0, joinedSchema, "l"),
		planner.NewColumnValueExpr(1, joinedSchema, "r"),
		planner.Equal)
	join := NewNestedLoopJoinExecutor(
		planner.NewNestedLoopJoinNode(left.PlanNode(), right.PlanNode(), predicate, planner.LeftOuterJoin),
		left, right)

	rows := collect(t, join, te.ctx())
	require.Len(t, rows, 2)
	assert.True(t, rows[0][1].IsNull(), "unmatched outer row is null-extended")
	assert.Equal(t, int64(2), rows[1][1].IntValue(), "matched outer row joins normally")
}

func TestAggregate_GroupBy(t *testing.T) {
	te := newTestEngine(t)

	schema := []common.Type{common.IntType, common.IntType}
	child := newValuesExecutor(schema, [][]common.Value{
		{common.NewIntValue(1), common.NewIntValue(10)},
		{common.NewIntValue(1), common.NewIntValue(20)},
		{common.NewIntValue(2), common.NewIntValue(5)},
	})

	groupBy := []planner.Expr{planner.NewColumnValueExpr(0, schema, "g")}
	aggs := []planner.AggregateClause{
		{Type: planner.AggCount, Expr: planner.NewColumnValueExpr(1, schema, "v")},
		{Type: planner.AggSum, Expr: planner.NewColumnValueExpr(1, schema, "v")},
		{Type: planner.AggMax, Expr: planner.NewColumnValueExpr(1, schema, "v")},
	}
	agg := NewAggregateExecutor(
		planner.NewAggregateNode(child.PlanNode(), groupBy, aggs), child)

	rows := collect(t, agg, te.ctx())
	require.Len(t, rows, 2)

	byGroup := map[int64][]common.Value{}
	for _, row := range rows {
		byGroup[row[0].IntValue()] = row
	}
	g1 := byGroup[1]
	require.NotNil(t, g1)
	assert.Equal(t, int64(2), g1[1].IntValue())
	assert.Equal(t, int64(30), g1[2].IntValue())
	assert.Equal(t, int64(20), g1[3].IntValue())
	g2 := byGroup[2]
	require.NotNil(t, g2)
	assert.Equal(t, int64(1), g2[1].IntValue())
	assert.Equal(t, int64(5), g2[2].IntValue())
}

func TestAggregate_EmptyInputWithoutGroupBy(t *testing.T) {
	te := newTestEngine(t)

	schema := []common.Type{common.IntType}
	child := newValuesExecutor(schema, nil)
	aggs := []planner.AggregateClause{
		{Type: planner.AggCount, Expr: planner.NewColumnValueExpr(0, schema, "x")},
		{Type: planner.AggSum, Expr: planner.NewColumnValueExpr(0, schema, "x")},
		{Type: planner.AggMin, Expr: planner.NewColumnValueExpr(0, schema, "x")},
	}
	agg := NewAggregateExecutor(
		planner.NewAggregateNode(child.PlanNode(), nil, aggs), child)

	rows := collect(t, agg, te.ctx())
	require.Len(t, rows, 1, "global aggregation emits exactly one row over empty input")
	assert.Equal(t, int64(0), rows[0][0].IntValue(), "COUNT of nothing is 0")
	assert.True(t, rows[0][1].IsNull(), "SUM of nothing is NULL")
	assert.True(t, rows[0][2].IsNull(), "MIN of nothing is NULL")
}

func TestAggregate_NullInputsIgnored(t *testing.T) {
	te := newTestEngine(t)

	schema := []common.Type{common.IntType}
	child := newValuesExecutor(schema, [][]common.Value{
		{common.NewIntValue(4)},
		{common.NewNullInt()},
		{common.NewIntValue(6)},
	})
	aggs := []planner.AggregateClause{
		{Type: planner.AggCount, Expr: planner.NewColumnValueExpr(0, schema, "x")},
		{Type: planner.AggSum, Expr: planner.NewColumnValueExpr(0, schema, "x")},
	}
	agg := NewAggregateExecutor(
		planner.NewAggregateNode(child.PlanNode(), nil, aggs), child)

	rows := collect(t, agg, te.ctx())
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2), rows[0][0].IntValue(), "NULLs do not count")
	assert.Equal(t, int64(10), rows[0][1].IntValue())
}

func TestFilterExecutor(t *testing.T) {
	te := newTestEngine(t)

	schema := []common.Type{common.IntType}
	child := newValuesExecutor(schema, [][]common.Value{
		{common.NewIntValue(1)}, {common.NewNullInt()}, {common.NewIntValue(3)},
	})
	// NULL predicate results must not pass the filter.
	predicate := planner.NewComparisonExpr(
		planner.NewColumnValueExpr(0, schema, "x"),
		planner.NewConstantValueExpr(common.NewIntValue(0)),
		planner.GreaterThan)
	filter := NewFilterExecutor(planner.NewFilterNode(child.PlanNode(), predicate), child)

	rows := collect(t, filter, te.ctx())
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0][0].IntValue())
	assert.Equal(t, int64(3), rows[1][0].IntValue())
}

func TestSeqScanAcrossPageBoundaries(t *testing.T) {
	te := newTestEngine(t)
	table := te.usersTable(t, false)

	// Enough rows to spill across several chained heap pages.
	var rows [][]common.Value
	for i := 0; i < 500; i++ {
		rows = append(rows, user(int64(i), "row"))
	}
	te.insertUsers(t, table, rows)

	scan := NewSeqScanExecutor(
		planner.NewSeqScanNode(table.Oid, table.ColumnTypes(), nil),
		te.heap(t, table.Oid))
	got := collect(t, scan, te.ctx())
	require.Len(t, got, 500)
	seen := map[int64]bool{}
	for _, row := range got {
		seen[row[0].IntValue()] = true
	}
	assert.Len(t, seen, 500, "every inserted row appears exactly once")
}
