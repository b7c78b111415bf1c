package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marbledb/marble/catalog"
	"github.com/marbledb/marble/common"
	"github.com/marbledb/marble/planner"
)

type memProvider struct {
	state string
}

func (p *memProvider) LoadCatalogState() (string, error) {
	return p.state, nil
}

func (p *memProvider) SaveCatalogState(jsonData string) error {
	p.state = jsonData
	return nil
}

func setupCatalog(t *testing.T, withIndex bool) (*catalog.Catalog, *catalog.Table) {
	t.Helper()
	provider := &memProvider{state: "{}"}
	cat, err := catalog.NewCatalog(provider)
	require.NoError(t, err)
	table, err := cat.AddTable("users", []catalog.Column{
		{Name: "id", Type: common.IntType},
		{Name: "name", Type: common.StringType},
	}, provider)
	require.NoError(t, err)
	if withIndex {
		_, err = cat.AddIndex("users_id", "users", catalog.IndexKindHash, []string{"id"}, provider)
		require.NoError(t, err)
	}
	return cat, table
}

func equalityScan(table *catalog.Table, columnIdx int) *planner.SeqScanNode {
	filter := planner.NewComparisonExpr(
		planner.NewColumnValueExpr(columnIdx, table.ColumnTypes(), table.Columns[columnIdx].Name),
		planner.NewConstantValueExpr(common.NewIntValue(7)),
		planner.Equal)
	return planner.NewSeqScanNode(table.Oid, table.ColumnTypes(), filter)
}

func TestRewrite_EqualityWithMatchingIndex(t *testing.T) {
	cat, table := setupCatalog(t, true)
	opt := NewOptimizer(cat)

	rewritten := opt.OptimizeSeqScanAsIndexScan(equalityScan(table, 0))
	indexScan, ok := rewritten.(*planner.IndexScanNode)
	require.True(t, ok, "equality filter on an indexed column becomes an index probe")
	assert.Equal(t, table.Oid, indexScan.TableOid)
	assert.Equal(t, table.Indexes[0].Oid, indexScan.IndexOid)
	assert.Equal(t, int64(7), indexScan.ProbeKey.IntValue())
}

func TestRewrite_NoIndexLeavesScan(t *testing.T) {
	cat, table := setupCatalog(t, false)
	opt := NewOptimizer(cat)

	rewritten := opt.OptimizeSeqScanAsIndexScan(equalityScan(table, 0))
	_, ok := rewritten.(*planner.SeqScanNode)
	assert.True(t, ok, "without a matching index the scan is untouched")
}

func TestRewrite_NonEqualityLeavesScan(t *testing.T) {
	cat, table := setupCatalog(t, true)
	opt := NewOptimizer(cat)

	filter := planner.NewComparisonExpr(
		planner.NewColumnValueExpr(0, table.ColumnTypes(), "id"),
		planner.NewConstantValueExpr(common.NewIntValue(7)),
		planner.GreaterThan)
	scan := planner.NewSeqScanNode(table.Oid, table.ColumnTypes(), filter)

	rewritten := opt.OptimizeSeqScanAsIndexScan(scan)
	_, ok := rewritten.(*planner.SeqScanNode)
	assert.True(t, ok, "a range predicate cannot use a hash probe")
}

func TestRewrite_UnindexedColumnLeavesScan(t *testing.T) {
	cat, table := setupCatalog(t, true)
	opt := NewOptimizer(cat)

	filter := planner.NewComparisonExpr(
		planner.NewColumnValueExpr(1, table.ColumnTypes(), "name"),
		planner.NewConstantValueExpr(common.NewStringValue("ada")),
		planner.Equal)
	scan := planner.NewSeqScanNode(table.Oid, table.ColumnTypes(), filter)

	rewritten := opt.OptimizeSeqScanAsIndexScan(scan)
	_, ok := rewritten.(*planner.SeqScanNode)
	assert.True(t, ok, "the index is on id, not name")
}

func TestRewrite_DescendsThroughParents(t *testing.T) {
	cat, table := setupCatalog(t, true)
	opt := NewOptimizer(cat)

	plan := planner.NewDeleteNode(table.Oid, equalityScan(table, 0))
	rewritten := opt.OptimizeSeqScanAsIndexScan(plan)

	del, ok := rewritten.(*planner.DeleteNode)
	require.True(t, ok)
	_, ok = del.Child.(*planner.IndexScanNode)
	assert.True(t, ok, "the rule rewrites scans below other operators")
}

func TestRewrite_ConstantOnLeftLeavesScan(t *testing.T) {
	cat, table := setupCatalog(t, true)
	opt := NewOptimizer(cat)

	// The rule matches `column = constant`, not `constant = column`.
	filter := planner.NewComparisonExpr(
		planner.NewConstantValueExpr(common.NewIntValue(7)),
		planner.NewColumnValueExpr(0, table.ColumnTypes(), "id"),
		planner.Equal)
	scan := planner.NewSeqScanNode(table.Oid, table.ColumnTypes(), filter)

	rewritten := opt.OptimizeSeqScanAsIndexScan(scan)
	_, ok := rewritten.(*planner.SeqScanNode)
	assert.True(t, ok)
}
