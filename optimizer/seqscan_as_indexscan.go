// Package optimizer holds plan rewrite rules. The single rule implemented
// turns an equality-filtered sequential scan into an index probe when a
// matching single-column index exists.
package optimizer

import (
	"github.com/marbledb/marble/catalog"
	"github.com/marbledb/marble/common"
	"github.com/marbledb/marble/planner"
)

// Optimizer rewrites plans against a catalog.
type Optimizer struct {
	cat *catalog.Catalog
}

func NewOptimizer(cat *catalog.Catalog) *Optimizer {
	return &Optimizer{cat: cat}
}

// OptimizeSeqScanAsIndexScan walks the plan bottom-up. A SeqScan whose
// filter is `column = constant` becomes an IndexScan probing that constant
// when a single-column index exists on the column. Every other node passes
// through with rewritten children.
func (o *Optimizer) OptimizeSeqScanAsIndexScan(plan planner.PlanNode) planner.PlanNode {
	switch n := plan.(type) {
	case *planner.FilterNode:
		return planner.NewFilterNode(o.OptimizeSeqScanAsIndexScan(n.Child), n.Predicate)
	case *planner.InsertNode:
		return planner.NewInsertNode(n.TableOid, o.OptimizeSeqScanAsIndexScan(n.Child))
	case *planner.DeleteNode:
		return planner.NewDeleteNode(n.TableOid, o.OptimizeSeqScanAsIndexScan(n.Child))
	case *planner.UpdateNode:
		return planner.NewUpdateNode(n.TableOid, o.OptimizeSeqScanAsIndexScan(n.Child), n.TargetExpressions)
	case *planner.NestedLoopJoinNode:
		return planner.NewNestedLoopJoinNode(
			o.OptimizeSeqScanAsIndexScan(n.Left),
			o.OptimizeSeqScanAsIndexScan(n.Right),
			n.Predicate, n.JoinType)
	case *planner.AggregateNode:
		return planner.NewAggregateNode(o.OptimizeSeqScanAsIndexScan(n.Child), n.GroupByClause, n.AggClauses)
	case *planner.SeqScanNode:
		return o.rewriteSeqScan(n)
	default:
		return plan
	}
}

func (o *Optimizer) rewriteSeqScan(scan *planner.SeqScanNode) planner.PlanNode {
	if scan.FilterPredicate == nil {
		return scan
	}
	comp, ok := scan.FilterPredicate.(*planner.ComparisonExpr)
	if !ok || comp.CompType() != planner.Equal {
		return scan
	}
	column, ok := comp.Left().(*planner.ColumnValueExpr)
	if !ok {
		return scan
	}
	constant, ok := comp.Right().(*planner.ConstantValueExpr)
	if !ok {
		return scan
	}

	indexOid, found := o.matchIndex(scan, column.ColumnIndex())
	if !found {
		return scan
	}
	return planner.NewIndexScanNode(indexOid, scan.TableOid, scan.OutputSchema(),
		constant.Value(), scan.FilterPredicate)
}

// matchIndex finds a single-column index on the given column of the scanned
// table.
func (o *Optimizer) matchIndex(scan *planner.SeqScanNode, columnIdx int) (oid common.ObjectID, found bool) {
	table, err := o.cat.GetTableByOid(scan.TableOid)
	if err != nil {
		return 0, false
	}
	columnName := table.Columns[columnIdx].Name
	for _, idx := range table.Indexes {
		if len(idx.KeyColumns) == 1 && idx.KeyColumns[0] == columnName {
			return idx.Oid, true
		}
	}
	return 0, false
}
