package planner

import (
	"fmt"

	"github.com/marbledb/marble/common"
)

// SeqScanNode represents a sequential scan over a table, with an optional
// filter predicate evaluated inline.
type SeqScanNode struct {
	TableOid common.ObjectID
	// FilterPredicate may be nil; rows for which it is null or false are
	// skipped.
	FilterPredicate Expr
	outputSchema    []common.Type
}

func NewSeqScanNode(tableOid common.ObjectID, outputSchema []common.Type, filter Expr) *SeqScanNode {
	return &SeqScanNode{
		TableOid:        tableOid,
		FilterPredicate: filter,
		outputSchema:    outputSchema,
	}
}

func (n *SeqScanNode) OutputSchema() []common.Type {
	return n.outputSchema
}

func (n *SeqScanNode) Children() []PlanNode {
	return nil
}

func (n *SeqScanNode) String() string {
	if n.FilterPredicate != nil {
		return fmt.Sprintf("SeqScan: table(%d) filter %s", n.TableOid, n.FilterPredicate.String())
	}
	return fmt.Sprintf("SeqScan: table(%d)", n.TableOid)
}

// IndexScanNode represents a point probe of an index with a literal key.
type IndexScanNode struct {
	IndexOid common.ObjectID
	TableOid common.ObjectID
	// ProbeKey is the literal the index is probed with.
	ProbeKey common.Value
	// FilterPredicate is the original scan predicate, retained for
	// re-checking fetched rows.
	FilterPredicate Expr
	outputSchema    []common.Type
}

func NewIndexScanNode(indexOid, tableOid common.ObjectID, outputSchema []common.Type,
	probeKey common.Value, filter Expr) *IndexScanNode {
	return &IndexScanNode{
		IndexOid:        indexOid,
		TableOid:        tableOid,
		ProbeKey:        probeKey,
		FilterPredicate: filter,
		outputSchema:    outputSchema,
	}
}

func (n *IndexScanNode) OutputSchema() []common.Type {
	return n.outputSchema
}

func (n *IndexScanNode) Children() []PlanNode {
	return nil
}

func (n *IndexScanNode) String() string {
	return fmt.Sprintf("IndexScan: index(%d) on table(%d)", n.IndexOid, n.TableOid)
}
