package planner

import (
	"fmt"

	"github.com/marbledb/marble/common"
)

// dmlOutputSchema is the single-column count row every mutation emits.
var dmlOutputSchema = []common.Type{common.IntType}

// InsertNode inserts the rows produced by its child into a table.
type InsertNode struct {
	TableOid common.ObjectID
	Child    PlanNode
}

func NewInsertNode(tableOid common.ObjectID, child PlanNode) *InsertNode {
	return &InsertNode{TableOid: tableOid, Child: child}
}

func (n *InsertNode) OutputSchema() []common.Type {
	return dmlOutputSchema
}

func (n *InsertNode) Children() []PlanNode {
	return []PlanNode{n.Child}
}

func (n *InsertNode) String() string {
	return fmt.Sprintf("Insert: table(%d)", n.TableOid)
}

// DeleteNode tombstones the rows produced by its child.
type DeleteNode struct {
	TableOid common.ObjectID
	Child    PlanNode
}

func NewDeleteNode(tableOid common.ObjectID, child PlanNode) *DeleteNode {
	return &DeleteNode{TableOid: tableOid, Child: child}
}

func (n *DeleteNode) OutputSchema() []common.Type {
	return dmlOutputSchema
}

func (n *DeleteNode) Children() []PlanNode {
	return []PlanNode{n.Child}
}

func (n *DeleteNode) String() string {
	return fmt.Sprintf("Delete: table(%d)", n.TableOid)
}

// UpdateNode rewrites each row produced by its child. TargetExpressions
// compute the new value of every column from the old row.
type UpdateNode struct {
	TableOid          common.ObjectID
	Child             PlanNode
	TargetExpressions []Expr
}

func NewUpdateNode(tableOid common.ObjectID, child PlanNode, targets []Expr) *UpdateNode {
	return &UpdateNode{TableOid: tableOid, Child: child, TargetExpressions: targets}
}

func (n *UpdateNode) OutputSchema() []common.Type {
	return dmlOutputSchema
}

func (n *UpdateNode) Children() []PlanNode {
	return []PlanNode{n.Child}
}

func (n *UpdateNode) String() string {
	return fmt.Sprintf("Update: table(%d)", n.TableOid)
}
