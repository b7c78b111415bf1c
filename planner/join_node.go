package planner

import (
	"fmt"

	"github.com/marbledb/marble/common"
)

type JoinType int

const (
	InnerJoin JoinType = iota
	LeftOuterJoin
)

func (j JoinType) String() string {
	switch j {
	case InnerJoin:
		return "INNER"
	case LeftOuterJoin:
		return "LEFT"
	}
	return "???"
}

// NestedLoopJoinNode joins two children on an arbitrary predicate. Only
// inner and left outer joins are supported.
type NestedLoopJoinNode struct {
	Left         PlanNode
	Right        PlanNode
	Predicate    Expr
	JoinType     JoinType
	outputSchema []common.Type
}

func NewNestedLoopJoinNode(left, right PlanNode, predicate Expr, joinType JoinType) *NestedLoopJoinNode {
	common.Assert(joinType == InnerJoin || joinType == LeftOuterJoin,
		"join type %s not supported", joinType)
	return &NestedLoopJoinNode{
		Left:         left,
		Right:        right,
		Predicate:    predicate,
		JoinType:     joinType,
		outputSchema: append(append([]common.Type{}, left.OutputSchema()...), right.OutputSchema()...),
	}
}

func (n *NestedLoopJoinNode) OutputSchema() []common.Type {
	return n.outputSchema
}

func (n *NestedLoopJoinNode) Children() []PlanNode {
	return []PlanNode{n.Left, n.Right}
}

func (n *NestedLoopJoinNode) String() string {
	return fmt.Sprintf("NLJ(%s): %s", n.JoinType.String(), n.Predicate.String())
}
