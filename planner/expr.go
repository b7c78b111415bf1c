package planner

import (
	"fmt"

	"github.com/marbledb/marble/common"
	"github.com/marbledb/marble/storage"
)

// Expr represents a node in an expression tree.
// Expressions are stateless and immutable plan nodes.
type Expr interface {
	// Eval evaluates the expression against the provided tuple.
	Eval(t storage.Tuple) common.Value

	// OutputType returns the type of value this expression produces.
	OutputType() common.Type

	// String returns a string representation of the expression.
	String() string
}

// ColumnValueExpr reads a column of the input tuple.
type ColumnValueExpr struct {
	columnIndex int
	outputType  common.Type
	name        string
}

func NewColumnValueExpr(columnIndex int, tupleSchema []common.Type, name string) *ColumnValueExpr {
	return &ColumnValueExpr{
		columnIndex: columnIndex,
		outputType:  tupleSchema[columnIndex],
		name:        name,
	}
}

func (e *ColumnValueExpr) Eval(t storage.Tuple) common.Value {
	return t.GetValue(e.columnIndex)
}

// ColumnIndex returns the position of the referenced column.
func (e *ColumnValueExpr) ColumnIndex() int {
	return e.columnIndex
}

func (e *ColumnValueExpr) OutputType() common.Type {
	return e.outputType
}

func (e *ColumnValueExpr) String() string {
	return e.name
}

// ConstantValueExpr yields a literal value.
type ConstantValueExpr struct {
	val common.Value
}

func NewConstantValueExpr(val common.Value) *ConstantValueExpr {
	return &ConstantValueExpr{val: val}
}

func (e *ConstantValueExpr) Eval(t storage.Tuple) common.Value {
	return e.val
}

// Value returns the literal.
func (e *ConstantValueExpr) Value() common.Value {
	return e.val
}

func (e *ConstantValueExpr) OutputType() common.Type {
	return e.val.Type()
}

func (e *ConstantValueExpr) String() string {
	if e.val.Type() == common.StringType {
		return fmt.Sprintf("'%s'", e.val.StringValue())
	}
	return fmt.Sprintf("%d", e.val.IntValue())
}

type ComparisonType int

const (
	Equal ComparisonType = iota
	NotEqual
	GreaterThan
	LessThan
	GreaterThanOrEqual
	LessThanOrEqual
)

func (c ComparisonType) String() string {
	switch c {
	case Equal:
		return "="
	case NotEqual:
		return "!="
	case GreaterThan:
		return ">"
	case LessThan:
		return "<"
	case GreaterThanOrEqual:
		return ">="
	case LessThanOrEqual:
		return "<="
	}
	return "???"
}

// ComparisonExpr compares its operands, yielding a three-valued boolean
// encoded as an integer (NULL when either side is NULL).
type ComparisonExpr struct {
	left     Expr
	right    Expr
	compType ComparisonType
}

func NewComparisonExpr(left Expr, right Expr, compType ComparisonType) *ComparisonExpr {
	return &ComparisonExpr{
		left:     left,
		right:    right,
		compType: compType,
	}
}

// Left returns the left operand.
func (e *ComparisonExpr) Left() Expr { return e.left }

// Right returns the right operand.
func (e *ComparisonExpr) Right() Expr { return e.right }

// CompType returns the comparison operator.
func (e *ComparisonExpr) CompType() ComparisonType { return e.compType }

func (e *ComparisonExpr) Eval(t storage.Tuple) common.Value {
	val1 := e.left.Eval(t)
	val2 := e.right.Eval(t)

	if val1.IsNull() || val2.IsNull() {
		return common.NewNullInt()
	}

	cmp := val1.Compare(val2)
	var result bool

	switch e.compType {
	case Equal:
		result = cmp == 0
	case NotEqual:
		result = cmp != 0
	case GreaterThan:
		result = cmp > 0
	case LessThan:
		result = cmp < 0
	case GreaterThanOrEqual:
		result = cmp >= 0
	case LessThanOrEqual:
		result = cmp <= 0
	}
	if result {
		return common.NewIntValue(1)
	}
	return common.NewIntValue(0)
}

func (e *ComparisonExpr) OutputType() common.Type {
	return common.IntType
}

func (e *ComparisonExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", e.left.String(), e.compType.String(), e.right.String())
}

// ExprIsTrue reports whether a predicate result is definitely true.
func ExprIsTrue(v common.Value) bool {
	return v.Type() == common.IntType && !v.IsNull() && v.IntValue() != 0
}

// ExprIsFalse reports whether a predicate result is definitely false.
func ExprIsFalse(v common.Value) bool {
	return v.Type() == common.IntType && !v.IsNull() && v.IntValue() == 0
}

type BinaryLogicType int

const (
	And BinaryLogicType = iota
	Or
)

func (l BinaryLogicType) String() string {
	switch l {
	case And:
		return "AND"
	case Or:
		return "OR"
	}
	return "???"
}

// BinaryLogicExpr implements three-valued AND/OR.
type BinaryLogicExpr struct {
	left      Expr
	right     Expr
	logicType BinaryLogicType
}

func NewBinaryLogicExpr(left Expr, right Expr, logicType BinaryLogicType) *BinaryLogicExpr {
	return &BinaryLogicExpr{
		left:      left,
		right:     right,
		logicType: logicType,
	}
}

func (e *BinaryLogicExpr) Eval(t storage.Tuple) common.Value {
	val1 := e.left.Eval(t)
	val2 := e.right.Eval(t)

	switch e.logicType {
	case And:
		if ExprIsTrue(val1) && ExprIsTrue(val2) {
			return common.NewIntValue(1)
		} else if ExprIsFalse(val1) || ExprIsFalse(val2) {
			return common.NewIntValue(0)
		}
		return common.NewNullInt()
	case Or:
		if ExprIsTrue(val1) || ExprIsTrue(val2) {
			return common.NewIntValue(1)
		} else if ExprIsFalse(val1) && ExprIsFalse(val2) {
			return common.NewIntValue(0)
		}
		return common.NewNullInt()
	default:
		panic("unknown logic type")
	}
}

func (e *BinaryLogicExpr) OutputType() common.Type {
	return common.IntType
}

func (e *BinaryLogicExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", e.left.String(), e.logicType.String(), e.right.String())
}

// NegationExpr implements three-valued NOT.
type NegationExpr struct {
	child Expr
}

func NewNegationExpr(child Expr) *NegationExpr {
	return &NegationExpr{child: child}
}

func (e *NegationExpr) Eval(t storage.Tuple) common.Value {
	val := e.child.Eval(t)
	if val.IsNull() {
		return common.NewNullInt()
	}
	if ExprIsTrue(val) {
		return common.NewIntValue(0)
	}
	return common.NewIntValue(1)
}

func (e *NegationExpr) OutputType() common.Type {
	return common.IntType
}

func (e *NegationExpr) String() string {
	return fmt.Sprintf("!(%s)", e.child.String())
}

type NullCheckType int

const (
	IsNull NullCheckType = iota
	IsNotNull
)

func (n NullCheckType) String() string {
	switch n {
	case IsNull:
		return "IS NULL"
	case IsNotNull:
		return "IS NOT NULL"
	}
	return "???"
}

// NullCheckExpr tests a value for NULL.
type NullCheckExpr struct {
	child     Expr
	checkType NullCheckType
}

func NewNullCheckExpr(child Expr, checkType NullCheckType) *NullCheckExpr {
	return &NullCheckExpr{
		child:     child,
		checkType: checkType,
	}
}

func (e *NullCheckExpr) Eval(t storage.Tuple) common.Value {
	isNull := e.child.Eval(t).IsNull()

	var result bool
	switch e.checkType {
	case IsNull:
		result = isNull
	case IsNotNull:
		result = !isNull
	}

	if result {
		return common.NewIntValue(1)
	}
	return common.NewIntValue(0)
}

func (e *NullCheckExpr) OutputType() common.Type {
	return common.IntType
}

func (e *NullCheckExpr) String() string {
	return fmt.Sprintf("(%s %s)", e.child.String(), e.checkType.String())
}

type ArithmeticType int

const (
	Add ArithmeticType = iota
	Sub
	Mult
	Div
	Mod
)

func (a ArithmeticType) String() string {
	switch a {
	case Add:
		return "+"
	case Sub:
		return "-"
	case Mult:
		return "*"
	case Div:
		return "/"
	case Mod:
		return "%"
	}
	return "?"
}

// ArithmeticExpr computes integer arithmetic; division or modulo by zero
// yields NULL.
type ArithmeticExpr struct {
	left  Expr
	right Expr
	op    ArithmeticType
}

func NewArithmeticExpr(left Expr, right Expr, op ArithmeticType) *ArithmeticExpr {
	return &ArithmeticExpr{
		left:  left,
		right: right,
		op:    op,
	}
}

func (e *ArithmeticExpr) Eval(t storage.Tuple) common.Value {
	val1 := e.left.Eval(t)
	val2 := e.right.Eval(t)

	if val1.IsNull() || val2.IsNull() {
		return common.NewNullInt()
	}

	v1 := val1.IntValue()
	v2 := val2.IntValue()
	var result int64

	switch e.op {
	case Add:
		result = v1 + v2
	case Sub:
		result = v1 - v2
	case Mult:
		result = v1 * v2
	case Div:
		if v2 == 0 {
			return common.NewNullInt()
		}
		result = v1 / v2
	case Mod:
		if v2 == 0 {
			return common.NewNullInt()
		}
		result = v1 % v2
	}
	return common.NewIntValue(result)
}

func (e *ArithmeticExpr) OutputType() common.Type {
	return common.IntType
}

func (e *ArithmeticExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", e.left.String(), e.op.String(), e.right.String())
}
