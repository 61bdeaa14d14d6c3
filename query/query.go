// Package query implements the predicate tree and executor: a query
// targets one table, optionally pins a primary key for a point lookup,
// and otherwise drives a forward cursor scan evaluating an AND or OR of
// column conditions against each row.
package query

import (
	"github.com/stufffdb/stufffdb/common"
	"github.com/stufffdb/stufffdb/row"
	"github.com/stufffdb/stufffdb/schema"
)

// Op is a single comparison: lhs column name, operator, and the value to
// compare against (nil for IsNull, which ignores rhs).
type Op struct {
	Column   string
	Operator Operator
	Value    row.Value
}

type Operator int

const (
	OpEq Operator = iota
	OpGt
	OpLt
	OpStartsWith
	OpEndsWith
	OpContains
	OpIsNull
)

// Condition is a single Op, optionally negated.
type Condition struct {
	Op  Op
	Not bool
}

// TopLevelOperator joins a query's conditions.
type TopLevelOperator int

const (
	And TopLevelOperator = iota
	Or
)

// Query targets exactly one table.
type Query struct {
	Table      string
	Key        row.Value // zero Value (Kind Null) means "no point lookup"
	Join       TopLevelOperator
	Conditions []Condition
	Offset     int
	Count      int // 0 means unlimited
}

// New starts a query against table with no key, no conditions, and no
// limit.
func New(table string) *Query {
	return &Query{Table: table}
}

// WithKey pins a primary-key point lookup.
func (q *Query) WithKey(v row.Value) *Query { q.Key = v; return q }

// Where appends a condition, ANDed or ORed per q.Join (set via And()/Or()).
func (q *Query) Where(c Condition) *Query {
	q.Conditions = append(q.Conditions, c)
	return q
}

// And sets the join operator to AND (the default).
func (q *Query) And() *Query { q.Join = And; return q }

// Or sets the join operator to OR.
func (q *Query) Or() *Query { q.Join = Or; return q }

// Limit sets (offset, count); count = 0 means unlimited.
func (q *Query) Limit(offset, count int) *Query {
	q.Offset, q.Count = offset, count
	return q
}

// evalOp evaluates a single Op against a decoded row.
func evalOp(table *schema.Table, r row.Row, op Op) (bool, error) {
	idx := table.ColumnIndex(op.Column)
	if idx < 0 {
		return false, common.ErrColumnNotFound
	}
	lhs := r[idx]

	if op.Operator == OpIsNull {
		return lhs.IsNull(), nil
	}
	if op.Value.Kind == row.KindNull && op.Operator != OpEq {
		return false, common.ErrMissingOperands
	}

	switch op.Operator {
	case OpEq:
		return lhs.Eq(op.Value), nil
	case OpGt:
		return lhs.Gt(op.Value), nil
	case OpLt:
		return lhs.Lt(op.Value), nil
	case OpStartsWith:
		return lhs.StartsWith(op.Value), nil
	case OpEndsWith:
		return lhs.EndsWith(op.Value), nil
	case OpContains:
		return lhs.Contains(op.Value), nil
	default:
		return false, common.ErrInvalidOperands
	}
}

// Evaluate reports whether row r satisfies q's join of conditions. A query
// with no conditions passes every row.
func Evaluate(table *schema.Table, r row.Row, q *Query) (bool, error) {
	if len(q.Conditions) == 0 {
		return true, nil
	}
	if q.Join == Or {
		for _, c := range q.Conditions {
			ok, err := evalOp(table, r, c.Op)
			if err != nil {
				return false, err
			}
			if c.Not {
				ok = !ok
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}
	for _, c := range q.Conditions {
		ok, err := evalOp(table, r, c.Op)
		if err != nil {
			return false, err
		}
		if c.Not {
			ok = !ok
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
