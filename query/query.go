package query

import (
	"fmt"
	"strings"

	"github.com/danthegoodman1/adaptree/utils"
	"github.com/danthegoodman1/adaptree/value"
)

type (
	Op int

	Predicate struct {
		Attribute int
		Type      value.AttributeType
		Op        Op
		Value     value.Value
	}

	// Query is a conjunction of predicates.
	Query struct {
		Predicates []Predicate
	}
)

const (
	EQ Op = iota
	LT
	LEQ
	GT
	GEQ
)

var (
	ErrUnknownOp = utils.PermError("unknown predicate operator")

	opNames = []string{"EQ", "LT", "LEQ", "GT", "GEQ"}
)

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

func ParseOp(s string) (Op, error) {
	for i, name := range opNames {
		if strings.EqualFold(name, s) {
			return Op(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownOp, s)
}

func NewPredicate(attr int, op Op, v value.Value) Predicate {
	return Predicate{Attribute: attr, Type: v.Type(), Op: op, Value: v}
}

func New(predicates ...Predicate) Query {
	return Query{Predicates: predicates}
}

func (p Predicate) String() string {
	return fmt.Sprintf("a%d %s %s", p.Attribute, p.Op, p.Value.Format())
}

// Prunes reports which side of a split on p.Attribute at splitValue cannot hold
// a matching row. Left holds values < splitValue, right holds values >= splitValue.
func (p Predicate) Prunes(splitValue value.Value) (pruneLeft, pruneRight bool) {
	c := value.Compare(p.Value, splitValue)
	switch p.Op {
	case GEQ:
		pruneLeft = c >= 0
	case LEQ:
		pruneRight = c < 0
	case GT:
		pruneLeft = c >= 0
	case LT:
		pruneRight = c <= 0
	case EQ:
		// routed the way a point lookup routes the value
		if c < 0 {
			pruneRight = true
		} else {
			pruneLeft = true
		}
	}
	return
}

// Reachable applies every predicate on attr to a split and reports which
// children may still hold matching rows.
func Reachable(predicates []Predicate, attr int, splitValue value.Value) (goLeft, goRight bool) {
	goLeft, goRight = true, true
	for _, p := range predicates {
		if p.Attribute != attr {
			continue
		}
		pruneLeft, pruneRight := p.Prunes(splitValue)
		if pruneLeft {
			goLeft = false
		}
		if pruneRight {
			goRight = false
		}
	}
	return
}

func (q Query) String() string {
	parts := make([]string, len(q.Predicates))
	for i, p := range q.Predicates {
		parts[i] = p.String()
	}
	return strings.Join(parts, " AND ")
}
