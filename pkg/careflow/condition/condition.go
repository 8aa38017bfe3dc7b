// Package condition compiles small boolean expressions used by routing rules,
// e.g. "intent == 'doctor' and risk == 'high'".
//
// Grammar, loosest binding first:
//
//	expr    := and { " or " and }
//	and     := unary { " and " unary }
//	unary   := ("not " | "!") unary | compare
//	compare := operand [ op operand ]
//	op      := "==" | "!=" | ">=" | "<=" | ">" | "<" | " contains " | " in "
//
// Operands are quoted strings, numbers, true/false/null, or variable names
// looked up at match time. An unknown bare name resolves to itself, so
// intent == doctor works without quotes. "in" tests membership in a
// comma-separated list: risk in 'high,emergency'.
package condition

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyExpression indicates an expression or operand with no content.
var ErrEmptyExpression = errors.New("empty expression")

// Condition is a compiled expression. It is immutable and safe for
// concurrent use.
type Condition struct {
	src  string
	root node
}

// Compile parses src.
func Compile(src string) (*Condition, error) {
	root, err := parse(strings.TrimSpace(src))
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", src, err)
	}
	return &Condition{src: src, root: root}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(src string) *Condition {
	c, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return c
}

// Match evaluates the condition against vars.
func (c *Condition) Match(vars map[string]any) bool {
	return c.root.eval(vars)
}

// String returns the source expression.
func (c *Condition) String() string {
	return c.src
}

// Eval compiles and evaluates src in one call.
func Eval(src string, vars map[string]any) (bool, error) {
	c, err := Compile(src)
	if err != nil {
		return false, err
	}
	return c.Match(vars), nil
}

type node interface {
	eval(vars map[string]any) bool
}

type orNode struct{ left, right node }

func (n orNode) eval(v map[string]any) bool { return n.left.eval(v) || n.right.eval(v) }

type andNode struct{ left, right node }

func (n andNode) eval(v map[string]any) bool { return n.left.eval(v) && n.right.eval(v) }

type notNode struct{ inner node }

func (n notNode) eval(v map[string]any) bool { return !n.inner.eval(v) }

type truthyNode struct{ operand string }

func (n truthyNode) eval(v map[string]any) bool { return IsTruthy(Resolve(n.operand, v)) }

type compareNode struct {
	left, right string
	cmp         func(l, r any) bool
}

func (n compareNode) eval(v map[string]any) bool {
	return n.cmp(Resolve(n.left, v), Resolve(n.right, v))
}

// operators in match order; longer tokens first so ">=" is not read as ">".
var operators = []struct {
	token string
	cmp   func(l, r any) bool
}{
	{"==", equals},
	{"!=", func(l, r any) bool { return !equals(l, r) }},
	{">=", func(l, r any) bool { return ToFloat64(l) >= ToFloat64(r) }},
	{"<=", func(l, r any) bool { return ToFloat64(l) <= ToFloat64(r) }},
	{">", func(l, r any) bool { return ToFloat64(l) > ToFloat64(r) }},
	{"<", func(l, r any) bool { return ToFloat64(l) < ToFloat64(r) }},
	{" contains ", func(l, r any) bool { return strings.Contains(toString(l), toString(r)) }},
	{" in ", member},
}

func parse(expr string) (node, error) {
	if expr == "" {
		return nil, ErrEmptyExpression
	}

	if left, right, ok := strings.Cut(expr, " or "); ok {
		return binary(left, right, func(l, r node) node { return orNode{l, r} })
	}
	if left, right, ok := strings.Cut(expr, " and "); ok {
		return binary(left, right, func(l, r node) node { return andNode{l, r} })
	}

	if rest, ok := strings.CutPrefix(expr, "not "); ok {
		inner, err := parse(strings.TrimSpace(rest))
		if err != nil {
			return nil, err
		}
		return notNode{inner}, nil
	}
	if rest, ok := strings.CutPrefix(expr, "!"); ok && !strings.HasPrefix(expr, "!=") {
		inner, err := parse(strings.TrimSpace(rest))
		if err != nil {
			return nil, err
		}
		return notNode{inner}, nil
	}

	for _, op := range operators {
		left, right, ok := strings.Cut(expr, op.token)
		if !ok {
			continue
		}
		left, right = strings.TrimSpace(left), strings.TrimSpace(right)
		if left == "" || right == "" {
			return nil, fmt.Errorf("%w: operand of %q", ErrEmptyExpression, strings.TrimSpace(op.token))
		}
		return compareNode{left: left, right: right, cmp: op.cmp}, nil
	}

	return truthyNode{operand: expr}, nil
}

func binary(left, right string, join func(l, r node) node) (node, error) {
	l, err := parse(strings.TrimSpace(left))
	if err != nil {
		return nil, err
	}
	r, err := parse(strings.TrimSpace(right))
	if err != nil {
		return nil, err
	}
	return join(l, r), nil
}

func equals(l, r any) bool {
	return toString(l) == toString(r)
}

func member(l, r any) bool {
	needle := toString(l)
	for _, item := range strings.Split(toString(r), ",") {
		if strings.TrimSpace(item) == needle {
			return true
		}
	}
	return false
}
