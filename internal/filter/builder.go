package filter

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Builder compiles a list of Conditions into a parameterized SQL WHERE
// clause fragment (without the leading "WHERE"), starting bindings at a
// caller-supplied 1-based placeholder index (tile queries start at 9,
// since positions 1..8 are reserved for the MVT template's own
// parameters).
type Builder struct {
	startIndex int
}

// NewBuilder returns a Builder whose first emitted placeholder is $startIndex.
func NewBuilder(startIndex int) *Builder {
	return &Builder{startIndex: startIndex}
}

// Build compiles conditions into (clause, bindings). Conditions are
// grouped by LogicalOp (And, Or, Not) and, within a group, ordered by
// (Field, Operator) for determinism -- Parse's input order is not
// preserved since it originates from a map.
func (b *Builder) Build(conditions []Condition) (clause string, bindings []string) {
	if len(conditions) == 0 {
		return "", nil
	}

	var and, or, not []Condition
	for _, c := range conditions {
		switch c.Logic {
		case Or:
			or = append(or, c)
		case Not:
			not = append(not, c)
		default:
			and = append(and, c)
		}
	}
	sortGroup(and)
	sortGroup(or)
	sortGroup(not)

	idx := b.startIndex
	var parts []string

	if len(and) > 0 {
		var clauses []string
		for i := range and {
			cond, n := b.condition(&and[i], idx)
			clauses = append(clauses, cond)
			bindings = append(bindings, and[i].binding(n)...)
			idx += n
		}
		parts = append(parts, strings.Join(clauses, " AND "))
	}

	if len(or) > 0 {
		var clauses []string
		for i := range or {
			cond, n := b.condition(&or[i], idx)
			clauses = append(clauses, cond)
			bindings = append(bindings, or[i].binding(n)...)
			idx += n
		}
		parts = append(parts, "("+strings.Join(clauses, " OR ")+")")
	}

	for i := range not {
		cond, n := b.condition(&not[i], idx)
		parts = append(parts, "NOT ("+cond+")")
		bindings = append(bindings, not[i].binding(n)...)
		idx += n
	}

	return strings.Join(parts, " AND "), bindings
}

func sortGroup(cs []Condition) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].Field != cs[j].Field {
			return cs[i].Field < cs[j].Field
		}
		return cs[i].Operator < cs[j].Operator
	})
}

// condition renders one condition's SQL fragment starting at placeholder
// index idx, returning the fragment and the number of placeholders it
// consumed (1, except for IN which consumes one per value).
func (b *Builder) condition(c *Condition, idx int) (string, int) {
	if c.Operator == In {
		values := splitInValues(c.Value)
		if len(values) == 0 {
			return "1=0", 0
		}
		numeric := allNumeric(values)
		var placeholders []string
		for i := range values {
			ph := fmt.Sprintf("$%d", idx+i)
			if numeric {
				ph += "::int"
			}
			placeholders = append(placeholders, ph)
		}
		return fmt.Sprintf("%s IN (%s)", c.Field, strings.Join(placeholders, ", ")), len(values)
	}
	return fmt.Sprintf("%s %s $%d", c.Field, c.Operator.SQL(), idx), 1
}

// binding returns the bound values for a condition that consumed n
// placeholders.
func (c *Condition) binding(n int) []string {
	if c.Operator == In {
		return splitInValues(c.Value)
	}
	if n == 0 {
		return nil
	}
	return []string{c.Value}
}

func splitInValues(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		p = stripSingleQuotes(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func allNumeric(values []string) bool {
	for _, v := range values {
		if _, err := strconv.ParseInt(v, 10, 64); err != nil {
			return false
		}
	}
	return true
}
