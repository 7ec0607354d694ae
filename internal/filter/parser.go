package filter

import "strings"

// stripSingleQuotes trims whitespace, then strips one matching pair of
// outer single quotes and collapses any doubled '' into a single '.
// A value with no matching outer quotes is returned trimmed and otherwise
// unchanged.
func stripSingleQuotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		s = s[1 : len(s)-1]
		s = strings.ReplaceAll(s, "''", "'")
	}
	return s
}

// Parse turns a query-string parameter map into a list of Conditions,
// in map iteration order (not the order of the query string). Keys that do not match the "[or__|not__]field[__op]" grammar,
// or that name an unrecognized operator, are silently dropped rather than
// defaulting to equality -- a malformed parameter must never be
// misinterpreted as a valid one.
//
// params should already have reserved keys (layer_name, x, y, z) removed by
// the caller.
func Parse(params map[string]string) []Condition {
	var out []Condition
	for key, value := range params {
		logic := And
		rest := key
		switch {
		case strings.HasPrefix(rest, "or__"):
			logic = Or
			rest = rest[len("or__"):]
		case strings.HasPrefix(rest, "not__"):
			logic = Not
			rest = rest[len("not__"):]
		}

		field := rest
		op := Eq
		if idx := strings.Index(rest, "__"); idx >= 0 {
			field = rest[:idx]
			suffix := rest[idx+2:]
			var ok bool
			op, ok = ParseOperator(suffix)
			if !ok {
				continue
			}
		}
		if field == "" {
			continue
		}

		v := value
		if op == Eq {
			v = stripSingleQuotes(v)
		}

		out = append(out, Condition{
			Field:    field,
			Operator: op,
			Value:    v,
			Logic:    logic,
		})
	}
	return out
}
