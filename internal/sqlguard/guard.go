// Package sqlguard scans SQL filter fragments for injection attempts
// before they are inlined into a query. tileservice runs it on a layer's
// static filter and then on the full WHERE fragment, which joins the
// clause compiled from the request's filter DSL with that static filter.
// There is no separate raw "filter" query parameter: a "filter" key in
// the query string is parsed by package filter like any other DSL key.
package sqlguard

import (
	"regexp"
	"strings"
)

var (
	reNumericComparison = regexp.MustCompile(`(?i)\b(\d+)\s*=\s*(\d+)\b`)
	reHex                = regexp.MustCompile(`(?i)0x[0-9a-fA-F]+`)
	reSysProc            = regexp.MustCompile(`(?i)\b(sp_|xp_)\w+`)
	reComment            = regexp.MustCompile(`(--|/\*|\*/)`)
	reStringTautology    = regexp.MustCompile(`(?i)(?:OR|AND)\s+'([^']+)'\s*=\s*'([^']+)'`)
)

var dangerousKeywords = []string{
	"DROP", "DELETE", "INSERT", "UPDATE", "ALTER", "TRUNCATE", "GRANT", "REVOKE",
	"UNION", "EXEC", "EXECUTE", "DECLARE", "CAST", "CHAR", "NCHAR", "VARCHAR",
	"NVARCHAR", "SUSER_SNAME", "SESSION_USER", "XP_CMDSHELL",
}

// Error is returned by Validate when a filter fragment is rejected.
type Error struct {
	Reason string
}

func (e *Error) Error() string { return "sql injection rejected: " + e.Reason }

// Validate scans filter for injection attempts. An empty or
// whitespace-only filter always passes.
func Validate(filter string) error {
	if strings.TrimSpace(filter) == "" {
		return nil
	}

	masked, balanced := maskQuotedRegions(filter)

	for _, m := range reNumericComparison.FindAllStringSubmatch(masked, -1) {
		if m[1] == m[2] {
			return &Error{Reason: "tautology detected"}
		}
	}

	if reHex.MatchString(filter) {
		return &Error{Reason: "hex literal detected"}
	}

	if reSysProc.MatchString(filter) {
		return &Error{Reason: "system procedure detected"}
	}

	if reComment.MatchString(filter) {
		return &Error{Reason: "sql comments detected"}
	}

	for _, m := range reStringTautology.FindAllStringSubmatch(filter, -1) {
		if m[1] == m[2] {
			return &Error{Reason: "string tautology detected"}
		}
	}

	if !balanced {
		return &Error{Reason: "unbalanced quotes"}
	}

	upper := strings.ToUpper(masked)
	for _, keyword := range dangerousKeywords {
		for start := 0; ; {
			rel := strings.Index(upper[start:], keyword)
			if rel < 0 {
				break
			}
			idx := start + rel
			start = idx + 1
			before := byte(' ')
			if idx > 0 {
				before = upper[idx-1]
			}
			afterIdx := idx + len(keyword)
			after := byte(' ')
			if afterIdx < len(upper) {
				after = upper[afterIdx]
			}
			if isWordBoundary(before) && isWordBoundary(after) {
				return &Error{Reason: "dangerous keyword detected: " + keyword}
			}
		}
	}

	return nil
}

func isWordBoundary(b byte) bool {
	isAlnum := (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
	return !isAlnum && b != '_'
}

// maskQuotedRegions replaces characters inside single- or double-quoted
// regions with spaces, treating '' and "" as escaped quote characters
// rather than region boundaries. balanced is false if a quote is left
// open at the end of the string.
func maskQuotedRegions(filter string) (masked string, balanced bool) {
	runes := []rune(filter)
	var buf strings.Builder
	inSingle, inDouble := false, false

	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case c == '\'' && !inDouble:
			if i+1 < len(runes) && runes[i+1] == '\'' {
				i++
			} else {
				inSingle = !inSingle
			}
		case c == '"' && !inSingle:
			if i+1 < len(runes) && runes[i+1] == '"' {
				i++
			} else {
				inDouble = !inDouble
			}
		}

		if inSingle || inDouble {
			buf.WriteRune(' ')
		} else {
			buf.WriteRune(c)
		}
	}

	return buf.String(), !inSingle && !inDouble
}
