package graphquery

import "strings"

// Scope controls the traversal radius around the matched set.
type Scope string

const (
	ScopeMatched Scope = "matched"
	ScopeOneHop  Scope = "one_hop"
	ScopeTwoHop  Scope = "two_hop"
)

// ParseScope normalizes a raw scope value. Unknown values deliberately
// fall back to one_hop instead of erroring; the API has always been
// permissive here and callers rely on it.
func ParseScope(raw string) Scope {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "matched":
		return ScopeMatched
	case "two_hop":
		return ScopeTwoHop
	default:
		return ScopeOneHop
	}
}

// Depth is the hop count the scope expands by.
func (s Scope) Depth() int {
	switch s {
	case ScopeMatched:
		return 0
	case ScopeTwoHop:
		return 2
	default:
		return 1
	}
}
