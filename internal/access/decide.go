// Package access maps (allowed roles, resolution) to a render outcome and
// applies that outcome to HTTP responses.
//
// Decide is the sole decision point. It is pure: the same inputs always give
// the same outcome and nothing outside its arguments is consulted. Roles are
// flat tags; admin does not satisfy a check written for property_manager
// unless the set lists it.
package access

import (
	"fmt"

	"prophub/internal/domain/models"
)

// Outcome is what a gate renders
type Outcome int

const (
	// ShowNothing renders nothing while the role is still being resolved
	ShowNothing Outcome = iota
	// ShowFallback renders the caller's fallback (typically "Access Restricted")
	ShowFallback
	// ShowContent renders the protected content
	ShowContent
)

// String returns the snake_case outcome name used in metrics and JSON
func (o Outcome) String() string {
	switch o {
	case ShowNothing:
		return "show_nothing"
	case ShowFallback:
		return "show_fallback"
	case ShowContent:
		return "show_content"
	default:
		return "unknown"
	}
}

// MarshalText lets outcomes appear as strings in JSON
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText parses the names written by MarshalText
func (o *Outcome) UnmarshalText(text []byte) error {
	for _, candidate := range []Outcome{ShowNothing, ShowFallback, ShowContent} {
		if candidate.String() == string(text) {
			*o = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", text)
}

// Decide returns the outcome for a resolution against the allowed set.
// Pending shows nothing; a resolved member shows content; everything else,
// including an empty allowed set, falls back.
func Decide(allowed models.RoleSet, res models.Resolution) Outcome {
	switch res.State {
	case models.StatePending:
		return ShowNothing
	case models.StateResolved:
		if allowed.Contains(res.Role) {
			return ShowContent
		}
	}
	return ShowFallback
}
