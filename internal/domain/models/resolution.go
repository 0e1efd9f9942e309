package models

import (
	"encoding/json"
	"fmt"
)

// ResolutionState is the lifecycle status of a role lookup
type ResolutionState int

const (
	StatePending ResolutionState = iota
	StateResolved
	StateUnresolved
)

// String returns the lowercase state name used on the wire
func (s ResolutionState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateResolved:
		return "resolved"
	case StateUnresolved:
		return "unresolved"
	default:
		return fmt.Sprintf("ResolutionState(%d)", int(s))
	}
}

// Resolution is the resolver's view of the current session's role.
// Role is only meaningful when State is StateResolved.
type Resolution struct {
	State ResolutionState
	Role  Role
}

// Pending returns a resolution whose lookup has not completed
func Pending() Resolution {
	return Resolution{State: StatePending}
}

// Unresolved returns a resolution for a failed or absent lookup
func Unresolved() Resolution {
	return Resolution{State: StateUnresolved}
}

// Resolved returns a resolution carrying role.
// An invalid role yields Unresolved (deny by default).
func Resolved(role Role) Resolution {
	if !role.IsValid() {
		return Unresolved()
	}
	return Resolution{State: StateResolved, Role: role}
}

// IsPending reports whether the lookup is still in flight
func (r Resolution) IsPending() bool {
	return r.State == StatePending
}

// resolutionJSON is the wire shape of a Resolution
type resolutionJSON struct {
	State string `json:"state"`
	Role  *Role  `json:"role,omitempty"`
}

// MarshalJSON encodes as {"state": "...", "role": "..."}; role is omitted unless resolved
func (r Resolution) MarshalJSON() ([]byte, error) {
	out := resolutionJSON{State: r.State.String()}
	if r.State == StateResolved {
		role := r.Role
		out.Role = &role
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the wire shape; an unknown role tag is an error
func (r *Resolution) UnmarshalJSON(data []byte) error {
	var in resolutionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	switch in.State {
	case "pending":
		*r = Pending()
	case "unresolved":
		*r = Unresolved()
	case "resolved":
		if in.Role == nil {
			return fmt.Errorf("resolved state requires a role")
		}
		*r = Resolved(*in.Role)
	default:
		return fmt.Errorf("unknown resolution state %q", in.State)
	}
	return nil
}
