package models

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Role identifies a user's permission class.
// The set is closed: every switch over Role should handle all eight values.
type Role int

const (
	// roleInvalid is the zero value and never a valid role
	roleInvalid Role = iota
	RoleAdmin
	RolePropertyManager
	RoleHouseWatcher
	RoleClient
	RoleContractor
	RoleTenant
	RoleOwnerInvestor
	RoleLeasingAgent
)

var roleTags = map[Role]string{
	RoleAdmin:           "admin",
	RolePropertyManager: "property_manager",
	RoleHouseWatcher:    "house_watcher",
	RoleClient:          "client",
	RoleContractor:      "contractor",
	RoleTenant:          "tenant",
	RoleOwnerInvestor:   "owner_investor",
	RoleLeasingAgent:    "leasing_agent",
}

var rolesByTag = func() map[string]Role {
	m := make(map[string]Role, len(roleTags))
	for r, tag := range roleTags {
		m[tag] = r
	}
	return m
}()

// AllRoles returns every role in declaration order
func AllRoles() []Role {
	return []Role{
		RoleAdmin,
		RolePropertyManager,
		RoleHouseWatcher,
		RoleClient,
		RoleContractor,
		RoleTenant,
		RoleOwnerInvestor,
		RoleLeasingAgent,
	}
}

// ParseRole maps a wire tag to a Role using exact, case-sensitive equality.
func ParseRole(tag string) (Role, bool) {
	r, ok := rolesByTag[tag]
	return r, ok
}

// IsValid reports whether r is one of the eight known roles
func (r Role) IsValid() bool {
	_, ok := roleTags[r]
	return ok
}

// String returns the wire tag, or "invalid" for the zero value
func (r Role) String() string {
	if tag, ok := roleTags[r]; ok {
		return tag
	}
	return "invalid"
}

// MarshalJSON encodes the role as its tag
func (r Role) MarshalJSON() ([]byte, error) {
	if !r.IsValid() {
		return nil, fmt.Errorf("marshal role: invalid role %d", int(r))
	}
	return json.Marshal(r.String())
}

// UnmarshalJSON decodes a role tag. Unknown tags are an error.
func (r *Role) UnmarshalJSON(data []byte) error {
	var tag string
	if err := json.Unmarshal(data, &tag); err != nil {
		return err
	}
	parsed, ok := ParseRole(tag)
	if !ok {
		return fmt.Errorf("unknown role %q", tag)
	}
	*r = parsed
	return nil
}

// RoleSet is an unordered collection of roles permitted for one gate.
// Membership is exact tag equality; no role implies another.
type RoleSet struct {
	members map[Role]struct{}
}

// NewRoleSet builds a set from the given roles. Invalid roles are dropped.
func NewRoleSet(roles ...Role) RoleSet {
	s := RoleSet{members: make(map[Role]struct{}, len(roles))}
	for _, r := range roles {
		if r.IsValid() {
			s.members[r] = struct{}{}
		}
	}
	return s
}

// Contains reports whether r is a member of the set
func (s RoleSet) Contains(r Role) bool {
	_, ok := s.members[r]
	return ok
}

// Len returns the number of distinct roles in the set
func (s RoleSet) Len() int {
	return len(s.members)
}

// Roles returns the members in declaration order
func (s RoleSet) Roles() []Role {
	out := make([]Role, 0, len(s.members))
	for r := range s.members {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Tags returns the members' wire tags in declaration order
func (s RoleSet) Tags() []string {
	roles := s.Roles()
	tags := make([]string, len(roles))
	for i, r := range roles {
		tags[i] = r.String()
	}
	return tags
}

// MarshalJSON encodes the set as a sorted list of tags
func (s RoleSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Tags())
}
