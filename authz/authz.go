// Package authz derives permission decisions from an identity's roles using a
// static role→permission table.
//
// The table lives in the client. A role added on the server needs a new
// table here before its permissions are recognised.
package authz

import (
	"maps"
	"slices"

	iam "github.com/chimerakang/iam-session-go"
)

const (
	// Wildcard grants every permission to the roles mapped to it.
	Wildcard = "*"

	// AdminRole grants every permission regardless of the table.
	AdminRole = "admin"
)

// RoleMapping maps a role label to the permissions it grants.
type RoleMapping map[string][]string

// DefaultRoleMapping returns the built-in table.
func DefaultRoleMapping() RoleMapping {
	return RoleMapping{
		"user":    {"read:profile", "update:profile"},
		"manager": {"read:profile", "update:profile", "read:users"},
		"admin":   {Wildcard},
	}
}

// Authorizer answers role and permission questions. It is immutable after New
// and safe for concurrent use.
type Authorizer struct {
	roles map[string]map[string]struct{}
}

// Option configures the Authorizer.
type Option func(*config)

type config struct {
	mapping RoleMapping
}

// WithRoleMapping replaces the built-in table. The mapping is copied.
func WithRoleMapping(m RoleMapping) Option {
	return func(c *config) { c.mapping = m }
}

// New creates an Authorizer.
func New(opts ...Option) *Authorizer {
	cfg := &config{mapping: DefaultRoleMapping()}
	for _, o := range opts {
		o(cfg)
	}

	a := &Authorizer{roles: make(map[string]map[string]struct{}, len(cfg.mapping))}
	for role, perms := range cfg.mapping {
		set := make(map[string]struct{}, len(perms))
		for _, p := range perms {
			set[p] = struct{}{}
		}
		a.roles[role] = set
	}
	return a
}

// HasRole reports whether id is present and carries role.
func (a *Authorizer) HasRole(id *iam.Identity, role string) bool {
	return id.HasRole(role)
}

// HasPermission reports whether any of id's roles grants permission.
// Absent identities have no permissions; admins have all of them.
func (a *Authorizer) HasPermission(id *iam.Identity, permission string) bool {
	if id == nil {
		return false
	}
	if id.HasRole(AdminRole) {
		return true
	}
	for _, role := range id.Roles {
		perms, ok := a.roles[role]
		if !ok {
			continue
		}
		if _, ok := perms[permission]; ok {
			return true
		}
		if _, ok := perms[Wildcard]; ok {
			return true
		}
	}
	return false
}

// Permissions returns the sorted set of permissions granted to id.
// Admins and wildcard roles yield just the wildcard.
func (a *Authorizer) Permissions(id *iam.Identity) []string {
	if id == nil {
		return nil
	}
	if id.HasRole(AdminRole) {
		return []string{Wildcard}
	}
	set := make(map[string]struct{})
	for _, role := range id.Roles {
		perms := a.roles[role]
		if _, ok := perms[Wildcard]; ok {
			return []string{Wildcard}
		}
		maps.Copy(set, perms)
	}
	return slices.Sorted(maps.Keys(set))
}
