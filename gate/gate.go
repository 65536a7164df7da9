// Package gate shows or hides content based on the session's roles and
// permissions. It does not redirect and has no loading state of its own:
// while the session is loading, an unauthenticated view simply fails the
// check.
package gate

import (
	"html/template"

	iam "github.com/chimerakang/iam-session-go"
)

// Allow reports whether the session is authenticated and satisfies reqs.
func Allow(v iam.SessionView, reqs iam.Requirements) bool {
	return v.IsAuthenticated() && reqs.MatchedBy(v)
}

// Render returns content when Allow passes and fallback otherwise.
func Render[T any](v iam.SessionView, reqs iam.Requirements, content, fallback T) T {
	if Allow(v, reqs) {
		return content
	}
	return fallback
}

// FuncMap exposes the session to html/template:
//
//	{{if hasRole "admin"}}...{{end}}
//	{{if allowed (list "admin" "manager") (list "read:users")}}...{{end}}
//
// allowed takes a role list and a permission list; either may be nil.
func FuncMap(v iam.SessionView) template.FuncMap {
	return template.FuncMap{
		"isAuthenticated": v.IsAuthenticated,
		"hasRole":         v.HasRole,
		"hasPermission":   v.HasPermission,
		"allowed": func(roles, permissions []string) bool {
			return Allow(v, iam.Requirements{Roles: roles, Permissions: permissions})
		},
		"list": func(items ...string) []string { return items },
	}
}
