package iam_test

import (
	"context"
	"slices"
	"testing"

	iam "github.com/chimerakang/iam-session-go"
)

func TestIdentityClone(t *testing.T) {
	pic := "https://example.com/a.png"
	id := &iam.Identity{ID: "u1", Roles: []string{"user"}, ProfilePicture: &pic}

	c := id.Clone()
	c.Roles[0] = "admin"
	*c.ProfilePicture = "changed"

	if id.Roles[0] != "user" || *id.ProfilePicture != pic {
		t.Errorf("Clone shares memory with the original: %+v", id)
	}
	if (*iam.Identity)(nil).Clone() != nil {
		t.Error("nil Clone should be nil")
	}
}

func TestIdentityNilSafe(t *testing.T) {
	var id *iam.Identity
	if id.HasRole("user") {
		t.Error("nil identity has no roles")
	}
	if id.GetID() != "" {
		t.Error("nil identity has no ID")
	}
}

func TestStateStatus(t *testing.T) {
	tests := []struct {
		name  string
		state iam.State
		want  iam.Status
	}{
		{"never checked", iam.State{Loading: true}, iam.StatusUnknown},
		{"checked, no identity", iam.State{Checked: true}, iam.StatusUnauthenticated},
		{"identity", iam.State{Identity: &iam.Identity{ID: "u1"}, Checked: true}, iam.StatusAuthenticated},
	}
	for _, tt := range tests {
		if got := tt.state.Status(); got != tt.want {
			t.Errorf("%s: Status() = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestLoginOutcomeString(t *testing.T) {
	if iam.LoginMfaRequired.String() != "mfa_required" || iam.LoginAuthenticated.String() != "authenticated" || iam.LoginFailed.String() != "failed" {
		t.Error("unexpected LoginOutcome strings")
	}
}

type view struct {
	roles, perms []string
}

func (v view) IsAuthenticated() bool       { return true }
func (v view) IsLoading() bool             { return false }
func (v view) HasRole(r string) bool       { return slices.Contains(v.roles, r) }
func (v view) HasPermission(p string) bool { return slices.Contains(v.perms, p) }

func TestRequirementsMatchedBy(t *testing.T) {
	v := view{roles: []string{"manager"}, perms: []string{"read:users"}}

	tests := []struct {
		name string
		reqs iam.Requirements
		want bool
	}{
		{"empty", iam.Requirements{}, true},
		{"any role", iam.Requirements{Roles: []string{"admin", "manager"}}, true},
		{"missing role", iam.Requirements{Roles: []string{"admin"}}, false},
		{"permission", iam.Requirements{Permissions: []string{"read:users"}}, true},
		{"role ok, permission missing", iam.Requirements{Roles: []string{"manager"}, Permissions: []string{"manage:users"}}, false},
	}
	for _, tt := range tests {
		if got := tt.reqs.MatchedBy(v); got != tt.want {
			t.Errorf("%s: MatchedBy() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	if iam.SessionFromContext(ctx) != nil || iam.IdentityFromContext(ctx) != nil {
		t.Fatal("empty context should hold nothing")
	}

	id := &iam.Identity{ID: "u1", Roles: []string{"user"}}
	ctx = iam.WithIdentity(iam.WithSession(ctx, view{}), id)
	id.Roles[0] = "admin"

	if got := iam.IdentityFromContext(ctx); got.Roles[0] != "user" {
		t.Errorf("stored identity was not copied: %+v", got)
	}
	if iam.SessionFromContext(ctx) == nil {
		t.Error("session not stored")
	}
}
