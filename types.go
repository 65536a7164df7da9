package iam

import "slices"

// Identity is the authenticated principal as held by the client.
type Identity struct {
	ID             string   `json:"id"`
	Email          string   `json:"email"`
	FirstName      string   `json:"firstName"`
	LastName       string   `json:"lastName"`
	ProfilePicture *string  `json:"profilePicture"`
	MfaEnabled     bool     `json:"mfaEnabled"`
	Roles          []string `json:"roles"`
}

// Clone returns a deep copy so callers can never mutate session-owned data.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	c := *i
	c.Roles = slices.Clone(i.Roles)
	if i.ProfilePicture != nil {
		p := *i.ProfilePicture
		c.ProfilePicture = &p
	}
	return &c
}

// GetID returns the identity ID, or "" for an absent identity.
func (i *Identity) GetID() string {
	if i == nil {
		return ""
	}
	return i.ID
}

// HasRole reports whether the identity carries the role label.
func (i *Identity) HasRole(role string) bool {
	return i != nil && slices.Contains(i.Roles, role)
}

// LoginPayload is the body of a login call.
type LoginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is returned by login and by the MFA login verification step.
type LoginResponse struct {
	RequiresMfa bool      `json:"requiresMfa,omitempty"`
	Token       string    `json:"token,omitempty"`
	User        *Identity `json:"user,omitempty"`
}

// RegisterPayload is the body of a registration call.
type RegisterPayload struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// UpdateProfilePayload carries the mutable profile fields.
// Empty fields are omitted and leave the server value unchanged.
type UpdateProfilePayload struct {
	FirstName      string `json:"firstName,omitempty"`
	LastName       string `json:"lastName,omitempty"`
	ProfilePicture string `json:"profilePicture,omitempty"`
}

// MfaVerifyPayload is the body of the MFA login verification call.
type MfaVerifyPayload struct {
	Code string `json:"code"`
}

// MessageResponse is the generic `{message}` body.
type MessageResponse struct {
	Message string `json:"message"`
}

// MfaSetup is returned when MFA enrolment starts.
type MfaSetup struct {
	QRCode string `json:"qrCode"`
	Secret string `json:"secret"`
}

// BackupCodes is returned once MFA enrolment is confirmed.
type BackupCodes struct {
	BackupCodes []string `json:"backupCodes"`
}

// Status names the persisted session states.
type Status string

const (
	StatusUnknown         Status = "unknown"
	StatusAuthenticated   Status = "authenticated"
	StatusUnauthenticated Status = "unauthenticated"
)

// State is a point-in-time snapshot of the session.
type State struct {
	Identity *Identity
	Loading  bool
	Error    string

	// Checked is set once any session check has resolved.
	Checked bool
}

// IsAuthenticated reports whether an identity is present.
func (s State) IsAuthenticated() bool { return s.Identity != nil }

// Status derives the named state from the snapshot.
func (s State) Status() Status {
	switch {
	case s.Identity != nil:
		return StatusAuthenticated
	case !s.Checked:
		return StatusUnknown
	default:
		return StatusUnauthenticated
	}
}

// LoginOutcome is the per-call result of a login or MFA verification.
// LoginMfaRequired is never persisted in State.
type LoginOutcome int

const (
	LoginFailed LoginOutcome = iota
	LoginAuthenticated
	LoginMfaRequired
)

func (o LoginOutcome) String() string {
	switch o {
	case LoginAuthenticated:
		return "authenticated"
	case LoginMfaRequired:
		return "mfa_required"
	default:
		return "failed"
	}
}

// Requirements lists the roles and permissions a guarded resource needs.
// An empty list places no restriction; a non-empty list needs any one match.
type Requirements struct {
	Roles       []string
	Permissions []string
}

// MatchedBy reports whether an authenticated view satisfies the requirements.
// It does not check authentication itself.
func (r Requirements) MatchedBy(v SessionView) bool {
	if len(r.Roles) > 0 && !slices.ContainsFunc(r.Roles, v.HasRole) {
		return false
	}
	if len(r.Permissions) > 0 && !slices.ContainsFunc(r.Permissions, v.HasPermission) {
		return false
	}
	return true
}
