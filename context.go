package iam

import "context"

type ctxKey string

const (
	ctxKeySession  ctxKey = "iam_session"
	ctxKeyIdentity ctxKey = "iam_identity"
)

// WithSession stores the session view in the context.
func WithSession(ctx context.Context, s SessionView) context.Context {
	return context.WithValue(ctx, ctxKeySession, s)
}

// SessionFromContext extracts the session view from the context.
func SessionFromContext(ctx context.Context) SessionView {
	v, _ := ctx.Value(ctxKeySession).(SessionView)
	return v
}

// WithIdentity stores a copy of the identity in the context.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity, id.Clone())
}

// IdentityFromContext extracts the identity from the context.
func IdentityFromContext(ctx context.Context) *Identity {
	v, _ := ctx.Value(ctxKeyIdentity).(*Identity)
	return v
}
