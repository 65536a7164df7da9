package session_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	iam "github.com/chimerakang/iam-session-go"
	"github.com/chimerakang/iam-session-go/apiclient"
	"github.com/chimerakang/iam-session-go/audit"
	"github.com/chimerakang/iam-session-go/authz"
	"github.com/chimerakang/iam-session-go/metrics"
	"github.com/chimerakang/iam-session-go/mocks"
	"github.com/chimerakang/iam-session-go/session"
)

var alice = &iam.Identity{
	ID:        "u1",
	Email:     "alice@example.com",
	FirstName: "Alice",
	LastName:  "Smith",
	Roles:     []string{"user"},
}

func identityResult(id *iam.Identity) apiclient.Result[iam.Identity] {
	return apiclient.Result[iam.Identity]{Data: id.Clone(), Status: http.StatusOK}
}

func unauthorized() apiclient.Result[iam.Identity] {
	return apiclient.Result[iam.Identity]{Error: "Unauthorized", Status: http.StatusUnauthorized}
}

func failure[T any](status int, msg string) apiclient.Result[T] {
	return apiclient.Result[T]{Error: msg, Status: status}
}

func waitReady(t *testing.T, m *session.Manager) {
	t.Helper()
	select {
	case <-m.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("initial session check did not resolve")
	}
}

// newManager builds a Manager whose initial check returns initial.
func newManager(t *testing.T, initial apiclient.Result[iam.Identity], opts ...session.Option) (*session.Manager, *mocks.MockBackend) {
	t.Helper()
	ctrl := gomock.NewController(t)
	backend := mocks.NewMockBackend(ctrl)
	backend.EXPECT().CurrentUser(gomock.Any()).Return(initial)

	m := session.New(context.Background(), backend, opts...)
	waitReady(t, m)
	return m, backend
}

func TestNew_StartsUnknownAndLoading(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend := mocks.NewMockBackend(ctrl)

	release := make(chan struct{})
	backend.EXPECT().CurrentUser(gomock.Any()).DoAndReturn(func(context.Context) apiclient.Result[iam.Identity] {
		<-release
		return identityResult(alice)
	})

	m := session.New(context.Background(), backend)

	st := m.State()
	assert.True(t, st.Loading)
	assert.Equal(t, iam.StatusUnknown, st.Status())
	assert.False(t, m.IsAuthenticated())

	close(release)
	waitReady(t, m)

	st = m.State()
	assert.False(t, st.Loading)
	assert.Equal(t, iam.StatusAuthenticated, st.Status())
	assert.Equal(t, "alice@example.com", st.Identity.Email)
}

func TestCheckAuth_Unauthorized(t *testing.T) {
	m, _ := newManager(t, unauthorized())

	st := m.State()
	assert.Nil(t, st.Identity)
	assert.Empty(t, st.Error, "401 during a check is not an error")
	assert.False(t, st.Loading)
	assert.Equal(t, iam.StatusUnauthenticated, st.Status())
}

func TestCheckAuth_ServerError(t *testing.T) {
	m, backend := newManager(t, identityResult(alice))

	backend.EXPECT().CurrentUser(gomock.Any()).Return(failure[iam.Identity](http.StatusInternalServerError, "Request failed with status 500"))

	err := m.CheckAuth(context.Background())
	require.Error(t, err)
	assert.Equal(t, "Request failed with status 500", err.Error())

	st := m.State()
	assert.Nil(t, st.Identity)
	assert.Equal(t, "Request failed with status 500", st.Error)
	assert.Equal(t, iam.StatusUnauthenticated, st.Status())
}

func TestCheckAuth_NoIdentityInBody(t *testing.T) {
	m, _ := newManager(t, apiclient.Result[iam.Identity]{Status: http.StatusOK})

	st := m.State()
	assert.Nil(t, st.Identity)
	assert.Equal(t, session.ErrCheckFailed.Error(), st.Error)
}

func TestCheckAuth_ClearsPreviousError(t *testing.T) {
	m, backend := newManager(t, failure[iam.Identity](0, "connection refused"))
	require.Equal(t, "connection refused", m.State().Error)

	backend.EXPECT().CurrentUser(gomock.Any()).Return(unauthorized())
	require.NoError(t, m.CheckAuth(context.Background()))
	assert.Empty(t, m.State().Error)
}

func TestLogin_Success(t *testing.T) {
	m, backend := newManager(t, unauthorized())
	ctx := context.Background()

	gomock.InOrder(
		backend.EXPECT().
			Login(ctx, iam.LoginPayload{Email: "alice@example.com", Password: "Secret1!"}).
			Return(apiclient.Result[iam.LoginResponse]{Data: &iam.LoginResponse{}, Status: http.StatusOK}),
		backend.EXPECT().CurrentUser(ctx).Return(identityResult(alice)),
	)

	outcome, err := m.Login(ctx, "alice@example.com", "Secret1!")
	require.NoError(t, err)
	assert.Equal(t, iam.LoginAuthenticated, outcome)

	st := m.State()
	assert.True(t, st.IsAuthenticated())
	assert.False(t, st.Loading)
	assert.Equal(t, "u1", st.Identity.ID)
}

func TestLogin_MfaRequired(t *testing.T) {
	m, backend := newManager(t, unauthorized())
	ctx := context.Background()

	backend.EXPECT().Login(ctx, gomock.Any()).
		Return(apiclient.Result[iam.LoginResponse]{Data: &iam.LoginResponse{RequiresMfa: true}, Status: http.StatusOK})

	outcome, err := m.Login(ctx, "alice@example.com", "Secret1!")
	require.NoError(t, err)
	assert.Equal(t, iam.LoginMfaRequired, outcome)

	st := m.State()
	assert.Nil(t, st.Identity)
	assert.False(t, st.Loading)
	assert.Empty(t, st.Error)
	assert.Equal(t, iam.StatusUnauthenticated, st.Status())
}

func TestLogin_Failure(t *testing.T) {
	m, backend := newManager(t, unauthorized())
	ctx := context.Background()

	backend.EXPECT().Login(ctx, gomock.Any()).
		Return(failure[iam.LoginResponse](http.StatusUnauthorized, "Invalid credentials"))

	outcome, err := m.Login(ctx, "alice@example.com", "wrong")
	require.Error(t, err)
	assert.Equal(t, iam.LoginFailed, outcome)
	assert.Equal(t, "Invalid credentials", err.Error())

	var reqErr *apiclient.RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusUnauthorized, reqErr.Status)

	st := m.State()
	assert.Equal(t, "Invalid credentials", st.Error)
	assert.Nil(t, st.Identity)
	assert.False(t, st.Loading)
}

func TestLogin_NoSessionEstablished(t *testing.T) {
	m, backend := newManager(t, unauthorized())
	ctx := context.Background()

	backend.EXPECT().Login(ctx, gomock.Any()).
		Return(apiclient.Result[iam.LoginResponse]{Data: &iam.LoginResponse{}, Status: http.StatusOK})
	backend.EXPECT().CurrentUser(ctx).Return(unauthorized())

	outcome, err := m.Login(ctx, "alice@example.com", "Secret1!")
	assert.ErrorIs(t, err, session.ErrSessionNotEstablished)
	assert.Equal(t, iam.LoginFailed, outcome)
	assert.False(t, m.IsAuthenticated())
}

func TestVerifyMfa_Success(t *testing.T) {
	m, backend := newManager(t, unauthorized())
	ctx := context.Background()

	gomock.InOrder(
		backend.EXPECT().VerifyMfa(ctx, iam.MfaVerifyPayload{Code: "123456"}).
			Return(apiclient.Result[iam.LoginResponse]{Data: &iam.LoginResponse{Token: "t"}, Status: http.StatusOK}),
		backend.EXPECT().CurrentUser(ctx).Return(identityResult(alice)),
	)

	outcome, err := m.VerifyMfa(ctx, "123456")
	require.NoError(t, err)
	assert.Equal(t, iam.LoginAuthenticated, outcome)
	assert.True(t, m.IsAuthenticated())
}

func TestVerifyMfa_Failure(t *testing.T) {
	m, backend := newManager(t, unauthorized())
	ctx := context.Background()

	backend.EXPECT().VerifyMfa(ctx, gomock.Any()).
		Return(failure[iam.LoginResponse](http.StatusBadRequest, "Invalid MFA code"))

	outcome, err := m.VerifyMfa(ctx, "000000")
	require.Error(t, err)
	assert.Equal(t, iam.LoginFailed, outcome)
	assert.Equal(t, "Invalid MFA code", m.State().Error)
}

func TestRegister_NeverAuthenticates(t *testing.T) {
	m, backend := newManager(t, unauthorized())
	ctx := context.Background()
	payload := iam.RegisterPayload{Email: "bob@example.com", Password: "Secret1!", FirstName: "Bob", LastName: "Jones"}

	backend.EXPECT().Register(ctx, payload).
		Return(apiclient.Result[iam.MessageResponse]{Data: &iam.MessageResponse{Message: "Check your email"}, Status: http.StatusCreated})

	msg, err := m.Register(ctx, payload)
	require.NoError(t, err)
	assert.Equal(t, "Check your email", msg)
	assert.False(t, m.IsAuthenticated())
	assert.False(t, m.IsLoading())
}

func TestRegister_Failure(t *testing.T) {
	m, backend := newManager(t, unauthorized())
	ctx := context.Background()

	backend.EXPECT().Register(ctx, gomock.Any()).
		Return(failure[iam.MessageResponse](http.StatusConflict, "Email already registered"))

	_, err := m.Register(ctx, iam.RegisterPayload{Email: "bob@example.com"})
	require.Error(t, err)
	assert.Equal(t, "Email already registered", m.State().Error)
}

func TestLogout_Success(t *testing.T) {
	m, backend := newManager(t, identityResult(alice))
	ctx := context.Background()

	backend.EXPECT().Logout(ctx).
		Return(apiclient.Result[iam.MessageResponse]{Data: &iam.MessageResponse{Message: "Logged out"}, Status: http.StatusOK})

	require.NoError(t, m.Logout(ctx))

	st := m.State()
	assert.Nil(t, st.Identity)
	assert.Equal(t, iam.StatusUnauthenticated, st.Status())
	assert.False(t, m.HasRole("user"))
}

func TestLogout_FailureKeepsIdentity(t *testing.T) {
	m, backend := newManager(t, identityResult(alice))
	ctx := context.Background()

	backend.EXPECT().Logout(ctx).Return(failure[iam.MessageResponse](0, "connection reset by peer"))

	err := m.Logout(ctx)
	require.Error(t, err)

	st := m.State()
	assert.Equal(t, "connection reset by peer", st.Error)
	require.NotNil(t, st.Identity, "a failed logout leaves the identity in place")
	assert.Equal(t, "u1", st.Identity.ID)
	assert.False(t, st.Loading)
}

func TestUpdateProfile_ReplacesIdentity(t *testing.T) {
	m, backend := newManager(t, identityResult(alice))
	ctx := context.Background()

	pic := "https://example.com/a.png"
	updated := &iam.Identity{
		ID:             "u1",
		Email:          "alice@example.com",
		FirstName:      "Alicia",
		LastName:       "Smith",
		ProfilePicture: &pic,
		Roles:          []string{"user", "manager"},
	}
	payload := iam.UpdateProfilePayload{FirstName: "Alicia", LastName: "Smith", ProfilePicture: pic}
	backend.EXPECT().UpdateProfile(ctx, payload).Return(identityResult(updated))

	got, err := m.UpdateProfile(ctx, payload)
	require.NoError(t, err)
	assert.Equal(t, updated, got)
	assert.Equal(t, updated, m.State().Identity)
	assert.True(t, m.HasPermission("read:users"))
}

func TestUpdateProfile_FailureKeepsIdentity(t *testing.T) {
	m, backend := newManager(t, identityResult(alice))
	ctx := context.Background()

	backend.EXPECT().UpdateProfile(ctx, gomock.Any()).
		Return(failure[iam.Identity](http.StatusBadRequest, "First name is required"))

	_, err := m.UpdateProfile(ctx, iam.UpdateProfilePayload{})
	require.Error(t, err)
	assert.Equal(t, alice, m.State().Identity)
	assert.Equal(t, "First name is required", m.State().Error)
}

func TestHasRoleAndPermission(t *testing.T) {
	manager := &iam.Identity{ID: "u2", Roles: []string{"manager"}}
	m, _ := newManager(t, identityResult(manager))

	assert.True(t, m.HasRole("manager"))
	assert.False(t, m.HasRole("admin"))
	assert.True(t, m.HasPermission("read:users"))
	assert.False(t, m.HasPermission("manage:users"))
	assert.Equal(t, []string{"read:profile", "read:users", "update:profile"}, m.Permissions())
}

func TestHasPermission_Unauthenticated(t *testing.T) {
	m, _ := newManager(t, unauthorized())

	assert.False(t, m.HasRole("user"))
	assert.False(t, m.HasPermission("read:profile"))
}

func TestWithAuthorizer(t *testing.T) {
	a := authz.New(authz.WithRoleMapping(authz.RoleMapping{"user": {"manage:users"}}))
	m, _ := newManager(t, identityResult(alice), session.WithAuthorizer(a))

	assert.True(t, m.HasPermission("manage:users"))
	assert.False(t, m.HasPermission("read:profile"))
}

func TestState_IsSnapshot(t *testing.T) {
	m, _ := newManager(t, identityResult(alice))

	st := m.State()
	st.Identity.Roles[0] = "admin"
	st.Identity.Email = "mallory@example.com"

	assert.False(t, m.HasRole("admin"))
	assert.Equal(t, "alice@example.com", m.State().Identity.Email)
}

func TestSnapshot_IgnoresLaterChanges(t *testing.T) {
	m, backend := newManager(t, identityResult(alice))
	ctx := context.Background()

	snap := m.Snapshot()
	backend.EXPECT().Logout(ctx).Return(apiclient.Result[iam.MessageResponse]{Status: http.StatusOK})
	require.NoError(t, m.Logout(ctx))

	assert.False(t, m.IsAuthenticated())
	assert.True(t, snap.IsAuthenticated())
	assert.True(t, snap.HasRole("user"))
	assert.True(t, snap.HasPermission("update:profile"))
	assert.False(t, snap.IsLoading())
}

func TestStaleResultIsDiscarded(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, backend := newManager(t, unauthorized(), session.WithMetrics(metrics.NewWithRegistry(true, reg)))
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	gomock.InOrder(
		backend.EXPECT().CurrentUser(ctx).DoAndReturn(func(context.Context) apiclient.Result[iam.Identity] {
			close(entered)
			<-release
			return identityResult(alice)
		}),
		backend.EXPECT().CurrentUser(ctx).Return(unauthorized()),
	)

	done := make(chan error, 1)
	go func() { done <- m.CheckAuth(ctx) }()
	<-entered

	// The newer check resolves first.
	require.NoError(t, m.CheckAuth(ctx))
	assert.False(t, m.IsLoading())
	assert.False(t, m.IsAuthenticated())

	close(release)
	require.NoError(t, <-done)

	assert.False(t, m.IsAuthenticated(), "older result must not overwrite the newer one")
	assert.False(t, m.IsLoading())

	n, err := testutil.GatherAndCount(reg, "iam_session_stale_results_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestLoadingUntilLatestResolves(t *testing.T) {
	m, backend := newManager(t, unauthorized())
	ctx := context.Background()

	firstIn, secondIn := make(chan struct{}), make(chan struct{})
	releaseFirst, releaseSecond := make(chan struct{}), make(chan struct{})
	gomock.InOrder(
		backend.EXPECT().CurrentUser(ctx).DoAndReturn(func(context.Context) apiclient.Result[iam.Identity] {
			close(firstIn)
			<-releaseFirst
			return unauthorized()
		}),
		backend.EXPECT().CurrentUser(ctx).DoAndReturn(func(context.Context) apiclient.Result[iam.Identity] {
			close(secondIn)
			<-releaseSecond
			return identityResult(alice)
		}),
	)

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		_ = m.CheckAuth(ctx)
	}()
	<-firstIn
	secondDone := make(chan struct{})
	go func() {
		defer close(secondDone)
		_ = m.CheckAuth(ctx)
	}()
	<-secondIn

	close(releaseFirst)
	<-firstDone
	assert.True(t, m.IsLoading(), "an older call resolving must not clear loading")

	close(releaseSecond)
	<-secondDone
	assert.False(t, m.IsLoading())
	assert.True(t, m.IsAuthenticated())
}

// pendingInitialCheck returns a Manager whose initial check blocks until the
// returned func is called, then reports alice.
func pendingInitialCheck(t *testing.T) (*session.Manager, *mocks.MockBackend, func()) {
	t.Helper()
	ctrl := gomock.NewController(t)
	backend := mocks.NewMockBackend(ctrl)

	entered := make(chan struct{})
	release := make(chan struct{})
	backend.EXPECT().CurrentUser(gomock.Any()).DoAndReturn(func(context.Context) apiclient.Result[iam.Identity] {
		close(entered)
		<-release
		return identityResult(alice)
	})

	m := session.New(context.Background(), backend)
	<-entered
	return m, backend, func() {
		close(release)
		waitReady(t, m)
	}
}

func TestRegister_DoesNotDiscardPendingCheck(t *testing.T) {
	m, backend, release := pendingInitialCheck(t)
	ctx := context.Background()

	backend.EXPECT().Register(ctx, gomock.Any()).
		Return(apiclient.Result[iam.MessageResponse]{Data: &iam.MessageResponse{Message: "Check your email"}, Status: http.StatusCreated})

	_, err := m.Register(ctx, iam.RegisterPayload{Email: "bob@example.com", Password: "Secret1!", FirstName: "Bob", LastName: "Jones"})
	require.NoError(t, err)

	st := m.State()
	assert.Equal(t, iam.StatusUnknown, st.Status())
	assert.True(t, st.Loading, "an unresolved session stays loading while its check is outstanding")

	release()

	st = m.State()
	assert.Equal(t, iam.StatusAuthenticated, st.Status())
	assert.False(t, st.Loading)
	assert.Equal(t, "u1", st.Identity.GetID())
}

func TestMfaLogin_DoesNotDiscardPendingCheck(t *testing.T) {
	m, backend, release := pendingInitialCheck(t)
	ctx := context.Background()

	backend.EXPECT().Login(ctx, gomock.Any()).
		Return(apiclient.Result[iam.LoginResponse]{Data: &iam.LoginResponse{RequiresMfa: true}, Status: http.StatusOK})

	outcome, err := m.Login(ctx, "alice@example.com", "Secret1!")
	require.NoError(t, err)
	assert.Equal(t, iam.LoginMfaRequired, outcome)
	assert.True(t, m.IsLoading())

	release()

	st := m.State()
	assert.Equal(t, iam.StatusAuthenticated, st.Status())
	assert.False(t, st.Loading)
}

func TestFailedLogout_DoesNotDiscardPendingCheck(t *testing.T) {
	m, backend, release := pendingInitialCheck(t)
	ctx := context.Background()

	backend.EXPECT().Logout(ctx).Return(failure[iam.MessageResponse](http.StatusInternalServerError, "Internal error"))

	require.Error(t, m.Logout(ctx))
	assert.True(t, m.IsLoading())

	release()

	st := m.State()
	assert.Equal(t, iam.StatusAuthenticated, st.Status())
	assert.False(t, st.Loading)
	assert.Equal(t, "Internal error", st.Error)
}

func TestLogout_DiscardsOlderCheck(t *testing.T) {
	m, backend, release := pendingInitialCheck(t)
	ctx := context.Background()

	backend.EXPECT().Logout(ctx).Return(apiclient.Result[iam.MessageResponse]{Status: http.StatusOK})

	require.NoError(t, m.Logout(ctx))
	assert.Equal(t, iam.StatusUnauthenticated, m.State().Status())

	release()

	st := m.State()
	assert.Equal(t, iam.StatusUnauthenticated, st.Status(), "a check sent before the logout must not restore the identity")
	assert.False(t, st.Loading)
}

func TestSubscribe(t *testing.T) {
	m, backend := newManager(t, unauthorized())
	ctx := context.Background()

	var mu sync.Mutex
	var states []iam.State
	cancel := m.Subscribe(func(s iam.State) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, s)
	})

	backend.EXPECT().CurrentUser(ctx).Return(identityResult(alice))
	require.NoError(t, m.CheckAuth(ctx))

	mu.Lock()
	require.Len(t, states, 2)
	assert.True(t, states[0].Loading)
	assert.False(t, states[1].Loading)
	assert.True(t, states[1].IsAuthenticated())
	mu.Unlock()

	cancel()
	cancel()

	backend.EXPECT().CurrentUser(ctx).Return(unauthorized())
	require.NoError(t, m.CheckAuth(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, states, 2, "cancelled listener must not be called")
}

func TestSubscribe_Order(t *testing.T) {
	m, backend := newManager(t, unauthorized())
	ctx := context.Background()

	var order []int
	m.Subscribe(func(iam.State) { order = append(order, 1) })
	m.Subscribe(func(iam.State) { order = append(order, 2) })

	backend.EXPECT().CurrentUser(ctx).Return(unauthorized())
	require.NoError(t, m.CheckAuth(ctx))

	assert.Equal(t, []int{1, 2, 1, 2}, order)
}

func TestAuditEvents(t *testing.T) {
	var mu sync.Mutex
	var events []audit.Event
	al := audit.New(10, audit.WithHandler(func(e audit.Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	}))

	m, backend := newManager(t, unauthorized(), session.WithAudit(al))
	ctx := context.Background()

	backend.EXPECT().Login(ctx, gomock.Any()).Return(failure[iam.LoginResponse](http.StatusUnauthorized, "Invalid credentials"))
	backend.EXPECT().Login(ctx, gomock.Any()).Return(apiclient.Result[iam.LoginResponse]{Data: &iam.LoginResponse{}, Status: http.StatusOK})
	backend.EXPECT().CurrentUser(ctx).Return(identityResult(alice))
	backend.EXPECT().Logout(ctx).Return(apiclient.Result[iam.MessageResponse]{Status: http.StatusOK})

	_, err := m.Login(ctx, "alice@example.com", "wrong")
	require.Error(t, err)
	_, err = m.Login(ctx, "alice@example.com", "Secret1!")
	require.NoError(t, err)
	require.NoError(t, m.Logout(ctx))
	require.NoError(t, al.Close())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 3)
	assert.Equal(t, audit.Event{Action: audit.ActionLogin, Result: audit.ResultFailure, Email: "alice@example.com", Error: "Invalid credentials", Timestamp: events[0].Timestamp}, events[0])
	assert.Equal(t, audit.ResultSuccess, events[1].Result)
	assert.Equal(t, "u1", events[1].UserID)
	assert.Equal(t, audit.ActionLogout, events[2].Action)
	assert.Equal(t, "u1", events[2].UserID)
}
