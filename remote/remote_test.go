package remote_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	iam "github.com/chimerakang/iam-session-go"
	"github.com/chimerakang/iam-session-go/audit"
	"github.com/chimerakang/iam-session-go/authapi"
	"github.com/chimerakang/iam-session-go/authz"
	"github.com/chimerakang/iam-session-go/fake"
	"github.com/chimerakang/iam-session-go/remote"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newClient(t *testing.T, srv *fake.Server, opts ...remote.Option) *iam.Client {
	t.Helper()
	c, err := remote.NewClient(context.Background(), iam.Config{BaseURL: srv.URL(), MetricsEnabled: true},
		append([]remote.Option{remote.WithRegisterer(prometheus.NewRegistry())}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	m, ok := remote.Manager(c)
	require.True(t, ok)
	select {
	case <-m.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("initial session check did not resolve")
	}
	return c
}

func TestNewClient_InvalidConfig(t *testing.T) {
	_, err := remote.NewClient(context.Background(), iam.Config{BaseURL: "ftp://example.com"})
	assert.Error(t, err)

	_, err = remote.NewClient(context.Background(), iam.Config{})
	assert.Error(t, err)
}

func TestNewClient_MetricsWithoutRegisterer(t *testing.T) {
	cfg := iam.Config{BaseURL: "http://127.0.0.1:1", MetricsEnabled: true, RequestTimeout: time.Second}

	for range 2 {
		c, err := remote.NewClient(context.Background(), cfg)
		require.NoError(t, err)
		t.Cleanup(func() { _ = c.Close() })
	}
}

func TestLoginLogout(t *testing.T) {
	srv := fake.NewServer(fake.WithUser("u1", "alice@example.com", "Secret1!", "manager"))
	defer srv.Close()
	c := newClient(t, srv)
	s := c.Session()
	ctx := context.Background()

	st := s.State()
	assert.Equal(t, iam.StatusUnauthenticated, st.Status())
	assert.False(t, st.Loading)
	assert.Empty(t, st.Error)

	outcome, err := s.Login(ctx, "alice@example.com", "Secret1!")
	require.NoError(t, err)
	assert.Equal(t, iam.LoginAuthenticated, outcome)
	assert.Equal(t, "u1", s.State().Identity.ID)
	assert.True(t, s.HasRole("manager"))
	assert.True(t, s.HasPermission("read:users"))
	assert.False(t, s.HasPermission("manage:users"))

	require.NoError(t, s.Logout(ctx))
	assert.Equal(t, iam.StatusUnauthenticated, s.State().Status())
}

func TestLogin_Failure(t *testing.T) {
	srv := fake.NewServer(fake.WithUser("u1", "alice@example.com", "Secret1!"))
	defer srv.Close()
	s := newClient(t, srv).Session()

	outcome, err := s.Login(context.Background(), "alice@example.com", "nope")
	assert.Equal(t, iam.LoginFailed, outcome)
	require.Error(t, err)
	assert.Equal(t, "Invalid email or password", err.Error())
	assert.Equal(t, "Invalid email or password", s.State().Error)
	assert.False(t, s.IsAuthenticated())
}

func TestLogin_Mfa(t *testing.T) {
	srv := fake.NewServer(
		fake.WithUser("u1", "alice@example.com", "Secret1!", "user"),
		fake.WithMfa("alice@example.com"),
	)
	defer srv.Close()
	s := newClient(t, srv).Session()
	ctx := context.Background()

	outcome, err := s.Login(ctx, "alice@example.com", "Secret1!")
	require.NoError(t, err)
	assert.Equal(t, iam.LoginMfaRequired, outcome)
	assert.False(t, s.IsAuthenticated())
	assert.False(t, s.IsLoading())

	outcome, err = s.VerifyMfa(ctx, fake.DefaultMfaCode)
	require.NoError(t, err)
	assert.Equal(t, iam.LoginAuthenticated, outcome)
	assert.True(t, s.State().Identity.MfaEnabled)
}

func TestInitialCheck_ServerDown(t *testing.T) {
	srv := fake.NewServer(fake.WithFailure(authapi.PathMe, http.StatusBadGateway, "Upstream unavailable"))
	defer srv.Close()
	s := newClient(t, srv).Session()

	st := s.State()
	assert.Equal(t, "Upstream unavailable", st.Error)
	assert.Equal(t, iam.StatusUnauthenticated, st.Status())
}

func TestWithAuthorizer(t *testing.T) {
	srv := fake.NewServer(fake.WithUser("u1", "alice@example.com", "Secret1!", "auditor"))
	defer srv.Close()
	az := authz.New(authz.WithRoleMapping(authz.RoleMapping{"auditor": {"read:logs"}}))
	s := newClient(t, srv, remote.WithAuthorizer(az)).Session()

	_, err := s.Login(context.Background(), "alice@example.com", "Secret1!")
	require.NoError(t, err)
	assert.True(t, s.HasPermission("read:logs"))
	assert.False(t, s.HasPermission("read:profile"))
}

func TestAuditAndMetrics(t *testing.T) {
	srv := fake.NewServer(fake.WithUser("u1", "alice@example.com", "Secret1!"))
	defer srv.Close()

	var events []audit.Event
	reg := prometheus.NewRegistry()
	c, err := remote.NewClient(context.Background(), iam.Config{BaseURL: srv.URL(), MetricsEnabled: true},
		remote.WithRegisterer(reg),
		remote.WithAuditOptions(audit.WithHandler(func(e audit.Event) { events = append(events, e) })),
	)
	require.NoError(t, err)

	_, err = c.Session().Login(context.Background(), "alice@example.com", "Secret1!")
	require.NoError(t, err)
	require.NoError(t, c.Close())

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, audit.ActionLogin, last.Action)
	assert.Equal(t, audit.ResultSuccess, last.Result)
	assert.Equal(t, "u1", last.UserID)

	n, err := testutil.GatherAndCount(reg, "iam_api_requests_total")
	require.NoError(t, err)
	assert.Positive(t, n)
}
