// Package mocks provides gomock implementations of the session interfaces.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	backend := mocks.NewMockBackend(ctrl)
//	backend.EXPECT().CurrentUser(gomock.Any()).Return(apiclient.Result[iam.Identity]{Status: 401})
package mocks

// Generate mock for the session Backend interface:
// CurrentUser, Login, VerifyMfa, Register, Logout, UpdateProfile
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=backend_mock.go github.com/chimerakang/iam-session-go/session Backend
