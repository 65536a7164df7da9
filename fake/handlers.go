package fake

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Server messages.
const (
	msgNotAuthenticated   = "Not authenticated"
	msgInvalidCredentials = "Invalid email or password"
	msgEmailNotVerified   = "Please verify your email before logging in"
	msgEmailRegistered    = "Email already registered"
	msgMissingFields      = "All fields are required"
	msgRegistered         = "Registration successful. Please check your email to verify your account."
	msgLoggedOut          = "Logged out successfully"
	msgResetSent          = "If an account with that email exists, a password reset link has been sent."
	msgInvalidResetToken  = "Invalid or expired reset token"
	msgPasswordReset      = "Password has been reset successfully"
	msgWrongPassword      = "Current password is incorrect"
	msgPasswordChanged    = "Password changed successfully"
	msgNoPendingMfa       = "No pending MFA verification"
	msgInvalidMfaCode     = "Invalid MFA code"
	msgInvalidMfaSetup    = "MFA setup has not been started"
	msgMfaNotEnabled      = "MFA is not enabled"
	msgMfaDisabled        = "MFA has been disabled"
	msgInvalidVerifyToken = "Invalid or expired verification token"
	msgEmailVerified      = "Email verified successfully"
	msgVerificationResent = "If an unverified account exists, a new verification email has been sent."
	msgInvalidRequestBody = "Invalid request body"
	purposeSession        = "session"
	purposeMfaPending     = "mfa_pending"
	mfaPendingTTL         = 5 * time.Minute
	issuer                = "iam-fake"
)

type claims struct {
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

func (srv *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), srv.track())

	auth := r.Group(srv.s.basePath + "/auth")
	auth.GET("/me", srv.requireSession, srv.me)
	auth.POST("/login", srv.login)
	auth.POST("/register", srv.register)
	auth.POST("/logout", srv.logout)
	auth.GET("/profile", srv.requireSession, srv.me)
	auth.PUT("/profile", srv.requireSession, srv.updateProfile)
	auth.POST("/request-password-reset", srv.requestPasswordReset)
	auth.POST("/reset-password", srv.resetPassword)
	auth.POST("/change-password", srv.requireSession, srv.changePassword)
	auth.POST("/verify-mfa", srv.verifyMfa)
	auth.GET("/mfa-setup", srv.requireSession, srv.mfaSetup)
	auth.POST("/verify-mfa-setup", srv.requireSession, srv.verifyMfaSetup)
	auth.POST("/disable-mfa", srv.requireSession, srv.disableMfa)
	auth.POST("/verify-email", srv.verifyEmail)
	auth.POST("/resend-verification", srv.resendVerification)
	return r
}

// track counts requests per path and applies injected failures.
func (srv *Server) track() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := strings.TrimPrefix(c.Request.URL.Path, srv.s.basePath)

		srv.s.mu.Lock()
		srv.s.hits[path]++
		f, failing := srv.s.failures[path]
		srv.s.mu.Unlock()

		if !failing {
			c.Next()
			return
		}
		if f.message == "" {
			c.AbortWithStatus(f.status)
			return
		}
		abort(c, f.status, f.message)
	}
}

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"message": message})
}

func respond(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"message": message})
}

// bind decodes the JSON body into dst, answering 400 on failure.
func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		abort(c, http.StatusBadRequest, msgInvalidRequestBody)
		return false
	}
	return true
}

// --- tokens and cookies ---

func (srv *Server) sign(userID, purpose string, ttl time.Duration) (string, error) {
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return tok.SignedString(srv.s.signingKey)
}

func (srv *Server) parse(raw, purpose string) (*claims, error) {
	cl := &claims{}
	_, err := jwt.ParseWithClaims(raw, cl, func(*jwt.Token) (any, error) {
		return srv.s.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil {
		return nil, err
	}
	if cl.Purpose != purpose {
		return nil, fmt.Errorf("iam/fake: token purpose %q, want %q", cl.Purpose, purpose)
	}
	return cl, nil
}

func setCookie(c *gin.Context, name, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, maxAge, "/", "", false, true)
}

func (srv *Server) startSession(c *gin.Context, a *account) (string, bool) {
	tok, err := srv.sign(a.identity.ID, purposeSession, srv.s.sessionTTL)
	if err != nil {
		abort(c, http.StatusInternalServerError, err.Error())
		return "", false
	}
	setCookie(c, SessionCookie, tok, int(srv.s.sessionTTL.Seconds()))
	setCookie(c, MfaPendingCookie, "", -1)
	return tok, true
}

// currentAccount resolves the session cookie. It must be called with mu held.
func (srv *Server) currentAccount(c *gin.Context) (*account, *claims, error) {
	raw, err := c.Cookie(SessionCookie)
	if err != nil || raw == "" {
		return nil, nil, errors.New("iam/fake: no session cookie")
	}
	cl, err := srv.parse(raw, purposeSession)
	if err != nil {
		return nil, nil, err
	}
	if srv.s.revoked[cl.ID] {
		return nil, nil, errors.New("iam/fake: session revoked")
	}
	a, ok := srv.s.byID[cl.Subject]
	if !ok {
		return nil, nil, fmt.Errorf("iam/fake: user %q not found", cl.Subject)
	}
	return a, cl, nil
}

const keyAccount = "fake_account"

func (srv *Server) requireSession(c *gin.Context) {
	srv.s.mu.RLock()
	a, _, err := srv.currentAccount(c)
	srv.s.mu.RUnlock()
	if err != nil {
		abort(c, http.StatusUnauthorized, msgNotAuthenticated)
		return
	}
	c.Set(keyAccount, a)
	c.Next()
}

func accountFrom(c *gin.Context) *account {
	v, _ := c.Get(keyAccount)
	a, _ := v.(*account)
	return a
}

func (srv *Server) codeMatches(a *account, code string) bool {
	if code == srv.s.mfaCode {
		return true
	}
	if i := slices.Index(a.backupCodes, code); i >= 0 {
		a.backupCodes = slices.Delete(a.backupCodes, i, i+1)
		return true
	}
	return false
}

// --- handlers ---

func (srv *Server) me(c *gin.Context) {
	a := accountFrom(c)
	srv.s.mu.RLock()
	id := a.identity.Clone()
	srv.s.mu.RUnlock()
	c.JSON(http.StatusOK, id)
}

func (srv *Server) login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !bind(c, &req) {
		return
	}

	srv.s.mu.RLock()
	a, ok := srv.s.accounts[req.Email]
	valid := ok && a.password == req.Password
	verified := ok && a.verified
	mfa := ok && a.mfaSecret != ""
	var id string
	if ok {
		id = a.identity.ID
	}
	srv.s.mu.RUnlock()

	switch {
	case !valid:
		abort(c, http.StatusUnauthorized, msgInvalidCredentials)
		return
	case !verified:
		abort(c, http.StatusForbidden, msgEmailNotVerified)
		return
	case mfa:
		tok, err := srv.sign(id, purposeMfaPending, mfaPendingTTL)
		if err != nil {
			abort(c, http.StatusInternalServerError, err.Error())
			return
		}
		setCookie(c, MfaPendingCookie, tok, int(mfaPendingTTL.Seconds()))
		c.JSON(http.StatusOK, gin.H{"requiresMfa": true})
		return
	}

	tok, ok := srv.startSession(c, a)
	if !ok {
		return
	}
	srv.s.mu.RLock()
	user := a.identity.Clone()
	srv.s.mu.RUnlock()
	c.JSON(http.StatusOK, gin.H{"token": tok, "user": user})
}

func (srv *Server) register(c *gin.Context) {
	var req struct {
		Email     string `json:"email"`
		Password  string `json:"password"`
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
	}
	if !bind(c, &req) {
		return
	}
	if req.Email == "" || req.Password == "" || req.FirstName == "" || req.LastName == "" {
		abort(c, http.StatusBadRequest, msgMissingFields)
		return
	}

	srv.s.mu.Lock()
	defer srv.s.mu.Unlock()
	if _, exists := srv.s.accounts[req.Email]; exists {
		abort(c, http.StatusConflict, msgEmailRegistered)
		return
	}
	srv.s.addAccount(uuid.NewString(), req.Email, req.Password, false, []string{"user"})
	a := srv.s.accounts[req.Email]
	a.identity.FirstName = req.FirstName
	a.identity.LastName = req.LastName
	srv.s.verifyTokens[uuid.NewString()] = req.Email

	respond(c, http.StatusCreated, msgRegistered)
}

func (srv *Server) logout(c *gin.Context) {
	srv.s.mu.Lock()
	if _, cl, err := srv.currentAccount(c); err == nil {
		srv.s.revoked[cl.ID] = true
	}
	srv.s.mu.Unlock()

	setCookie(c, SessionCookie, "", -1)
	setCookie(c, MfaPendingCookie, "", -1)
	respond(c, http.StatusOK, msgLoggedOut)
}

func (srv *Server) updateProfile(c *gin.Context) {
	var req struct {
		FirstName      string `json:"firstName"`
		LastName       string `json:"lastName"`
		ProfilePicture string `json:"profilePicture"`
	}
	if !bind(c, &req) {
		return
	}

	if req.ProfilePicture != "" {
		if _, err := url.ParseRequestURI(req.ProfilePicture); err != nil {
			abort(c, http.StatusBadRequest, "Invalid profile picture URL")
			return
		}
	}

	a := accountFrom(c)
	srv.s.mu.Lock()
	if req.FirstName != "" {
		a.identity.FirstName = req.FirstName
	}
	if req.LastName != "" {
		a.identity.LastName = req.LastName
	}
	if req.ProfilePicture != "" {
		pic := req.ProfilePicture
		a.identity.ProfilePicture = &pic
	}
	id := a.identity.Clone()
	srv.s.mu.Unlock()

	c.JSON(http.StatusOK, id)
}

func (srv *Server) requestPasswordReset(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
	}
	if !bind(c, &req) {
		return
	}

	srv.s.mu.Lock()
	if _, ok := srv.s.accounts[req.Email]; ok {
		for tok, e := range srv.s.resetTokens {
			if e == req.Email {
				delete(srv.s.resetTokens, tok)
			}
		}
		srv.s.resetTokens[uuid.NewString()] = req.Email
	}
	srv.s.mu.Unlock()

	// Same answer whether or not the account exists.
	respond(c, http.StatusOK, msgResetSent)
}

func (srv *Server) resetPassword(c *gin.Context) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if !bind(c, &req) {
		return
	}

	srv.s.mu.Lock()
	defer srv.s.mu.Unlock()
	email, ok := srv.s.resetTokens[req.Token]
	if !ok || req.Password == "" {
		abort(c, http.StatusBadRequest, msgInvalidResetToken)
		return
	}
	delete(srv.s.resetTokens, req.Token)
	srv.s.accounts[email].password = req.Password

	respond(c, http.StatusOK, msgPasswordReset)
}

func (srv *Server) changePassword(c *gin.Context) {
	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if !bind(c, &req) {
		return
	}

	a := accountFrom(c)
	srv.s.mu.Lock()
	defer srv.s.mu.Unlock()
	if a.password != req.CurrentPassword {
		abort(c, http.StatusBadRequest, msgWrongPassword)
		return
	}
	a.password = req.NewPassword

	respond(c, http.StatusOK, msgPasswordChanged)
}

func (srv *Server) verifyMfa(c *gin.Context) {
	var req struct {
		Code string `json:"code"`
	}
	if !bind(c, &req) {
		return
	}

	raw, err := c.Cookie(MfaPendingCookie)
	if err != nil || raw == "" {
		abort(c, http.StatusUnauthorized, msgNoPendingMfa)
		return
	}
	cl, err := srv.parse(raw, purposeMfaPending)
	if err != nil {
		abort(c, http.StatusUnauthorized, msgNoPendingMfa)
		return
	}

	srv.s.mu.Lock()
	a, ok := srv.s.byID[cl.Subject]
	matched := ok && srv.codeMatches(a, req.Code)
	srv.s.mu.Unlock()
	if !ok {
		abort(c, http.StatusUnauthorized, msgNoPendingMfa)
		return
	}
	if !matched {
		abort(c, http.StatusBadRequest, msgInvalidMfaCode)
		return
	}

	tok, ok := srv.startSession(c, a)
	if !ok {
		return
	}
	srv.s.mu.RLock()
	user := a.identity.Clone()
	srv.s.mu.RUnlock()
	c.JSON(http.StatusOK, gin.H{"token": tok, "user": user})
}

func (srv *Server) mfaSetup(c *gin.Context) {
	a := accountFrom(c)
	secret := newSecret()

	srv.s.mu.Lock()
	a.setupSecret = secret
	email := a.identity.Email
	srv.s.mu.Unlock()

	uri := fmt.Sprintf("otpauth://totp/%s:%s?secret=%s&issuer=%s",
		url.PathEscape(issuer), url.PathEscape(email), secret, url.QueryEscape(issuer))
	c.JSON(http.StatusOK, gin.H{"qrCode": uri, "secret": secret})
}

func (srv *Server) verifyMfaSetup(c *gin.Context) {
	var req struct {
		Code   string `json:"code"`
		Secret string `json:"secret"`
	}
	if !bind(c, &req) {
		return
	}

	a := accountFrom(c)
	srv.s.mu.Lock()
	defer srv.s.mu.Unlock()
	if a.setupSecret == "" || a.setupSecret != req.Secret {
		abort(c, http.StatusBadRequest, msgInvalidMfaSetup)
		return
	}
	if req.Code != srv.s.mfaCode {
		abort(c, http.StatusBadRequest, msgInvalidMfaCode)
		return
	}

	a.mfaSecret = a.setupSecret
	a.setupSecret = ""
	a.identity.MfaEnabled = true
	a.backupCodes = make([]string, backupCodeCount)
	for i := range a.backupCodes {
		a.backupCodes[i] = strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
	}

	c.JSON(http.StatusOK, gin.H{"backupCodes": slices.Clone(a.backupCodes)})
}

func (srv *Server) disableMfa(c *gin.Context) {
	var req struct {
		Code string `json:"code"`
	}
	if !bind(c, &req) {
		return
	}

	a := accountFrom(c)
	srv.s.mu.Lock()
	defer srv.s.mu.Unlock()
	if a.mfaSecret == "" {
		abort(c, http.StatusBadRequest, msgMfaNotEnabled)
		return
	}
	if !srv.codeMatches(a, req.Code) {
		abort(c, http.StatusBadRequest, msgInvalidMfaCode)
		return
	}

	a.mfaSecret = ""
	a.backupCodes = nil
	a.identity.MfaEnabled = false

	respond(c, http.StatusOK, msgMfaDisabled)
}

func (srv *Server) verifyEmail(c *gin.Context) {
	var req struct {
		Token string `json:"token"`
	}
	if !bind(c, &req) {
		return
	}

	srv.s.mu.Lock()
	defer srv.s.mu.Unlock()
	email, ok := srv.s.verifyTokens[req.Token]
	if !ok {
		abort(c, http.StatusBadRequest, msgInvalidVerifyToken)
		return
	}
	delete(srv.s.verifyTokens, req.Token)
	srv.s.accounts[email].verified = true

	respond(c, http.StatusOK, msgEmailVerified)
}

func (srv *Server) resendVerification(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
	}
	if !bind(c, &req) {
		return
	}

	srv.s.mu.Lock()
	if a, ok := srv.s.accounts[req.Email]; ok && !a.verified {
		for tok, e := range srv.s.verifyTokens {
			if e == req.Email {
				delete(srv.s.verifyTokens, tok)
			}
		}
		srv.s.verifyTokens[uuid.NewString()] = req.Email
	}
	srv.s.mu.Unlock()

	respond(c, http.StatusOK, msgVerificationResent)
}
