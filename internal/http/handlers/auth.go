package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/geocoder89/synergysphere/internal/auth"
	"github.com/geocoder89/synergysphere/internal/domain/user"
	"github.com/geocoder89/synergysphere/internal/http/middlewares"
	"github.com/geocoder89/synergysphere/internal/observability"
	"github.com/geocoder89/synergysphere/internal/repo/postgres"
	"github.com/gin-gonic/gin"
)

const refreshCookieName = "refresh_token"

type UserStore interface {
	Create(ctx context.Context, u user.User) (user.User, error)
	GetByEmail(ctx context.Context, email string) (user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
}

type RefreshTokenStore interface {
	Create(ctx context.Context, row postgres.RefreshTokenRow) error
	GetByHash(ctx context.Context, hash string) (postgres.RefreshTokenRow, error)
	DeleteByHash(ctx context.Context, hash string) error
	DeleteExpiredForUser(ctx context.Context, userID string, now time.Time) error
	Rotate(ctx context.Context, oldHash string, now time.Time, next postgres.RefreshTokenRow) (postgres.RefreshTokenRow, error)
}

type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(hash, plain string) error
	NeedsRehash(hash string) bool
}

type AuthOptions struct {
	RotateRefresh bool
	SecureCookies bool
}

type AuthHandler struct {
	users   UserStore
	refresh RefreshTokenStore
	jwt     *auth.Manager
	hasher  PasswordHasher
	opts    AuthOptions
	prom    *observability.Prom
	log     *slog.Logger
	now     func() time.Time

	// verified against when the email is unknown, so both failure paths cost the same
	dummyHash string
}

func NewAuthHandler(users UserStore, refresh RefreshTokenStore, jwtManager *auth.Manager, hasher PasswordHasher, opts AuthOptions, prom *observability.Prom, log *slog.Logger) *AuthHandler {
	if log == nil {
		log = slog.Default()
	}

	dummy, _ := hasher.Hash("synergysphere-dummy-password")

	return &AuthHandler{
		users:     users,
		refresh:   refresh,
		jwt:       jwtManager,
		hasher:    hasher,
		opts:      opts,
		prom:      prom,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
		dummyHash: dummy,
	}
}

type authPayload struct {
	User         user.User `json:"user"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *AuthHandler) Register(ctx *gin.Context) {
	var req user.RegisterRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := dbContext(ctx)
	defer cancel()

	hash, err := h.hasher.Hash(req.Password)
	if err != nil {
		h.prom.ObserveAuth("register", "error")
		RespondInternal(ctx, "Could not create user", err)
		return
	}

	u, err := h.users.Create(cctx, user.New(req.Name, req.Email, hash))
	if err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			h.prom.ObserveAuth("register", "conflict")
			RespondConflict(ctx, "conflict", "User already exists")
			return
		}

		h.prom.ObserveAuth("register", "error")
		RespondInternal(ctx, "Could not create user", err)
		return
	}

	pair, err := h.startSession(cctx, u)
	if err != nil {
		h.prom.ObserveAuth("register", "error")
		RespondInternal(ctx, "Could not create session", err)
		return
	}

	h.prom.ObserveAuth("register", "ok")
	h.setRefreshCookie(ctx, pair.RefreshToken, pair.RefreshExpiresAt)

	RespondOK(ctx, http.StatusCreated, "User registered successfully", authPayload{
		User:         u,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req user.LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := dbContext(ctx)
	defer cancel()

	found, err := h.users.GetByEmail(cctx, req.Email)
	if err != nil {
		if !errors.Is(err, user.ErrNotFound) {
			h.prom.ObserveAuth("login", "error")
			RespondInternal(ctx, "Could not log in", err)
			return
		}

		_ = h.hasher.Verify(h.dummyHash, req.Password)
		h.prom.ObserveAuth("login", "invalid_credentials")
		RespondUnauthorized(ctx, "invalid_credentials", "Invalid credentials")
		return
	}

	if err := h.hasher.Verify(found.PasswordHash, req.Password); err != nil {
		h.prom.ObserveAuth("login", "invalid_credentials")
		RespondUnauthorized(ctx, "invalid_credentials", "Invalid credentials")
		return
	}

	if h.hasher.NeedsRehash(found.PasswordHash) {
		h.upgradeHash(cctx, found.ID, req.Password)
	}

	pair, err := h.startSession(cctx, found)
	if err != nil {
		h.prom.ObserveAuth("login", "error")
		RespondInternal(ctx, "Could not create session", err)
		return
	}

	h.prom.ObserveAuth("login", "ok")
	h.setRefreshCookie(ctx, pair.RefreshToken, pair.RefreshExpiresAt)

	RespondOK(ctx, http.StatusOK, "Login successful", authPayload{
		User:         found,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// Refresh mints a new access token from a stored, unexpired refresh token.
// With rotation enabled the presented token is consumed and replaced.
func (h *AuthHandler) Refresh(ctx *gin.Context) {
	raw, ok := h.presentedRefreshToken(ctx)
	if !ok {
		return
	}

	if raw == "" {
		h.prom.ObserveAuth("refresh", "missing")
		RespondUnauthorized(ctx, "unauthorized", "Refresh token is required")
		return
	}

	claims, err := h.jwt.VerifyRefreshToken(raw)
	if err != nil {
		h.prom.ObserveAuth("refresh", "invalid")
		if errors.Is(err, auth.ErrTokenExpired) {
			RespondUnauthorized(ctx, "token_expired", "Refresh token has expired")
			return
		}
		RespondUnauthorized(ctx, "unauthorized", "Invalid refresh token")
		return
	}

	cctx, cancel := dbContext(ctx)
	defer cancel()

	hash := h.jwt.HashRefreshToken(raw)
	now := h.now()

	if h.opts.RotateRefresh {
		h.refreshRotating(ctx, cctx, claims, hash, now)
		return
	}

	row, err := h.refresh.GetByHash(cctx, hash)
	if err != nil {
		if errors.Is(err, postgres.ErrRefreshTokenNotFound) {
			h.prom.ObserveAuth("refresh", "invalid")
			RespondUnauthorized(ctx, "unauthorized", "Invalid refresh token")
			return
		}
		h.prom.ObserveAuth("refresh", "error")
		RespondInternal(ctx, "Could not refresh session", err)
		return
	}

	if !row.ExpiresAt.After(now) {
		h.prom.ObserveAuth("refresh", "invalid")
		RespondUnauthorized(ctx, "unauthorized", "Invalid refresh token")
		return
	}

	access, err := h.jwt.GenerateAccessToken(claims.UserID, claims.Email)
	if err != nil {
		h.prom.ObserveAuth("refresh", "error")
		RespondInternal(ctx, "Could not generate access token", err)
		return
	}

	h.prom.ObserveAuth("refresh", "ok")
	RespondOK(ctx, http.StatusOK, "Token refreshed", gin.H{"accessToken": access})
}

func (h *AuthHandler) refreshRotating(ctx *gin.Context, cctx context.Context, claims *auth.Claims, oldHash string, now time.Time) {
	pair, err := h.jwt.IssuePair(claims.UserID, claims.Email)
	if err != nil {
		h.prom.ObserveAuth("refresh", "error")
		RespondInternal(ctx, "Could not refresh session", err)
		return
	}

	next := postgres.RefreshTokenRow{
		ID:        pair.RefreshJTI,
		UserID:    claims.UserID,
		TokenHash: h.jwt.HashRefreshToken(pair.RefreshToken),
		ExpiresAt: pair.RefreshExpiresAt,
		CreatedAt: now,
	}

	_, err = h.refresh.Rotate(cctx, oldHash, now, next)
	if err != nil {
		if errors.Is(err, postgres.ErrRefreshTokenNotFound) {
			h.prom.ObserveAuth("refresh", "invalid")
			RespondUnauthorized(ctx, "unauthorized", "Invalid refresh token")
			return
		}
		h.prom.ObserveAuth("refresh", "error")
		RespondInternal(ctx, "Could not refresh session", err)
		return
	}

	h.prom.ObserveAuth("refresh", "rotated")
	h.setRefreshCookie(ctx, pair.RefreshToken, pair.RefreshExpiresAt)

	RespondOK(ctx, http.StatusOK, "Token refreshed", gin.H{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	})
}

// Logout ends exactly the presented session. It always succeeds, whether or
// not the token was known.
func (h *AuthHandler) Logout(ctx *gin.Context) {
	raw, ok := h.presentedRefreshToken(ctx)
	if !ok {
		return
	}

	if raw != "" {
		cctx, cancel := dbContext(ctx)
		defer cancel()

		if err := h.refresh.DeleteByHash(cctx, h.jwt.HashRefreshToken(raw)); err != nil {
			h.log.WarnContext(ctx.Request.Context(), "logout: delete refresh token", "err", err, "request_id", requestIDFrom(ctx))
		}
	}

	h.prom.ObserveAuth("logout", "ok")
	h.clearRefreshCookie(ctx)

	RespondOK(ctx, http.StatusOK, "Logged out successfully", nil)
}

func (h *AuthHandler) Me(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)
	if !ok {
		RespondUnauthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	cctx, cancel := dbContext(ctx)
	defer cancel()

	u, err := h.users.GetByID(cctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondUnauthorized(ctx, "unauthorized", "User no longer exists")
			return
		}
		RespondInternal(ctx, "Could not load user", err)
		return
	}

	RespondOK(ctx, http.StatusOK, "User retrieved", u)
}

// Helper functions

func (h *AuthHandler) startSession(ctx context.Context, u user.User) (auth.TokenPair, error) {
	pair, err := h.jwt.IssuePair(u.ID, u.Email)
	if err != nil {
		return auth.TokenPair{}, err
	}

	now := h.now()

	err = h.refresh.Create(ctx, postgres.RefreshTokenRow{
		ID:        pair.RefreshJTI,
		UserID:    u.ID,
		TokenHash: h.jwt.HashRefreshToken(pair.RefreshToken),
		ExpiresAt: pair.RefreshExpiresAt,
		CreatedAt: now,
	})
	if err != nil {
		return auth.TokenPair{}, err
	}

	if err := h.refresh.DeleteExpiredForUser(ctx, u.ID, now); err != nil {
		h.log.WarnContext(ctx, "prune expired sessions", "user_id", u.ID, "err", err)
	}

	return pair, nil
}

func (h *AuthHandler) upgradeHash(ctx context.Context, userID, password string) {
	hash, err := h.hasher.Hash(password)
	if err == nil {
		err = h.users.UpdatePasswordHash(ctx, userID, hash)
	}
	if err != nil {
		h.log.WarnContext(ctx, "password rehash failed", "user_id", userID, "err", err)
	}
}

// presentedRefreshToken reads the token from the JSON body, falling back to
// the cookie. ok is false when a response has already been written.
func (h *AuthHandler) presentedRefreshToken(ctx *gin.Context) (string, bool) {
	var req refreshRequest

	if ctx.Request.ContentLength != 0 {
		if !BindJSON(ctx, &req) {
			return "", false
		}
	}

	if req.RefreshToken != "" {
		return req.RefreshToken, true
	}

	raw, err := ctx.Cookie(refreshCookieName)
	if err != nil {
		return "", true
	}

	return raw, true
}

func (h *AuthHandler) setRefreshCookie(ctx *gin.Context, raw string, expiresAt time.Time) {
	maxAge := int(expiresAt.Sub(h.now()).Seconds())

	ctx.SetSameSite(http.SameSiteStrictMode)

	ctx.SetCookie(
		refreshCookieName,
		raw,
		maxAge,
		"/auth",
		"",
		h.opts.SecureCookies,
		true, // HttpOnly.
	)
}

func (h *AuthHandler) clearRefreshCookie(ctx *gin.Context) {
	ctx.SetSameSite(http.SameSiteStrictMode)
	ctx.SetCookie(
		refreshCookieName,
		"",
		-1,
		"/auth",
		"",
		h.opts.SecureCookies,
		true,
	)
}
