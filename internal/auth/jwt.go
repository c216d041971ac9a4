package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Verification outcomes. Every verify call fails with exactly one of these.
var (
	ErrTokenExpired = errors.New("token expired")
	ErrInvalidToken = errors.New("invalid token")
)

type Claims struct {
	UserID    string `json:"uid"`
	Email     string `json:"email"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

type Config struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// TokenPair is what register and login hand back to the client.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	RefreshJTI       string
	RefreshExpiresAt time.Time
}

type Manager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

func NewManager(cfg Config) *Manager {
	return &Manager{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// WithClock swaps the time source; used by tests to mint already-expired tokens.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	cp := *m
	cp.now = now
	return &cp
}

func (m *Manager) RefreshTTL() time.Duration {
	return m.refreshTTL
}

func (m *Manager) IssuePair(userID, email string) (TokenPair, error) {
	access, err := m.GenerateAccessToken(userID, email)
	if err != nil {
		return TokenPair{}, err
	}

	refresh, jti, expiresAt, err := m.GenerateRefreshToken(userID, email)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		RefreshJTI:       jti,
		RefreshExpiresAt: expiresAt,
	}, nil
}

func (m *Manager) GenerateAccessToken(userID, email string) (string, error) {
	raw, _, _, err := m.sign(m.accessSecret, TokenTypeAccess, userID, email, m.accessTTL)
	return raw, err
}

func (m *Manager) GenerateRefreshToken(userID, email string) (raw string, jti string, expiresAt time.Time, err error) {
	return m.sign(m.refreshSecret, TokenTypeRefresh, userID, email, m.refreshTTL)
}

func (m *Manager) sign(secret []byte, typ, userID, email string, ttl time.Duration) (raw string, jti string, expiresAt time.Time, err error) {
	now := m.now()
	jti = uuid.NewString()
	expiresAt = now.Add(ttl)

	claims := Claims{
		UserID:    userID,
		Email:     email,
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	raw, err = token.SignedString(secret)

	return
}

func (m *Manager) VerifyAccessToken(tokenStr string) (*Claims, error) {
	return m.verify(tokenStr, m.accessSecret, TokenTypeAccess)
}

func (m *Manager) VerifyRefreshToken(tokenStr string) (*Claims, error) {
	return m.verify(tokenStr, m.refreshSecret, TokenTypeRefresh)
}

func (m *Manager) verify(tokenStr string, secret []byte, typ string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)

	if err != nil {
		// signature is checked before expiry, so an expired error implies an authentic token
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.TokenType != typ || claims.UserID == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// HashRefreshToken is the deterministic value kept in the token store.
// The raw refresh token never touches the database.
func (m *Manager) HashRefreshToken(raw string) string {
	h := hmac.New(sha256.New, m.refreshSecret)
	h.Write([]byte(raw))
	return hex.EncodeToString(h.Sum(nil))
}
