package tablesideserver

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultIssuer   = "tableside"
	defaultTokenTTL = 12 * time.Hour
	userIDKey       = "tableside.user_id"
	roleKey         = "tableside.role"
)

var errInvalidToken = errors.New("invalid or expired token")

// Claims identify the staff member acting on the venue.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator issues and verifies HS256 bearer tokens.
type Authenticator struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

type AuthOption func(*Authenticator)

func WithTokenTTL(ttl time.Duration) AuthOption {
	return func(a *Authenticator) {
		if ttl > 0 {
			a.ttl = ttl
		}
	}
}

// WithAuthClock overrides the time source used to stamp and check tokens.
func WithAuthClock(now func() time.Time) AuthOption {
	return func(a *Authenticator) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAuthenticator returns nil for an empty secret, which leaves the API open.
func NewAuthenticator(secret string, opts ...AuthOption) *Authenticator {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil
	}
	a := &Authenticator{secret: []byte(secret), issuer: defaultIssuer, ttl: defaultTokenTTL, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Issue signs a token for userID.
func (a *Authenticator) Issue(userID, role string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("user id is required")
	}
	now := a.now()
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Parse verifies the signature, issuer and expiry of raw.
func (a *Authenticator) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil || !token.Valid {
		return nil, errInvalidToken
	}
	if strings.TrimSpace(claims.UserID) == "" {
		return nil, errInvalidToken
	}
	return claims, nil
}

// Middleware requires a bearer token in the Authorization header. Browsers cannot set
// headers on websocket upgrades, so a token query parameter is accepted as well.
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader("Authorization"))
		if raw != "" {
			if !strings.HasPrefix(raw, "Bearer ") {
				respondError(c, http.StatusUnauthorized, errors.New("authorization header must use the Bearer scheme"))
				c.Abort()
				return
			}
			raw = strings.TrimSpace(strings.TrimPrefix(raw, "Bearer "))
		} else {
			raw = strings.TrimSpace(c.Query("token"))
		}
		if raw == "" {
			respondError(c, http.StatusUnauthorized, errors.New("authorization header missing"))
			c.Abort()
			return
		}
		claims, err := a.Parse(raw)
		if err != nil {
			respondError(c, http.StatusUnauthorized, err)
			c.Abort()
			return
		}
		c.Set(userIDKey, claims.UserID)
		c.Set(roleKey, claims.Role)
		c.Next()
	}
}

// actingUser returns the authenticated user id, or "" when auth is disabled.
func actingUser(c *gin.Context) string {
	return c.GetString(userIDKey)
}
