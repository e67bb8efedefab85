// Package jwt signs and verifies the short-lived access tokens issued to
// authenticated sessions. The algorithm is fixed to HS256 with one shared
// secret; every verification failure collapses to [ErrTokenInvalid] so the
// parser never becomes an oracle for why a token was rejected.
package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenTypeAccess = "access"

// ErrTokenInvalid is the single outcome for malformed, expired, mis-signed,
// or mistyped tokens.
var ErrTokenInvalid = errors.New("invalid access token")

// Config holds the signing secret and token lifetime.
type Config struct {
	Secret    []byte
	AccessTTL time.Duration
	Leeway    time.Duration
	Issuer    string
}

// AccessClaims are the claims carried by an access token: subject user,
// session id, and role name, plus the registered time claims.
type AccessClaims struct {
	SessionID string `json:"sid"`
	RoleName  string `json:"role"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// Manager signs and verifies access tokens. Construct once via [NewManager];
// safe for concurrent use.
type Manager struct {
	config Config
}

// NewManager validates the configuration and returns a [Manager]. The secret
// must be at least 32 bytes; leeway is capped at two minutes.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("jwt: secret must be >= 32 bytes")
	}
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("jwt: access TTL must be > 0")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("jwt: leeway must be between 0 and 2m")
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)
	cfg.Secret = secret

	return &Manager{config: cfg}, nil
}

// Sign issues an access token bound to (userID, sessionID, roleName) with
// iat=now and exp=now+AccessTTL.
func (m *Manager) Sign(userID, sessionID, roleName string) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		SessionID: sessionID,
		RoleName:  roleName,
		TokenType: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.AccessTTL)),
			Issuer:    m.config.Issuer,
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.Secret)
}

// Verify parses and validates an access token. The signing method must be
// exactly HS256 and the type marker must match; exp and iat are checked with
// the configured leeway. Any failure returns [ErrTokenInvalid].
func (m *Manager) Verify(tokenStr string) (*AccessClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &AccessClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, ErrTokenInvalid
		}
		return m.config.Secret, nil
	})
	if err != nil {
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.TokenType != tokenTypeAccess {
		return nil, ErrTokenInvalid
	}
	if claims.IssuedAt != nil && m.config.Leeway >= 0 {
		if claims.IssuedAt.Time.After(time.Now().Add(m.config.Leeway + time.Second)) {
			return nil, ErrTokenInvalid
		}
	}

	return claims, nil
}

// VerifyExpired parses an access token checking signature, method and type
// but skipping time-claim validation. Refresh flows use it to recover the
// session id from an access token that has already expired; the refresh
// token itself still gates the rotation.
func (m *Manager) VerifyExpired(tokenStr string) (*AccessClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	token, err := parser.ParseWithClaims(tokenStr, &AccessClaims{}, func(t *jwt.Token) (interface{}, error) {
		return m.config.Secret, nil
	})
	if err != nil {
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || claims.TokenType != tokenTypeAccess {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// AccessTTL reports the configured access-token lifetime.
func (m *Manager) AccessTTL() time.Duration {
	return m.config.AccessTTL
}
