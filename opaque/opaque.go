// Package opaque implements self-contained HMAC-signed flow tokens. A token
// carries its own type, version, expiry, and truncated signature, so it can
// be verified without any server-side record. Each token type is signed with
// its own secret; a token minted for one flow can never verify as another.
package opaque

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"
)

// TokenType selects the signing secret and TTL used for a token.
type TokenType string

const (
	// TypeRefresh marks refresh credentials handed to device sessions.
	TypeRefresh TokenType = "ref"
	// TypeRegistration marks multi-step registration flow tokens.
	TypeRegistration TokenType = "reg"
	// TypeOTPVerification marks post-OTP provisional and verification tokens.
	TypeOTPVerification TokenType = "otp"
)

const (
	tokenVersion   = "v1"
	randomSize     = 16
	tagLength      = 16
	fieldSeparator = "."
)

// ErrTokenInvalid is returned for every verification failure: malformed
// input, wrong type, unsupported version, expiry, or signature mismatch.
// Callers must not reveal which check failed.
var ErrTokenInvalid = errors.New("opaque token invalid")

// Secret holds one signing key and its token lifetime.
type Secret struct {
	Key []byte
	TTL time.Duration
}

// Token is the parsed metadata returned by a successful Verify. Raw is the
// original token string; flow stores use it as their cache key.
type Token struct {
	Type      TokenType
	Version   string
	Random    string
	ExpiresAt int64
	Raw       string
}

// Authority generates and verifies opaque tokens. Secrets are imported once
// at construction and never change afterwards.
type Authority struct {
	secrets map[TokenType]Secret
	now     func() time.Time
}

// NewAuthority creates an [Authority] from one secret per supported token
// type. Every secret must carry a key of at least 32 bytes and a positive TTL.
func NewAuthority(secrets map[TokenType]Secret) (*Authority, error) {
	if len(secrets) == 0 {
		return nil, errors.New("opaque: no secrets configured")
	}

	owned := make(map[TokenType]Secret, len(secrets))
	for typ, secret := range secrets {
		switch typ {
		case TypeRefresh, TypeRegistration, TypeOTPVerification:
			// supported
		default:
			return nil, errors.New("opaque: unsupported token type " + string(typ))
		}
		if len(secret.Key) < 32 {
			return nil, errors.New("opaque: secret key must be >= 32 bytes for type " + string(typ))
		}
		if secret.TTL < 0 {
			return nil, errors.New("opaque: secret TTL must be >= 0 for type " + string(typ))
		}

		key := make([]byte, len(secret.Key))
		copy(key, secret.Key)
		owned[typ] = Secret{Key: key, TTL: secret.TTL}
	}

	return &Authority{
		secrets: owned,
		now:     time.Now,
	}, nil
}

// Generate mints a token of the given type: 16 random bytes, an absolute
// expiry derived from the type's TTL, and a truncated HMAC-SHA256 tag over
// the first four fields. No server-side record is created.
func (a *Authority) Generate(typ TokenType) (string, error) {
	secret, ok := a.secrets[typ]
	if !ok {
		return "", errors.New("opaque: no secret for token type " + string(typ))
	}

	var random [randomSize]byte
	if _, err := rand.Read(random[:]); err != nil {
		return "", err
	}

	exp := a.now().Unix() + int64(secret.TTL/time.Second)
	prefix := strings.Join([]string{
		string(typ),
		tokenVersion,
		base64.RawURLEncoding.EncodeToString(random[:]),
		strconv.FormatInt(exp, 10),
	}, fieldSeparator)

	return prefix + fieldSeparator + a.sign(prefix, secret.Key), nil
}

// Verify checks a token against the expected type. The tag is recomputed
// with the secret belonging to the token's declared type and compared in
// constant time, so a structurally valid signature for a different type
// still fails. Any failure returns [ErrTokenInvalid].
func (a *Authority) Verify(token string, expectedType TokenType) (*Token, error) {
	fields := strings.Split(token, fieldSeparator)
	if len(fields) != 5 {
		return nil, ErrTokenInvalid
	}

	typ := TokenType(fields[0])
	if typ != expectedType {
		return nil, ErrTokenInvalid
	}
	if fields[1] != tokenVersion {
		return nil, ErrTokenInvalid
	}

	exp, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	if a.now().Unix() > exp {
		return nil, ErrTokenInvalid
	}

	secret, ok := a.secrets[typ]
	if !ok {
		return nil, ErrTokenInvalid
	}

	prefix := strings.Join(fields[:4], fieldSeparator)
	expected := a.sign(prefix, secret.Key)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(fields[4])) != 1 {
		return nil, ErrTokenInvalid
	}

	return &Token{
		Type:      typ,
		Version:   fields[1],
		Random:    fields[2],
		ExpiresAt: exp,
		Raw:       token,
	}, nil
}

// TTL reports the configured lifetime for a token type, or zero when the
// type is not configured.
func (a *Authority) TTL(typ TokenType) time.Duration {
	return a.secrets[typ].TTL
}

func (a *Authority) sign(prefix string, key []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(prefix))
	tag := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	return tag[:tagLength]
}
