package federated

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type idTokenSpec struct {
	issuer   string
	audience string
	subject  string
	issuedAt time.Time
	expires  time.Time
	extra    map[string]any
}

func newTestVerifier(t *testing.T) (*Verifier, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	keyf := func(token *jwt.Token) (any, error) {
		return &key.PublicKey, nil
	}
	v := newVerifierWithKeyfuncs(Config{
		GoogleClientID: "google-client",
		AppleClientID:  "apple-client",
	}, map[Provider]jwt.Keyfunc{
		ProviderGoogle: keyf,
		ProviderApple:  keyf,
	})
	return v, key
}

func signIDToken(t *testing.T, key *rsa.PrivateKey, spec idTokenSpec) string {
	t.Helper()
	claims := jwt.MapClaims{
		"iss": spec.issuer,
		"aud": spec.audience,
		"sub": spec.subject,
		"iat": spec.issuedAt.Unix(),
		"exp": spec.expires.Unix(),
	}
	for k, v := range spec.extra {
		claims[k] = v
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign id token: %v", err)
	}
	return signed
}

func validGoogleSpec() idTokenSpec {
	now := time.Now()
	return idTokenSpec{
		issuer:   "https://accounts.google.com",
		audience: "google-client",
		subject:  "google-sub-1",
		issuedAt: now,
		expires:  now.Add(time.Hour),
		extra: map[string]any{
			"email":          "user@example.com",
			"email_verified": true,
			"name":           "Test User",
			"picture":        "https://example.com/p.png",
			"hd":             "example.com",
		},
	}
}

func TestVerifyGoogleIdentity(t *testing.T) {
	v, key := newTestVerifier(t)
	token := signIDToken(t, key, validGoogleSpec())

	identity, err := v.Verify(context.Background(), token, ProviderGoogle)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if identity.Provider != ProviderGoogle {
		t.Fatalf("provider = %s, want google", identity.Provider)
	}
	if identity.Subject != "google-sub-1" {
		t.Fatalf("subject = %s", identity.Subject)
	}
	if identity.Email != "user@example.com" || !identity.EmailVerified {
		t.Fatalf("email not normalized: %+v", identity)
	}
	if identity.Name != "Test User" || identity.HostedDomain != "example.com" {
		t.Fatalf("google extras not populated: %+v", identity)
	}
}

func TestVerifyGoogleAcceptsLegacyIssuer(t *testing.T) {
	v, key := newTestVerifier(t)

	spec := validGoogleSpec()
	spec.issuer = "accounts.google.com"
	token := signIDToken(t, key, spec)

	if _, err := v.Verify(context.Background(), token, ProviderGoogle); err != nil {
		t.Fatalf("verify legacy issuer: %v", err)
	}
}

func TestVerifyAppleIdentity(t *testing.T) {
	v, key := newTestVerifier(t)

	now := time.Now()
	token := signIDToken(t, key, idTokenSpec{
		issuer:   "https://appleid.apple.com",
		audience: "apple-client",
		subject:  "apple-sub-1",
		issuedAt: now,
		expires:  now.Add(time.Hour),
		extra: map[string]any{
			"email": "relay@privaterelay.appleid.com",
			// Apple encodes these as strings.
			"email_verified":   "true",
			"is_private_email": "true",
			"real_user_status": 2,
		},
	})

	identity, err := v.Verify(context.Background(), token, ProviderApple)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !identity.EmailVerified || !identity.IsPrivateEmail {
		t.Fatalf("string booleans not decoded: %+v", identity)
	}
	if identity.RealUserStatus != 2 {
		t.Fatalf("real_user_status = %d, want 2", identity.RealUserStatus)
	}
}

func TestVerifyRejections(t *testing.T) {
	v, key := newTestVerifier(t)

	cases := map[string]func(*idTokenSpec){
		"wrong audience": func(s *idTokenSpec) { s.audience = "someone-else" },
		"wrong issuer":   func(s *idTokenSpec) { s.issuer = "https://evil.example.com" },
		"expired": func(s *idTokenSpec) {
			s.issuedAt = time.Now().Add(-2 * time.Hour)
			s.expires = time.Now().Add(-time.Hour)
		},
		"missing subject": func(s *idTokenSpec) { s.subject = "" },
		"stale issuance": func(s *idTokenSpec) {
			// Still unexpired but issued beyond the freshness window.
			s.issuedAt = time.Now().Add(-6 * time.Minute)
		},
	}

	for name, mutate := range cases {
		spec := validGoogleSpec()
		mutate(&spec)
		token := signIDToken(t, key, spec)

		if _, err := v.Verify(context.Background(), token, ProviderGoogle); !errors.Is(err, ErrIdentityInvalid) {
			t.Fatalf("%s: err = %v, want ErrIdentityInvalid", name, err)
		}
	}
}

func TestVerifyRejectsCrossProviderAudience(t *testing.T) {
	v, key := newTestVerifier(t)

	// A valid Apple token presented as a Google token must fail on audience.
	now := time.Now()
	token := signIDToken(t, key, idTokenSpec{
		issuer:   "https://appleid.apple.com",
		audience: "apple-client",
		subject:  "apple-sub-1",
		issuedAt: now,
		expires:  now.Add(time.Hour),
	})

	if _, err := v.Verify(context.Background(), token, ProviderGoogle); !errors.Is(err, ErrIdentityInvalid) {
		t.Fatalf("err = %v, want ErrIdentityInvalid", err)
	}
}

func TestVerifyUnconfiguredProvider(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	v := newVerifierWithKeyfuncs(Config{GoogleClientID: "google-client"}, map[Provider]jwt.Keyfunc{
		ProviderGoogle: func(token *jwt.Token) (any, error) { return &key.PublicKey, nil },
	})

	if _, err := v.Verify(context.Background(), "whatever", ProviderApple); !errors.Is(err, ErrIdentityInvalid) {
		t.Fatalf("err = %v, want ErrIdentityInvalid", err)
	}
}
