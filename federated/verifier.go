// Package federated verifies identity tokens issued by external providers
// (Google and Apple) against their published key sets. Key sets are fetched
// lazily, cached in-process, and refreshed in the background; concurrent
// requests during a cache miss share one in-flight fetch. Every verification
// failure collapses to [ErrIdentityInvalid]; provider-specific detail is
// logged, never surfaced.
package federated

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// Provider identifies a supported external identity provider.
type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderApple  Provider = "apple"
)

const (
	googleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"
	appleJWKSURL  = "https://appleid.apple.com/auth/keys"

	appleIssuer = "https://appleid.apple.com"

	defaultMaxTokenAge = 5 * time.Minute
	defaultLeeway      = 10 * time.Second
)

// Google publishes both issuer strings; older tokens carry the bare host.
var googleIssuers = []string{"https://accounts.google.com", "accounts.google.com"}

// ErrIdentityInvalid is the single outcome for every rejected identity token.
var ErrIdentityInvalid = errors.New("federated identity invalid")

// Config carries the registered OAuth client id per provider plus clock
// tolerances. A provider with an empty client id is not enabled.
type Config struct {
	GoogleClientID string
	AppleClientID  string

	// MaxTokenAge bounds the replay window for a stolen identity token;
	// tokens issued earlier than now-MaxTokenAge are rejected.
	MaxTokenAge time.Duration
	Leeway      time.Duration
}

// Identity is the provider-agnostic result of a successful verification.
type Identity struct {
	Provider      Provider
	Subject       string
	Email         string
	EmailVerified bool

	// Apple extras.
	IsPrivateEmail bool
	RealUserStatus int

	// Google extras.
	Name         string
	Picture      string
	HostedDomain string
}

// Verifier validates identity tokens for the configured providers.
// Construct once via [NewVerifier]; safe for concurrent use.
type Verifier struct {
	config Config
	keys   map[Provider]jwt.Keyfunc
	now    func() time.Time
}

// NewVerifier builds a [Verifier] with one auto-refreshing key-set fetcher
// per enabled provider. ctx bounds background refreshes; cancel it to stop
// them.
func NewVerifier(ctx context.Context, cfg Config) (*Verifier, error) {
	if cfg.GoogleClientID == "" && cfg.AppleClientID == "" {
		return nil, errors.New("federated: no provider configured")
	}
	if cfg.MaxTokenAge <= 0 {
		cfg.MaxTokenAge = defaultMaxTokenAge
	}
	if cfg.Leeway <= 0 {
		cfg.Leeway = defaultLeeway
	}

	keys := make(map[Provider]jwt.Keyfunc, 2)
	if cfg.GoogleClientID != "" {
		kf, err := keyfunc.NewDefaultCtx(ctx, []string{googleJWKSURL})
		if err != nil {
			return nil, err
		}
		keys[ProviderGoogle] = kf.Keyfunc
	}
	if cfg.AppleClientID != "" {
		kf, err := keyfunc.NewDefaultCtx(ctx, []string{appleJWKSURL})
		if err != nil {
			return nil, err
		}
		keys[ProviderApple] = kf.Keyfunc
	}

	return &Verifier{
		config: cfg,
		keys:   keys,
		now:    time.Now,
	}, nil
}

// newVerifierWithKeyfuncs wires explicit key functions; used by tests to
// avoid network key-set fetches.
func newVerifierWithKeyfuncs(cfg Config, keys map[Provider]jwt.Keyfunc) *Verifier {
	if cfg.MaxTokenAge <= 0 {
		cfg.MaxTokenAge = defaultMaxTokenAge
	}
	if cfg.Leeway <= 0 {
		cfg.Leeway = defaultLeeway
	}
	return &Verifier{config: cfg, keys: keys, now: time.Now}
}

type providerClaims struct {
	Email          string     `json:"email"`
	EmailVerified  looseBool  `json:"email_verified"`
	IsPrivateEmail looseBool  `json:"is_private_email"`
	RealUserStatus int        `json:"real_user_status"`
	Name           string     `json:"name"`
	Picture        string     `json:"picture"`
	HostedDomain   string     `json:"hd"`
	jwt.RegisteredClaims
}

// Verify validates an identity token for the given provider: signature
// against the provider's current key set, issuer (exact match; Google
// accepts either historical issuer string), audience equal to this
// application's client id, and issuance no older than MaxTokenAge. The
// normalized [Identity] is returned on success.
func (v *Verifier) Verify(ctx context.Context, idToken string, provider Provider) (*Identity, error) {
	keyf, ok := v.keys[provider]
	if !ok {
		return nil, ErrIdentityInvalid
	}

	audience, issuers := v.providerExpectations(provider)
	if audience == "" {
		return nil, ErrIdentityInvalid
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"RS256", "ES256"}),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(v.config.Leeway),
	)

	claims := &providerClaims{}
	token, err := parser.ParseWithClaims(idToken, claims, keyf)
	if err != nil {
		log.Print("authcore: federated token rejected for provider " + string(provider) + ": " + err.Error())
		return nil, ErrIdentityInvalid
	}
	if !token.Valid {
		return nil, ErrIdentityInvalid
	}

	if !issuerAllowed(claims.Issuer, issuers) {
		log.Print("authcore: federated token issuer mismatch for provider " + string(provider))
		return nil, ErrIdentityInvalid
	}

	if claims.IssuedAt == nil {
		return nil, ErrIdentityInvalid
	}
	age := v.now().Sub(claims.IssuedAt.Time)
	if age > v.config.MaxTokenAge+v.config.Leeway {
		log.Print("authcore: federated token too old for provider " + string(provider))
		return nil, ErrIdentityInvalid
	}

	if claims.Subject == "" {
		return nil, ErrIdentityInvalid
	}

	identity := &Identity{
		Provider:      provider,
		Subject:       claims.Subject,
		Email:         claims.Email,
		EmailVerified: bool(claims.EmailVerified),
	}
	switch provider {
	case ProviderApple:
		identity.IsPrivateEmail = bool(claims.IsPrivateEmail)
		identity.RealUserStatus = claims.RealUserStatus
	case ProviderGoogle:
		identity.Name = claims.Name
		identity.Picture = claims.Picture
		identity.HostedDomain = claims.HostedDomain
	}

	return identity, nil
}

func (v *Verifier) providerExpectations(provider Provider) (audience string, issuers []string) {
	switch provider {
	case ProviderGoogle:
		return v.config.GoogleClientID, googleIssuers
	case ProviderApple:
		return v.config.AppleClientID, []string{appleIssuer}
	default:
		return "", nil
	}
}

func issuerAllowed(issuer string, allowed []string) bool {
	for _, candidate := range allowed {
		if issuer == candidate {
			return true
		}
	}
	return false
}
