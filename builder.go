package authcore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/candidsky/authcore/federated"
	"github.com/candidsky/authcore/internal/audit"
	"github.com/candidsky/authcore/internal/kv"
	"github.com/candidsky/authcore/internal/rate"
	"github.com/candidsky/authcore/jwt"
	"github.com/candidsky/authcore/opaque"
	"github.com/candidsky/authcore/password"
	"github.com/candidsky/authcore/session"
)

// Builder assembles an [Engine] from configuration and host dependencies.
type Builder struct {
	config Config

	redis       redis.UniversalClient
	db          *sql.DB
	sessionRepo session.Repo

	users     UserProvider
	sender    OTPSender
	auditSink AuditSink

	built bool
}

// New returns a builder preloaded with defaults.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the default configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the client backing ephemeral flow state and rate
// counters.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithDB supplies the relational database backing sessions.
func (b *Builder) WithDB(db *sql.DB) *Builder {
	b.db = db
	return b
}

// WithSessionRepo overrides the session store built from WithDB. Useful for
// tests and non-Postgres backends.
func (b *Builder) WithSessionRepo(repo session.Repo) *Builder {
	b.sessionRepo = repo
	return b
}

// WithUserProvider supplies the host's user store.
func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.users = up
	return b
}

// WithOTPSender supplies the verification-code delivery channel.
func (b *Builder) WithOTPSender(s OTPSender) *Builder {
	b.sender = s
	return b
}

// WithAuditSink enables audit emission into the given sink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	b.config.Audit.Enabled = sink != nil
	return b
}

// Build validates configuration, wires every component and returns a ready
// engine. ctx bounds the initial fetch of federated provider key sets.
func (b *Builder) Build(ctx context.Context) (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	if err := b.config.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client is required")
	}
	if b.users == nil {
		return nil, errors.New("user provider is required")
	}

	sessionRepo := b.sessionRepo
	if sessionRepo == nil {
		if b.db == nil {
			return nil, errors.New("database or session repo is required")
		}
		sessionRepo = session.NewPostgresRepo(b.db)
	}

	tokens, err := opaque.NewAuthority(map[opaque.TokenType]opaque.Secret{
		opaque.TypeRefresh:         {Key: b.config.Opaque.RefreshSecret, TTL: b.config.Opaque.RefreshTTL},
		opaque.TypeRegistration:    {Key: b.config.Opaque.RegistrationSecret, TTL: b.config.Opaque.RegistrationTTL},
		opaque.TypeOTPVerification: {Key: b.config.Opaque.OTPSecret, TTL: b.config.Opaque.OTPTTL},
	})
	if err != nil {
		return nil, err
	}

	access, err := jwt.NewManager(jwt.Config{
		Secret:    b.config.JWT.Secret,
		AccessTTL: b.config.JWT.AccessTTL,
		Leeway:    b.config.JWT.Leeway,
		Issuer:    b.config.JWT.Issuer,
	})
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewHasher(password.Config{
		Memory:      b.config.Password.Memory,
		Time:        b.config.Password.Time,
		Parallelism: b.config.Password.Parallelism,
		SaltLength:  b.config.Password.SaltLength,
		KeyLength:   b.config.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	var verifier *federated.Verifier
	if b.config.Providers.GoogleClientID != "" || b.config.Providers.AppleClientID != "" {
		verifier, err = federated.NewVerifier(ctx, federated.Config{
			GoogleClientID: b.config.Providers.GoogleClientID,
			AppleClientID:  b.config.Providers.AppleClientID,
		})
		if err != nil {
			return nil, err
		}
	}

	e := &Engine{
		config: b.config,
		users:  b.users,
		sender: b.sender,
		tokens: tokens,
		access: access,
		hasher: hasher,
		sessions: session.NewManager(
			sessionRepo, tokens, hasher, access,
			b.config.Session.MaxPerUser, b.config.Session.IPMismatchPolicy,
		),
		federated: verifier,
		flows:     kv.NewStore(b.redis, b.config.RedisPrefix+":flow"),
		limiter:   rate.NewLimiter(b.redis, b.config.RedisPrefix+":rl"),
		cookies:   NewCookieWriter(b.config.Cookies),
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    b.config.Audit.Enabled,
			BufferSize: b.config.Audit.BufferSize,
		}, b.auditSink),
		now: time.Now,
	}

	b.built = true
	return e, nil
}
