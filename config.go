package authcore

import (
	"errors"
	"time"

	"github.com/candidsky/authcore/session"
)

// Config carries every tunable of the engine. Populate it once before Build;
// the engine treats it as immutable afterwards.
type Config struct {
	Opaque       OpaqueConfig
	JWT          JWTConfig
	Session      SessionConfig
	Providers    ProviderConfig
	RateLimit    RateLimitConfig
	Password     PasswordConfig
	Verification VerificationConfig
	Cookies      CookieConfig
	Audit        AuditConfig

	// RedisPrefix namespaces every ephemeral key and counter.
	RedisPrefix string
}

/*
====================================
OPAQUE TOKEN CONFIG
====================================
*/

// OpaqueConfig holds the three independent signing secrets for opaque flow
// tokens. Each secret must be at least 32 bytes and is never rotated at
// runtime.
type OpaqueConfig struct {
	RefreshSecret      []byte
	RefreshTTL         time.Duration
	RegistrationSecret []byte
	RegistrationTTL    time.Duration
	OTPSecret          []byte
	OTPTTL             time.Duration
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures the stateless access-token authority. Algorithm is
// fixed HS256.
type JWTConfig struct {
	Secret    []byte
	AccessTTL time.Duration
	Leeway    time.Duration
	Issuer    string
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig bounds concurrent sessions and sets the rotation IP policy.
type SessionConfig struct {
	MaxPerUser       int
	IPMismatchPolicy session.IPMismatchPolicy
}

/*
====================================
FEDERATED PROVIDER CONFIG
====================================
*/

// ProviderConfig enables federated login per provider. An empty client id
// disables that provider.
type ProviderConfig struct {
	GoogleClientID string
	AppleClientID  string
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig tunes the fixed-window abuse throttles. Counters are
// scoped per identifier or per destination, not per IP alone.
type RateLimitConfig struct {
	LoginAttempts int
	LoginWindow   time.Duration

	RefreshAttempts int
	RefreshWindow   time.Duration

	// OTPSendCooldown is the minimum gap between two code sends to one
	// destination. OTPSendHourlyCap bounds sends per destination per hour.
	OTPSendCooldown  time.Duration
	OTPSendHourlyCap int

	// OTPVerifyAttempts bounds wrong codes per challenge before the flow
	// state is destroyed.
	OTPVerifyAttempts int

	ResetAttempts int
	ResetWindow   time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig tunes the argon2id hasher shared by account passwords and
// refresh-token hashing.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinLength   int
}

/*
====================================
VERIFICATION CONFIG
====================================
*/

// VerificationConfig shapes SMS and email codes.
type VerificationConfig struct {
	CodeDigits int
	CodeTTL    time.Duration
}

/*
====================================
COOKIE CONFIG
====================================
*/

// CookieConfig drives the attribute tuple on issued auth cookies. Production
// selects Secure plus SameSite=None; otherwise cookies are insecure with
// SameSite=Lax so local development over plain HTTP works.
type CookieConfig struct {
	Production bool
	Domain     string
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig sizes the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
}

func defaultConfig() Config {
	return Config{
		Opaque: OpaqueConfig{
			RefreshTTL:      30 * 24 * time.Hour,
			RegistrationTTL: time.Hour,
			OTPTTL:          10 * time.Minute,
		},
		JWT: JWTConfig{
			AccessTTL: 15 * time.Minute,
			Leeway:    30 * time.Second,
			Issuer:    "authcore",
		},
		Session: SessionConfig{
			MaxPerUser:       3,
			IPMismatchPolicy: session.IPMismatchLogOnly,
		},
		RateLimit: RateLimitConfig{
			LoginAttempts:     5,
			LoginWindow:       15 * time.Minute,
			RefreshAttempts:   30,
			RefreshWindow:     time.Minute,
			OTPSendCooldown:   time.Minute,
			OTPSendHourlyCap:  5,
			OTPVerifyAttempts: 5,
			ResetAttempts:     3,
			ResetWindow:       time.Hour,
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
			MinLength:   8,
		},
		Verification: VerificationConfig{
			CodeDigits: 6,
			CodeTTL:    5 * time.Minute,
		},
		Audit: AuditConfig{
			BufferSize: 256,
		},
		RedisPrefix: "authcore",
	}
}

// Validate rejects incomplete or unsafe settings before the engine starts.
func (c *Config) Validate() error {
	if len(c.Opaque.RefreshSecret) < 32 {
		return errors.New("opaque refresh secret must be at least 32 bytes")
	}
	if len(c.Opaque.RegistrationSecret) < 32 {
		return errors.New("opaque registration secret must be at least 32 bytes")
	}
	if len(c.Opaque.OTPSecret) < 32 {
		return errors.New("opaque otp secret must be at least 32 bytes")
	}
	if c.Opaque.RefreshTTL <= 0 || c.Opaque.RegistrationTTL <= 0 || c.Opaque.OTPTTL <= 0 {
		return errors.New("opaque token TTLs must be positive")
	}

	if len(c.JWT.Secret) < 32 {
		return errors.New("jwt secret must be at least 32 bytes")
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("jwt access TTL must be positive")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("jwt leeway must be between 0 and 2 minutes")
	}

	if c.Session.MaxPerUser < 1 {
		return errors.New("session max per user must be at least 1")
	}
	switch c.Session.IPMismatchPolicy {
	case session.IPMismatchLogOnly, session.IPMismatchBlock:
	default:
		return errors.New("unknown session ip mismatch policy")
	}

	if c.RateLimit.LoginAttempts < 1 || c.RateLimit.LoginWindow <= 0 {
		return errors.New("login rate limit must be positive")
	}
	if c.RateLimit.RefreshAttempts < 1 || c.RateLimit.RefreshWindow <= 0 {
		return errors.New("refresh rate limit must be positive")
	}
	if c.RateLimit.OTPSendCooldown <= 0 || c.RateLimit.OTPSendHourlyCap < 1 {
		return errors.New("otp send rate limit must be positive")
	}
	if c.RateLimit.OTPVerifyAttempts < 1 {
		return errors.New("otp verify attempts must be at least 1")
	}
	if c.RateLimit.ResetAttempts < 1 || c.RateLimit.ResetWindow <= 0 {
		return errors.New("reset rate limit must be positive")
	}

	if c.Password.Memory < 8*1024 {
		return errors.New("argon2 memory must be at least 8 MB")
	}
	if c.Password.Time < 1 || c.Password.Parallelism < 1 {
		return errors.New("argon2 time and parallelism must be at least 1")
	}
	if c.Password.SaltLength < 16 || c.Password.KeyLength < 16 {
		return errors.New("argon2 salt and key lengths too small")
	}
	if c.Password.MinLength < 8 {
		return errors.New("password minimum length must be at least 8")
	}

	if c.Verification.CodeDigits < 4 || c.Verification.CodeDigits > 10 {
		return errors.New("verification code digits must be between 4 and 10")
	}
	if c.Verification.CodeTTL <= 0 {
		return errors.New("verification code TTL must be positive")
	}

	if c.Audit.Enabled && c.Audit.BufferSize < 1 {
		return errors.New("audit buffer size must be positive when audit is enabled")
	}

	if c.RedisPrefix == "" {
		return errors.New("redis prefix must not be empty")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Opaque.RefreshSecret = append([]byte(nil), cfg.Opaque.RefreshSecret...)
	out.Opaque.RegistrationSecret = append([]byte(nil), cfg.Opaque.RegistrationSecret...)
	out.Opaque.OTPSecret = append([]byte(nil), cfg.Opaque.OTPSecret...)
	out.JWT.Secret = append([]byte(nil), cfg.JWT.Secret...)
	return out
}
