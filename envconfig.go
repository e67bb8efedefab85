package authcore

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/candidsky/authcore/session"
)

type envConfig struct {
	RefreshSecret      string `env:"AUTHCORE_REFRESH_SECRET,required"`
	RegistrationSecret string `env:"AUTHCORE_REGISTRATION_SECRET,required"`
	OTPSecret          string `env:"AUTHCORE_OTP_SECRET,required"`
	JWTSecret          string `env:"AUTHCORE_JWT_SECRET,required"`

	AccessTTL  time.Duration `env:"AUTHCORE_ACCESS_TTL" envDefault:"15m"`
	RefreshTTL time.Duration `env:"AUTHCORE_REFRESH_TTL" envDefault:"720h"`

	GoogleClientID string `env:"AUTHCORE_GOOGLE_CLIENT_ID"`
	AppleClientID  string `env:"AUTHCORE_APPLE_CLIENT_ID"`

	MaxSessionsPerUser int    `env:"AUTHCORE_MAX_SESSIONS_PER_USER" envDefault:"3"`
	IPMismatchPolicy   string `env:"AUTHCORE_IP_MISMATCH_POLICY" envDefault:"log"`

	Production  bool   `env:"AUTHCORE_PRODUCTION" envDefault:"false"`
	RedisPrefix string `env:"AUTHCORE_REDIS_PREFIX" envDefault:"authcore"`
}

// LoadConfigFromEnv builds a [Config] from environment variables on top of
// the defaults. A .env file in the working directory is loaded first when
// present; a missing file is not an error.
func LoadConfigFromEnv() (Config, error) {
	_ = godotenv.Load()

	var e envConfig
	if err := env.Parse(&e); err != nil {
		return Config{}, err
	}

	cfg := defaultConfig()
	cfg.Opaque.RefreshSecret = []byte(e.RefreshSecret)
	cfg.Opaque.RegistrationSecret = []byte(e.RegistrationSecret)
	cfg.Opaque.OTPSecret = []byte(e.OTPSecret)
	cfg.Opaque.RefreshTTL = e.RefreshTTL
	cfg.JWT.Secret = []byte(e.JWTSecret)
	cfg.JWT.AccessTTL = e.AccessTTL
	cfg.Providers.GoogleClientID = e.GoogleClientID
	cfg.Providers.AppleClientID = e.AppleClientID
	cfg.Session.MaxPerUser = e.MaxSessionsPerUser
	cfg.Session.IPMismatchPolicy = session.IPMismatchPolicy(e.IPMismatchPolicy)
	cfg.Cookies.Production = e.Production
	cfg.RedisPrefix = e.RedisPrefix

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
