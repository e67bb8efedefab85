package authcore

import "context"

// Auth provider names recorded on users and sessions.
const (
	ProviderPassword = "password"
	ProviderPhone    = "phone"
	ProviderGoogle   = "google"
	ProviderApple    = "apple"
)

// UserRecord is the engine's view of an account row. The host application
// owns user storage; the engine only reads the fields it needs and writes
// password hashes back through [UserProvider].
type UserRecord struct {
	ID              string
	Email           string
	EmailVerified   bool
	Phone           string
	PhoneVerified   bool
	PasswordHash    string // empty for federated or phone-only accounts
	RoleName        string
	Provider        string
	ProviderSubject string
}

// NewUser carries the fields of an account about to be created at the end of
// a registration or federated login flow.
type NewUser struct {
	Email           string
	EmailVerified   bool
	Phone           string
	PhoneVerified   bool
	PasswordHash    string
	RoleName        string
	Provider        string
	ProviderSubject string
	DisplayName     string
}

// UserProvider is implemented by the host application over its own user
// store. Lookup methods return [ErrUserNotFound] when no account matches.
type UserProvider interface {
	GetUserByEmail(ctx context.Context, email string) (*UserRecord, error)
	GetUserByPhone(ctx context.Context, phone string) (*UserRecord, error)
	GetUserByProviderSubject(ctx context.Context, provider, subject string) (*UserRecord, error)
	CreateUser(ctx context.Context, u *NewUser) (*UserRecord, error)
	UpdatePasswordHash(ctx context.Context, userID, hash string) error
}

// Delivery channels for verification codes.
const (
	ChannelSMS   = "sms"
	ChannelEmail = "email"
)

// OTPSender delivers a verification code after the engine has decided one
// should be sent. Rate limiting happens before this call, never inside it.
type OTPSender interface {
	SendCode(ctx context.Context, channel, destination, code string) error
}
