package authcore

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRegistrationFlow(t *testing.T) {
	engine, _, sender, mr, done := newTestEngine(t)
	defer done()
	ctx := context.Background()

	token, err := engine.StartRegistration(ctx)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !strings.HasPrefix(token, "reg.v1.") {
		t.Fatalf("registration token %q has wrong shape", token)
	}

	// Completing with nothing done yet is a sequencing error.
	if _, err := engine.CompleteRegistration(ctx, token); !errors.Is(err, ErrTermsNotAccepted) {
		t.Fatalf("premature complete err = %v, want ErrTermsNotAccepted", err)
	}

	if err := engine.SubmitEmail(ctx, token, "New@Example.com"); err != nil {
		t.Fatalf("submit email: %v", err)
	}
	if err := engine.VerifyEmail(ctx, token, sender.lastCode("new@example.com")); err != nil {
		t.Fatalf("verify email: %v", err)
	}

	// Verification does not repeat.
	if err := engine.VerifyEmail(ctx, token, "123456"); !errors.Is(err, ErrAlreadyVerified) {
		t.Fatalf("re-verify err = %v, want ErrAlreadyVerified", err)
	}

	mr.FastForward(2 * time.Minute) // past the send cooldown
	if err := engine.SubmitPhone(ctx, token, "+15550002222"); err != nil {
		t.Fatalf("submit phone: %v", err)
	}
	if err := engine.VerifyPhone(ctx, token, sender.lastCode("+15550002222")); err != nil {
		t.Fatalf("verify phone: %v", err)
	}

	if err := engine.SetPassword(ctx, token, "short"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("weak password err = %v, want ErrPasswordPolicy", err)
	}
	if err := engine.SetPassword(ctx, token, "long-enough-password"); err != nil {
		t.Fatalf("set password: %v", err)
	}
	if err := engine.SetPassword(ctx, token, "another-password-11"); !errors.Is(err, ErrPasswordAlreadySet) {
		t.Fatalf("second set err = %v, want ErrPasswordAlreadySet", err)
	}

	if err := engine.AcceptTerms(ctx, token); err != nil {
		t.Fatalf("accept terms: %v", err)
	}

	result, err := engine.CompleteRegistration(ctx, token)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if result.Provider != ProviderPassword {
		t.Fatalf("provider = %s, want password", result.Provider)
	}
	if result.Tokens.AccessToken == "" {
		t.Fatal("no session opened")
	}

	// The flow state died with completion.
	if _, err := engine.CompleteRegistration(ctx, token); !errors.Is(err, ErrFlowNotFound) {
		t.Fatalf("second complete err = %v, want ErrFlowNotFound", err)
	}

	// The new account can log in.
	if _, err := engine.Login(ctx, "new@example.com", "long-enough-password"); err != nil {
		t.Fatalf("login as new user: %v", err)
	}
}

func TestRegistrationRejectsForgedToken(t *testing.T) {
	engine, _, _, _, done := newTestEngine(t)
	defer done()
	ctx := context.Background()

	if err := engine.SubmitEmail(ctx, "reg.v1.forged.123.tag", "a@b.c"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestRegistrationDuplicateEmail(t *testing.T) {
	engine, users, _, _, done := newTestEngine(t)
	defer done()
	ctx := context.Background()

	seedPasswordUser(t, engine, users, "taken@example.com", "hunter2hunter2")

	token, err := engine.StartRegistration(ctx)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := engine.SubmitEmail(ctx, token, "taken@example.com"); !errors.Is(err, ErrAccountExists) {
		t.Fatalf("err = %v, want ErrAccountExists", err)
	}
}

func TestRegistrationVerifyBeforeSubmit(t *testing.T) {
	engine, _, _, _, done := newTestEngine(t)
	defer done()
	ctx := context.Background()

	token, err := engine.StartRegistration(ctx)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := engine.VerifyEmail(ctx, token, "123456"); !errors.Is(err, ErrNotVerified) {
		t.Fatalf("err = %v, want ErrNotVerified", err)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	engine, users, sender, _, done := newTestEngine(t)
	defer done()
	ctx := context.Background()

	u := seedPasswordUser(t, engine, users, "a@example.com", "old-password-111")
	login, err := engine.Login(ctx, "a@example.com", "old-password-111")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := engine.StartPasswordReset(ctx, "a@example.com"); err != nil {
		t.Fatalf("start reset: %v", err)
	}
	token := sender.lastCode("a@example.com")
	if !strings.HasPrefix(token, "otp.v1.") {
		t.Fatalf("reset token %q has wrong shape", token)
	}

	if err := engine.ConfirmPasswordReset(ctx, "otp.v1.forged.123.tag", "new-password-222"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("forged token err = %v, want ErrUnauthorized", err)
	}
	if err := engine.ConfirmPasswordReset(ctx, token, "short"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("weak password err = %v, want ErrPasswordPolicy", err)
	}
	if err := engine.ConfirmPasswordReset(ctx, token, "new-password-222"); err != nil {
		t.Fatalf("confirm reset: %v", err)
	}

	// Every session of the user died with the password.
	if _, err := engine.Refresh(ctx, login.Tokens.AccessToken, login.Tokens.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("refresh after reset err = %v, want ErrUnauthorized", err)
	}

	if _, err := engine.Login(ctx, "a@example.com", "old-password-111"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password err = %v, want ErrInvalidCredentials", err)
	}
	result, err := engine.Login(ctx, "a@example.com", "new-password-222")
	if err != nil {
		t.Fatalf("login with new password: %v", err)
	}
	if result.UserID != u.ID {
		t.Fatalf("user id = %s, want %s", result.UserID, u.ID)
	}

	// Reset tokens are single use.
	if err := engine.ConfirmPasswordReset(ctx, token, "third-password-333"); !errors.Is(err, ErrFlowNotFound) {
		t.Fatalf("reused reset err = %v, want ErrFlowNotFound", err)
	}
}

func TestPasswordResetNewTokenSupersedesOld(t *testing.T) {
	engine, users, sender, _, done := newTestEngine(t)
	defer done()
	ctx := context.Background()

	seedPasswordUser(t, engine, users, "a@example.com", "old-password-111")

	if err := engine.StartPasswordReset(ctx, "a@example.com"); err != nil {
		t.Fatalf("first start: %v", err)
	}
	first := sender.lastCode("a@example.com")

	if err := engine.StartPasswordReset(ctx, "a@example.com"); err != nil {
		t.Fatalf("second start: %v", err)
	}
	second := sender.lastCode("a@example.com")

	if err := engine.ConfirmPasswordReset(ctx, first, "new-password-222"); !errors.Is(err, ErrFlowNotFound) {
		t.Fatalf("superseded token err = %v, want ErrFlowNotFound", err)
	}
	if err := engine.ConfirmPasswordReset(ctx, second, "new-password-222"); err != nil {
		t.Fatalf("current token: %v", err)
	}
}

func TestGuardIntegration(t *testing.T) {
	engine, users, _, _, done := newTestEngine(t)
	defer done()
	ctx := context.Background()

	seedPasswordUser(t, engine, users, "a@example.com", "hunter2hunter2")
	result, err := engine.Login(ctx, "a@example.com", "hunter2hunter2")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	verifier := engine.AccessVerifier()
	principal, err := verifier.VerifyAccess(result.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("verify access: %v", err)
	}
	if principal.UserID != result.UserID || principal.SessionID != result.SessionID {
		t.Fatalf("principal %+v does not match result", principal)
	}
	if principal.RoleName != "user" {
		t.Fatalf("role = %s, want user", principal.RoleName)
	}

	if _, err := verifier.VerifyAccess("garbage"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestBuilderValidation(t *testing.T) {
	users := newFakeUsers()

	// Missing redis.
	if _, err := New().WithConfig(testConfig()).WithUserProvider(users).Build(context.Background()); err == nil {
		t.Fatal("expected error without redis")
	}

	// Missing secrets.
	cfg := testConfig()
	cfg.JWT.Secret = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error without jwt secret")
	}
}
