package authcore

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/candidsky/authcore/internal/audit"
	"github.com/candidsky/authcore/internal/kv"
	"github.com/candidsky/authcore/internal/rate"
	"github.com/candidsky/authcore/session"
)

// AuditEvent is one security-relevant engine decision handed to a sink.
type AuditEvent = audit.Event

// AuditSink receives emitted audit events. Implementations must tolerate
// being called from a single background goroutine.
type AuditSink = audit.Sink

// NoOpAuditSink discards events.
type NoOpAuditSink = audit.NoOpSink

// NewChannelAuditSink buffers events in a channel the host drains itself.
func NewChannelAuditSink(buffer int) *audit.ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONAuditSink writes one JSON event per line to w.
func NewJSONAuditSink(w io.Writer) *audit.JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

const (
	auditEventLoginSuccess          = "login_success"
	auditEventLoginFailure          = "login_failure"
	auditEventLoginRateLimited      = "login_rate_limited"
	auditEventOTPSent               = "otp_sent"
	auditEventOTPSendRateLimited    = "otp_send_rate_limited"
	auditEventOTPConfirmed          = "otp_confirmed"
	auditEventOTPFailure            = "otp_failure"
	auditEventOTPAttemptsExceeded   = "otp_attempts_exceeded"
	auditEventFederatedSuccess      = "federated_login_success"
	auditEventFederatedFailure      = "federated_login_failure"
	auditEventRegistrationStarted   = "registration_started"
	auditEventRegistrationStep      = "registration_step"
	auditEventRegistrationCompleted = "registration_completed"
	auditEventRefreshSuccess        = "refresh_success"
	auditEventRefreshInvalid        = "refresh_invalid"
	auditEventRefreshRateLimited    = "refresh_rate_limited"
	auditEventPasswordResetRequest  = "password_reset_request"
	auditEventPasswordResetConfirm  = "password_reset_confirm"
	auditEventLogoutSession         = "logout_session"
	auditEventLogoutAll             = "logout_all"
)

func auditErrorCode(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrCodeInvalid):
		return "code_invalid"
	case errors.Is(err, ErrOTPAttemptsExceeded):
		return "attempts_exceeded"
	case errors.Is(err, ErrLoginRateLimited),
		errors.Is(err, ErrRefreshRateLimited),
		errors.Is(err, ErrOTPSendRateLimited),
		errors.Is(err, ErrPasswordResetRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrFlowNotFound):
		return "flow_not_found"
	case errors.Is(err, ErrAccountExists):
		return "duplicate"
	case errors.Is(err, ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, session.ErrRefreshInvalid):
		return "refresh_invalid"
	case errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, kv.ErrUnavailable),
		errors.Is(err, rate.ErrUnavailable),
		errors.Is(err, session.ErrUnavailable):
		return "backend_unavailable"
	default:
		return "internal_error"
	}
}

func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, userID, sessionID, provider string, err error, metadata map[string]string) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		Provider:  provider,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = code
	}

	e.audit.Emit(ctx, event)
}
