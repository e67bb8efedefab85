package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/candidsky/authcore/federated"
)

// FederatedLogin verifies a provider-issued identity token and opens a
// session, creating the account on first sight of a new subject. Rejected
// identities collapse to [ErrInvalidCredentials].
func (e *Engine) FederatedLogin(ctx context.Context, provider federated.Provider, idToken string) (*AuthResult, error) {
	if e.federated == nil {
		return nil, ErrEngineNotReady
	}

	identity, err := e.federated.Verify(ctx, idToken, provider)
	if err != nil {
		e.emitAudit(ctx, auditEventFederatedFailure, false, "", "", string(provider), ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}

	user, err := e.users.GetUserByProviderSubject(ctx, string(provider), identity.Subject)
	switch {
	case err == nil:
	case errors.Is(err, ErrUserNotFound):
		user, err = e.users.CreateUser(ctx, &NewUser{
			Email:           normalizeEmail(identity.Email),
			EmailVerified:   identity.EmailVerified,
			RoleName:        "user",
			Provider:        string(provider),
			ProviderSubject: identity.Subject,
			DisplayName:     identity.Name,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	default:
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	result, err := e.openSession(ctx, user, string(provider))
	if err != nil {
		return nil, err
	}

	e.emitAudit(ctx, auditEventFederatedSuccess, true, user.ID, result.SessionID, string(provider), nil, nil)
	return result, nil
}
