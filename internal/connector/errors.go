package connector

import (
	"errors"
	"fmt"

	"github.com/fieldline/slacksync/internal/slack"
)

// AuthError signals missing or invalid credentials. It is fatal and
// aborts the call that raised it.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return "slack auth error: " + e.Message
}

// SyncError is any other fatal failure during a sync pass. It carries the
// originating endpoint when the failure came from the API.
type SyncError struct {
	Endpoint string
	Message  string
	Err      error
}

func (e *SyncError) Error() string {
	if e.Endpoint != "" {
		return fmt.Sprintf("sync failed at %s: %s", e.Endpoint, e.Message)
	}
	return "sync failed: " + e.Message
}

func (e *SyncError) Unwrap() error { return e.Err }

// authErrorCodes are the upstream error strings that mean the credential
// itself is unusable.
var authErrorCodes = map[string]bool{
	"invalid_auth":     true,
	"not_authed":       true,
	"account_inactive": true,
	"token_revoked":    true,
	"token_expired":    true,
}

// wrapAPIError maps a client error into the connector's taxonomy:
// credential failures become AuthError, everything else SyncError.
func wrapAPIError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *slack.APIError
	if errors.As(err, &apiErr) {
		if authErrorCodes[apiErr.Message] {
			return &AuthError{Message: apiErr.Message}
		}
		return &SyncError{Endpoint: apiErr.Endpoint, Message: apiErr.Message, Err: err}
	}
	return &SyncError{Message: err.Error(), Err: err}
}
