// Package connectors provides the typed connector registry, the credential
// segregation rules and the installation/OAuth protocol for per-tenant
// connector integrations.
package connectors

import "errors"

var (
	ErrConnectorNotFound = errors.New("connector not found")
	ErrInvalidOAuthState = errors.New("invalid oauth state")
	ErrOAuthNotSupported = errors.New("connector does not support oauth")
	ErrCredentialStorage = errors.New("credential storage failed")
)

func IsConnectorNotFound(err error) bool {
	return errors.Is(err, ErrConnectorNotFound)
}

func IsInvalidOAuthState(err error) bool {
	return errors.Is(err, ErrInvalidOAuthState)
}

func IsCredentialStorage(err error) bool {
	return errors.Is(err, ErrCredentialStorage)
}
