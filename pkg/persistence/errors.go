package persistence

import "errors"

var (
	ErrWorkflowNotFound     = errors.New("workflow not found")
	ErrExecutionNotFound    = errors.New("execution not found")
	ErrInstallationNotFound = errors.New("installation not found")
	ErrSecretBlobNotFound   = errors.New("secret blob not found")
)

func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

func IsInstallationNotFound(err error) bool {
	return errors.Is(err, ErrInstallationNotFound)
}
