// Package errors defines the error taxonomy shared by the connectors.
package errors

import (
	"errors"
	"fmt"
)

// Kind is the category of a failure. Every kind except KindSelection is terminal.
type Kind string

const (
	KindValidation Kind = "validation"
	KindDiscovery  Kind = "discovery"
	KindSelection  Kind = "selection"
	KindAuth       Kind = "auth"
	KindDispatch   Kind = "dispatch"
	KindUnknown    Kind = "unknown"
)

// Validation errors, raised before any external call.
var (
	ErrMalformedFilter   = errors.New("malformed tag filter (expected KEY=VALUE)")
	ErrUnsafeFilterValue = errors.New("tag filter contains unsafe characters")
	ErrInvalidEndpoint   = errors.New("invalid endpoint type (expected reader or writer)")
	ErrInvalidAuthMethod = errors.New("invalid auth method (expected iam, secret or manual)")
	ErrInvalidSSL        = errors.New("invalid ssl value (expected true or false)")
)

// Discovery errors.
var (
	ErrNoResourcesFound   = errors.New("no resources found")
	ErrMissingTargetField = errors.New("target is missing a required field")
)

// Selection errors. ErrInvalidSelection only drives the re-prompt loop.
var (
	ErrInvalidSelection = errors.New("invalid selection")
	ErrInputClosed      = errors.New("interactive input closed")
)

// Authentication errors.
var (
	ErrTokenGenerationFailed = errors.New("failed to generate IAM auth token")
	ErrNoSecretConfigured    = errors.New("no secret configured for target")
	ErrSecretParseFailed     = errors.New("secret must contain username and password")
	ErrEmptyPassword         = errors.New("password cannot be empty")
)

// Dispatch errors.
var (
	ErrUnsupportedEngine = errors.New("unsupported database engine")
	ErrSessionExit       = errors.New("client session exited with an error")
)

var kinds = map[error]Kind{
	ErrMalformedFilter:       KindValidation,
	ErrUnsafeFilterValue:     KindValidation,
	ErrInvalidEndpoint:       KindValidation,
	ErrInvalidAuthMethod:     KindValidation,
	ErrInvalidSSL:            KindValidation,
	ErrNoResourcesFound:      KindDiscovery,
	ErrMissingTargetField:    KindDiscovery,
	ErrInvalidSelection:      KindSelection,
	ErrInputClosed:           KindSelection,
	ErrTokenGenerationFailed: KindAuth,
	ErrNoSecretConfigured:    KindAuth,
	ErrSecretParseFailed:     KindAuth,
	ErrEmptyPassword:         KindAuth,
	ErrUnsupportedEngine:     KindDispatch,
	ErrSessionExit:           KindDispatch,
}

// Error is a pipeline failure annotated with the stage that produced it.
type Error struct {
	Kind Kind
	Op   string // pipeline stage, e.g. "discover", "resolve_auth"
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with the stage name, deriving the kind from the wrapped sentinel.
func New(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindOf(err), Op: op, Err: err}
}

// KindOf returns the category of err, KindUnknown when it carries no known sentinel.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) && e.Kind != "" && e.Kind != KindUnknown {
		return e.Kind
	}
	for sentinel, kind := range kinds {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindUnknown
}

// IsTerminal reports whether err must abort the pipeline.
func IsTerminal(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrInvalidSelection)
}
