// Package auth resolves the credentials used to connect to a selected database.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	apperrors "github.com/yairfalse/tagconnect/internal/errors"
	"github.com/yairfalse/tagconnect/pkg/resource"
)

// Method is an authentication method.
type Method int

const (
	// MethodAuto asks the resolver to detect the method.
	MethodAuto Method = iota
	MethodIAM
	MethodSecret
	MethodManual
)

// String returns the flag spelling of the method.
func (m Method) String() string {
	switch m {
	case MethodIAM:
		return "iam"
	case MethodSecret:
		return "secret"
	case MethodManual:
		return "manual"
	default:
		return "auto"
	}
}

// ParseMethod parses the -a flag value. Empty means MethodAuto.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return MethodAuto, nil
	case "iam":
		return MethodIAM, nil
	case "secret":
		return MethodSecret, nil
	case "manual":
		return MethodManual, nil
	default:
		return MethodAuto, fmt.Errorf("%q: %w", s, apperrors.ErrInvalidAuthMethod)
	}
}

// candidate is one step of the detection chain.
type candidate struct {
	method     Method
	applicable func(resource.Target) bool
}

// detectionOrder is the priority contract: IAM, then Secret, then Manual.
// The last candidate always applies, so detection always terminates.
var detectionOrder = []candidate{
	{MethodIAM, func(t resource.Target) bool { return t.IAMAuthEnabled }},
	{MethodSecret, func(t resource.Target) bool { return t.SecretARN != "" }},
	{MethodManual, func(resource.Target) bool { return true }},
}

// Detect returns the first applicable method for target.
func Detect(target resource.Target) Method {
	for _, c := range detectionOrder {
		if c.applicable(target) {
			return c.method
		}
	}
	return MethodManual
}

// Credentials are the resolved username and password or token.
// They live for one invocation and are never logged.
type Credentials struct {
	Method   Method
	Username string
	Secret   string
}

// String redacts the secret.
func (c Credentials) String() string {
	return fmt.Sprintf("%s:%s@%s", c.Username, "***", c.Method)
}

// MarshalZerologObject redacts the secret when credentials end up in a log event.
func (c Credentials) MarshalZerologObject(e *zerolog.Event) {
	e.Str("method", c.Method.String()).Str("username", c.Username)
}

// TokenGenerator issues IAM authentication tokens.
type TokenGenerator interface {
	AuthToken(ctx context.Context, host string, port int32, user string) (string, error)
}

// SecretFetcher reads a secret's string value.
type SecretFetcher interface {
	SecretString(ctx context.Context, secretID string) (string, error)
}

// PasswordReader prompts for a password without echoing it.
type PasswordReader func(prompt string) (string, error)

// Resolver turns a target into credentials.
type Resolver struct {
	tokens   TokenGenerator
	secrets  SecretFetcher
	password PasswordReader
}

// NewResolver creates a resolver.
func NewResolver(tokens TokenGenerator, secrets SecretFetcher, password PasswordReader) *Resolver {
	return &Resolver{tokens: tokens, secrets: secrets, password: password}
}

// Request is the input of a resolution.
type Request struct {
	Target   resource.Target
	Method   Method // MethodAuto to detect
	Username string // optional override used by the manual method
}

// Resolve picks exactly one method and resolves it. A failure of the chosen
// method is final; there is no fallback to the next candidate.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Credentials, error) {
	method := req.Method
	if method == MethodAuto {
		method = Detect(req.Target)
		log.Debug().Str("method", method.String()).Msg("auth method detected")
	}

	switch method {
	case MethodIAM:
		return r.resolveIAM(ctx, req.Target)
	case MethodSecret:
		return r.resolveSecret(ctx, req.Target)
	case MethodManual:
		return r.resolveManual(req)
	default:
		return Credentials{}, fmt.Errorf("method %d: %w", method, apperrors.ErrInvalidAuthMethod)
	}
}

func (r *Resolver) resolveIAM(ctx context.Context, target resource.Target) (Credentials, error) {
	token, err := r.tokens.AuthToken(ctx, target.Host, target.Port, target.MasterUsername)
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", apperrors.ErrTokenGenerationFailed, err)
	}
	if token == "" {
		return Credentials{}, apperrors.ErrTokenGenerationFailed
	}

	return Credentials{Method: MethodIAM, Username: target.MasterUsername, Secret: token}, nil
}

// secretValue is the JSON layout of an RDS-managed master user secret.
type secretValue struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r *Resolver) resolveSecret(ctx context.Context, target resource.Target) (Credentials, error) {
	if target.SecretARN == "" {
		return Credentials{}, apperrors.ErrNoSecretConfigured
	}

	raw, err := r.secrets.SecretString(ctx, target.SecretARN)
	if err != nil {
		return Credentials{}, fmt.Errorf("fetch secret: %w", err)
	}

	var v secretValue
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", apperrors.ErrSecretParseFailed, err)
	}
	if v.Username == "" || v.Password == "" {
		return Credentials{}, apperrors.ErrSecretParseFailed
	}

	return Credentials{Method: MethodSecret, Username: v.Username, Secret: v.Password}, nil
}

func (r *Resolver) resolveManual(req Request) (Credentials, error) {
	username := req.Username
	if username == "" {
		username = req.Target.MasterUsername
	}

	password, err := r.password(fmt.Sprintf("Password for %s: ", username))
	if err != nil {
		return Credentials{}, fmt.Errorf("read password: %w", err)
	}
	if password == "" {
		return Credentials{}, apperrors.ErrEmptyPassword
	}

	return Credentials{Method: MethodManual, Username: username, Secret: password}, nil
}
