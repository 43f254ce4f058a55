package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// DefaultKey is the single slot used by the implicit policy.
const DefaultKey = "default"

var ErrKeyRequired = errors.New("session id is required")

// KeyPolicy decides which store key an upload writes to and which key a
// question reads from.
type KeyPolicy interface {
	Name() string
	// UploadKey returns the key for a new upload. requested is the optional
	// caller-supplied id.
	UploadKey(requested string) string
	// AskKey returns the key a question refers to, or ErrKeyRequired.
	AskKey(requested string) (string, error)
	// Exposed reports whether keys are handed back to callers.
	Exposed() bool
}

func NewKeyPolicy(name string) (KeyPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "implicit":
		return ImplicitPolicy{}, nil
	case "generated", "":
		return GeneratedPolicy{}, nil
	case "caller":
		return CallerPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown session key policy %q", name)
	}
}

// ImplicitPolicy stores every upload in one well-known slot.
type ImplicitPolicy struct{}

func (ImplicitPolicy) Name() string { return "implicit" }

func (ImplicitPolicy) UploadKey(string) string { return DefaultKey }

func (ImplicitPolicy) AskKey(string) (string, error) { return DefaultKey, nil }

func (ImplicitPolicy) Exposed() bool { return false }

// GeneratedPolicy issues a random id per upload.
type GeneratedPolicy struct{}

func (GeneratedPolicy) Name() string { return "generated" }

func (GeneratedPolicy) UploadKey(string) string { return uuid.NewString() }

func (GeneratedPolicy) AskKey(requested string) (string, error) {
	return requiredKey(requested)
}

func (GeneratedPolicy) Exposed() bool { return true }

// CallerPolicy lets the uploader name the session, generating an id when
// none is given.
type CallerPolicy struct{}

func (CallerPolicy) Name() string { return "caller" }

func (CallerPolicy) UploadKey(requested string) string {
	if key := strings.TrimSpace(requested); key != "" {
		return key
	}
	return uuid.NewString()
}

func (CallerPolicy) AskKey(requested string) (string, error) {
	return requiredKey(requested)
}

func (CallerPolicy) Exposed() bool { return true }

func requiredKey(requested string) (string, error) {
	key := strings.TrimSpace(requested)
	if key == "" {
		return "", ErrKeyRequired
	}
	return key, nil
}
