package session

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("session not found")

// Store maps a session key to the extracted text of its document.
type Store interface {
	Put(ctx context.Context, key, text string) error
	Get(ctx context.Context, key string) (string, error)
}
