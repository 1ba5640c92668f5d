package domain

import "context"

// Keys of the persisted client state. The user entry is a cache of the serialized profile and is
// always cleared together with the token.
const (
	StateKeyToken = "token"
	StateKeyUser  = "user"
)

// ClientStateStore is the per-client key/value slot the session survives reloads in.
// Get returns ErrStateNotFound for a missing key.
type ClientStateStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}
