// Package clientstate persists the per-browser key/value slot (bearer token and cached
// profile) that lets a session survive workspace eviction and process restarts.
//
// Two backends exist: an in-memory one for development and tests, and Redis with the
// values sealed by platform/crypto.
package clientstate

import "github.com/sarah-ghe/Job-Tracker/internal/domain"

// Provider hands out the store for one workspace. Stores for the same id share state.
type Provider interface {
	For(workspaceID string) domain.ClientStateStore
}
