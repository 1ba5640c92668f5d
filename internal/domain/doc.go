// Package domain defines the core domain types and interfaces.
//
// This package contains concept-oriented files (errors.go, user.go, job.go, clientstate.go, etc.)
// with shared types and cross-cutting interfaces. No implementation code - just contracts.
// Interfaces live here so adapters and core packages can depend on them without importing each other.
package domain
