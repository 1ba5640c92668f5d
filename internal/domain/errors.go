package domain

import "errors"

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrStateNotFound    = errors.New("client state not found")
	ErrInvalidStatus    = errors.New("invalid job status")
)
