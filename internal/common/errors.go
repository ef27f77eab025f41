// Package common defines shared sentinel errors used across the kaltrack
// client layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// ErrUnauthenticated means there are no usable credentials: either none
	// are stored, or a token refresh failed and the pair was purged. The UI
	// layer reacts by routing to the login prompt.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrConflict marks a remote rejection (validation or state conflict)
	// that will not succeed on automatic retry.
	ErrConflict = errors.New("conflict")
)
