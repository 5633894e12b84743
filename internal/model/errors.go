package model

import "errors"

var (
	// ErrNotFound is returned by stores when no record matches the lookup.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateKey is returned by stores when a write would break a unique constraint.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrPasswordMismatch is returned by a PasswordHasher when the password does not match the hash.
	ErrPasswordMismatch = errors.New("password mismatch")
	// ErrInvalidImage is returned by an ImageHost for sources that are not acceptable images.
	ErrInvalidImage = errors.New("invalid image")
	// ErrImageUnreachable is returned by an ImageHost when a remote source cannot be downloaded.
	ErrImageUnreachable = errors.New("image unreachable")
)
