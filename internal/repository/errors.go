// Package repository holds the SQL access layer. Error values defined here
// are reused across repositories so higher layers can tell failure
// scenarios apart without inspecting driver errors.
package repository

import "errors"

var (
	ErrBookingNotFound = errors.New("booking not found")
	ErrProductNotFound = errors.New("product not found")
	ErrProfileNotFound = errors.New("profile not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrHistoryNotFound = errors.New("history entry not found")
)

// ErrEmailExists is returned when registering or renaming to an email that
// another account already uses.
var ErrEmailExists = errors.New("email already exists")

// ErrProfileExists is returned when a user already has a profile row.
var ErrProfileExists = errors.New("profile already exists")

// ErrConflict is returned when a delete cannot be performed because other
// rows still reference the target, such as a product used by bookings.
var ErrConflict = errors.New("conflict")

// ErrRefreshInvalid is returned for refresh tokens that are unknown,
// revoked or expired.
var ErrRefreshInvalid = errors.New("refresh token invalid")
