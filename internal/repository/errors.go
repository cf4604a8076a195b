// Package repository holds the MySQL access code for accounts: the users
// table and the refresh tokens issued to them. The sentinel errors below
// let the auth layer tell failure cases apart without inspecting driver
// errors.
package repository

import "errors"

// ErrEmailExists is returned by Create when the email is already
// registered (MySQL error 1062).
var ErrEmailExists = errors.New("email already exists")

// ErrNotFound is returned when no active user matches.
var ErrNotFound = errors.New("user not found")

// ErrInvalidToken is returned for unknown, expired or revoked refresh
// tokens.
var ErrInvalidToken = errors.New("invalid refresh token")
