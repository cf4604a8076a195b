package model

import "errors"

// ErrForbidden is returned when a non-admin identity attempts an admin
// operation.
var ErrForbidden = errors.New("forbidden")
