package user

import "errors"

// ErrAccountNotFound signals that no account row exists for the user.
var ErrAccountNotFound = errors.New("user account not found")
