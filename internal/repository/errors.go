package repository

import "errors"

// ErrNotFound indicates a key was not located.
var ErrNotFound = errors.New("repository: not found")
