package serviceerr

import "errors"

var ErrConflict = errors.New("already exists")
var ErrNotFound = errors.New("not found")
var ErrLocked = errors.New("locked by another caller")
var ErrInvalidRequest = errors.New("invalid request")
