package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")
	ErrNoJob          = errors.New("no job available")
	ErrTerminalJob    = errors.New("job already terminal")
)
