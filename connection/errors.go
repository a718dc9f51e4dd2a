package connection

import "errors"

var (
	ErrNotFound        = errors.New("connection not found")
	ErrDuplicate       = errors.New("connection already exists")
	ErrAlreadyBound    = errors.New("identity is bound to another user")
	ErrProviderBound   = errors.New("user already has a connection for this provider")
	ErrInvalidIdentity = errors.New("third-party identity is missing provider or id")
	ErrAsyncRefresh    = errors.New("connection refresh failed")
)
