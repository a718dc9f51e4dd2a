// Package driver holds values shared by the cache drivers.
package driver

import "errors"

// ErrKeyNotFound is returned when a key is missing or expired.
var ErrKeyNotFound = errors.New("key not found")
