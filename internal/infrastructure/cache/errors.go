package cache

import "errors"

// ErrRedisRequired is returned when a component needs Redis but none is configured
var ErrRedisRequired = errors.New("redis required but not configured")
