package utils

import (
	"context"
	"time"
)

const (
	// DefaultTimeout bounds handler-side database reads and task bookkeeping.
	DefaultTimeout = 10 * time.Second

	// LongTimeout is for operations that touch the object store or build an
	// export on the fly.
	LongTimeout = 30 * time.Second
)

// WithTimeout bounds a quick persistence operation.
func WithTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultTimeout)
}

// WithLongTimeout bounds a slower storage or export operation.
func WithLongTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, LongTimeout)
}
