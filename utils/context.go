package utils

import (
	"context"
	"time"
)

const (
	// DefaultTimeout bounds admin and cache operations.
	DefaultTimeout = 10 * time.Second

	// LongTimeout is for exports, which page through up to MaxExportRows documents.
	LongTimeout = 60 * time.Second

	// ShortTimeout is for health pings.
	ShortTimeout = 2 * time.Second
)

// WithTimeout creates a context with default timeout
func WithTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultTimeout)
}

// WithLongTimeout creates a context with long timeout for operations that may take longer
func WithLongTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, LongTimeout)
}

// WithShortTimeout creates a context with short timeout for quick operations
func WithShortTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, ShortTimeout)
}

// WithCustomTimeout creates a context with a custom timeout. A non-positive
// duration falls back to DefaultTimeout.
func WithCustomTimeout(parent context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if duration <= 0 {
		duration = DefaultTimeout
	}
	return context.WithTimeout(parent, duration)
}
