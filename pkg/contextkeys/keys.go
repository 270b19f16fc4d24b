// Package contextkeys provides centralized context key definitions
//
// All context keys used across the service are defined here. This
// prevents typos, documents who sets each key, and keeps key usage
// discoverable.
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// IdentityKey contains *middleware.Identity
	// Set by: middleware.IdentityMiddleware
	// Required by: account-scoped API endpoints
	IdentityKey Key = "identity"

	// AccountKey contains *accounts.Account
	// Set by: middleware.AccountContextMiddleware
	// Required by: account-scoped API endpoints
	AccountKey Key = "account"

	// RequestIDKey contains the request ID string (UUID)
	// Set by: middleware.RequestID
	// Used by: logger, distributed tracing
	RequestIDKey Key = "request_id"

	// LoggerKey contains *observability.Logger
	// Set by: middleware.RequestID
	// Used by: handlers that log with request context
	LoggerKey Key = "logger"
)

// WithIdentity adds the caller identity to the context
func WithIdentity(ctx context.Context, identity interface{}) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

// WithAccount adds the resolved account to the context
func WithAccount(ctx context.Context, account interface{}) context.Context {
	return context.WithValue(ctx, AccountKey, account)
}

// WithRequestID adds the request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithLogger adds a logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}
