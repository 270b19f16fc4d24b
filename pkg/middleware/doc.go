// Package middleware provides HTTP middleware for caller identity,
// account resolution, request ids, and rate limiting.
//
// # Middleware Ordering Requirements
//
// Account-scoped endpoints depend on a strict order. Incorrect order
// causes the account middleware to miss the caller identity and the
// handlers to see a nil account.
//
// REQUIRED ORDERING (outer to inner):
//  1. RequestID - request id + per-request logger in context
//  2. IdentityMiddleware - caller identity from gateway headers
//  3. AccountContextMiddleware - resolves {account} from the path
//  4. Handlers
//
// Example:
//
//	router.Use(middleware.RequestID(logger))
//	router.Use(identityMW.Handler)
//	router.Use(accountMW.Handler)
package middleware
