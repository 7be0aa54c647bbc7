// Package ctxkey names the gin context keys this gateway's HTTP layer
// sets and reads, trimmed from the teacher's common/ctxkey (which carries
// several dozen keys for channels, users, sessions, and billing state
// this gateway has no equivalent of) down to the handful the request
// pipeline actually threads through gin.Context.
package ctxkey

const (
	// RequestId is both the gin context key and the response header name
	// for the per-request id (SPEC_FULL.md's "Request-id propagation"
	// feature; teacher equivalent: "X-Oneapi-Request-Id"). Set by
	// internal/httpserver's request-id middleware, read by the request
	// logger and the usage entry.
	RequestId = "X-Relaygw-Request-Id"

	// RequestBody caches the raw request body bytes on the context so a
	// handler that needs to peek at the model name before full body
	// binding does not have to read the body twice.
	RequestBody = "request_body"

	// Logger holds the per-request logger (derived from
	// internal/logger.Logger via .With(requestId)) so downstream
	// middleware and handlers share one logger instance per request
	// instead of re-deriving it.
	Logger = "logger"
)
