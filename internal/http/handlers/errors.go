// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP
// responses (via the `fail()` helper in this package). These codes provide
// clients with a stable, machine-readable error taxonomy that supplements
// human-readable messages.
//
// Conventions:
//   - Codes are lowercase, snake_case, and domain-agnostic unless explicitly noted.
//   - Generic codes (e.g., bad_request, unauthorized, conflict) mirror common HTTP
//     status semantics to aid interoperability.
//   - Domain-specific codes (e.g., no_subscription, not_a_conversation) are
//     reserved for business outcomes that cannot be conveyed by status alone;
//     the mobile client branches on them to pick the right screen.
//   - All error responses must include both an HTTP status and one of these codes.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "error":      "limit_reached",
//	  "message":    "monthly usage limit reached"
//	}
package handlers

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeNoSubscription   = "no_subscription"
	ErrCodeLimitReached     = "limit_reached"
	ErrCodeNotAConversation = "not_a_conversation"
	ErrCodeEmptyOrInvalid   = "empty_or_invalid"
	ErrCodeEmptyResult      = "empty_result"
	ErrCodeUpstream         = "upstream_failed"
	ErrCodeInvalidImage     = "invalid_image"
	ErrCodeInvalidSignature = "invalid_signature"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)
