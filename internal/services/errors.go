// Package services defines the business logic for extraction, analysis,
// subscriptions, and usage metering. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import "errors"

// Extraction and analysis errors.
var (
	// ErrNotAConversation is returned when the vision model reports that the
	// submitted image does not show a chat conversation.
	ErrNotAConversation = errors.New("image does not show a conversation")

	// ErrEmptyOrInvalid is returned when the vision model produced no usable
	// message text for the submitted image.
	ErrEmptyOrInvalid = errors.New("no usable text extracted from image")

	// ErrInvalidInput is returned when a request carries no analyzable
	// content (empty message list, blank raw text).
	ErrInvalidInput = errors.New("input is empty")

	// ErrEmptyResult is returned when the model answered but the analysis
	// text was empty.
	ErrEmptyResult = errors.New("model returned an empty analysis")

	// ErrUpstreamUnavailable wraps transport or API failures from the AI
	// provider.
	ErrUpstreamUnavailable = errors.New("ai provider unavailable")
)

// Subscription and usage errors.
var (
	// ErrNoSubscription indicates that the user has no active subscription
	// and therefore cannot use metered endpoints.
	ErrNoSubscription = errors.New("no active subscription")

	// ErrSubscriptionNotFound indicates that the requested subscription does
	// not exist, locally or at the billing provider.
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrUnknownPlan is returned when a provider plan id has no configured
	// tier mapping.
	ErrUnknownPlan = errors.New("unknown billing plan")

	// ErrSubscriptionNotActive is returned when the billing provider reports
	// the subscription in a state that cannot be activated locally.
	ErrSubscriptionNotActive = errors.New("subscription is not active at the provider")

	// ErrUsageLimitReached indicates that the user exhausted the monthly
	// quota of their tier.
	ErrUsageLimitReached = errors.New("monthly usage limit reached")
)
