// Package services – ExtractionService
//
// This file implements the ExtractionService, which turns chat screenshots
// into the plain text of the messages the user received. It prompts the
// vision model to wrap its output in sentinel markers, parses and validates
// the reply, caches successful extractions per user and image, and meters
// usage asynchronously after each fresh extraction.
//
// Service-level errors (ErrNotAConversation, ErrEmptyOrInvalid,
// ErrUpstreamUnavailable) are returned for predictable cases so handlers can
// map them to HTTP results consistently.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/subtextlabs/go-subtext-backend/internal/cache"
	"github.com/subtextlabs/go-subtext-backend/internal/llm"
	"github.com/subtextlabs/go-subtext-backend/internal/observability"
)

// Sentinel markers the vision model is instructed to wrap its output in.
const (
	markerStart = "RECEIVED_MESSAGES_START"
	markerEnd   = "RECEIVED_MESSAGES_END"
)

// visionInstruction tells the model to transcribe only the messages the
// phone's owner received and to delimit them with the sentinel markers.
const visionInstruction = `You are looking at a screenshot of a chat conversation.
Transcribe ONLY the messages RECEIVED by the phone's owner (the messages aligned on the left side of the screen).
Skip the owner's own sent messages, timestamps, contact names, and interface elements.
Output the received messages in order, one per line, wrapped exactly like this:
` + markerStart + `
<messages>
` + markerEnd + `
If the image does not show a chat conversation, reply with exactly: ERROR: not a conversation`

// UsageRecorder is the metering hook invoked after each fresh (non-cached)
// extraction. It must not block the caller.
type UsageRecorder interface {
	IncrementAsync(userID string)
}

// ExtractionService extracts received-message text from screenshots via the
// vision model.
type ExtractionService struct {
	// LLM is the AI provider used for vision calls.
	LLM llm.Client
	// Cache short-circuits repeat submissions of the same image by the same
	// user. Cache hits do not count against usage.
	Cache *cache.ContentCache
	// Usage is notified after each successful fresh extraction. Optional.
	Usage UsageRecorder
	// Timeout bounds each provider call. Zero means no bound.
	Timeout time.Duration
}

// ExtractFromImage runs the full extraction flow for one screenshot: cache
// lookup, vision call, marker parsing, validation, cache store, async usage
// increment.
func (s *ExtractionService) ExtractFromImage(ctx context.Context, userID string, image []byte, mimeType string) (string, error) {
	tr := otel.Tracer("services/ExtractionService")
	ctx, span := tr.Start(ctx, "ExtractFromImage",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("image.bytes", len(image)),
			attribute.String("image.mime", mimeType),
		),
	)
	defer span.End()

	key := cache.Key(userID, image)
	if text, ok := s.Cache.Get(key); ok {
		observability.CacheRequests.WithLabelValues("hit").Inc()
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return text, nil
	}
	observability.CacheRequests.WithLabelValues("miss").Inc()

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	raw, err := s.LLM.GenerateVision(ctx, visionInstruction, image, mimeType)
	if err != nil {
		if errors.Is(err, llm.ErrEmptyResponse) {
			observability.AIRequests.WithLabelValues("vision", "empty").Inc()
			return "", ErrEmptyOrInvalid
		}
		observability.AIRequests.WithLabelValues("vision", "error").Inc()
		return "", fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	observability.AIRequests.WithLabelValues("vision", "ok").Inc()

	text, err := parseExtraction(raw)
	if err != nil {
		return "", err
	}

	s.Cache.Put(key, text)
	if s.Usage != nil {
		s.Usage.IncrementAsync(userID)
	}
	return text, nil
}

// ExtractFromText applies the marker parsing and validation that normally
// follows a vision call to caller-provided raw text. No provider call, no
// caching, no metering.
func (s *ExtractionService) ExtractFromText(raw string) (string, error) {
	return parseExtraction(raw)
}

// parseExtraction turns a raw model reply into the extracted message text.
//
// A reply containing "ERROR:" or the phrase "not a conversation" rejects the
// image outright. When both markers are present in order, the payload
// between them is the candidate; otherwise the whole reply is. A blank
// candidate, one admitting failure ("cannot identify", "unable to"), or one
// starting with "error" yields ErrEmptyOrInvalid.
func parseExtraction(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if strings.Contains(text, "ERROR:") || strings.Contains(strings.ToLower(text), "not a conversation") {
		return "", ErrNotAConversation
	}

	candidate := text
	if i := strings.Index(text, markerStart); i >= 0 {
		if j := strings.Index(text, markerEnd); j > i {
			candidate = text[i+len(markerStart) : j]
		}
	}
	candidate = strings.TrimSpace(candidate)

	lower := strings.ToLower(candidate)
	if candidate == "" ||
		strings.Contains(lower, "cannot identify") ||
		strings.Contains(lower, "unable to") ||
		strings.HasPrefix(lower, "error") {
		return "", ErrEmptyOrInvalid
	}
	return candidate, nil
}
