// Package services – AnalysisService
//
// This file implements the AnalysisService, which sends a list of received
// messages to the text model and returns a psychological read of the sender
// together with a suggested reply. The model's answer is passed through
// verbatim; the service only validates input and classifies failures.
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

	"github.com/subtextlabs/go-subtext-backend/internal/llm"
	"github.com/subtextlabs/go-subtext-backend/internal/observability"
)

// analysisInstruction frames the model as a communication psychologist.
const analysisInstruction = `You are an expert in communication psychology.
You are given, in order, the text messages one person received from someone they are talking to.
Analyze the sender behind these messages: their tone, emotional state, apparent intentions, and what they likely want from the recipient.
Then suggest one concrete reply the recipient could send.
Be specific and grounded in the messages; do not invent context.`

// AnalysisService produces sender analyses from received messages.
type AnalysisService struct {
	// LLM is the AI provider used for text calls.
	LLM llm.Client
	// Timeout bounds each provider call. Zero means no bound.
	Timeout time.Duration
}

// Analyze joins the messages in their given order and asks the model for a
// psychological profile plus a suggested reply. Blank entries are dropped;
// an input with nothing left is rejected with ErrInvalidInput.
func (s *AnalysisService) Analyze(ctx context.Context, messages []string) (string, error) {
	tr := otel.Tracer("services/AnalysisService")
	ctx, span := tr.Start(ctx, "Analyze",
		trace.WithAttributes(attribute.Int("messages.count", len(messages))),
	)
	defer span.End()

	cleaned := make([]string, 0, len(messages))
	for _, m := range messages {
		if t := strings.TrimSpace(m); t != "" {
			cleaned = append(cleaned, t)
		}
	}
	if len(cleaned) == 0 {
		return "", ErrInvalidInput
	}
	prompt := strings.Join(cleaned, "\n")

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	out, err := s.LLM.GenerateText(ctx, analysisInstruction, prompt)
	if err != nil {
		if errors.Is(err, llm.ErrEmptyResponse) {
			observability.AIRequests.WithLabelValues("text", "empty").Inc()
			return "", ErrEmptyResult
		}
		observability.AIRequests.WithLabelValues("text", "error").Inc()
		return "", fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	observability.AIRequests.WithLabelValues("text", "ok").Inc()

	if strings.TrimSpace(out) == "" {
		return "", ErrEmptyResult
	}
	return out, nil
}
