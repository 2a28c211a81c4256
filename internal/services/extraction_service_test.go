package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/subtextlabs/go-subtext-backend/internal/cache"
	"github.com/subtextlabs/go-subtext-backend/internal/llm"
)

// ---------- test helpers ----------

// fakeLLM serves canned replies and records what it was asked.
type fakeLLM struct {
	visionOut string
	visionErr error
	textOut   string
	textErr   error

	visionCalls     int
	textCalls       int
	lastInstruction string
	lastMime        string
	lastSystem      string
	lastPrompt      string
}

func (f *fakeLLM) GenerateVision(_ context.Context, instruction string, _ []byte, mimeType string) (string, error) {
	f.visionCalls++
	f.lastInstruction = instruction
	f.lastMime = mimeType
	return f.visionOut, f.visionErr
}

func (f *fakeLLM) GenerateText(_ context.Context, system, prompt string) (string, error) {
	f.textCalls++
	f.lastSystem = system
	f.lastPrompt = prompt
	return f.textOut, f.textErr
}

var _ llm.Client = (*fakeLLM)(nil)

// fakeUsage records async increments.
type fakeUsage struct {
	users []string
}

func (f *fakeUsage) IncrementAsync(userID string) { f.users = append(f.users, userID) }

func newExtractionService(l llm.Client, u UsageRecorder) *ExtractionService {
	return &ExtractionService{
		LLM:     l,
		Cache:   cache.New(10, time.Hour),
		Usage:   u,
		Timeout: time.Second,
	}
}

// ---------- parseExtraction ----------

func TestParseExtraction_Table(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		want    string
		wantErr error
	}{
		{
			name: "markers in order",
			raw:  "noise before\nRECEIVED_MESSAGES_START\nhey\nare you free?\nRECEIVED_MESSAGES_END\nnoise after",
			want: "hey\nare you free?",
		},
		{
			name: "markers absent falls back to whole text",
			raw:  "  hey\nare you free?  ",
			want: "hey\nare you free?",
		},
		{
			name: "start marker only falls back",
			raw:  "RECEIVED_MESSAGES_START\nhey there",
			want: "RECEIVED_MESSAGES_START\nhey there",
		},
		{
			name: "end before start falls back",
			raw:  "RECEIVED_MESSAGES_END mid RECEIVED_MESSAGES_START tail",
			want: "RECEIVED_MESSAGES_END mid RECEIVED_MESSAGES_START tail",
		},
		{
			name:    "explicit error reply",
			raw:     "ERROR: not a conversation",
			wantErr: ErrNotAConversation,
		},
		{
			name:    "not a conversation phrase any case",
			raw:     "This image is Not A Conversation, it is a landscape.",
			wantErr: ErrNotAConversation,
		},
		{
			name:    "empty reply",
			raw:     "   ",
			wantErr: ErrEmptyOrInvalid,
		},
		{
			name:    "blank marker payload",
			raw:     "RECEIVED_MESSAGES_START\n   \nRECEIVED_MESSAGES_END",
			wantErr: ErrEmptyOrInvalid,
		},
		{
			name:    "cannot identify",
			raw:     "I cannot identify any messages in this image.",
			wantErr: ErrEmptyOrInvalid,
		},
		{
			name:    "unable to",
			raw:     "Unable to read the text in this screenshot.",
			wantErr: ErrEmptyOrInvalid,
		},
		{
			name:    "leading error any case",
			raw:     "Error while processing the image",
			wantErr: ErrEmptyOrInvalid,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseExtraction(tc.raw)
			if tc.wantErr != nil {
				if err != tc.wantErr {
					t.Fatalf("expected %v, got %v (out %q)", tc.wantErr, err, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

// ---------- ExtractFromImage ----------

func TestExtractionService_ExtractFromImage_Success_CachesAndMeters(t *testing.T) {
	fl := &fakeLLM{visionOut: "RECEIVED_MESSAGES_START\nhey\nmiss you\nRECEIVED_MESSAGES_END"}
	fu := &fakeUsage{}
	s := newExtractionService(fl, fu)
	img := []byte("png-bytes")

	got, err := s.ExtractFromImage(context.Background(), "u1", img, "image/png")
	if err != nil {
		t.Fatalf("ExtractFromImage: %v", err)
	}
	if got != "hey\nmiss you" {
		t.Fatalf("unexpected text: %q", got)
	}
	if fl.visionCalls != 1 || fl.lastMime != "image/png" {
		t.Fatalf("vision call not made as expected: %+v", fl)
	}
	if len(fu.users) != 1 || fu.users[0] != "u1" {
		t.Fatalf("usage not metered: %+v", fu.users)
	}

	// Second submission of the same image by the same user: cache hit, no
	// provider call, no extra metering.
	got2, err := s.ExtractFromImage(context.Background(), "u1", img, "image/png")
	if err != nil || got2 != got {
		t.Fatalf("cached result mismatch: %q err=%v", got2, err)
	}
	if fl.visionCalls != 1 {
		t.Fatalf("cache hit must not call the provider, calls=%d", fl.visionCalls)
	}
	if len(fu.users) != 1 {
		t.Fatalf("cache hit must not meter usage: %+v", fu.users)
	}
}

func TestExtractionService_ExtractFromImage_CacheScopedByUser(t *testing.T) {
	fl := &fakeLLM{visionOut: "RECEIVED_MESSAGES_START\nhey\nRECEIVED_MESSAGES_END"}
	s := newExtractionService(fl, &fakeUsage{})
	img := []byte("same-bytes")

	if _, err := s.ExtractFromImage(context.Background(), "u1", img, "image/png"); err != nil {
		t.Fatalf("u1: %v", err)
	}
	if _, err := s.ExtractFromImage(context.Background(), "u2", img, "image/png"); err != nil {
		t.Fatalf("u2: %v", err)
	}
	if fl.visionCalls != 2 {
		t.Fatalf("different users must not share cache entries, calls=%d", fl.visionCalls)
	}
}

func TestExtractionService_ExtractFromImage_UpstreamError(t *testing.T) {
	fl := &fakeLLM{visionErr: errors.New("connection refused")}
	fu := &fakeUsage{}
	s := newExtractionService(fl, fu)

	_, err := s.ExtractFromImage(context.Background(), "u1", []byte("img"), "image/jpeg")
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
	if s.Cache.Len() != 0 {
		t.Fatalf("failed extraction must not be cached")
	}
	if len(fu.users) != 0 {
		t.Fatalf("failed extraction must not meter usage")
	}
}

func TestExtractionService_ExtractFromImage_EmptyProviderResponse(t *testing.T) {
	fl := &fakeLLM{visionErr: llm.ErrEmptyResponse}
	s := newExtractionService(fl, &fakeUsage{})

	_, err := s.ExtractFromImage(context.Background(), "u1", []byte("img"), "image/jpeg")
	if err != ErrEmptyOrInvalid {
		t.Fatalf("expected ErrEmptyOrInvalid, got %v", err)
	}
}

func TestExtractionService_ExtractFromImage_NotAConversation_NotCached(t *testing.T) {
	fl := &fakeLLM{visionOut: "ERROR: not a conversation"}
	fu := &fakeUsage{}
	s := newExtractionService(fl, fu)

	_, err := s.ExtractFromImage(context.Background(), "u1", []byte("img"), "image/png")
	if err != ErrNotAConversation {
		t.Fatalf("expected ErrNotAConversation, got %v", err)
	}
	if s.Cache.Len() != 0 || len(fu.users) != 0 {
		t.Fatalf("rejected image must not cache or meter")
	}
}

// ---------- ExtractFromText ----------

func TestExtractionService_ExtractFromText(t *testing.T) {
	s := newExtractionService(&fakeLLM{}, nil)

	got, err := s.ExtractFromText("RECEIVED_MESSAGES_START\nhello\nRECEIVED_MESSAGES_END")
	if err != nil || got != "hello" {
		t.Fatalf("unexpected: %q err=%v", got, err)
	}

	if _, err := s.ExtractFromText("   "); err != ErrEmptyOrInvalid {
		t.Fatalf("expected ErrEmptyOrInvalid, got %v", err)
	}
}
