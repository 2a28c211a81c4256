// Package gemini implements llm.Client on top of the Google Gemini API.
package gemini

import (
	"context"

	"google.golang.org/genai"

	"github.com/subtextlabs/go-subtext-backend/internal/llm"
)

// Client talks to the Gemini API. It satisfies llm.Client.
type Client struct {
	client      *genai.Client
	visionModel string
	textModel   string
}

// New dials the Gemini API with the given key. visionModel handles image
// requests, textModel handles pure text requests; both may name the same
// model.
func New(ctx context.Context, apiKey, visionModel, textModel string) (*Client, error) {
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &Client{client: gc, visionModel: visionModel, textModel: textModel}, nil
}

// GenerateVision sends the instruction and one inline image to the vision
// model and returns the reply text.
func (c *Client) GenerateVision(ctx context.Context, instruction string, image []byte, mimeType string) (string, error) {
	parts := []*genai.Part{
		genai.NewPartFromText(instruction),
		genai.NewPartFromBytes(image, mimeType),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	res, err := c.client.Models.GenerateContent(ctx, c.visionModel, contents, nil)
	if err != nil {
		return "", err
	}
	return firstText(res)
}

// GenerateText sends a system instruction and prompt to the text model and
// returns the reply text. An empty system instruction is omitted.
func (c *Client) GenerateText(ctx context.Context, system, prompt string) (string, error) {
	var config *genai.GenerateContentConfig
	if system != "" {
		config = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		}
	}

	res, err := c.client.Models.GenerateContent(ctx, c.textModel, genai.Text(prompt), config)
	if err != nil {
		return "", err
	}
	return firstText(res)
}

// firstText pulls the first candidate's first text part. Responses stripped
// by safety filtering arrive with no candidates or no parts.
func firstText(res *genai.GenerateContentResponse) (string, error) {
	if res == nil || len(res.Candidates) == 0 || res.Candidates[0].Content == nil || len(res.Candidates[0].Content.Parts) == 0 {
		return "", llm.ErrEmptyResponse
	}
	return res.Candidates[0].Content.Parts[0].Text, nil
}
