// internal/detector/openai.go
package detector

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// ReasonML labels verdicts produced by the model-backed detector.
const ReasonML = "ML Detection"

const classifyPrompt = `You are a scam classifier for a Discord server.
Given a chat message, decide whether it is a scam or spam attempt
(fake giveaways, phishing links, credential theft, crypto bait).
Respond with a JSON object only: {"is_scam": bool, "confidence": number between 0 and 1}.`

// OpenAIDetector asks a chat-completion model for a verdict. It flags a
// message when the model both says scam and reports confidence at or above
// the configured threshold.
type OpenAIDetector struct {
	client    *openai.Client
	model     string
	threshold float64
}

// NewOpenAIDetector builds a model-backed detector.
func NewOpenAIDetector(apiKey, model string, threshold float64) *OpenAIDetector {
	return &OpenAIDetector{
		client:    openai.NewClient(apiKey),
		model:     model,
		threshold: threshold,
	}
}

func (d *OpenAIDetector) Detect(ctx context.Context, text string) (Result, error) {
	resp, err := d.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: d.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: classifyPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		MaxTokens:   64,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("classification request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, fmt.Errorf("classification returned no choices")
	}

	var verdict struct {
		IsScam     bool    `json:"is_scam"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &verdict); err != nil {
		return Result{}, fmt.Errorf("failed to parse classification %q: %w", resp.Choices[0].Message.Content, err)
	}

	return Result{
		IsScam:     verdict.IsScam && verdict.Confidence >= d.threshold,
		Confidence: verdict.Confidence,
		Reason:     ReasonML,
	}, nil
}
