package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/bryanwahyu/modelscan-sec/internal/domain/advisor"
	domain "github.com/bryanwahyu/modelscan-sec/internal/domain/scans"
	"github.com/bryanwahyu/modelscan-sec/internal/infra/ai/prompt"
)

const maxTokens = 2048

type Client struct {
	client *openai.Client
	model  string
}

func NewClient(apiKey, model string) *Client {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &Client{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// Advise meminta remediation advice untuk satu hasil scan.
func (c *Client) Advise(ctx context.Context, rec *domain.ModelScan) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.GetSystemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: prompt.GetUserPrompt(rec)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	// Model reasoning (o-series, gpt-5) menolak MaxTokens klasik.
	if isReasoningModel(c.model) {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == 429 {
			return "", fmt.Errorf("openai advise: %w", advisor.ErrQuotaExceeded)
		}
		return "", fmt.Errorf("openai advise: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai advise: empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func isReasoningModel(model string) bool {
	for _, prefix := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}
