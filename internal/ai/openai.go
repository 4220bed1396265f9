package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider calls an OpenAI-compatible chat endpoint with vision
// support for images/PDFs and plain text for textual documents.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider creates a provider. baseURL may point at a
// compatible proxy; empty uses the public API.
func NewOpenAIProvider(apiKey, baseURL, model string) *OpenAIProvider {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4o
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

// ExtractData sends the document to the chat endpoint. Image mime types
// go through the vision content part; everything else is inlined as text.
func (p *OpenAIProvider) ExtractData(ctx context.Context, prompt string, fileData []byte, mimeType string) (string, error) {
	var message openai.ChatCompletionMessage

	if strings.HasPrefix(mimeType, "image/") {
		imageURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(fileData))
		message = openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: prompt},
				{
					Type:     openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{URL: imageURL},
				},
			},
		}
	} else {
		message = openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: prompt + "\n\nDocument content:\n" + string(fileData),
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: []openai.ChatCompletionMessage{message},
	})
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
