package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiProvider calls Google Gemini with inline document data.
type GeminiProvider struct {
	apiKey string
	model  string
}

// NewGeminiProvider creates a provider for the given model name.
func NewGeminiProvider(apiKey, model string) *GeminiProvider {
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &GeminiProvider{apiKey: apiKey, model: model}
}

// ExtractData sends the prompt plus document blob to Gemini. The client
// is created per call; its lifetime matches the request context.
func (p *GeminiProvider) ExtractData(ctx context.Context, prompt string, fileData []byte, mimeType string) (string, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(p.apiKey))
	if err != nil {
		return "", fmt.Errorf("failed to create gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(p.model)

	parts := []genai.Part{genai.Text(prompt)}
	if strings.HasPrefix(mimeType, "image/") || mimeType == "application/pdf" {
		parts = append(parts, genai.Blob{MIMEType: mimeType, Data: fileData})
	} else {
		parts = append(parts, genai.Text("Document content:\n"+string(fileData)))
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini returned no candidates")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String(), nil
}
