package ai

import "context"

// Provider abstracts an external document-understanding service. It
// receives the raw document plus an instruction prompt and returns the
// service's textual (JSON) response.
type Provider interface {
	ExtractData(ctx context.Context, prompt string, fileData []byte, mimeType string) (string, error)
}
