// Package embedprovider is an embedindex.EmbeddingProvider implementation
// talking to an OpenAI-compatible /embeddings endpoint, following the same
// apiKey/baseURL/model HTTP-client shape the teacher uses for its chat
// completion client.
package embedprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sourcequal/codequal/pkg/logger"
)

// HTTPProvider calls a remote embedding model over HTTP.
type HTTPProvider struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
	logger  logger.Logger
}

// NewHTTPProvider builds a provider bound to baseURL's "/embeddings" route.
// apiKey, baseURL, and model are all required: an embedding backend that is
// only partially configured is a configuration error, not something to run
// with degraded defaults.
func NewHTTPProvider(apiKey, baseURL, model string, timeout time.Duration, log logger.Logger) (*HTTPProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("embedprovider: api key is empty")
	}
	if baseURL == "" {
		return nil, fmt.Errorf("embedprovider: base url is empty")
	}
	if model == "" {
		return nil, fmt.Errorf("embedprovider: model is empty")
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &HTTPProvider{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: timeout},
		logger:  log,
	}, nil
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed implements embedindex.EmbeddingProvider.
func (p *HTTPProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: p.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("embedprovider: marshal request: %w", err)
	}

	url := p.baseURL + "/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embedprovider: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedprovider: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("embedprovider: status %d: %s", resp.StatusCode, payload)
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("embedprovider: decode response: %w", err)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("embedprovider: empty response")
	}
	p.logger.Debug("embedprovider: embedded %d chars via %s", len(text), p.model)
	return parsed.Data[0].Embedding, nil
}
