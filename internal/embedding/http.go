package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxInputChars bounds request size below typical provider input limits.
const maxInputChars = 8000

// HTTPProvider calls an OpenAI-compatible embeddings endpoint.
type HTTPProvider struct {
	url    string
	apiKey string
	model  string
	dim    int
	client *http.Client
}

func NewHTTPProvider(url, apiKey, model string, dim int) *HTTPProvider {
	return &HTTPProvider{
		url:    strings.TrimSpace(url),
		apiKey: apiKey,
		model:  model,
		dim:    dim,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (p *HTTPProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if len(text) > maxInputChars {
		text = text[:maxInputChars]
	}

	payload, err := json.Marshal(embedRequest{Model: p.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	res, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send embed request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return nil, fmt.Errorf("embedding http status %d: %s", res.StatusCode, string(body))
	}

	var out embedResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(out.Data) == 0 {
		return nil, fmt.Errorf("embedding response contained no vectors")
	}
	vec := out.Data[0].Embedding
	if len(vec) != p.dim {
		return nil, fmt.Errorf("embedding has %d dims, expected %d", len(vec), p.dim)
	}
	return vec, nil
}

func (p *HTTPProvider) Model() string { return p.model }

func (p *HTTPProvider) Dimensions() int { return p.dim }
