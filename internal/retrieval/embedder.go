package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	apperrors "github.com/reelquery/reelquery/internal/pkg/errors"
)

// Embedder turns texts into dense vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedderConfig configures an HTTP embedding service.
type EmbedderConfig struct {
	// URL is the full embeddings endpoint, e.g. http://host/v1/embeddings.
	URL     string
	Model   string
	APIKey  string
	Dim     int
	Timeout time.Duration
}

// HTTPEmbedder calls an OpenAI-compatible embeddings endpoint.
type HTTPEmbedder struct {
	cfg    EmbedderConfig
	client *http.Client
}

// NewHTTPEmbedder creates an embedder.
func NewHTTPEmbedder(cfg EmbedderConfig) *HTTPEmbedder {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &HTTPEmbedder{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

type embeddingRequest struct {
	Model string   `json:"model,omitempty"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed returns one L2-normalized vector per text, in input order.
func (e *HTTPEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(embeddingRequest{Model: e.cfg.Model, Input: texts})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperrors.Wrap(apperrors.CodeUnavailable, "embedding service unreachable", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.ExternalAPIError("reading embedding response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.ExternalAPIError(fmt.Sprintf("embedding service returned HTTP %d", resp.StatusCode),
			fmt.Errorf("%s", truncate(string(data), 200)))
	}

	var decoded embeddingResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, apperrors.ExternalAPIError("decoding embedding response", err)
	}

	out := make([][]float32, len(texts))
	for _, d := range decoded.Data {
		if d.Index >= 0 && d.Index < len(out) {
			out[d.Index] = l2Normalize(d.Embedding)
		}
	}
	for i, v := range out {
		if len(v) == 0 {
			return nil, apperrors.ExternalAPIError(fmt.Sprintf("no embedding for input %d", i), nil)
		}
		if e.cfg.Dim > 0 && len(v) != e.cfg.Dim {
			return nil, apperrors.ExternalAPIError(fmt.Sprintf("embedding dimension %d, want %d", len(v), e.cfg.Dim), nil)
		}
	}
	return out, nil
}

// l2Normalize normalizes a vector to unit length.
func l2Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}

	norm := float32(math.Sqrt(sum))
	if norm == 0 {
		return v
	}

	result := make([]float32, len(v))
	for i, x := range v {
		result[i] = x / norm
	}
	return result
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
