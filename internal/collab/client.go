// Package collab talks to the external content services: the region
// classifier and the illustrative image synthesizer.
package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/ivlev/pdf2lecture/internal/analyzer"
	"github.com/ivlev/pdf2lecture/internal/apperr"
)

// Synthesizer turns a text prompt into a reference to a generated image.
type Synthesizer interface {
	Synthesize(ctx context.Context, prompt string) (string, error)
}

// SynthesizerFunc adapts a plain function to Synthesizer.
type SynthesizerFunc func(ctx context.Context, prompt string) (string, error)

func (f SynthesizerFunc) Synthesize(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// HTTPClient calls the content service. One client serves both
// classification and synthesis; requests share a rate limit.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPClient creates a client for the content service. ratePerSecond <= 0
// disables rate limiting.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration, ratePerSecond float64) *HTTPClient {
	limit := rate.Inf
	burst := 1
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
		burst = max(1, int(ratePerSecond))
	}
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, burst),
	}
}

type classifyRequest struct {
	Image string `json:"image"`
}

type classifyResponse struct {
	Category string `json:"category"`
}

type synthesizeRequest struct {
	Prompt string `json:"prompt"`
}

type synthesizeResponse struct {
	Image string `json:"image"`
}

// Classify posts the crop reference to /classify.
func (c *HTTPClient) Classify(ctx context.Context, imageRef string) (analyzer.Category, error) {
	var resp classifyResponse
	if err := c.post(ctx, "/classify", classifyRequest{Image: imageRef}, &resp); err != nil {
		return "", apperr.External("classifier", imageRef, err)
	}
	cat, err := analyzer.ParseCategory(resp.Category)
	if err != nil {
		return "", apperr.External("classifier", imageRef, err)
	}
	return cat, nil
}

// Synthesize posts the prompt to /synthesize and returns the image reference.
func (c *HTTPClient) Synthesize(ctx context.Context, prompt string) (string, error) {
	var resp synthesizeResponse
	if err := c.post(ctx, "/synthesize", synthesizeRequest{Prompt: prompt}, &resp); err != nil {
		return "", apperr.External("synthesizer", "", err)
	}
	if resp.Image == "" {
		return "", apperr.External("synthesizer", "", fmt.Errorf("empty image reference"))
	}
	return resp.Image, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, in, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, bytes.TrimSpace(msg))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
