// ABOUTME: Outbound client for the stability text-to-image API
// ABOUTME: Fixed generation parameters, returns base64 image artifacts

package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ErrGenerationFailed is returned when the upstream API rejects or fails a
// generation request.
var ErrGenerationFailed = errors.New("image generation failed")

const defaultEngine = "stable-diffusion-xl-1024-v1-0"

// Generation parameters are fixed; callers only choose prompt and dimensions.
const (
	cfgScale = 7
	sampler  = "K_DPM_2_ANCESTRAL"
	samples  = 1
	steps    = 30
)

// Request is a text-to-image generation request.
type Request struct {
	Text   string
	Width  int
	Height int
}

// Artifact is one generated image.
type Artifact struct {
	Base64       string `json:"base64"`
	Seed         int64  `json:"seed"`
	FinishReason string `json:"finishReason"`
}

// Generator produces images from text prompts. Satisfied by Client and by
// test stubs.
type Generator interface {
	TextToImage(ctx context.Context, req Request) ([]Artifact, error)
}

// Client calls the stability REST API.
type Client struct {
	baseURL string
	apiKey  string
	engine  string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates an image generation client. engine may be empty to use
// the default.
func NewClient(baseURL, apiKey, engine string) *Client {
	if engine == "" {
		engine = defaultEngine
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		engine:  engine,
		http:    &http.Client{Timeout: 60 * time.Second},
		logger:  slog.Default().With("component", "imagegen"),
	}
}

type textPrompt struct {
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
}

type generationRequest struct {
	CfgScale    int          `json:"cfg_scale"`
	Height      int          `json:"height"`
	Width       int          `json:"width"`
	Sampler     string       `json:"sampler"`
	Samples     int          `json:"samples"`
	Steps       int          `json:"steps"`
	TextPrompts []textPrompt `json:"text_prompts"`
}

type generationResponse struct {
	Artifacts []Artifact `json:"artifacts"`
}

// TextToImage generates images for the prompt.
func (c *Client) TextToImage(ctx context.Context, req Request) ([]Artifact, error) {
	payload := generationRequest{
		CfgScale: cfgScale,
		Height:   req.Height,
		Width:    req.Width,
		Sampler:  sampler,
		Samples:  samples,
		Steps:    steps,
		TextPrompts: []textPrompt{
			{Text: req.Text, Weight: 1},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding generation request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/generation/%s/text-to-image", c.baseURL, c.engine)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building generation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.logger.Error("generation request failed", "status", resp.StatusCode, "body", string(detail))
		return nil, fmt.Errorf("%w: status %d", ErrGenerationFailed, resp.StatusCode)
	}

	var result generationResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding generation response: %w", err)
	}

	c.logger.Debug("generated image", "artifacts", len(result.Artifacts))
	return result.Artifacts, nil
}

// Ensure Client implements Generator
var _ Generator = (*Client)(nil)
