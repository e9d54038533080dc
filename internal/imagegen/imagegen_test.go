// ABOUTME: Tests for the text-to-image client against a stub HTTP server

package imagegen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_TextToImage(t *testing.T) {
	var captured generationRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/generation/stable-diffusion-xl-1024-v1-0/text-to-image", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		json.NewEncoder(w).Encode(generationResponse{
			Artifacts: []Artifact{{Base64: "aW1hZ2U=", Seed: 42, FinishReason: "SUCCESS"}},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key", "")
	artifacts, err := client.TextToImage(context.Background(), Request{
		Text: "a lighthouse at dusk", Width: 1024, Height: 1024,
	})
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
	assert.Equal(t, "aW1hZ2U=", artifacts[0].Base64)

	// Fixed generation parameters always go out as-is
	assert.Equal(t, 7, captured.CfgScale)
	assert.Equal(t, "K_DPM_2_ANCESTRAL", captured.Sampler)
	assert.Equal(t, 1, captured.Samples)
	assert.Equal(t, 30, captured.Steps)
	require.Len(t, captured.TextPrompts, 1)
	assert.Equal(t, "a lighthouse at dusk", captured.TextPrompts[0].Text)
	assert.Equal(t, 1.0, captured.TextPrompts[0].Weight)
}

func TestClient_TextToImage_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid api key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "bad-key", "")
	_, err := client.TextToImage(context.Background(), Request{Text: "x", Width: 512, Height: 512})
	assert.ErrorIs(t, err, ErrGenerationFailed)
}
