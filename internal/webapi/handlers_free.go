// ABOUTME: Free-tier device HTTP handlers
// ABOUTME: Device-granted image generation and credit balance lookup

package webapi

import (
	"errors"
	"net/http"

	"github.com/persception/gateway/internal/auth"
	"github.com/persception/gateway/internal/devices"
	"github.com/persception/gateway/internal/imagegen"
)

// handleFreeAccess serves anonymous devices: grant a session, generate,
// then spend one device credit.
func (s *Server) handleFreeAccess(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceID string `json:"deviceId"`
		Text     string `json:"text"`
		Width    int    `json:"width"`
		Height   int    `json:"height"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, auth.ValidationError("invalid request body"))
		return
	}
	if req.DeviceID == "" {
		s.writeError(w, r, auth.AuthenticationError("deviceId is required"))
		return
	}
	if req.Text == "" {
		s.writeError(w, r, auth.ValidationError("text is required"))
		return
	}

	_, err := s.devices.Grant(r.Context(), req.DeviceID)
	if errors.Is(err, devices.ErrNoCredits) {
		s.writeError(w, r, auth.AuthenticationError("credits unavailable, please purchase some credits"))
		return
	}
	if err != nil {
		s.writeError(w, r, auth.InternalError(err))
		return
	}

	artifacts, err := s.generator.TextToImage(r.Context(), imagegen.Request{
		Text: req.Text, Width: req.Width, Height: req.Height,
	})
	if err != nil {
		s.writeError(w, r, auth.InternalError(err))
		return
	}

	remaining, err := s.devices.Decrement(r.Context(), req.DeviceID)
	if err != nil {
		s.writeError(w, r, auth.InternalError(err))
		return
	}

	resp := imageResponse{Status: "success", Credits: remaining}
	resp.Data.Data = artifacts
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFreeCredits(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceID string `json:"deviceId"`
	}
	if err := decodeJSON(w, r, &req); err != nil || req.DeviceID == "" {
		s.writeError(w, r, auth.AuthenticationError("deviceId is required"))
		return
	}

	credits, err := s.devices.Credits(r.Context(), req.DeviceID)
	if err != nil {
		s.writeError(w, r, auth.InternalError(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"credits": credits})
}
