// ABOUTME: Metered AI HTTP handlers: text-to-image and chat organizing
// ABOUTME: Credits are checked before the upstream call and spent after it succeeds

package webapi

import (
	"net/http"

	"github.com/persception/gateway/internal/auth"
	"github.com/persception/gateway/internal/imagegen"
)

type imageRequest struct {
	Text   string `json:"text"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type imageResponse struct {
	Status  string `json:"status"`
	Credits int64  `json:"credits"`
	Data    struct {
		Data []imagegen.Artifact `json:"data"`
	} `json:"data"`
}

// handleTextToImage serves signed-in principals. The guard and role
// restriction have already run.
func (s *Server) handleTextToImage(w http.ResponseWriter, r *http.Request) {
	ac := auth.MustFromContext(r.Context())

	var req imageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, auth.ValidationError("invalid request body"))
		return
	}
	if req.Text == "" {
		s.writeError(w, r, auth.ValidationError("text is required"))
		return
	}

	if ac.Principal.Credits <= 0 {
		s.writeError(w, r, auth.AuthenticationError("credits unavailable, please purchase some credits"))
		return
	}

	artifacts, err := s.generator.TextToImage(r.Context(), imagegen.Request{
		Text: req.Text, Width: req.Width, Height: req.Height,
	})
	if err != nil {
		s.writeError(w, r, auth.InternalError(err))
		return
	}

	remaining, err := s.store.DecrementCredits(r.Context(), ac.Principal.ID)
	if err != nil {
		s.writeError(w, r, auth.InternalError(err))
		return
	}

	resp := imageResponse{Status: "success", Credits: remaining}
	resp.Data.Data = artifacts
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleOrganize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Data string `json:"data"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, auth.ValidationError("invalid request body"))
		return
	}
	if req.Data == "" {
		s.writeError(w, r, auth.ValidationError("data is required"))
		return
	}

	result, err := s.organizer.Organize(r.Context(), req.Data)
	if err != nil {
		s.writeError(w, r, auth.InternalError(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"data":   result,
	})
}
