package handlers

import (
	"fmt"
	"net/http"

	"erochat/services"
)

// chargedUserID authenticates the request for a charged endpoint.
func chargedUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := services.SessionUserID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Authentication required.")
		return 0, false
	}
	return userID, true
}

// ChatHandler proxies a chat-completion request, charging the chat cost.
// The upstream destination and credential come from server configuration;
// only the payload passes through.
func ChatHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := chargedUserID(w, r)
	if !ok {
		return
	}

	var payload map[string]any
	if err := decodeJSONBody(r, &payload); err != nil {
		respondServiceError(w, err)
		return
	}

	messages, ok := payload["messages"].([]any)
	if !ok || len(messages) == 0 {
		respondError(w, http.StatusBadRequest, "messages is required.")
		return
	}

	body, err := grok.ChargedChat(r.Context(), userID, payload)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, body)
}

// ImageHandler proxies an image-generation request, charging the image cost.
func ImageHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := chargedUserID(w, r)
	if !ok {
		return
	}

	var payload map[string]any
	if err := decodeJSONBody(r, &payload); err != nil {
		respondServiceError(w, err)
		return
	}

	prompt, _ := payload["prompt"].(string)
	if prompt == "" {
		respondError(w, http.StatusBadRequest, "prompt is required.")
		return
	}

	body, err := grok.ChargedImage(r.Context(), userID, payload)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, body)
}

// VideoStartHandler proxies a video-generation start request, charging the
// video cost. The response may carry a request id for polling; the polling
// itself is never re-charged.
func VideoStartHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := chargedUserID(w, r)
	if !ok {
		return
	}

	var payload map[string]any
	if err := decodeJSONBody(r, &payload); err != nil {
		respondServiceError(w, err)
		return
	}

	image, _ := payload["image"].(map[string]any)
	if imageURL, _ := image["url"].(string); imageURL == "" {
		respondError(w, http.StatusBadRequest, "image.url is required.")
		return
	}

	body, err := grok.ChargedVideoStart(r.Context(), userID, payload)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, body)
}

// VideoStatusHandler relays the upstream job status untouched. No credit
// interaction.
func VideoStatusHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := chargedUserID(w, r); !ok {
		return
	}

	requestID := r.PathValue("id")
	if requestID == "" {
		respondError(w, http.StatusBadRequest, "request id is required.")
		return
	}

	status, body, err := grok.VideoStatus(r.Context(), requestID)
	if err != nil {
		respondServiceError(w, &services.UpstreamFailureError{Err: err})
		return
	}

	respondJSON(w, status, body)
}

// VideoWaitHandler blocks until the job reaches a terminal state or the
// polling budget runs out.
func VideoWaitHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := chargedUserID(w, r); !ok {
		return
	}

	requestID := r.PathValue("id")
	if requestID == "" {
		respondError(w, http.StatusBadRequest, "request id is required.")
		return
	}

	body, err := grok.WaitForVideo(r.Context(), requestID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, body)
}

// CreditsMeHandler reports the caller's balance and the fixed operation
// costs.
func CreditsMeHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := chargedUserID(w, r)
	if !ok {
		return
	}

	credits, err := services.GetCredits(r.Context(), userID)
	if err != nil {
		respondServiceError(w, fmt.Errorf("failed to read credits: %w", err))
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"credits": credits,
		"costs":   cfg.Costs,
	})
}
