package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"erochat/config"
	"erochat/models"
)

// Upstream endpoint paths. The destination and credential are fixed by
// server configuration; callers can only influence the request payload.
const (
	chatCompletionsPath  = "/v1/chat/completions"
	imageGenerationsPath = "/v1/images/generations"
	videoGenerationsPath = "/v1/videos/generations"
	videoStatusPath      = "/v1/videos/"
)

type GrokClient struct {
	cfg    *config.Config
	client *http.Client
}

func NewGrokClient(cfg *config.Config) *GrokClient {
	return &GrokClient{
		cfg: cfg,
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// ChargedChat forwards a chat-completion payload, charging the chat cost.
func (g *GrokClient) ChargedChat(ctx context.Context, userID int64, payload map[string]any) (map[string]any, error) {
	return g.chargedCall(ctx, userID, models.ReservationKindChat, g.cfg.Costs.Chat, chatCompletionsPath, payload)
}

// ChargedImage forwards an image-generation payload, charging the image cost.
func (g *GrokClient) ChargedImage(ctx context.Context, userID int64, payload map[string]any) (map[string]any, error) {
	return g.chargedCall(ctx, userID, models.ReservationKindImage, g.cfg.Costs.Image, imageGenerationsPath, payload)
}

// ChargedVideoStart forwards a video-generation start payload, charging the
// video cost. Polling for the finished job is never re-charged.
func (g *GrokClient) ChargedVideoStart(ctx context.Context, userID int64, payload map[string]any) (map[string]any, error) {
	return g.chargedCall(ctx, userID, models.ReservationKindVideo, g.cfg.Costs.Video, videoGenerationsPath, payload)
}

// chargedCall executes a single reservation-then-refund-on-failure upstream
// call:
//
//  1. Debit the cost (conditional update + pending reservation row). An
//     insufficient balance fails immediately; no upstream request is made.
//  2. POST the payload to the fixed upstream endpoint with the server's key.
//  3. Transport failure or non-2xx response: refund and surface the
//     upstream's error. A transport failure after the upstream already did
//     work is indistinguishable from a clean failure here; the refund still
//     happens and the occasional free upstream side effect is accepted.
//  4. Success: the debit stands and the response body is returned with
//     _credits metadata attached.
func (g *GrokClient) chargedCall(ctx context.Context, userID int64, kind string, cost int, path string, payload map[string]any) (map[string]any, error) {
	reservationID, ok, err := BeginReservation(ctx, userID, cost, kind)
	if err != nil {
		return nil, err
	}
	if !ok {
		balance, err := GetCredits(ctx, userID)
		if err != nil {
			return nil, err
		}
		return nil, &InsufficientCreditsError{Balance: balance, Required: cost}
	}

	status, body, err := g.postJSON(ctx, path, payload)
	if err != nil || status < 200 || status >= 300 {
		if refundErr := RefundReservation(ctx, reservationID); refundErr != nil {
			slog.Error("Failed to refund reservation after upstream failure",
				"reservation_id", reservationID, "user_id", userID, "error", refundErr)
		}
		if err != nil {
			return nil, &UpstreamFailureError{Err: err}
		}
		return nil, &UpstreamFailureError{StatusCode: status, Message: upstreamErrorMessage(body)}
	}

	if err := CommitReservation(ctx, reservationID); err != nil {
		slog.Error("Failed to commit reservation", "reservation_id", reservationID, "error", err)
	}

	credits := map[string]any{"costCharged": cost}
	if remaining, err := GetCredits(ctx, userID); err == nil {
		credits["remaining"] = remaining
	} else {
		slog.Warn("Failed to read balance after charged call", "user_id", userID, "error", err)
	}
	body["_credits"] = credits

	return body, nil
}

// VideoStatus fetches the raw status of a video generation job. No credit
// interaction: only the start call is charged.
func (g *GrokClient) VideoStatus(ctx context.Context, requestID string) (int, map[string]any, error) {
	statusURL := g.cfg.GrokBaseURL + videoStatusPath + url.PathEscape(requestID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create status request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.cfg.GrokAPIKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to fetch video status: %w", err)
	}
	defer resp.Body.Close()

	body := decodeBody(resp.Body)
	return resp.StatusCode, body, nil
}

// pollOutcome is the terminal state of the video polling loop.
type pollOutcome int

const (
	pollContinue pollOutcome = iota
	pollContinueBusy
	pollSucceeded
	pollFailed
	pollCompletedNoResult
)

// classifyVideoPoll maps one status response onto the polling transition
// table. Transient HTTP codes back off harder, terminal upstream statuses
// stop the loop, and a "completed" report without a retrievable result is an
// inconsistent upstream state surfaced as its own failure.
func classifyVideoPoll(httpStatus int, body map[string]any) (pollOutcome, string) {
	if httpStatus == http.StatusAccepted || httpStatus == http.StatusTooManyRequests {
		return pollContinueBusy, ""
	}
	if httpStatus < 200 || httpStatus >= 300 {
		return pollFailed, upstreamErrorMessage(body)
	}

	if videoURL := ExtractVideoURL(body); videoURL != "" {
		return pollSucceeded, videoURL
	}

	status := strings.ToLower(stringField(body, "status"))
	if status == "" {
		if data, ok := body["data"].(map[string]any); ok {
			status = strings.ToLower(stringField(data, "status"))
		}
	}

	switch status {
	case "failed", "error", "cancelled", "expired":
		reason := upstreamErrorMessage(body)
		if reason == "" {
			reason = "Video generation failed."
		}
		return pollFailed, reason
	case "completed", "done", "succeeded":
		return pollCompletedNoResult, status
	}

	return pollContinue, status
}

// WaitForVideo polls the job until it reaches a terminal state or the
// wall-clock budget runs out. The delay starts at the base value and grows
// additively up to the cap; transient 202/429 responses grow it faster. No
// credit is refunded here regardless of outcome: the start call's cost
// covers the compute attempt.
func (g *GrokClient) WaitForVideo(ctx context.Context, requestID string) (map[string]any, error) {
	deadline := time.Now().Add(g.cfg.VideoPollBudget)
	delay := g.cfg.VideoPollBaseDelay
	lastStatus := "unknown"

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}

		httpStatus, body, err := g.VideoStatus(ctx, requestID)
		if err != nil {
			return nil, &UpstreamFailureError{Err: err}
		}

		outcome, detail := classifyVideoPoll(httpStatus, body)
		switch outcome {
		case pollSucceeded:
			return body, nil
		case pollFailed:
			return nil, &UpstreamFailureError{StatusCode: httpStatus, Message: detail}
		case pollCompletedNoResult:
			return nil, &UpstreamFailureError{
				StatusCode: httpStatus,
				Message:    "Video generation completed but no video URL was returned.",
			}
		case pollContinueBusy:
			delay = min(delay+g.cfg.VideoPollBusyStep, g.cfg.VideoPollMaxDelay)
			continue
		}

		if detail != "" {
			lastStatus = detail
		}
		delay = min(delay+g.cfg.VideoPollStep, g.cfg.VideoPollMaxDelay)
	}

	return nil, &UpstreamTimeoutError{LastStatus: lastStatus}
}

// ExtractVideoURL digs the result URL out of the documented response shapes.
func ExtractVideoURL(body map[string]any) string {
	candidates := []map[string]any{body}
	if data, ok := body["data"].(map[string]any); ok {
		candidates = append(candidates, data)
	}

	for _, m := range candidates {
		if video, ok := m["video"].(map[string]any); ok {
			if u := stringField(video, "url"); u != "" {
				return u
			}
		}
		if u := stringField(m, "url"); u != "" {
			return u
		}
		if u := stringField(m, "video_url"); u != "" {
			return u
		}
		if output, ok := m["output"].(map[string]any); ok {
			if u := stringField(output, "url"); u != "" {
				return u
			}
		}
	}

	return ""
}

// ExtractRequestID digs the job id out of a video start response.
func ExtractRequestID(body map[string]any) string {
	candidates := []map[string]any{body}
	if data, ok := body["data"].(map[string]any); ok {
		candidates = append(candidates, data)
	}

	for _, m := range candidates {
		if id := stringField(m, "request_id"); id != "" {
			return id
		}
		if id := stringField(m, "id"); id != "" {
			return id
		}
	}

	return ""
}

func (g *GrokClient) postJSON(ctx context.Context, path string, payload map[string]any) (int, map[string]any, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.GrokBaseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.cfg.GrokAPIKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	return resp.StatusCode, decodeBody(resp.Body), nil
}

// decodeBody tolerates empty and non-JSON upstream bodies; error surfaces
// fall back to the status code when nothing parseable comes back.
func decodeBody(r io.Reader) map[string]any {
	raw, err := io.ReadAll(r)
	if err != nil || len(raw) == 0 {
		return map[string]any{}
	}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return map[string]any{}
	}
	return body
}

// upstreamErrorMessage extracts the upstream's own error message when it is
// parseable, from either {"error":{"message":...}} or {"error":"..."}.
func upstreamErrorMessage(body map[string]any) string {
	switch e := body["error"].(type) {
	case string:
		return e
	case map[string]any:
		if msg := stringField(e, "message"); msg != "" {
			return msg
		}
	}
	return stringField(body, "message")
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
