package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"erochat/config"
	"erochat/models"
	"erochat/services"
)

var cfg *config.Config
var grok *services.GrokClient
var loginLimiter *services.LoginLimiter

// Init wires the package to its runtime collaborators. Called once from main
// before any route is registered.
func Init(c *config.Config, client *services.GrokClient) {
	cfg = c
	grok = client
	loginLimiter = services.NewLoginLimiter(c.LoginRateWindow, c.LoginRateAttempts)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps the service error taxonomy onto HTTP statuses.
// Insufficient credits carries the balance context the client needs to
// prompt a top-up.
func respondServiceError(w http.ResponseWriter, err error) {
	var insufficient *services.InsufficientCreditsError
	if errors.As(err, &insufficient) {
		respondJSON(w, http.StatusPaymentRequired, map[string]any{
			"error":    "Not enough credits.",
			"credits":  insufficient.Balance,
			"required": insufficient.Required,
			"costs":    cfg.Costs,
		})
		return
	}

	var upstream *services.UpstreamFailureError
	if errors.As(err, &upstream) {
		respondError(w, http.StatusBadGateway, upstream.Error())
		return
	}

	var timeout *services.UpstreamTimeoutError
	if errors.As(err, &timeout) {
		respondError(w, http.StatusGatewayTimeout, timeout.Error())
		return
	}

	if errors.Is(err, services.ErrInvalidInput) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if errors.Is(err, services.ErrNotFound) {
		respondError(w, http.StatusNotFound, "User not found.")
		return
	}

	slog.Error("Unhandled service error", "error", err)
	respondError(w, http.StatusInternalServerError, "Internal server error.")
}

func decodeJSONBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: malformed JSON body", services.ErrInvalidInput)
	}
	return nil
}

// GetCurrentUser resolves the session to a fresh user record. The session's
// cached fields are treated as hints only.
func GetCurrentUser(r *http.Request) (*models.User, error) {
	userID, ok := services.SessionUserID(r)
	if !ok {
		return nil, fmt.Errorf("no authenticated session")
	}
	return services.GetUserByID(r.Context(), userID)
}

// RequireAdmin re-verifies the admin flag against the store on every call,
// so a revoked admin loses access immediately regardless of what their
// session still says.
func RequireAdmin(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	user, err := GetCurrentUser(r)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Authentication required.")
		return nil, false
	}
	if !user.IsAdmin {
		respondError(w, http.StatusForbidden, "Admin access required.")
		return nil, false
	}
	return user, true
}
