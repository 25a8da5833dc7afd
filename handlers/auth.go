package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"erochat/services"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func SignupHandler(w http.ResponseWriter, r *http.Request) {
	var body credentialsRequest
	if err := decodeJSONBody(r, &body); err != nil {
		respondServiceError(w, err)
		return
	}

	user, err := services.RegisterUser(r.Context(), body.Username, body.Password)
	if err != nil {
		if errors.Is(err, services.ErrUsernameTaken) {
			respondError(w, http.StatusConflict, "Username is already taken.")
			return
		}
		if errors.Is(err, services.ErrInvalidInput) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("Signup failed", "username", body.Username, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to create account.")
		return
	}

	slog.Info("User registered", "username", user.Username, "user_id", user.ID)

	if err := services.EstablishSession(w, r, user); err != nil {
		slog.Error("Failed to establish session after signup", "username", user.Username, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to create session.")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{"ok": true, "username": user.Username})
}

func LoginHandler(w http.ResponseWriter, r *http.Request) {
	ip := services.ClientIP(r)
	if !loginLimiter.Allow(ip) {
		respondError(w, http.StatusTooManyRequests, "Too many login attempts. Try again later.")
		return
	}

	var body credentialsRequest
	if err := decodeJSONBody(r, &body); err != nil {
		respondServiceError(w, err)
		return
	}

	if body.Username == "" || body.Password == "" {
		respondError(w, http.StatusBadRequest, "Username and password are required.")
		return
	}

	user, err := services.AuthenticateUser(r.Context(), body.Username, body.Password)
	if err != nil {
		slog.Warn("Login failed", "username", body.Username, "ip", ip)
		respondError(w, http.StatusUnauthorized, "Invalid username or password.")
		return
	}

	loginLimiter.Reset(ip)

	if err := services.EstablishSession(w, r, user); err != nil {
		slog.Error("Failed to establish session", "username", user.Username, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to log in.")
		return
	}

	slog.Info("User logged in", "username", user.Username, "user_id", user.ID)
	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "username": user.Username})
}

func LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if err := services.DestroySession(w, r); err != nil {
		slog.Error("Logout failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to log out.")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func MeHandler(w http.ResponseWriter, r *http.Request) {
	user, err := GetCurrentUser(r)
	if err != nil {
		respondJSON(w, http.StatusUnauthorized, map[string]any{"authenticated": false})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"user":          user.Public(),
	})
}
