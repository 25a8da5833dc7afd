package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"erochat/models"
	"erochat/services"
)

// AdminListUsersHandler returns every user, ordered by username
// case-insensitively.
func AdminListUsersHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := RequireAdmin(w, r); !ok {
		return
	}

	users, err := services.ListUsers(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	public := make([]models.PublicUser, 0, len(users))
	for i := range users {
		public = append(public, users[i].Public())
	}

	respondJSON(w, http.StatusOK, map[string]any{"users": public})
}

// AdminSetCreditsHandler overwrites a user's balance. A correction tool, not
// a charge: it bypasses the ledger's conditional-reserve semantics.
func AdminSetCreditsHandler(w http.ResponseWriter, r *http.Request) {
	admin, ok := RequireAdmin(w, r)
	if !ok {
		return
	}

	targetID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || targetID <= 0 {
		respondError(w, http.StatusBadRequest, "Invalid user id.")
		return
	}

	var body struct {
		Credits json.Number `json:"credits"`
	}
	if err := decodeJSONBody(r, &body); err != nil {
		respondServiceError(w, err)
		return
	}

	credits, err := body.Credits.Int64()
	if err != nil {
		respondError(w, http.StatusBadRequest, "Credits must be an integer.")
		return
	}
	if credits < 0 || credits > int64(cfg.MaxAdminCredits) {
		respondError(w, http.StatusBadRequest, "Credits out of range.")
		return
	}

	user, err := services.SetCredits(r.Context(), targetID, int(credits))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	slog.Info("Admin updated user credits",
		"admin", admin.Username,
		"target_user_id", user.ID,
		"credits", user.Credits)

	respondJSON(w, http.StatusOK, map[string]any{"user": user.Public()})
}
