package middleware

import (
	"log/slog"
	"net/http"

	"erochat/services"
)

// RequireAuth guards API routes: requests without a valid session get a JSON
// 401. The user's continued existence is re-verified against the database so
// a deleted account's session dies with it.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := services.SessionUserID(r)
		if !ok {
			unauthorized(w)
			return
		}

		if _, err := services.GetUserByID(r.Context(), userID); err != nil {
			slog.Debug("Session user no longer exists", "user_id", userID, "path", r.URL.Path)
			unauthorized(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequirePage guards browser page routes: unauthenticated requests are
// redirected to the sign-in page instead of receiving JSON.
func RequirePage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := services.SessionUserID(r)
		if !ok {
			http.Redirect(w, r, "/signin", http.StatusSeeOther)
			return
		}

		if _, err := services.GetUserByID(r.Context(), userID); err != nil {
			http.Redirect(w, r, "/signin", http.StatusSeeOther)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"Authentication required."}`))
}
