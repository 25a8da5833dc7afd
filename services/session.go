package services

import (
	"net/http"

	"erochat/config"
	"erochat/models"

	"github.com/gorilla/sessions"
)

const sessionName = "erochat_auth_sid"

var store *sessions.CookieStore

func InitSessionStore(cfg *config.Config) {
	store = sessions.NewCookieStore([]byte(cfg.SessionSecret))

	secure := cfg.Environment == "production"

	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 14, // 14 days
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func GetSession(r *http.Request) (*sessions.Session, error) {
	return store.Get(r, sessionName)
}

func SaveSession(w http.ResponseWriter, r *http.Request, session *sessions.Session) error {
	return session.Save(r, w)
}

// EstablishSession records the authenticated user in a fresh session. The
// is_admin value stored here is a display hint only; admin endpoints always
// re-read the flag from the database.
func EstablishSession(w http.ResponseWriter, r *http.Request, user *models.User) error {
	session, err := GetSession(r)
	if err != nil {
		return err
	}

	session.Values["user_id"] = user.ID
	session.Values["username"] = user.Username
	session.Values["is_admin"] = user.IsAdmin

	return SaveSession(w, r, session)
}

// DestroySession expires the session cookie and drops its values.
func DestroySession(w http.ResponseWriter, r *http.Request) error {
	session, err := GetSession(r)
	if err != nil {
		return err
	}

	session.Values = make(map[interface{}]interface{})
	session.Options.MaxAge = -1
	return SaveSession(w, r, session)
}

// SessionUserID extracts the authenticated user id from the request session.
// The second return is false when the request carries no valid login.
func SessionUserID(r *http.Request) (int64, bool) {
	session, err := GetSession(r)
	if err != nil {
		return 0, false
	}

	switch v := session.Values["user_id"].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}
