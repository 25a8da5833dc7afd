package models

import "time"

type User struct {
	ID           int64     `db:"id"`
	Username     string    `db:"username"`
	PasswordHash string    `db:"password_hash"`
	Credits      int       `db:"credits"`
	IsAdmin      bool      `db:"is_admin"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// PublicUser is the JSON shape exposed to the admin panel and /api/auth/me.
// The password hash never leaves the server.
type PublicUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Credits  int    `json:"credits"`
	IsAdmin  bool   `json:"isAdmin"`
}

func (u *User) Public() PublicUser {
	return PublicUser{
		ID:       u.ID,
		Username: u.Username,
		Credits:  u.Credits,
		IsAdmin:  u.IsAdmin,
	}
}
