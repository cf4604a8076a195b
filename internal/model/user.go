package model

// Identity is the authenticated caller as seen by the core: a stable user
// id, an optional email used as display name and login handle, and the
// admin flag mirrored from the user's profile document.
type Identity struct {
	UserID  string `json:"user_id"`
	Email   string `json:"email,omitempty"`
	IsAdmin bool   `json:"is_admin"`
}

// HasEmail reports whether the identity signed in with an email address.
// Scores and join requests are only recorded for such identities.
func (i *Identity) HasEmail() bool { return i != nil && i.Email != "" }

// Profile is the document stored at users/{uid}/profile/data.
//
// Fields:
//
//	Email     – login handle copied from the auth provider at sign up.
//	IsAdmin   – role flag; toggled by another admin.
//	CreatedAt – epoch milliseconds of the sign up.
type Profile struct {
	Email     string `json:"email" mapstructure:"email"`
	IsAdmin   bool   `json:"isAdmin" mapstructure:"isAdmin"`
	CreatedAt int64  `json:"createdAt,omitempty" mapstructure:"createdAt,omitempty"`
}

// UserSummary is one row of the admin user list derived from the
// leaderboard.
type UserSummary struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"isAdmin"`
}
