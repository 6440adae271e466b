package models

import "time"

const (
	RoleMember    = "member"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

type User struct {
	ID       int64     `json:"id"`
	Username string    `json:"username"`
	Role     string    `json:"role"`
	Created  time.Time `json:"created"`
}

// UserStats counts what a user has written. PostCount includes the opening
// posts of their topics.
type UserStats struct {
	TopicCount int `json:"topic_count"`
	PostCount  int `json:"post_count"`
}

// Actor is the caller identity handed to every engine operation.
type Actor struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

func (u User) Actor() Actor {
	return Actor{UserID: u.ID, Username: u.Username, Role: u.Role}
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// IsModerator is true for moderators and admins.
func (a Actor) IsModerator() bool {
	return a.Role == RoleModerator || a.Role == RoleAdmin
}

// CanModify reports whether the actor may edit or delete content owned by ownerID.
func (a Actor) CanModify(ownerID int64) bool {
	return a.UserID == ownerID || a.IsModerator()
}
