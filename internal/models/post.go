package models

import "time"

type Post struct {
	ID         int64     `json:"id"`
	TopicID    int64     `json:"topic_id"`
	UserID     int64     `json:"user_id"`
	Author     string    `json:"author"`
	Content    string    `json:"content"`
	IsSolution bool      `json:"is_solution"`
	IsFirst    bool      `json:"is_first"`
	Created    time.Time `json:"created"`
	Updated    time.Time `json:"updated"`
}

// PostRevision is a previous body of a post, kept on every edit.
type PostRevision struct {
	PostID   int64     `json:"post_id"`
	Version  int       `json:"version"`
	Content  string    `json:"content"`
	EditedBy int64     `json:"edited_by"`
	EditedAt time.Time `json:"edited_at"`
}
