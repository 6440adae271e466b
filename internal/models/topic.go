package models

import "time"

type Topic struct {
	ID             int64     `json:"id"`
	ForumID        int64     `json:"forum_id"`
	UserID         int64     `json:"user_id"`
	Author         string    `json:"author"`
	Title          string    `json:"title"`
	Slug           string    `json:"slug"`
	Content        string    `json:"content"`
	IsSticky       bool      `json:"is_sticky"`
	IsLocked       bool      `json:"is_locked"`
	ViewCount      int       `json:"view_count"`
	ReplyCount     int       `json:"reply_count"`
	Created        time.Time `json:"created"`
	Updated        time.Time `json:"updated"`
	LastPostAt     time.Time `json:"last_post_at"`
	LastPostUserID int64     `json:"last_post_user_id"`
	Tags           []string  `json:"tags,omitempty"`
}
