package models

import "time"

type Category struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Slug         string    `json:"slug"`
	Description  string    `json:"description,omitempty"`
	DisplayOrder int       `json:"display_order"`
	ForumCount   int       `json:"forum_count"`
	Created      time.Time `json:"created"`
}

type Forum struct {
	ID           int64      `json:"id"`
	CategoryID   int64      `json:"category_id"`
	Name         string     `json:"name"`
	Slug         string     `json:"slug"`
	Description  string     `json:"description,omitempty"`
	DisplayOrder int        `json:"display_order"`
	TopicCount   int        `json:"topic_count"`
	PostCount    int        `json:"post_count"`
	LastPostAt   *time.Time `json:"last_post_at,omitempty"`
	Created      time.Time  `json:"created"`
}

type BoardStats struct {
	Users      int `json:"users"`
	Categories int `json:"categories"`
	Forums     int `json:"forums"`
	Topics     int `json:"topics"`
	Posts      int `json:"posts"`
	Sticky     int `json:"sticky_topics"`
	Locked     int `json:"locked_topics"`
	Solved     int `json:"solved_topics"`
}
