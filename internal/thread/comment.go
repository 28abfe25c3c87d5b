// Package thread holds the comment-thread domain: who wrote a comment, which
// moderation state it is in and how a page's comments are grouped for display.
package thread

import "time"

// Comment is a node of a page's reply tree as stored.
type Comment struct {
	ID        int64     `json:"id"`
	SiteID    int64     `json:"site_id"`
	PageID    int64     `json:"page_id"`
	Author    Author    `json:"author"`
	Content   string    `json:"content"`
	ParentID  *int64    `json:"parent_id"`
	Status    Status    `json:"status"`
	LikeCount int       `json:"like_count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
