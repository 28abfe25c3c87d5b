// Package search indexes comments for the moderation dashboard.
package search

import (
	"context"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/ankushKun/commentkit-sub001/internal/thread"
)

// Result is a single search hit returned to the caller.
type Result struct {
	CommentID int64     `json:"comment_id"`
	PageID    int64     `json:"page_id"`
	PageSlug  string    `json:"page_slug"`
	Author    string    `json:"author"`
	Snippet   string    `json:"snippet"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

var markTags = strings.NewReplacer("&lt;mark&gt;", "<mark>", "&lt;/mark&gt;", "</mark>")

// safeSnippet escapes a highlighted fragment; only <mark> survives as markup.
func safeSnippet(raw string) string {
	return markTags.Replace(html.EscapeString(raw))
}

// Query describes a search request. Searches are always scoped to one site.
type Query struct {
	SiteID int64
	Text   string
	Status thread.Status // empty = every status
	Limit  int
	Offset int
}

func (q Query) limit() int {
	if q.Limit <= 0 || q.Limit > 100 {
		return 20
	}
	return q.Limit
}

func (q Query) offset() int {
	if q.Offset < 0 {
		return 0
	}
	return q.Offset
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Backend string   `json:"backend"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// CommentRecord is the data we index for a comment.
type CommentRecord struct {
	ID        string `json:"id"`
	CommentID int64  `json:"commentId"`
	SiteID    int64  `json:"siteId"`
	PageID    int64  `json:"pageId"`
	PageSlug  string `json:"pageSlug"`
	Author    string `json:"author"`
	Content   string `json:"content"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"createdAt"`
}

// RecordFor builds the index record for a stored comment.
func RecordFor(c thread.Comment, pageSlug string) CommentRecord {
	author := ""
	if c.Author != nil {
		author = c.Author.DisplayName()
	}
	return CommentRecord{
		ID:        strconv.FormatInt(c.ID, 10),
		CommentID: c.ID,
		SiteID:    c.SiteID,
		PageID:    c.PageID,
		PageSlug:  pageSlug,
		Author:    author,
		Content:   c.Content,
		Status:    string(c.Status),
		CreatedAt: c.CreatedAt.Unix(),
	}
}
