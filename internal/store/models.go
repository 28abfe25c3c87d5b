package store

import (
	"strings"
	"time"

	"github.com/ankushKun/commentkit-sub001/internal/thread"
)

type User struct {
	ID           int64
	Email        string
	DisplayName  string
	EmailHash    string
	IsSuperadmin bool
	CreatedAt    time.Time
}

// Site is a registered domain. The API key itself is never stored, only its
// lookup prefix and bcrypt hash.
type Site struct {
	ID                int64
	OwnerID           int64
	Name              string
	Domain            string
	APIKeyPrefix      string
	APIKeyHash        string
	VerificationToken string
	Verified          bool
	VerifiedAt        *time.Time
	Settings          Settings
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Settings is the opaque per-site key/value map. A few keys are understood by
// the service layer.
type Settings map[string]any

const (
	SettingAutoApprove    = "auto_approve"
	SettingTrustedAuthors = "trusted_authors"
	SettingNotifyOwner    = "notify_owner"
)

func (s Settings) Bool(key string) bool {
	v, ok := s[key].(bool)
	return ok && v
}

func (s Settings) Strings(key string) []string {
	switch v := s[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	case string:
		out := make([]string, 0)
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return nil
}

type Page struct {
	ID     int64
	SiteID int64
	Slug   string
	Title  string
	URL    string
	// Derived from comment rows on every read.
	CommentCount int
	PendingCount int
	LikeCount    int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PageRef addresses a page by the identifier the embedding site passes in.
type PageRef struct {
	SiteID int64
	PageID string
	Title  string
	URL    string
}

type NewSite struct {
	OwnerID           int64
	Name              string
	Domain            string
	APIKeyPrefix      string
	APIKeyHash        string
	VerificationToken string
	Settings          Settings
}

type NewComment struct {
	Page     PageRef
	Author   thread.Author
	Content  string
	ParentID *int64
	Status   thread.Status
}

type LikeTarget string

const (
	TargetPage    LikeTarget = "page"
	TargetComment LikeTarget = "comment"
)

func (t LikeTarget) Valid() bool {
	return t == TargetPage || t == TargetComment
}

type LikeState struct {
	Liked bool
	Total int
}

// StatusAll disables status filtering in list reads.
const StatusAll thread.Status = "all"

type SiteOverview struct {
	SiteID   int64
	Pages    int
	Comments map[thread.Status]int
	Likes    int
}

func (o SiteOverview) TotalComments() int {
	total := 0
	for _, n := range o.Comments {
		total += n
	}
	return total
}

// ActivityItem is a comment joined with its page for dashboard feeds.
type ActivityItem struct {
	Comment   thread.Comment
	PageSlug  string
	PageTitle string
}
