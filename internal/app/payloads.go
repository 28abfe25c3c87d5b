package app

import (
	"strconv"

	"github.com/ankushKun/commentkit-sub001/internal/store"
	"github.com/ankushKun/commentkit-sub001/internal/thread"
)

const verificationPath = "/.well-known/commentkit-verify.txt"

func userPayload(sess Session) map[string]any {
	return map[string]any{
		"id":            sess.UserID,
		"name":          sess.Name,
		"email":         sess.Email,
		"avatar_hash":   sess.EmailHash,
		"is_superadmin": sess.IsSuperadmin,
	}
}

func sitePayload(site store.Site) map[string]any {
	settings := site.Settings
	if settings == nil {
		settings = store.Settings{}
	}
	return map[string]any{
		"id":             site.ID,
		"owner_id":       site.OwnerID,
		"name":           site.Name,
		"domain":         site.Domain,
		"api_key_prefix": site.APIKeyPrefix,
		"verified":       site.Verified,
		"verified_at":    site.VerifiedAt,
		"verification": map[string]any{
			"path":  verificationPath,
			"token": site.VerificationToken,
		},
		"settings":   settings,
		"created_at": site.CreatedAt,
		"updated_at": site.UpdatedAt,
	}
}

func pagePayload(page store.Page) map[string]any {
	return map[string]any{
		"id":            page.ID,
		"site_id":       page.SiteID,
		"slug":          page.Slug,
		"title":         page.Title,
		"url":           page.URL,
		"comment_count": page.CommentCount,
		"pending_count": page.PendingCount,
		"like_count":    page.LikeCount,
		"created_at":    page.CreatedAt,
		"updated_at":    page.UpdatedAt,
	}
}

func commentPayload(c thread.Comment, liked bool) map[string]any {
	return map[string]any{
		"id":         c.ID,
		"site_id":    c.SiteID,
		"page_id":    c.PageID,
		"parent_id":  c.ParentID,
		"author":     c.Author,
		"content":    c.Content,
		"status":     c.Status,
		"like_count": c.LikeCount,
		"liked":      liked,
		"created_at": c.CreatedAt,
		"updated_at": c.UpdatedAt,
	}
}

func treePayload(roots []*thread.Node, liked map[int64]bool) []map[string]any {
	out := make([]map[string]any, 0, len(roots))
	for _, root := range roots {
		item := commentPayload(root.Comment, liked[root.ID])
		replies := make([]map[string]any, 0, len(root.Replies))
		for _, reply := range root.Replies {
			child := commentPayload(reply.Comment, liked[reply.ID])
			child["replies"] = []map[string]any{}
			replies = append(replies, child)
		}
		item["replies"] = replies
		out = append(out, item)
	}
	return out
}

func activityPayload(items []store.ActivityItem) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		entry := commentPayload(item.Comment, false)
		entry["page_slug"] = item.PageSlug
		entry["page_title"] = item.PageTitle
		out = append(out, entry)
	}
	return out
}

func overviewPayload(o store.SiteOverview) map[string]any {
	byStatus := map[string]int{}
	for _, status := range thread.Statuses() {
		byStatus[string(status)] = o.Comments[status]
	}
	return map[string]any{
		"site_id":        o.SiteID,
		"pages":          o.Pages,
		"comments":       byStatus,
		"total_comments": o.TotalComments(),
		"likes":          o.Likes,
	}
}

func outcomesPayload(outcomes map[int64]thread.Outcome) map[string]thread.Outcome {
	out := make(map[string]thread.Outcome, len(outcomes))
	for id, outcome := range outcomes {
		out[strconv.FormatInt(id, 10)] = outcome
	}
	return out
}
