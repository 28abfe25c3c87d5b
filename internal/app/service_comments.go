package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ankushKun/commentkit-sub001/internal/email"
	"github.com/ankushKun/commentkit-sub001/internal/rbac"
	"github.com/ankushKun/commentkit-sub001/internal/search"
	"github.com/ankushKun/commentkit-sub001/internal/store"
	"github.com/ankushKun/commentkit-sub001/internal/thread"
)

const maxBulkIDs = 500

type PageQuery struct {
	Domain string
	PageID string
	Title  string
	URL    string
}

type CreateCommentInput struct {
	Domain      string `json:"domain"`
	PageID      string `json:"pageId"`
	AuthorName  string `json:"author_name"`
	AuthorEmail string `json:"author_email"`
	Content     string `json:"content"`
	ParentID    *int64 `json:"parent_id"`
	PageTitle   string `json:"page_title"`
	PageURL     string `json:"page_url"`
}

// siteByDomain resolves the site a widget request belongs to.
func (s *Service) siteByDomain(ctx context.Context, rawDomain string) (store.Site, error) {
	domain := store.NormalizeDomain(rawDomain)
	if domain == "" {
		return store.Site{}, thread.Invalid("domain", "domain is required")
	}
	if site, ok := s.sites.Get(domain); ok {
		return site, nil
	}
	site, err := s.store.GetSiteByDomain(ctx, domain)
	if err != nil {
		return store.Site{}, err
	}
	s.sites.Add(site)
	return site, nil
}

func pageRef(siteID int64, pageID, title, pageURL string) (store.PageRef, error) {
	id := strings.TrimSpace(pageID)
	if id == "" {
		id = strings.TrimSpace(pageURL)
	}
	if id == "" {
		return store.PageRef{}, thread.Invalid("pageId", "pageId or url is required")
	}
	return store.PageRef{
		SiteID: siteID,
		PageID: id,
		Title:  strings.TrimSpace(title),
		URL:    strings.TrimSpace(pageURL),
	}, nil
}

func likeSubject(sess *Session) string {
	if sess == nil || sess.UserID == 0 {
		return ""
	}
	return "user:" + strconv.FormatInt(sess.UserID, 10)
}

// PageBootstrap returns page metadata and its approved comment tree,
// creating the page on first sight.
func (s *Service) PageBootstrap(ctx context.Context, viewer *Session, q PageQuery) (map[string]any, error) {
	site, err := s.siteByDomain(ctx, q.Domain)
	if err != nil {
		return nil, err
	}
	if !rbac.Can(viewerRole(viewer, site.OwnerID), rbac.ActionRead) {
		return nil, errForbidden
	}
	ref, err := pageRef(site.ID, q.PageID, q.Title, q.URL)
	if err != nil {
		return nil, err
	}
	page, err := s.store.EnsurePage(ctx, ref)
	if err != nil {
		return nil, err
	}
	comments, err := s.store.ListComments(ctx, page.ID, thread.StatusApproved)
	if err != nil {
		return nil, err
	}

	liked := map[int64]bool{}
	pageLiked := false
	if subject := likeSubject(viewer); subject != "" {
		ids := make([]int64, 0, len(comments))
		for _, c := range comments {
			ids = append(ids, c.ID)
		}
		if liked, err = s.store.LikedTargets(ctx, subject, store.TargetComment, ids); err != nil {
			return nil, err
		}
		pageLikes, err := s.store.LikedTargets(ctx, subject, store.TargetPage, []int64{page.ID})
		if err != nil {
			return nil, err
		}
		pageLiked = pageLikes[page.ID]
	}

	return map[string]any{
		"site": map[string]any{"id": site.ID, "name": site.Name, "domain": site.Domain},
		"page": map[string]any{
			"id":            page.ID,
			"slug":          page.Slug,
			"title":         page.Title,
			"url":           page.URL,
			"comment_count": len(comments),
			"like_count":    page.LikeCount,
			"liked":         pageLiked,
		},
		"comments": treePayload(thread.Assemble(comments), liked),
		"count":    len(comments),
	}, nil
}

// viewerRole resolves an optional widget session against a site's owner.
func viewerRole(viewer *Session, ownerID int64) rbac.Role {
	if viewer == nil {
		return rbac.RoleOn(rbac.Principal{}, ownerID)
	}
	return rbac.RoleOn(rbac.Principal{UserID: viewer.UserID, IsSuperadmin: viewer.IsSuperadmin}, ownerID)
}

// trusted reports whether a new comment skips the moderation queue.
func trusted(site store.Site, viewer *Session, author thread.Author) bool {
	if rbac.Trusted(viewerRole(viewer, site.OwnerID)) {
		return true
	}
	if site.Settings.Bool(store.SettingAutoApprove) {
		return true
	}
	list := site.Settings.Strings(store.SettingTrustedAuthors)
	if len(list) == 0 {
		return false
	}
	// Guest emails are unverified, so only signed-in authors match by hash.
	id, ok := thread.AuthorUserID(author)
	if !ok {
		return false
	}
	keys := []string{strconv.FormatInt(id, 10), "user:" + strconv.FormatInt(id, 10)}
	if hash := author.AvatarHash(); hash != "" {
		keys = append(keys, hash)
	}
	for _, entry := range list {
		for _, key := range keys {
			if strings.EqualFold(strings.TrimSpace(entry), key) {
				return true
			}
		}
	}
	return false
}

func (s *Service) CreateComment(ctx context.Context, viewer *Session, input CreateCommentInput) (map[string]any, error) {
	site, err := s.siteByDomain(ctx, input.Domain)
	if err != nil {
		return nil, err
	}
	if !rbac.Can(viewerRole(viewer, site.OwnerID), rbac.ActionComment) {
		return nil, errForbidden
	}
	ref, err := pageRef(site.ID, input.PageID, input.PageTitle, input.PageURL)
	if err != nil {
		return nil, err
	}

	submission := thread.Submission{
		GuestName:  input.AuthorName,
		GuestEmail: input.AuthorEmail,
		Content:    input.Content,
	}
	if viewer != nil {
		submission.SessionUser = &thread.SessionUser{ID: viewer.UserID, Name: viewer.Name, EmailHash: viewer.EmailHash}
	}
	resolved, err := thread.ResolveAuthor(submission, thread.Limits{MaxContentLength: s.cfg.MaxContentLength})
	if err != nil {
		return nil, err
	}

	status := thread.InitialStatus(trusted(site, viewer, resolved.Author))
	comment, err := s.store.CreateComment(ctx, store.NewComment{
		Page:     ref,
		Author:   resolved.Author,
		Content:  resolved.Content,
		ParentID: input.ParentID,
		Status:   status,
	})
	if err != nil {
		return nil, err
	}

	s.metrics.CommentCreated(string(comment.Status))
	s.search.IndexComment(search.RecordFor(comment, store.Slug(ref.PageID)))
	if comment.Status == thread.StatusPending {
		s.notifyOwner(site, ref, comment)
	}

	response := map[string]any{
		"comment": commentPayload(comment, false),
		"status":  comment.Status,
	}
	if comment.Status == thread.StatusPending {
		response["message"] = "Your comment is awaiting moderation"
	}
	return response, nil
}

// notifyOwner mails the site owner about a pending comment when the site
// asks for it.
func (s *Service) notifyOwner(site store.Site, ref store.PageRef, comment thread.Comment) {
	if !s.mailer.IsConfigured() || !site.Settings.Bool(store.SettingNotifyOwner) {
		return
	}
	s.background(func() {
		ctx := context.Background()
		owner, err := s.store.GetUserByID(ctx, site.OwnerID)
		if err != nil {
			s.logger.Warn("load site owner failed", zap.Int64("site_id", site.ID), zap.Error(err))
			return
		}
		title := ref.Title
		if title == "" {
			title = store.Slug(ref.PageID)
		}
		err = s.mailer.SendPendingCommentEmail(owner.Email, email.PendingCommentData{
			SiteName:     site.Name,
			PageTitle:    title,
			AuthorName:   comment.Author.DisplayName(),
			Excerpt:      comment.Content,
			DashboardURL: fmt.Sprintf("%s/sites/%d/comments?status=pending", s.cfg.DashboardURL, site.ID),
		})
		if err != nil {
			s.logger.Warn("pending comment email failed", zap.Int64("comment_id", comment.ID), zap.Error(err))
		}
	})
}

// UpdateCommentStatus moves one comment to status on behalf of the site owner.
func (s *Service) UpdateCommentStatus(ctx context.Context, caller Caller, commentID int64, rawStatus string) (map[string]any, error) {
	target, err := thread.ParseStatus(rawStatus)
	if err != nil {
		return nil, err
	}
	action, err := thread.ActionFor(target)
	if err != nil {
		return nil, err
	}
	comment, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorizeSite(ctx, caller, comment.SiteID, rbac.ActionModerate); err != nil {
		return nil, err
	}

	next, err := thread.Transition(comment.Status, action)
	if err != nil {
		s.metrics.Moderated(string(action), string(thread.OutcomeInvalid))
		return nil, err
	}
	updated, err := s.store.UpdateCommentStatus(ctx, commentID, next)
	if err != nil {
		return nil, err
	}
	if !updated {
		s.metrics.Moderated(string(action), string(thread.OutcomeNotFound))
		return nil, thread.NotFound("comment", commentID)
	}
	s.metrics.Moderated(string(action), string(thread.OutcomeOK))
	s.reindex(ctx, commentID)

	return map[string]any{
		"id":              commentID,
		"status":          next,
		"previous_status": comment.Status,
		"updated":         true,
	}, nil
}

// BulkModerate applies action to every id independently. It never fails for
// a single id; the outcome of each is reported instead.
func (s *Service) BulkModerate(ctx context.Context, caller Caller, ids []int64, rawAction string) (map[string]any, error) {
	action, err := thread.ParseAction(rawAction)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, thread.Invalid("ids", "at least one id is required")
	}
	if len(ids) > maxBulkIDs {
		return nil, thread.Invalid("ids", fmt.Sprintf("at most %d ids per request", maxBulkIDs))
	}

	outcomes := make(map[int64]thread.Outcome, len(ids))
	allowed := map[int64]bool{}
	for _, id := range ids {
		if _, seen := outcomes[id]; seen {
			continue
		}
		outcome := s.moderateOne(ctx, caller, id, action, allowed)
		outcomes[id] = outcome
		s.metrics.Moderated(string(action), string(outcome))
	}

	counts := map[thread.Outcome]int{}
	for _, outcome := range outcomes {
		counts[outcome]++
	}
	return map[string]any{
		"action":  action,
		"results": outcomesPayload(outcomes),
		"summary": counts,
	}, nil
}

func (s *Service) moderateOne(ctx context.Context, caller Caller, id int64, action thread.Action, allowed map[int64]bool) thread.Outcome {
	comment, err := s.store.GetComment(ctx, id)
	if err != nil {
		var notFound *thread.NotFoundError
		if errors.As(err, &notFound) {
			return thread.OutcomeNotFound
		}
		s.logger.Warn("bulk moderation load failed", zap.Int64("comment_id", id), zap.Error(err))
		return thread.OutcomeFailed
	}

	ok, checked := allowed[comment.SiteID]
	if !checked {
		_, err := s.authorizeSite(ctx, caller, comment.SiteID, rbac.ActionModerate)
		ok = err == nil
		allowed[comment.SiteID] = ok
	}
	if !ok {
		return thread.OutcomeForbidden
	}

	next, err := thread.Transition(comment.Status, action)
	if err != nil {
		return thread.OutcomeInvalid
	}
	updated, err := s.store.UpdateCommentStatus(ctx, id, next)
	if err != nil {
		s.logger.Warn("bulk moderation update failed", zap.Int64("comment_id", id), zap.Error(err))
		return thread.OutcomeFailed
	}
	if !updated {
		return thread.OutcomeNotFound
	}
	s.reindex(ctx, id)
	return thread.OutcomeOK
}

// reindex pushes the comment's new state to the search index.
func (s *Service) reindex(ctx context.Context, commentID int64) {
	comment, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return
	}
	page, err := s.store.GetPage(ctx, comment.PageID)
	if err != nil {
		return
	}
	s.search.IndexComment(search.RecordFor(comment, page.Slug))
}

// Like toggles the viewer's like on a page or comment, or removes it when
// unlike is set.
func (s *Service) Like(ctx context.Context, viewer Session, target store.LikeTarget, targetID int64, unlike bool) (map[string]any, error) {
	subject := likeSubject(&viewer)
	if subject == "" {
		return nil, thread.Unauthenticated("")
	}
	if !rbac.Can(viewerRole(&viewer, 0), rbac.ActionLike) {
		return nil, errForbidden
	}
	var (
		state store.LikeState
		err   error
	)
	if unlike {
		state, err = s.store.SetLike(ctx, target, targetID, subject, false)
	} else {
		state, err = s.store.ToggleLike(ctx, target, targetID, subject)
	}
	if err != nil {
		return nil, err
	}
	s.metrics.LikeToggled(string(target), state.Liked)
	return map[string]any{
		"target":      target,
		"target_id":   targetID,
		"liked":       state.Liked,
		"total_likes": state.Total,
	}, nil
}
