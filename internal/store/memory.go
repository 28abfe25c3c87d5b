package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ankushKun/commentkit-sub001/internal/thread"
)

// MemoryStore keeps everything in process. It backs DATABASE_URL=memory and
// the service tests, and follows the same contract as PostgresStore.
type MemoryStore struct {
	mu  sync.RWMutex
	now func() time.Time

	nextID   int64
	clock    int64
	users    map[int64]User
	sites    map[int64]Site
	pages    map[int64]Page
	comments map[int64]memoryComment
	likes    map[likeKey]int64
}

type memoryComment struct {
	comment thread.Comment
	userID  int64
}

type likeKey struct {
	subject string
	target  LikeTarget
	id      int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:      func() time.Time { return time.Now().UTC() },
		users:    map[int64]User{},
		sites:    map[int64]Site{},
		pages:    map[int64]Page{},
		comments: map[int64]memoryComment{},
		likes:    map[likeKey]int64{},
	}
}

func (s *MemoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

// tick returns a strictly increasing timestamp so creation order is stable
// even when the clock does not advance between calls.
func (s *MemoryStore) tick() time.Time {
	s.clock++
	return s.now().Add(time.Duration(s.clock) * time.Microsecond)
}

func (s *MemoryStore) EnsureUserByEmail(_ context.Context, email, displayName string, superadmin bool) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return User{}, thread.Invalid("email", "email is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, user := range s.users {
		if user.Email == email {
			if superadmin && !user.IsSuperadmin {
				user.IsSuperadmin = true
				s.users[id] = user
			}
			return user, nil
		}
	}
	if displayName == "" {
		displayName = defaultDisplayName(email)
	}
	user := User{
		ID:           s.id(),
		Email:        email,
		DisplayName:  displayName,
		EmailHash:    thread.HashEmail(email),
		IsSuperadmin: superadmin,
		CreatedAt:    s.now(),
	}
	s.users[user.ID] = user
	return user, nil
}

func (s *MemoryStore) GetUserByID(_ context.Context, userID int64) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[userID]
	if !ok {
		return User{}, thread.NotFound("user", userID)
	}
	return user, nil
}

func cloneSettings(in Settings) Settings {
	out := make(Settings, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneSite(site Site) Site {
	site.Settings = cloneSettings(site.Settings)
	if site.VerifiedAt != nil {
		at := *site.VerifiedAt
		site.VerifiedAt = &at
	}
	return site
}

func (s *MemoryStore) CreateSite(_ context.Context, input NewSite) (Site, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.sites {
		if existing.Domain == input.Domain {
			return Site{}, thread.Conflict(fmt.Sprintf("domain %s is already registered", input.Domain))
		}
	}
	now := s.now()
	site := Site{
		ID:                s.id(),
		OwnerID:           input.OwnerID,
		Name:              input.Name,
		Domain:            input.Domain,
		APIKeyPrefix:      input.APIKeyPrefix,
		APIKeyHash:        input.APIKeyHash,
		VerificationToken: input.VerificationToken,
		Settings:          cloneSettings(input.Settings),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	s.sites[site.ID] = site
	return cloneSite(site), nil
}

func (s *MemoryStore) GetSite(_ context.Context, siteID int64) (Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	site, ok := s.sites[siteID]
	if !ok {
		return Site{}, thread.NotFound("site", siteID)
	}
	return cloneSite(site), nil
}

func (s *MemoryStore) GetSiteByDomain(_ context.Context, domain string) (Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, site := range s.sites {
		if site.Domain == domain {
			return cloneSite(site), nil
		}
	}
	return Site{}, thread.NotFound("site", domain)
}

func (s *MemoryStore) filterSites(keep func(Site) bool) []Site {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]Site, 0)
	for _, site := range s.sites {
		if keep(site) {
			items = append(items, cloneSite(site))
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items
}

func (s *MemoryStore) ListSitesByOwner(_ context.Context, ownerID int64) ([]Site, error) {
	return s.filterSites(func(site Site) bool { return site.OwnerID == ownerID }), nil
}

func (s *MemoryStore) ListAllSites(context.Context) ([]Site, error) {
	return s.filterSites(func(Site) bool { return true }), nil
}

func (s *MemoryStore) FindSitesByKeyPrefix(_ context.Context, prefix string) ([]Site, error) {
	return s.filterSites(func(site Site) bool { return site.APIKeyPrefix == prefix }), nil
}

func (s *MemoryStore) UpdateSite(_ context.Context, siteID int64, name string, settings Settings) (Site, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	site, ok := s.sites[siteID]
	if !ok {
		return Site{}, thread.NotFound("site", siteID)
	}
	site.Name = name
	site.Settings = cloneSettings(settings)
	site.UpdatedAt = s.now()
	s.sites[siteID] = site
	return cloneSite(site), nil
}

func (s *MemoryStore) UpdateSiteKey(_ context.Context, siteID int64, prefix, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	site, ok := s.sites[siteID]
	if !ok {
		return thread.NotFound("site", siteID)
	}
	site.APIKeyPrefix = prefix
	site.APIKeyHash = hash
	site.UpdatedAt = s.now()
	s.sites[siteID] = site
	return nil
}

func (s *MemoryStore) MarkSiteVerified(_ context.Context, siteID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	site, ok := s.sites[siteID]
	if !ok {
		return thread.NotFound("site", siteID)
	}
	site.Verified = true
	site.VerifiedAt = &at
	site.UpdatedAt = s.now()
	s.sites[siteID] = site
	return nil
}

func (s *MemoryStore) DeleteSite(_ context.Context, siteID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sites[siteID]; !ok {
		return false, nil
	}
	delete(s.sites, siteID)
	for id, page := range s.pages {
		if page.SiteID == siteID {
			delete(s.pages, id)
		}
	}
	removed := map[int64]bool{}
	for id, c := range s.comments {
		if c.comment.SiteID == siteID {
			removed[id] = true
			delete(s.comments, id)
		}
	}
	for key, likeSite := range s.likes {
		if likeSite == siteID {
			delete(s.likes, key)
		}
	}
	for id, c := range s.comments {
		if c.comment.ParentID != nil && removed[*c.comment.ParentID] {
			c.comment.ParentID = nil
			s.comments[id] = c
		}
	}
	return true, nil
}

func (s *MemoryStore) countLikesLocked(target LikeTarget, id int64) int {
	total := 0
	for key := range s.likes {
		if key.target == target && key.id == id {
			total++
		}
	}
	return total
}

func (s *MemoryStore) pageLocked(page Page) Page {
	page.CommentCount, page.PendingCount = 0, 0
	for _, c := range s.comments {
		if c.comment.PageID != page.ID {
			continue
		}
		switch c.comment.Status {
		case thread.StatusApproved:
			page.CommentCount++
		case thread.StatusPending:
			page.CommentCount++
			page.PendingCount++
		}
	}
	page.LikeCount = s.countLikesLocked(TargetPage, page.ID)
	return page
}

func (s *MemoryStore) ensurePageLocked(ref PageRef) Page {
	slug := Slug(ref.PageID)
	title := strings.TrimSpace(ref.Title)
	pageURL := strings.TrimSpace(ref.URL)
	for id, page := range s.pages {
		if page.SiteID != ref.SiteID || page.Slug != slug {
			continue
		}
		changed := false
		if title != "" && title != page.Title {
			page.Title, changed = title, true
		}
		if pageURL != "" && pageURL != page.URL {
			page.URL, changed = pageURL, true
		}
		if changed {
			page.UpdatedAt = s.tick()
			s.pages[id] = page
		}
		return page
	}
	now := s.tick()
	page := Page{ID: s.id(), SiteID: ref.SiteID, Slug: slug, Title: title, URL: pageURL, CreatedAt: now, UpdatedAt: now}
	s.pages[page.ID] = page
	return page
}

func (s *MemoryStore) EnsurePage(_ context.Context, ref PageRef) (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sites[ref.SiteID]; !ok {
		return Page{}, thread.NotFound("site", ref.SiteID)
	}
	return s.pageLocked(s.ensurePageLocked(ref)), nil
}

func (s *MemoryStore) GetPage(_ context.Context, pageID int64) (Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	page, ok := s.pages[pageID]
	if !ok {
		return Page{}, thread.NotFound("page", pageID)
	}
	return s.pageLocked(page), nil
}

func (s *MemoryStore) ListPages(_ context.Context, siteID int64) ([]Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]Page, 0)
	for _, page := range s.pages {
		if page.SiteID == siteID {
			items = append(items, s.pageLocked(page))
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].UpdatedAt.Equal(items[j].UpdatedAt) {
			return items[i].UpdatedAt.After(items[j].UpdatedAt)
		}
		return items[i].ID > items[j].ID
	})
	return items, nil
}

func (s *MemoryStore) commentLocked(c memoryComment) thread.Comment {
	out := c.comment
	if c.userID > 0 {
		user := s.users[c.userID]
		out.Author = thread.UserAuthor{ID: c.userID, Name: user.DisplayName, EmailHash: user.EmailHash}
	}
	if out.ParentID != nil {
		id := *out.ParentID
		out.ParentID = &id
	}
	out.LikeCount = s.countLikesLocked(TargetComment, out.ID)
	return out
}

func (s *MemoryStore) CreateComment(_ context.Context, input NewComment) (thread.Comment, error) {
	if input.Author == nil {
		return thread.Comment{}, thread.Invalid("author", "author is required")
	}
	if !input.Status.Valid() {
		return thread.Comment{}, thread.Invalid("status", "invalid initial status")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sites[input.Page.SiteID]; !ok {
		return thread.Comment{}, thread.NotFound("site", input.Page.SiteID)
	}
	if input.ParentID != nil {
		parent, ok := s.comments[*input.ParentID]
		if !ok {
			return thread.Comment{}, thread.NotFound("comment", *input.ParentID)
		}
		parentPage := s.pages[parent.comment.PageID]
		if parentPage.SiteID != input.Page.SiteID || parentPage.Slug != Slug(input.Page.PageID) {
			return thread.Comment{}, thread.Invalid("parent_id", "parent comment belongs to a different page")
		}
	}

	page := s.ensurePageLocked(input.Page)

	now := s.tick()
	record := memoryComment{comment: thread.Comment{
		ID:        s.id(),
		SiteID:    input.Page.SiteID,
		PageID:    page.ID,
		Author:    input.Author,
		Content:   input.Content,
		Status:    input.Status,
		CreatedAt: now,
		UpdatedAt: now,
	}}
	if input.ParentID != nil {
		parentID := *input.ParentID
		record.comment.ParentID = &parentID
	}
	if userID, ok := thread.AuthorUserID(input.Author); ok {
		record.userID = userID
	}
	s.comments[record.comment.ID] = record
	page.UpdatedAt = now
	s.pages[page.ID] = page
	return s.commentLocked(record), nil
}

func (s *MemoryStore) GetComment(_ context.Context, commentID int64) (thread.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.comments[commentID]
	if !ok {
		return thread.Comment{}, thread.NotFound("comment", commentID)
	}
	return s.commentLocked(c), nil
}

func sortComments(items []thread.Comment, newestFirst bool) {
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if newestFirst {
				return a.CreatedAt.After(b.CreatedAt)
			}
			return a.CreatedAt.Before(b.CreatedAt)
		}
		if newestFirst {
			return a.ID > b.ID
		}
		return a.ID < b.ID
	})
}

func (s *MemoryStore) ListComments(_ context.Context, pageID int64, status thread.Status) ([]thread.Comment, error) {
	filter, err := statusFilter(status)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]thread.Comment, 0)
	for _, c := range s.comments {
		if c.comment.PageID != pageID {
			continue
		}
		if filter != "" && string(c.comment.Status) != filter {
			continue
		}
		items = append(items, s.commentLocked(c))
	}
	sortComments(items, false)
	return items, nil
}

func (s *MemoryStore) ListSiteComments(_ context.Context, siteID int64, status thread.Status, limit int) ([]ActivityItem, error) {
	if status == "" {
		status = StatusAll
	}
	filter, err := statusFilter(status)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	comments := make([]thread.Comment, 0)
	for _, c := range s.comments {
		if c.comment.SiteID != siteID {
			continue
		}
		if filter != "" && string(c.comment.Status) != filter {
			continue
		}
		comments = append(comments, s.commentLocked(c))
	}
	sortComments(comments, true)
	if len(comments) > limit {
		comments = comments[:limit]
	}
	items := make([]ActivityItem, 0, len(comments))
	for _, c := range comments {
		page := s.pages[c.PageID]
		items = append(items, ActivityItem{Comment: c, PageSlug: page.Slug, PageTitle: page.Title})
	}
	return items, nil
}

func (s *MemoryStore) UpdateCommentStatus(_ context.Context, commentID int64, status thread.Status) (bool, error) {
	if !status.Valid() {
		return false, thread.Invalid("status", "unknown status "+string(status))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comments[commentID]
	if !ok {
		return false, nil
	}
	if c.comment.Status != status {
		c.comment.Status = status
		c.comment.UpdatedAt = s.now()
		s.comments[commentID] = c
	}
	return true, nil
}

func (s *MemoryStore) likeTargetSiteLocked(target LikeTarget, targetID int64) (int64, error) {
	switch target {
	case TargetPage:
		if page, ok := s.pages[targetID]; ok {
			return page.SiteID, nil
		}
	case TargetComment:
		if c, ok := s.comments[targetID]; ok {
			return c.comment.SiteID, nil
		}
	default:
		return 0, thread.Invalid("target", "unknown like target "+string(target))
	}
	return 0, thread.NotFound(string(target), targetID)
}

func (s *MemoryStore) ToggleLike(_ context.Context, target LikeTarget, targetID int64, subject string) (LikeState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	siteID, err := s.likeTargetSiteLocked(target, targetID)
	if err != nil {
		return LikeState{}, err
	}
	key := likeKey{subject: subject, target: target, id: targetID}
	_, exists := s.likes[key]
	if exists {
		delete(s.likes, key)
	} else {
		s.likes[key] = siteID
	}
	return LikeState{Liked: !exists, Total: s.countLikesLocked(target, targetID)}, nil
}

func (s *MemoryStore) SetLike(_ context.Context, target LikeTarget, targetID int64, subject string, liked bool) (LikeState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	siteID, err := s.likeTargetSiteLocked(target, targetID)
	if err != nil {
		return LikeState{}, err
	}
	key := likeKey{subject: subject, target: target, id: targetID}
	if liked {
		s.likes[key] = siteID
	} else {
		delete(s.likes, key)
	}
	return LikeState{Liked: liked, Total: s.countLikesLocked(target, targetID)}, nil
}

func (s *MemoryStore) LikedTargets(_ context.Context, subject string, target LikeTarget, ids []int64) (map[int64]bool, error) {
	out := make(map[int64]bool, len(ids))
	if subject == "" {
		return out, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range ids {
		if _, ok := s.likes[likeKey{subject: subject, target: target, id: id}]; ok {
			out[id] = true
		}
	}
	return out, nil
}

func (s *MemoryStore) SiteOverview(_ context.Context, siteID int64) (SiteOverview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	overview := SiteOverview{SiteID: siteID, Comments: map[thread.Status]int{}}
	for _, status := range thread.Statuses() {
		overview.Comments[status] = 0
	}
	for _, c := range s.comments {
		if c.comment.SiteID == siteID {
			overview.Comments[c.comment.Status]++
		}
	}
	for _, page := range s.pages {
		if page.SiteID == siteID {
			overview.Pages++
		}
	}
	for _, likeSite := range s.likes {
		if likeSite == siteID {
			overview.Likes++
		}
	}
	return overview, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }
