package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ankushKun/commentkit-sub001/internal/thread"
)

// contractStore is the surface both PostgresStore and MemoryStore implement.
type contractStore interface {
	EnsureUserByEmail(context.Context, string, string, bool) (User, error)
	GetUserByID(context.Context, int64) (User, error)
	CreateSite(context.Context, NewSite) (Site, error)
	GetSite(context.Context, int64) (Site, error)
	GetSiteByDomain(context.Context, string) (Site, error)
	ListSitesByOwner(context.Context, int64) ([]Site, error)
	UpdateSite(context.Context, int64, string, Settings) (Site, error)
	MarkSiteVerified(context.Context, int64, time.Time) error
	DeleteSite(context.Context, int64) (bool, error)
	EnsurePage(context.Context, PageRef) (Page, error)
	GetPage(context.Context, int64) (Page, error)
	ListPages(context.Context, int64) ([]Page, error)
	CreateComment(context.Context, NewComment) (thread.Comment, error)
	GetComment(context.Context, int64) (thread.Comment, error)
	ListComments(context.Context, int64, thread.Status) ([]thread.Comment, error)
	ListSiteComments(context.Context, int64, thread.Status, int) ([]ActivityItem, error)
	UpdateCommentStatus(context.Context, int64, thread.Status) (bool, error)
	ToggleLike(context.Context, LikeTarget, int64, string) (LikeState, error)
	SetLike(context.Context, LikeTarget, int64, string, bool) (LikeState, error)
	LikedTargets(context.Context, string, LikeTarget, []int64) (map[int64]bool, error)
	SiteOverview(context.Context, int64) (SiteOverview, error)
}

var (
	_ contractStore = (*PostgresStore)(nil)
	_ contractStore = (*MemoryStore)(nil)
)

type fixture struct {
	owner User
	site  Site
}

func seed(t *testing.T, s contractStore) fixture {
	t.Helper()
	ctx := context.Background()
	owner, err := s.EnsureUserByEmail(ctx, "Owner@Example.com", "", false)
	if err != nil {
		t.Fatalf("EnsureUserByEmail() error = %v", err)
	}
	site, err := s.CreateSite(ctx, NewSite{
		OwnerID:           owner.ID,
		Name:              "Example",
		Domain:            "example.com",
		APIKeyPrefix:      "abcd1234",
		APIKeyHash:        "hash",
		VerificationToken: "verify",
		Settings:          Settings{"theme": "dark"},
	})
	if err != nil {
		t.Fatalf("CreateSite() error = %v", err)
	}
	return fixture{owner: owner, site: site}
}

func guest(name string) thread.Author {
	return thread.GuestAuthor{Name: name}
}

func postComment(t *testing.T, s contractStore, siteID int64, pageID string, parent *int64, status thread.Status) thread.Comment {
	t.Helper()
	c, err := s.CreateComment(context.Background(), NewComment{
		Page:     PageRef{SiteID: siteID, PageID: pageID},
		Author:   guest("Alice"),
		Content:  "Hi",
		ParentID: parent,
		Status:   status,
	})
	if err != nil {
		t.Fatalf("CreateComment() error = %v", err)
	}
	return c
}

func runStoreContract(t *testing.T, newStore func(t *testing.T) contractStore) {
	ctx := context.Background()

	t.Run("users are created once per email", func(t *testing.T) {
		s := newStore(t)
		first, err := s.EnsureUserByEmail(ctx, "Someone@Example.com", "", false)
		if err != nil {
			t.Fatalf("EnsureUserByEmail() error = %v", err)
		}
		if first.Email != "someone@example.com" || first.DisplayName != "someone" || first.EmailHash != thread.HashEmail("someone@example.com") {
			t.Fatalf("unexpected user %+v", first)
		}
		second, err := s.EnsureUserByEmail(ctx, "someone@example.com", "Other", true)
		if err != nil {
			t.Fatalf("EnsureUserByEmail() error = %v", err)
		}
		if second.ID != first.ID || !second.IsSuperadmin {
			t.Fatalf("expected same user promoted to superadmin, got %+v", second)
		}
		if _, err := s.GetUserByID(ctx, first.ID+1000); !isNotFound(err) {
			t.Fatalf("expected NotFoundError, got %v", err)
		}
	})

	t.Run("duplicate domain conflicts", func(t *testing.T) {
		s := newStore(t)
		f := seed(t, s)
		_, err := s.CreateSite(ctx, NewSite{OwnerID: f.owner.ID, Name: "Again", Domain: "example.com", APIKeyPrefix: "x", APIKeyHash: "y", VerificationToken: "z"})
		var conflict *thread.ConflictError
		if !errors.As(err, &conflict) {
			t.Fatalf("expected ConflictError, got %v", err)
		}
	})

	t.Run("site settings and verification round trip", func(t *testing.T) {
		s := newStore(t)
		f := seed(t, s)
		got, err := s.GetSiteByDomain(ctx, "example.com")
		if err != nil || got.ID != f.site.ID || got.Settings["theme"] != "dark" {
			t.Fatalf("unexpected site %+v (%v)", got, err)
		}
		updated, err := s.UpdateSite(ctx, f.site.ID, "Renamed", Settings{SettingAutoApprove: true})
		if err != nil || updated.Name != "Renamed" || !updated.Settings.Bool(SettingAutoApprove) {
			t.Fatalf("unexpected update %+v (%v)", updated, err)
		}
		if err := s.MarkSiteVerified(ctx, f.site.ID, time.Now()); err != nil {
			t.Fatalf("MarkSiteVerified() error = %v", err)
		}
		got, _ = s.GetSite(ctx, f.site.ID)
		if !got.Verified || got.VerifiedAt == nil {
			t.Fatalf("expected verified site, got %+v", got)
		}
		owned, err := s.ListSitesByOwner(ctx, f.owner.ID)
		if err != nil || len(owned) != 1 {
			t.Fatalf("expected one owned site, got %d (%v)", len(owned), err)
		}
		if _, err := s.GetSite(ctx, f.site.ID+1000); !isNotFound(err) {
			t.Fatalf("expected NotFoundError, got %v", err)
		}
	})

	t.Run("first comment creates the page", func(t *testing.T) {
		s := newStore(t)
		f := seed(t, s)
		c := postComment(t, s, f.site.ID, "/blog/1", nil, thread.StatusPending)
		if c.Status != thread.StatusPending || c.ParentID != nil {
			t.Fatalf("unexpected comment %+v", c)
		}
		page, err := s.GetPage(ctx, c.PageID)
		if err != nil {
			t.Fatalf("GetPage() error = %v", err)
		}
		if page.Slug != "/blog/1" || page.CommentCount != 1 || page.PendingCount != 1 {
			t.Fatalf("unexpected page %+v", page)
		}

		again, err := s.EnsurePage(ctx, PageRef{SiteID: f.site.ID, PageID: "https://example.com/blog/1/", Title: "Post"})
		if err != nil || again.ID != page.ID || again.Title != "Post" {
			t.Fatalf("expected same page with refreshed title, got %+v (%v)", again, err)
		}

		public, err := s.ListComments(ctx, page.ID, "")
		if err != nil || len(public) != 0 {
			t.Fatalf("expected no public comments, got %d (%v)", len(public), err)
		}
		updated, err := s.UpdateCommentStatus(ctx, c.ID, thread.StatusApproved)
		if err != nil || !updated {
			t.Fatalf("UpdateCommentStatus() = %v, %v", updated, err)
		}
		public, _ = s.ListComments(ctx, page.ID, "")
		if len(public) != 1 || public[0].ID != c.ID {
			t.Fatalf("expected approved comment to be public, got %+v", public)
		}
	})

	t.Run("comments list oldest first with filters", func(t *testing.T) {
		s := newStore(t)
		f := seed(t, s)
		a := postComment(t, s, f.site.ID, "/p", nil, thread.StatusApproved)
		b := postComment(t, s, f.site.ID, "/p", &a.ID, thread.StatusPending)
		c := postComment(t, s, f.site.ID, "/p", &a.ID, thread.StatusSpam)

		all, err := s.ListComments(ctx, a.PageID, StatusAll)
		if err != nil || len(all) != 3 {
			t.Fatalf("expected 3 comments, got %d (%v)", len(all), err)
		}
		if all[0].ID != a.ID || all[1].ID != b.ID || all[2].ID != c.ID {
			t.Fatalf("unexpected order %d %d %d", all[0].ID, all[1].ID, all[2].ID)
		}
		if all[1].ParentID == nil || *all[1].ParentID != a.ID {
			t.Fatalf("expected parent pointer to be kept, got %+v", all[1].ParentID)
		}
		spam, _ := s.ListComments(ctx, a.PageID, thread.StatusSpam)
		if len(spam) != 1 || spam[0].ID != c.ID {
			t.Fatalf("unexpected spam list %+v", spam)
		}
		if _, err := s.ListComments(ctx, a.PageID, "bogus"); err == nil {
			t.Fatal("expected validation error for unknown filter")
		}

		queue, err := s.ListSiteComments(ctx, f.site.ID, thread.StatusPending, 10)
		if err != nil || len(queue) != 1 || queue[0].Comment.ID != b.ID || queue[0].PageSlug != "/p" {
			t.Fatalf("unexpected queue %+v (%v)", queue, err)
		}
		activity, _ := s.ListSiteComments(ctx, f.site.ID, "", 2)
		if len(activity) != 2 || activity[0].Comment.ID != c.ID {
			t.Fatalf("expected newest first with limit, got %+v", activity)
		}
	})

	t.Run("unknown site is not found", func(t *testing.T) {
		s := newStore(t)
		f := seed(t, s)
		_, err := s.CreateComment(ctx, NewComment{Page: PageRef{SiteID: f.site.ID + 1000, PageID: "/a"}, Author: guest("A"), Content: "x", Status: thread.StatusPending})
		if !isNotFound(err) {
			t.Fatalf("expected NotFoundError, got %v", err)
		}
	})

	t.Run("page paths keep their case", func(t *testing.T) {
		s := newStore(t)
		f := seed(t, s)
		upper := postComment(t, s, f.site.ID, "/Docs/A", nil, thread.StatusApproved)
		lower := postComment(t, s, f.site.ID, "/docs/a", nil, thread.StatusApproved)
		if upper.PageID == lower.PageID {
			t.Fatalf("expected separate threads, both landed on page %d", upper.PageID)
		}
	})

	t.Run("parent must exist on the same page", func(t *testing.T) {
		s := newStore(t)
		f := seed(t, s)
		root := postComment(t, s, f.site.ID, "/a", nil, thread.StatusApproved)

		missing := int64(root.ID + 1000)
		_, err := s.CreateComment(ctx, NewComment{Page: PageRef{SiteID: f.site.ID, PageID: "/a"}, Author: guest("A"), Content: "x", ParentID: &missing, Status: thread.StatusPending})
		if !isNotFound(err) {
			t.Fatalf("expected NotFoundError, got %v", err)
		}

		_, err = s.CreateComment(ctx, NewComment{Page: PageRef{SiteID: f.site.ID, PageID: "/b"}, Author: guest("A"), Content: "x", ParentID: &root.ID, Status: thread.StatusPending})
		var verr *thread.ValidationError
		if !errors.As(err, &verr) || verr.Field != "parent_id" {
			t.Fatalf("expected parent_id ValidationError, got %v", err)
		}
		pages, _ := s.ListPages(ctx, f.site.ID)
		for _, p := range pages {
			if p.Slug == "/b" && p.CommentCount != 0 {
				t.Fatalf("rejected reply must not be stored, got %+v", p)
			}
		}
	})

	t.Run("user authors are joined on read", func(t *testing.T) {
		s := newStore(t)
		f := seed(t, s)
		c, err := s.CreateComment(ctx, NewComment{
			Page:    PageRef{SiteID: f.site.ID, PageID: "/u"},
			Author:  thread.UserAuthor{ID: f.owner.ID},
			Content: "mine",
			Status:  thread.StatusApproved,
		})
		if err != nil {
			t.Fatalf("CreateComment() error = %v", err)
		}
		got, err := s.GetComment(ctx, c.ID)
		if err != nil {
			t.Fatalf("GetComment() error = %v", err)
		}
		author, ok := got.Author.(thread.UserAuthor)
		if !ok || author.ID != f.owner.ID || author.Name != "owner" || author.EmailHash != f.owner.EmailHash {
			t.Fatalf("unexpected author %+v", got.Author)
		}
	})

	t.Run("update status on unknown id reports false", func(t *testing.T) {
		s := newStore(t)
		seed(t, s)
		updated, err := s.UpdateCommentStatus(ctx, 999999, thread.StatusApproved)
		if err != nil || updated {
			t.Fatalf("expected (false, nil), got (%v, %v)", updated, err)
		}
	})

	t.Run("toggle twice restores like state", func(t *testing.T) {
		s := newStore(t)
		f := seed(t, s)
		c := postComment(t, s, f.site.ID, "/likes", nil, thread.StatusApproved)

		for _, target := range []struct {
			kind LikeTarget
			id   int64
		}{{TargetComment, c.ID}, {TargetPage, c.PageID}} {
			if _, err := s.ToggleLike(ctx, target.kind, target.id, "user:other"); err != nil {
				t.Fatalf("ToggleLike() error = %v", err)
			}
			first, err := s.ToggleLike(ctx, target.kind, target.id, "anon:abc")
			if err != nil || !first.Liked || first.Total != 2 {
				t.Fatalf("unexpected first toggle %+v (%v)", first, err)
			}
			second, err := s.ToggleLike(ctx, target.kind, target.id, "anon:abc")
			if err != nil || second.Liked || second.Total != 1 {
				t.Fatalf("unexpected second toggle %+v (%v)", second, err)
			}
		}

		state, err := s.SetLike(ctx, TargetComment, c.ID, "anon:abc", true)
		if err != nil || !state.Liked || state.Total != 2 {
			t.Fatalf("unexpected SetLike %+v (%v)", state, err)
		}
		state, _ = s.SetLike(ctx, TargetComment, c.ID, "anon:abc", true)
		if state.Total != 2 {
			t.Fatalf("repeated like must not duplicate, got %+v", state)
		}
		liked, err := s.LikedTargets(ctx, "anon:abc", TargetComment, []int64{c.ID, c.ID + 1000})
		if err != nil || !liked[c.ID] || len(liked) != 1 {
			t.Fatalf("unexpected liked targets %v (%v)", liked, err)
		}
		got, _ := s.GetComment(ctx, c.ID)
		if got.LikeCount != 2 {
			t.Fatalf("expected like_count 2, got %d", got.LikeCount)
		}

		if _, err := s.ToggleLike(ctx, TargetComment, c.ID+1000, "anon:abc"); !isNotFound(err) {
			t.Fatalf("expected NotFoundError for unknown target, got %v", err)
		}
	})

	t.Run("overview and cascade delete", func(t *testing.T) {
		s := newStore(t)
		f := seed(t, s)
		a := postComment(t, s, f.site.ID, "/one", nil, thread.StatusApproved)
		postComment(t, s, f.site.ID, "/two", nil, thread.StatusPending)
		postComment(t, s, f.site.ID, "/two", nil, thread.StatusRejected)
		if _, err := s.ToggleLike(ctx, TargetComment, a.ID, "anon:x"); err != nil {
			t.Fatalf("ToggleLike() error = %v", err)
		}

		overview, err := s.SiteOverview(ctx, f.site.ID)
		if err != nil {
			t.Fatalf("SiteOverview() error = %v", err)
		}
		if overview.Pages != 2 || overview.Likes != 1 || overview.TotalComments() != 3 ||
			overview.Comments[thread.StatusPending] != 1 || overview.Comments[thread.StatusSpam] != 0 {
			t.Fatalf("unexpected overview %+v", overview)
		}

		deleted, err := s.DeleteSite(ctx, f.site.ID)
		if err != nil || !deleted {
			t.Fatalf("DeleteSite() = %v, %v", deleted, err)
		}
		if _, err := s.GetComment(ctx, a.ID); !isNotFound(err) {
			t.Fatalf("expected comments to be removed with the site, got %v", err)
		}
		deleted, _ = s.DeleteSite(ctx, f.site.ID)
		if deleted {
			t.Fatal("expected second delete to report false")
		}
	})
}

func isNotFound(err error) bool {
	var nf *thread.NotFoundError
	return errors.As(err, &nf)
}

func TestMemoryStoreContract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) contractStore {
		return NewMemoryStore()
	})
}

func TestSettingsAccessors(t *testing.T) {
	s := Settings{
		SettingAutoApprove:    true,
		SettingTrustedAuthors: []any{"a", 3, "b"},
		"csv":                 "x, y,,z",
		"flag":                "true",
	}
	if !s.Bool(SettingAutoApprove) || s.Bool("flag") || s.Bool("missing") {
		t.Fatal("unexpected Bool results")
	}
	if got := s.Strings(SettingTrustedAuthors); len(got) != 2 || got[1] != "b" {
		t.Fatalf("unexpected trusted authors %v", got)
	}
	if got := s.Strings("csv"); len(got) != 3 || got[2] != "z" {
		t.Fatalf("unexpected csv list %v", got)
	}
}
