package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ankushKun/commentkit-sub001/internal/thread"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

type rowScanner interface {
	Scan(dest ...any) error
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// EnsureUserByEmail returns the user for email, creating it on first login.
// The superadmin flag is only ever raised here, never cleared.
func (s *PostgresStore) EnsureUserByEmail(ctx context.Context, email, displayName string, superadmin bool) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return User{}, thread.Invalid("email", "email is required")
	}
	if displayName == "" {
		displayName = defaultDisplayName(email)
	}

	var user User
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (email, display_name, email_hash, is_superadmin)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO UPDATE SET is_superadmin = users.is_superadmin OR EXCLUDED.is_superadmin
		RETURNING id, email, display_name, email_hash, is_superadmin, created_at
	`, email, displayName, thread.HashEmail(email), superadmin).Scan(
		&user.ID, &user.Email, &user.DisplayName, &user.EmailHash, &user.IsSuperadmin, &user.CreatedAt,
	)
	if err != nil {
		return User{}, fmt.Errorf("upsert user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID int64) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, email_hash, is_superadmin, created_at
		FROM users WHERE id=$1
	`, userID).Scan(&user.ID, &user.Email, &user.DisplayName, &user.EmailHash, &user.IsSuperadmin, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, thread.NotFound("user", userID)
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

const siteColumns = `id, owner_id, name, domain, api_key_prefix, api_key_hash, verification_token, verified, verified_at, settings, created_at, updated_at`

func scanSite(row rowScanner) (Site, error) {
	var site Site
	var verifiedAt sql.NullTime
	var settings []byte
	if err := row.Scan(
		&site.ID, &site.OwnerID, &site.Name, &site.Domain, &site.APIKeyPrefix, &site.APIKeyHash,
		&site.VerificationToken, &site.Verified, &verifiedAt, &settings, &site.CreatedAt, &site.UpdatedAt,
	); err != nil {
		return Site{}, err
	}
	if verifiedAt.Valid {
		at := verifiedAt.Time
		site.VerifiedAt = &at
	}
	site.Settings = Settings{}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &site.Settings); err != nil {
			return Site{}, fmt.Errorf("decode site settings: %w", err)
		}
	}
	return site, nil
}

func encodeSettings(settings Settings) ([]byte, error) {
	if settings == nil {
		settings = Settings{}
	}
	payload, err := json.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("encode site settings: %w", err)
	}
	return payload, nil
}

func (s *PostgresStore) CreateSite(ctx context.Context, input NewSite) (Site, error) {
	settings, err := encodeSettings(input.Settings)
	if err != nil {
		return Site{}, err
	}
	site, err := scanSite(s.db.QueryRowContext(ctx, `
		INSERT INTO sites (owner_id, name, domain, api_key_prefix, api_key_hash, verification_token, settings)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+siteColumns,
		input.OwnerID, input.Name, input.Domain, input.APIKeyPrefix, input.APIKeyHash, input.VerificationToken, settings,
	))
	if isUniqueViolation(err) {
		return Site{}, thread.Conflict(fmt.Sprintf("domain %s is already registered", input.Domain))
	}
	if err != nil {
		return Site{}, fmt.Errorf("insert site: %w", err)
	}
	return site, nil
}

func (s *PostgresStore) GetSite(ctx context.Context, siteID int64) (Site, error) {
	site, err := scanSite(s.db.QueryRowContext(ctx, `SELECT `+siteColumns+` FROM sites WHERE id=$1`, siteID))
	if errors.Is(err, sql.ErrNoRows) {
		return Site{}, thread.NotFound("site", siteID)
	}
	if err != nil {
		return Site{}, fmt.Errorf("get site: %w", err)
	}
	return site, nil
}

func (s *PostgresStore) GetSiteByDomain(ctx context.Context, domain string) (Site, error) {
	site, err := scanSite(s.db.QueryRowContext(ctx, `SELECT `+siteColumns+` FROM sites WHERE domain=$1`, domain))
	if errors.Is(err, sql.ErrNoRows) {
		return Site{}, thread.NotFound("site", domain)
	}
	if err != nil {
		return Site{}, fmt.Errorf("get site by domain: %w", err)
	}
	return site, nil
}

func (s *PostgresStore) querySites(ctx context.Context, query string, args ...any) ([]Site, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	defer rows.Close()

	items := make([]Site, 0)
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		items = append(items, site)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sites: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListSitesByOwner(ctx context.Context, ownerID int64) ([]Site, error) {
	return s.querySites(ctx, `SELECT `+siteColumns+` FROM sites WHERE owner_id=$1 ORDER BY created_at, id`, ownerID)
}

func (s *PostgresStore) ListAllSites(ctx context.Context) ([]Site, error) {
	return s.querySites(ctx, `SELECT `+siteColumns+` FROM sites ORDER BY created_at, id`)
}

func (s *PostgresStore) FindSitesByKeyPrefix(ctx context.Context, prefix string) ([]Site, error) {
	return s.querySites(ctx, `SELECT `+siteColumns+` FROM sites WHERE api_key_prefix=$1`, prefix)
}

func (s *PostgresStore) UpdateSite(ctx context.Context, siteID int64, name string, settings Settings) (Site, error) {
	payload, err := encodeSettings(settings)
	if err != nil {
		return Site{}, err
	}
	site, err := scanSite(s.db.QueryRowContext(ctx, `
		UPDATE sites SET name=$2, settings=$3, updated_at=NOW()
		WHERE id=$1
		RETURNING `+siteColumns, siteID, name, payload))
	if errors.Is(err, sql.ErrNoRows) {
		return Site{}, thread.NotFound("site", siteID)
	}
	if err != nil {
		return Site{}, fmt.Errorf("update site: %w", err)
	}
	return site, nil
}

func (s *PostgresStore) UpdateSiteKey(ctx context.Context, siteID int64, prefix, hash string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sites SET api_key_prefix=$2, api_key_hash=$3, updated_at=NOW() WHERE id=$1
	`, siteID, prefix, hash)
	if err != nil {
		return fmt.Errorf("update site key: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update site key rows: %w", err)
	}
	if affected == 0 {
		return thread.NotFound("site", siteID)
	}
	return nil
}

func (s *PostgresStore) MarkSiteVerified(ctx context.Context, siteID int64, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sites SET verified=TRUE, verified_at=$2, updated_at=NOW() WHERE id=$1
	`, siteID, at)
	if err != nil {
		return fmt.Errorf("mark site verified: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark site verified rows: %w", err)
	}
	if affected == 0 {
		return thread.NotFound("site", siteID)
	}
	return nil
}

// DeleteSite removes a site. Pages, comments and likes go with it through
// ON DELETE CASCADE.
func (s *PostgresStore) DeleteSite(ctx context.Context, siteID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sites WHERE id=$1`, siteID)
	if err != nil {
		return false, fmt.Errorf("delete site: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete site rows: %w", err)
	}
	return affected > 0, nil
}

const pageColumns = `
	p.id, p.site_id, p.slug, p.title, p.url,
	(SELECT COUNT(*) FROM comments c WHERE c.page_id = p.id AND c.status IN ('approved', 'pending'))::int,
	(SELECT COUNT(*) FROM comments c WHERE c.page_id = p.id AND c.status = 'pending')::int,
	(SELECT COUNT(*) FROM likes l WHERE l.target_kind = 'page' AND l.target_id = p.id)::int,
	p.created_at, p.updated_at`

func scanPage(row rowScanner) (Page, error) {
	var page Page
	err := row.Scan(
		&page.ID, &page.SiteID, &page.Slug, &page.Title, &page.URL,
		&page.CommentCount, &page.PendingCount, &page.LikeCount,
		&page.CreatedAt, &page.UpdatedAt,
	)
	return page, err
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ensurePage creates the page row for ref if needed and returns its id.
// Non-empty title and url refresh the stored values.
func ensurePage(ctx context.Context, q queryRower, ref PageRef) (int64, error) {
	var pageID int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO pages (site_id, slug, title, url)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (site_id, slug) DO UPDATE SET
			title = COALESCE(NULLIF(EXCLUDED.title, ''), pages.title),
			url = COALESCE(NULLIF(EXCLUDED.url, ''), pages.url),
			updated_at = CASE
				WHEN (NULLIF(EXCLUDED.title, '') IS NOT NULL AND EXCLUDED.title <> pages.title)
				  OR (NULLIF(EXCLUDED.url, '') IS NOT NULL AND EXCLUDED.url <> pages.url)
				THEN NOW() ELSE pages.updated_at END
		RETURNING id
	`, ref.SiteID, Slug(ref.PageID), strings.TrimSpace(ref.Title), strings.TrimSpace(ref.URL)).Scan(&pageID)
	if err != nil {
		return 0, fmt.Errorf("ensure page: %w", err)
	}
	return pageID, nil
}

func (s *PostgresStore) EnsurePage(ctx context.Context, ref PageRef) (Page, error) {
	pageID, err := ensurePage(ctx, s.db, ref)
	if err != nil {
		return Page{}, err
	}
	return s.GetPage(ctx, pageID)
}

func (s *PostgresStore) GetPage(ctx context.Context, pageID int64) (Page, error) {
	page, err := scanPage(s.db.QueryRowContext(ctx, `SELECT `+pageColumns+` FROM pages p WHERE p.id=$1`, pageID))
	if errors.Is(err, sql.ErrNoRows) {
		return Page{}, thread.NotFound("page", pageID)
	}
	if err != nil {
		return Page{}, fmt.Errorf("get page: %w", err)
	}
	return page, nil
}

func (s *PostgresStore) ListPages(ctx context.Context, siteID int64) ([]Page, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+pageColumns+`
		FROM pages p
		WHERE p.site_id=$1
		ORDER BY p.updated_at DESC, p.id DESC
	`, siteID)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	items := make([]Page, 0)
	for rows.Next() {
		page, err := scanPage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		items = append(items, page)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
	return items, nil
}

const commentColumns = `
	c.id, c.site_id, c.page_id, c.author_user_id, COALESCE(u.display_name, ''), COALESCE(u.email_hash, ''),
	c.guest_name, c.guest_email_hash, c.content, c.parent_id, c.status,
	(SELECT COUNT(*) FROM likes l WHERE l.target_kind = 'comment' AND l.target_id = c.id)::int,
	c.created_at, c.updated_at`

const commentFrom = `
	FROM comments c
	LEFT JOIN users u ON u.id = c.author_user_id`

func scanComment(row rowScanner, extra ...any) (thread.Comment, error) {
	var item thread.Comment
	var userID, parentID sql.NullInt64
	var userName, userHash string
	var guestName, guestHash sql.NullString
	var status string

	dest := []any{
		&item.ID, &item.SiteID, &item.PageID, &userID, &userName, &userHash,
		&guestName, &guestHash, &item.Content, &parentID, &status,
		&item.LikeCount, &item.CreatedAt, &item.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return thread.Comment{}, err
	}

	item.Status = thread.Status(status)
	if parentID.Valid {
		id := parentID.Int64
		item.ParentID = &id
	}
	if userID.Valid {
		item.Author = thread.UserAuthor{ID: userID.Int64, Name: userName, EmailHash: userHash}
	} else {
		item.Author = thread.GuestAuthor{Name: guestName.String, EmailHash: guestHash.String}
	}
	return item, nil
}

func authorColumns(author thread.Author) (userID, guestName, guestHash any) {
	switch a := author.(type) {
	case thread.UserAuthor:
		return a.ID, nil, nil
	case thread.GuestAuthor:
		var hash any
		if a.EmailHash != "" {
			hash = a.EmailHash
		}
		return nil, a.Name, hash
	}
	return nil, nil, nil
}

// CreateComment stores a comment, creating its page on first reference.
// A parent must exist and live on the same page.
func (s *PostgresStore) CreateComment(ctx context.Context, input NewComment) (thread.Comment, error) {
	if input.Author == nil {
		return thread.Comment{}, thread.Invalid("author", "author is required")
	}
	if !input.Status.Valid() {
		return thread.Comment{}, thread.Invalid("status", "invalid initial status")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return thread.Comment{}, fmt.Errorf("begin create comment: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var siteExists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM sites WHERE id=$1 FOR SHARE`, input.Page.SiteID).Scan(&siteExists)
	if errors.Is(err, sql.ErrNoRows) {
		return thread.Comment{}, thread.NotFound("site", input.Page.SiteID)
	}
	if err != nil {
		return thread.Comment{}, fmt.Errorf("lookup site: %w", err)
	}

	pageID, err := ensurePage(ctx, tx, input.Page)
	if err != nil {
		return thread.Comment{}, err
	}

	if input.ParentID != nil {
		var parentPage int64
		err := tx.QueryRowContext(ctx, `SELECT page_id FROM comments WHERE id=$1`, *input.ParentID).Scan(&parentPage)
		if errors.Is(err, sql.ErrNoRows) {
			return thread.Comment{}, thread.NotFound("comment", *input.ParentID)
		}
		if err != nil {
			return thread.Comment{}, fmt.Errorf("lookup parent comment: %w", err)
		}
		if parentPage != pageID {
			return thread.Comment{}, thread.Invalid("parent_id", "parent comment belongs to a different page")
		}
	}

	userID, guestName, guestHash := authorColumns(input.Author)
	var commentID int64
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO comments (site_id, page_id, author_user_id, guest_name, guest_email_hash, content, parent_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, input.Page.SiteID, pageID, userID, guestName, guestHash, input.Content, input.ParentID, string(input.Status)).Scan(&commentID); err != nil {
		return thread.Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE pages SET updated_at=NOW() WHERE id=$1`, pageID); err != nil {
		return thread.Comment{}, fmt.Errorf("touch page: %w", err)
	}

	item, err := scanComment(tx.QueryRowContext(ctx, `SELECT `+commentColumns+commentFrom+` WHERE c.id=$1`, commentID))
	if err != nil {
		return thread.Comment{}, fmt.Errorf("read created comment: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return thread.Comment{}, fmt.Errorf("commit create comment: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) GetComment(ctx context.Context, commentID int64) (thread.Comment, error) {
	item, err := scanComment(s.db.QueryRowContext(ctx, `SELECT `+commentColumns+commentFrom+` WHERE c.id=$1`, commentID))
	if errors.Is(err, sql.ErrNoRows) {
		return thread.Comment{}, thread.NotFound("comment", commentID)
	}
	if err != nil {
		return thread.Comment{}, fmt.Errorf("get comment: %w", err)
	}
	return item, nil
}

// statusFilter maps the list filter to a SQL argument. An empty status means
// the public default (approved only); StatusAll disables the filter.
func statusFilter(status thread.Status) (string, error) {
	switch {
	case status == "":
		return string(thread.StatusApproved), nil
	case status == StatusAll:
		return "", nil
	case status.Valid():
		return string(status), nil
	}
	return "", thread.Invalid("status", "unknown status filter "+string(status))
}

// ListComments returns a page's comments oldest first.
func (s *PostgresStore) ListComments(ctx context.Context, pageID int64, status thread.Status) ([]thread.Comment, error) {
	filter, err := statusFilter(status)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+commentColumns+commentFrom+`
		WHERE c.page_id=$1 AND ($2 = '' OR c.status = $2)
		ORDER BY c.created_at ASC, c.id ASC
	`, pageID, filter)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	items := make([]thread.Comment, 0)
	for rows.Next() {
		item, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return items, nil
}

// ListSiteComments returns the newest comments across a site with their
// page, for the moderation queue and the activity feed.
func (s *PostgresStore) ListSiteComments(ctx context.Context, siteID int64, status thread.Status, limit int) ([]ActivityItem, error) {
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
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+commentColumns+`, p.slug, p.title`+commentFrom+`
		JOIN pages p ON p.id = c.page_id
		WHERE c.site_id=$1 AND ($2 = '' OR c.status = $2)
		ORDER BY c.created_at DESC, c.id DESC
		LIMIT $3
	`, siteID, filter, limit)
	if err != nil {
		return nil, fmt.Errorf("list site comments: %w", err)
	}
	defer rows.Close()

	items := make([]ActivityItem, 0)
	for rows.Next() {
		var item ActivityItem
		comment, err := scanComment(rows, &item.PageSlug, &item.PageTitle)
		if err != nil {
			return nil, fmt.Errorf("scan site comment: %w", err)
		}
		item.Comment = comment
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate site comments: %w", err)
	}
	return items, nil
}

// UpdateCommentStatus sets a comment's status. It reports false for an
// unknown id.
func (s *PostgresStore) UpdateCommentStatus(ctx context.Context, commentID int64, status thread.Status) (bool, error) {
	if !status.Valid() {
		return false, thread.Invalid("status", "unknown status "+string(status))
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE comments
		SET status=$2, updated_at = CASE WHEN status = $2 THEN updated_at ELSE NOW() END
		WHERE id=$1
	`, commentID, string(status))
	if err != nil {
		return false, fmt.Errorf("update comment status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update comment status rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) likeTargetSite(ctx context.Context, q queryRower, target LikeTarget, targetID int64) (int64, error) {
	var query string
	switch target {
	case TargetPage:
		query = `SELECT site_id FROM pages WHERE id=$1`
	case TargetComment:
		query = `SELECT site_id FROM comments WHERE id=$1`
	default:
		return 0, thread.Invalid("target", "unknown like target "+string(target))
	}
	var siteID int64
	err := q.QueryRowContext(ctx, query, targetID).Scan(&siteID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, thread.NotFound(string(target), targetID)
	}
	if err != nil {
		return 0, fmt.Errorf("lookup like target: %w", err)
	}
	return siteID, nil
}

func countLikes(ctx context.Context, q queryRower, target LikeTarget, targetID int64) (int, error) {
	var total int
	if err := q.QueryRowContext(ctx, `
		SELECT COUNT(*)::int FROM likes WHERE target_kind=$1 AND target_id=$2
	`, string(target), targetID).Scan(&total); err != nil {
		return 0, fmt.Errorf("count likes: %w", err)
	}
	return total, nil
}

// ToggleLike flips subject's like on the target. The unique index on
// (subject, target_kind, target_id) keeps concurrent toggles from duplicating.
func (s *PostgresStore) ToggleLike(ctx context.Context, target LikeTarget, targetID int64, subject string) (LikeState, error) {
	siteID, err := s.likeTargetSite(ctx, s.db, target, targetID)
	if err != nil {
		return LikeState{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM likes WHERE subject=$1 AND target_kind=$2 AND target_id=$3
	`, subject, string(target), targetID)
	if err != nil {
		return LikeState{}, fmt.Errorf("delete like: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return LikeState{}, fmt.Errorf("delete like rows: %w", err)
	}

	liked := false
	if affected == 0 {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO likes (site_id, subject, target_kind, target_id)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (subject, target_kind, target_id) DO NOTHING
		`, siteID, subject, string(target), targetID); err != nil {
			return LikeState{}, fmt.Errorf("insert like: %w", err)
		}
		liked = true
	}

	total, err := countLikes(ctx, s.db, target, targetID)
	if err != nil {
		return LikeState{}, err
	}
	return LikeState{Liked: liked, Total: total}, nil
}

// SetLike applies an explicit like or unlike. Repeating it changes nothing.
func (s *PostgresStore) SetLike(ctx context.Context, target LikeTarget, targetID int64, subject string, liked bool) (LikeState, error) {
	siteID, err := s.likeTargetSite(ctx, s.db, target, targetID)
	if err != nil {
		return LikeState{}, err
	}
	if liked {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO likes (site_id, subject, target_kind, target_id)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (subject, target_kind, target_id) DO NOTHING
		`, siteID, subject, string(target), targetID)
	} else {
		_, err = s.db.ExecContext(ctx, `
			DELETE FROM likes WHERE subject=$1 AND target_kind=$2 AND target_id=$3
		`, subject, string(target), targetID)
	}
	if err != nil {
		return LikeState{}, fmt.Errorf("set like: %w", err)
	}

	total, err := countLikes(ctx, s.db, target, targetID)
	if err != nil {
		return LikeState{}, err
	}
	return LikeState{Liked: liked, Total: total}, nil
}

// LikedTargets reports which of ids subject has liked.
func (s *PostgresStore) LikedTargets(ctx context.Context, subject string, target LikeTarget, ids []int64) (map[int64]bool, error) {
	out := make(map[int64]bool, len(ids))
	if subject == "" || len(ids) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT target_id FROM likes
		WHERE subject=$1 AND target_kind=$2 AND target_id = ANY($3)
	`, subject, string(target), ids)
	if err != nil {
		return nil, fmt.Errorf("list liked targets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan liked target: %w", err)
		}
		out[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate liked targets: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) SiteOverview(ctx context.Context, siteID int64) (SiteOverview, error) {
	overview := SiteOverview{SiteID: siteID, Comments: map[thread.Status]int{}}
	for _, status := range thread.Statuses() {
		overview.Comments[status] = 0
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*)::int FROM comments WHERE site_id=$1 GROUP BY status
	`, siteID)
	if err != nil {
		return SiteOverview{}, fmt.Errorf("count comments by status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return SiteOverview{}, fmt.Errorf("scan status count: %w", err)
		}
		overview.Comments[thread.Status(status)] = count
	}
	if err := rows.Err(); err != nil {
		return SiteOverview{}, fmt.Errorf("iterate status counts: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM pages WHERE site_id=$1)::int,
			(SELECT COUNT(*) FROM likes WHERE site_id=$1)::int
	`, siteID).Scan(&overview.Pages, &overview.Likes); err != nil {
		return SiteOverview{}, fmt.Errorf("count site pages and likes: %w", err)
	}
	return overview, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func defaultDisplayName(email string) string {
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}
