package search

import (
	"context"
	"database/sql"
	"fmt"
)

// PgFTS implements Searcher over the comments.search_vector column.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	const where = `
		FROM comments c
		JOIN pages pg ON pg.id = c.page_id
		LEFT JOIN users u ON u.id = c.author_user_id
		WHERE c.site_id = $1
		  AND c.search_vector @@ plainto_tsquery('english', $2)
		  AND ($3 = '' OR c.status = $3)`

	var total int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*)::int `+where, q.SiteID, q.Text, string(q.Status)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT c.id, c.page_id, pg.slug, COALESCE(u.display_name, c.guest_name, ''),
			ts_headline('english', c.content, plainto_tsquery('english', $2),
				'StartSel=<mark>,StopSel=</mark>,MaxFragments=1,MaxWords=30'),
			c.status, c.created_at
		`+where+`
		ORDER BY ts_rank(c.search_vector, plainto_tsquery('english', $2)) DESC, c.created_at DESC
		LIMIT $4 OFFSET $5
	`, q.SiteID, q.Text, string(q.Status), q.limit(), q.offset())
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.CommentID, &r.PageID, &r.PageSlug, &r.Author, &r.Snippet, &r.Status, &r.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Snippet = safeSnippet(r.Snippet)
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns every comment for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]CommentRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT c.id::text, c.id, c.site_id, c.page_id, pg.slug, COALESCE(u.display_name, c.guest_name, ''),
			c.content, c.status, EXTRACT(EPOCH FROM c.created_at)::bigint
		FROM comments c
		JOIN pages pg ON pg.id = c.page_id
		LEFT JOIN users u ON u.id = c.author_user_id
	`)
	if err != nil {
		return nil, fmt.Errorf("load comments: %w", err)
	}
	defer rows.Close()

	records := make([]CommentRecord, 0)
	for rows.Next() {
		var r CommentRecord
		if err := rows.Scan(&r.ID, &r.CommentID, &r.SiteID, &r.PageID, &r.PageSlug, &r.Author, &r.Content, &r.Status, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comment records: %w", err)
	}
	return records, nil
}
