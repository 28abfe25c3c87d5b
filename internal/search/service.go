package search

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
// Either backend may be nil; with neither, searches return no results.
type Service struct {
	meili  *Meili
	pgfts  *PgFTS
	logger *zap.Logger
}

func NewService(meili *Meili, pgfts *PgFTS, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{meili: meili, pgfts: pgfts, logger: logger}
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	q.Text = strings.TrimSpace(q.Text)
	empty := Response{Results: []Result{}, Query: q.Text, Backend: "none"}
	if q.Text == "" {
		return empty
	}

	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: "meilisearch"}
		}
		s.logger.Warn("meilisearch error, falling back to pgfts", zap.Error(err))
	}

	if s.pgfts == nil {
		return empty
	}
	results, total, err := s.pgfts.Search(ctx, q)
	if err != nil {
		s.logger.Error("pgfts search failed", zap.Error(err))
		return empty
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: "postgres"}
}

// IndexComment adds or updates a comment (fire-and-forget to Meilisearch).
func (s *Service) IndexComment(record CommentRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexComments([]CommentRecord{record}); err != nil {
			s.logger.Warn("index comment failed", zap.String("comment_id", record.ID), zap.Error(err))
		}
	}()
}

// DeleteSite drops every indexed comment of a site (fire-and-forget).
func (s *Service) DeleteSite(siteID int64) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteSite(siteID); err != nil {
			s.logger.Warn("delete site from index failed", zap.Int64("site_id", siteID), zap.Error(err))
		}
	}()
}

// ReindexAllFromPG pushes every stored comment into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	records, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		s.logger.Warn("reindex load failed", zap.Error(err))
		return
	}
	if err := s.meili.IndexComments(records); err != nil {
		s.logger.Warn("reindex comments failed", zap.Error(err))
		return
	}
	s.logger.Info("reindexed comments", zap.Int("count", len(records)))
}

func (s *Service) Close() {
	if s.meili != nil {
		s.meili.Close()
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
