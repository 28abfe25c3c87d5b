package export

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ankushKun/commentkit-sub001/internal/store"
	"github.com/ankushKun/commentkit-sub001/internal/thread"
)

// DataStore is the read surface the exporter needs.
type DataStore interface {
	GetSite(ctx context.Context, siteID int64) (store.Site, error)
	ListPages(ctx context.Context, siteID int64) ([]store.Page, error)
	ListComments(ctx context.Context, pageID int64, status thread.Status) ([]thread.Comment, error)
}

// Uploader stores a finished export and returns a time-limited download URL.
type Uploader interface {
	Upload(ctx context.Context, name string, data []byte, contentType string) (string, error)
}

type Service struct {
	store     DataStore
	uploader  Uploader
	renderPDF func(ctx context.Context, html, title string) (*Result, error)
	now       func() time.Time
}

// NewService creates an export service. uploader may be nil.
func NewService(dataStore DataStore, uploader Uploader) *Service {
	return &Service{
		store:     dataStore,
		uploader:  uploader,
		renderPDF: exportPDF,
		now:       time.Now,
	}
}

func (s *Service) CanUpload() bool {
	return s.uploader != nil
}

// BuildReport loads every page of a site with its assembled comment tree.
func (s *Service) BuildReport(ctx context.Context, siteID int64, status thread.Status) (Report, error) {
	site, err := s.store.GetSite(ctx, siteID)
	if err != nil {
		return Report{}, err
	}
	pages, err := s.store.ListPages(ctx, siteID)
	if err != nil {
		return Report{}, fmt.Errorf("list pages: %w", err)
	}

	filter := status
	if filter == "" {
		filter = store.StatusAll
	}
	report := Report{
		SiteName:    site.Name,
		Domain:      site.Domain,
		GeneratedAt: s.now().UTC(),
		Status:      string(filter),
		Pages:       make([]ReportPage, 0, len(pages)),
	}
	for _, page := range pages {
		comments, err := s.store.ListComments(ctx, page.ID, filter)
		if err != nil {
			return Report{}, fmt.Errorf("list comments for page %d: %w", page.ID, err)
		}
		if len(comments) == 0 {
			continue
		}
		report.Pages = append(report.Pages, ReportPage{
			Slug:     page.Slug,
			Title:    page.Title,
			URL:      page.URL,
			Comments: len(comments),
			Threads:  thread.Assemble(comments),
		})
		report.Totals.Comments += len(comments)
	}
	report.Totals.Pages = len(report.Pages)
	return report, nil
}

func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	if req.Upload && s.uploader == nil {
		return nil, ErrStorageNotConfigured
	}
	report, err := s.BuildReport(ctx, req.SiteID, req.Status)
	if err != nil {
		return nil, err
	}

	base := sanitizeFilename(report.Domain) + "-comments-" + report.GeneratedAt.Format("20060102-150405")
	var result *Result
	switch req.Format {
	case FormatJSON, "":
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode report: %w", err)
		}
		result = &Result{Data: data, Filename: base + ".json", MimeType: "application/json"}
	case FormatPDF:
		html, err := RenderReportHTML(report)
		if err != nil {
			return nil, fmt.Errorf("render template: %w", err)
		}
		result, err = s.renderPDF(ctx, html, base)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}

	if req.Upload {
		url, err := s.uploader.Upload(ctx, result.Filename, result.Data, result.MimeType)
		if err != nil {
			return nil, fmt.Errorf("upload export: %w", err)
		}
		result.URL = url
	}
	return result, nil
}
