// Package export renders a site's comment threads as a moderation report.
package export

import (
	"errors"
	"time"

	"github.com/ankushKun/commentkit-sub001/internal/thread"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatPDF  Format = "pdf"
)

func ParseFormat(value string) (Format, error) {
	switch Format(value) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatPDF:
		return FormatPDF, nil
	}
	return "", thread.Invalid("format", "format must be json or pdf")
}

// Request contains parameters for an export operation
type Request struct {
	SiteID int64
	Format Format
	// Status limits the comments included; empty exports every status.
	Status thread.Status
	// Upload stores the result in object storage and returns a download URL.
	Upload bool
}

// Report is the document that gets rendered.
type Report struct {
	SiteName    string       `json:"site_name"`
	Domain      string       `json:"domain"`
	GeneratedAt time.Time    `json:"generated_at"`
	Status      string       `json:"status"`
	Totals      Totals       `json:"totals"`
	Pages       []ReportPage `json:"pages"`
}

type Totals struct {
	Pages    int `json:"pages"`
	Comments int `json:"comments"`
}

type ReportPage struct {
	Slug     string         `json:"slug"`
	Title    string         `json:"title"`
	URL      string         `json:"url"`
	Comments int            `json:"comment_count"`
	Threads  []*thread.Node `json:"threads"`
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
	// URL is set when the result was uploaded.
	URL string
}

var (
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrStorageNotConfigured is returned for uploads without object storage.
	ErrStorageNotConfigured = errors.New("export storage not configured")
)
