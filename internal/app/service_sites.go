package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/ankushKun/commentkit-sub001/internal/export"
	"github.com/ankushKun/commentkit-sub001/internal/rbac"
	"github.com/ankushKun/commentkit-sub001/internal/search"
	"github.com/ankushKun/commentkit-sub001/internal/store"
	"github.com/ankushKun/commentkit-sub001/internal/thread"
	"github.com/ankushKun/commentkit-sub001/internal/util"
	"github.com/ankushKun/commentkit-sub001/internal/widget"
)

const (
	apiKeyPrefix         = "ck_"
	dashboardConcurrency = 4
	activityLimit        = 20
)

// Caller is whoever is calling an owner route: a session, a site key, or both.
type Caller struct {
	Session *Session
	// KeySiteID is the site authenticated by X-Site-Key, zero when absent.
	KeySiteID int64
}

func (c Caller) principalFor(siteID int64) rbac.Principal {
	p := rbac.Principal{SiteKey: c.KeySiteID != 0 && c.KeySiteID == siteID}
	if c.Session != nil {
		p.UserID = c.Session.UserID
		p.IsSuperadmin = c.Session.IsSuperadmin
	}
	return p
}

// authorizeSite loads the site and checks the caller may perform action on it.
func (s *Service) authorizeSite(ctx context.Context, caller Caller, siteID int64, action rbac.Action) (store.Site, error) {
	if caller.Session == nil && caller.KeySiteID == 0 {
		return store.Site{}, thread.Unauthenticated("")
	}
	site, err := s.store.GetSite(ctx, siteID)
	if err != nil {
		return store.Site{}, err
	}
	if !rbac.Can(rbac.RoleOn(caller.principalFor(site.ID), site.OwnerID), action) {
		return store.Site{}, errForbidden
	}
	return site, nil
}

// generateAPIKey returns a new key ck_<prefix>_<secret>, its lookup prefix
// and bcrypt hash.
func (s *Service) generateAPIKey() (key, prefix, hash string, err error) {
	prefix = util.NewSecret(4)
	key = apiKeyPrefix + prefix + "_" + util.NewSecret(24)
	hashed, err := bcrypt.GenerateFromPassword([]byte(key), s.bcryptCost)
	if err != nil {
		return "", "", "", fmt.Errorf("hash api key: %w", err)
	}
	return key, prefix, string(hashed), nil
}

// SiteFromKey authenticates an X-Site-Key header.
func (s *Service) SiteFromKey(ctx context.Context, key string) (store.Site, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(key), apiKeyPrefix)
	if !ok {
		return store.Site{}, thread.Unauthenticated("invalid site key")
	}
	prefix, _, ok := strings.Cut(rest, "_")
	if !ok || prefix == "" {
		return store.Site{}, thread.Unauthenticated("invalid site key")
	}
	candidates, err := s.store.FindSitesByKeyPrefix(ctx, prefix)
	if err != nil {
		return store.Site{}, err
	}
	for _, site := range candidates {
		if bcrypt.CompareHashAndPassword([]byte(site.APIKeyHash), []byte(strings.TrimSpace(key))) == nil {
			return site, nil
		}
	}
	return store.Site{}, thread.Unauthenticated("invalid site key")
}

// seesAllSites reports whether the session may administer every site.
func seesAllSites(sess Session) bool {
	return rbac.Can(viewerRole(&sess, 0), rbac.ActionAdmin)
}

func (s *Service) ListSites(ctx context.Context, sess Session) ([]map[string]any, error) {
	var (
		sites []store.Site
		err   error
	)
	if seesAllSites(sess) {
		sites, err = s.store.ListAllSites(ctx)
	} else {
		sites, err = s.store.ListSitesByOwner(ctx, sess.UserID)
	}
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(sites))
	for _, site := range sites {
		out = append(out, sitePayload(site))
	}
	return out, nil
}

type CreateSiteInput struct {
	Name     string         `json:"name"`
	Domain   string         `json:"domain"`
	Settings store.Settings `json:"settings"`
}

func (s *Service) CreateSite(ctx context.Context, sess Session, input CreateSiteInput) (map[string]any, error) {
	domain := store.NormalizeDomain(input.Domain)
	if domain == "" || !strings.Contains(domain, ".") && domain != "localhost" {
		return nil, thread.Invalid("domain", "a valid domain is required")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = domain
	}
	key, prefix, hash, err := s.generateAPIKey()
	if err != nil {
		return nil, err
	}
	settings := input.Settings
	if settings == nil {
		settings = store.Settings{}
	}

	site, err := s.store.CreateSite(ctx, store.NewSite{
		OwnerID:           sess.UserID,
		Name:              name,
		Domain:            domain,
		APIKeyPrefix:      prefix,
		APIKeyHash:        hash,
		VerificationToken: util.NewID("ckv"),
		Settings:          settings,
	})
	if err != nil {
		return nil, err
	}
	payload := sitePayload(site)
	payload["api_key"] = key
	return payload, nil
}

func (s *Service) GetSite(ctx context.Context, caller Caller, siteID int64) (map[string]any, error) {
	site, err := s.authorizeSite(ctx, caller, siteID, rbac.ActionModerate)
	if err != nil {
		return nil, err
	}
	return sitePayload(site), nil
}

type UpdateSiteInput struct {
	Name *string `json:"name"`
	// Settings are merged into the stored map; a null value removes a key.
	Settings map[string]any `json:"settings"`
}

func (s *Service) UpdateSite(ctx context.Context, caller Caller, siteID int64, input UpdateSiteInput) (map[string]any, error) {
	site, err := s.authorizeSite(ctx, caller, siteID, rbac.ActionModerate)
	if err != nil {
		return nil, err
	}
	name := site.Name
	if input.Name != nil {
		name = strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, thread.Invalid("name", "name cannot be empty")
		}
	}
	settings := store.Settings{}
	for k, v := range site.Settings {
		settings[k] = v
	}
	for k, v := range input.Settings {
		if v == nil {
			delete(settings, k)
			continue
		}
		settings[k] = v
	}

	updated, err := s.store.UpdateSite(ctx, siteID, name, settings)
	if err != nil {
		return nil, err
	}
	s.sites.Remove(site.Domain)
	return sitePayload(updated), nil
}

func (s *Service) DeleteSite(ctx context.Context, caller Caller, siteID int64) error {
	site, err := s.authorizeSite(ctx, caller, siteID, rbac.ActionModerate)
	if err != nil {
		return err
	}
	deleted, err := s.store.DeleteSite(ctx, siteID)
	if err != nil {
		return err
	}
	if !deleted {
		return thread.NotFound("site", siteID)
	}
	s.sites.Remove(site.Domain)
	s.search.DeleteSite(siteID)
	return nil
}

func (s *Service) RotateSiteKey(ctx context.Context, caller Caller, siteID int64) (map[string]any, error) {
	site, err := s.authorizeSite(ctx, caller, siteID, rbac.ActionModerate)
	if err != nil {
		return nil, err
	}
	key, prefix, hash, err := s.generateAPIKey()
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateSiteKey(ctx, siteID, prefix, hash); err != nil {
		return nil, err
	}
	s.sites.Remove(site.Domain)
	return map[string]any{"site_id": siteID, "api_key": key, "api_key_prefix": prefix}, nil
}

// VerifySite fetches the site's verification file and marks the domain
// verified when it holds the expected token.
func (s *Service) VerifySite(ctx context.Context, caller Caller, siteID int64) (map[string]any, error) {
	site, err := s.authorizeSite(ctx, caller, siteID, rbac.ActionModerate)
	if err != nil {
		return nil, err
	}
	if site.Verified {
		return sitePayload(site), nil
	}

	body, err := s.fetchVerification(ctx, site.Domain)
	if err != nil {
		return nil, domainError(http.StatusBadRequest, "VERIFICATION_FAILED", "Could not fetch "+verificationPath, map[string]any{"reason": err.Error()})
	}
	if strings.TrimSpace(body) != site.VerificationToken {
		return nil, domainError(http.StatusBadRequest, "VERIFICATION_FAILED", "Verification token does not match", nil)
	}
	if err := s.store.MarkSiteVerified(ctx, siteID, s.now().UTC()); err != nil {
		return nil, err
	}
	s.sites.Remove(site.Domain)

	verified, err := s.store.GetSite(ctx, siteID)
	if err != nil {
		return nil, err
	}
	return sitePayload(verified), nil
}

func (s *Service) SiteOverview(ctx context.Context, caller Caller, siteID int64) (map[string]any, error) {
	if _, err := s.authorizeSite(ctx, caller, siteID, rbac.ActionModerate); err != nil {
		return nil, err
	}
	overview, err := s.store.SiteOverview(ctx, siteID)
	if err != nil {
		return nil, err
	}
	return overviewPayload(overview), nil
}

func (s *Service) SitePages(ctx context.Context, caller Caller, siteID int64) ([]map[string]any, error) {
	if _, err := s.authorizeSite(ctx, caller, siteID, rbac.ActionModerate); err != nil {
		return nil, err
	}
	pages, err := s.store.ListPages(ctx, siteID)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(pages))
	for _, page := range pages {
		out = append(out, pagePayload(page))
	}
	return out, nil
}

func (s *Service) SiteActivity(ctx context.Context, caller Caller, siteID int64) ([]map[string]any, error) {
	if _, err := s.authorizeSite(ctx, caller, siteID, rbac.ActionModerate); err != nil {
		return nil, err
	}
	items, err := s.store.ListSiteComments(ctx, siteID, "", activityLimit)
	if err != nil {
		return nil, err
	}
	return activityPayload(items), nil
}

func parseStatusFilter(raw string) (thread.Status, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(store.StatusAll):
		return "", nil
	}
	return thread.ParseStatus(raw)
}

// ModerationQueue lists a site's comments, newest first, optionally by status.
func (s *Service) ModerationQueue(ctx context.Context, caller Caller, siteID int64, rawStatus string, limit int) (map[string]any, error) {
	status, err := parseStatusFilter(rawStatus)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorizeSite(ctx, caller, siteID, rbac.ActionModerate); err != nil {
		return nil, err
	}
	items, err := s.store.ListSiteComments(ctx, siteID, status, limit)
	if err != nil {
		return nil, err
	}
	return map[string]any{"comments": activityPayload(items), "count": len(items)}, nil
}

func (s *Service) SearchComments(ctx context.Context, caller Caller, siteID int64, text, rawStatus string, limit, offset int) (search.Response, error) {
	status, err := parseStatusFilter(rawStatus)
	if err != nil {
		return search.Response{}, err
	}
	if _, err := s.authorizeSite(ctx, caller, siteID, rbac.ActionModerate); err != nil {
		return search.Response{}, err
	}
	resp := s.search.Search(ctx, search.Query{SiteID: siteID, Text: text, Status: status, Limit: limit, Offset: offset})
	s.metrics.Searched(resp.Backend)
	return resp, nil
}

func (s *Service) ExportSite(ctx context.Context, caller Caller, siteID int64, rawFormat, rawStatus string, upload bool) (*export.Result, error) {
	format, err := export.ParseFormat(rawFormat)
	if err != nil {
		return nil, err
	}
	status, err := parseStatusFilter(rawStatus)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorizeSite(ctx, caller, siteID, rbac.ActionModerate); err != nil {
		return nil, err
	}
	if upload && !s.exporter.CanUpload() {
		return nil, export.ErrStorageNotConfigured
	}
	return s.exporter.Export(ctx, export.Request{SiteID: siteID, Format: format, Status: status, Upload: upload})
}

type dashboardEntry struct {
	Site     map[string]any   `json:"site"`
	Overview map[string]any   `json:"overview,omitempty"`
	Activity []map[string]any `json:"activity,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// Dashboard loads every site the session can see concurrently. A failing
// site reports its error in its own entry and never fails the aggregate.
func (s *Service) Dashboard(ctx context.Context, sess Session) (map[string]any, error) {
	var (
		sites []store.Site
		err   error
	)
	if seesAllSites(sess) {
		sites, err = s.store.ListAllSites(ctx)
	} else {
		sites, err = s.store.ListSitesByOwner(ctx, sess.UserID)
	}
	if err != nil {
		return nil, err
	}

	entries := make([]dashboardEntry, len(sites))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(dashboardConcurrency)
	for i, site := range sites {
		g.Go(func() error {
			entry := dashboardEntry{Site: sitePayload(site)}
			overview, err := s.store.SiteOverview(gctx, site.ID)
			if err == nil {
				entry.Overview = overviewPayload(overview)
				var items []store.ActivityItem
				items, err = s.store.ListSiteComments(gctx, site.ID, thread.StatusPending, 5)
				entry.Activity = activityPayload(items)
			}
			if err != nil {
				s.logger.Warn("dashboard site load failed", zap.Int64("site_id", site.ID), zap.Error(err))
				entry.Error = err.Error()
				entry.Overview = nil
				entry.Activity = nil
			}
			entries[i] = entry
			return nil
		})
	}
	_ = g.Wait()

	totals := map[string]int{"sites": len(sites), "pending": 0, "comments": 0, "failed": 0}
	for _, entry := range entries {
		if entry.Error != "" {
			totals["failed"]++
			continue
		}
		comments, _ := entry.Overview["comments"].(map[string]int)
		totals["pending"] += comments[string(thread.StatusPending)]
		total, _ := entry.Overview["total_comments"].(int)
		totals["comments"] += total
	}
	return map[string]any{"sites": entries, "totals": totals}, nil
}

// WidgetFrame validates a frame request and returns the instance config.
func (s *Service) WidgetFrame(ctx context.Context, rawDomain, pageID, rawOrigin string) (widget.FrameConfig, error) {
	site, err := s.siteByDomain(ctx, rawDomain)
	if err != nil {
		return widget.FrameConfig{}, err
	}
	if strings.TrimSpace(pageID) == "" {
		return widget.FrameConfig{}, thread.Invalid("pageId", "pageId is required")
	}
	origin, err := widget.NormalizeOrigin(rawOrigin)
	if err != nil {
		return widget.FrameConfig{}, thread.Invalid("origin", err.Error())
	}
	if !hostBelongsTo(store.NormalizeDomain(origin), site.Domain) {
		return widget.FrameConfig{}, errInvalidOrigin
	}
	return widget.FrameConfig{
		Domain:       site.Domain,
		PageID:       strings.TrimSpace(pageID),
		ParentOrigin: origin,
		APIBase:      s.cfg.PublicURL,
		Title:        site.Name + " comments",
	}, nil
}

func hostBelongsTo(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// SiteAllowsOrigin reports whether origin is served by a registered site,
// directly or as one of its subdomains.
func (s *Service) SiteAllowsOrigin(ctx context.Context, origin string) bool {
	host := store.NormalizeDomain(origin)
	for candidate := host; strings.Contains(candidate, "."); {
		if site, err := s.siteByDomain(ctx, candidate); err == nil && hostBelongsTo(host, site.Domain) {
			return true
		}
		_, candidate, _ = strings.Cut(candidate, ".")
	}
	return false
}
