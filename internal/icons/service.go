// Package icons obtains one representative icon image per campaign
// and keeps it in an on-disk cache for offline use. Cache entries are
// keyed by normalized store id, not campaign id, so they stay stable
// across campaign id churn.
package icons

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"crosspromo-engine/internal/model"
	"crosspromo-engine/internal/observability"
	"crosspromo-engine/internal/storefront"
	"crosspromo-engine/internal/storeid"
)

var (
	ErrNoIconSource = errors.New("campaign has no resolvable icon source")
	ErrNotCached    = errors.New("icon not cached")
)

// maxBatchErrors bounds the error list a batch report carries.
const maxBatchErrors = 10

type Config struct {
	Dir        string
	FetchDelay time.Duration // spacing between downloads in batch mode
}

type Service struct {
	cfg     Config
	client  *storefront.Client
	catalog storefront.Catalog

	// ArtworkHint, when set, supplies an icon URL already harvested
	// for an iOS store id so resolution can skip the lookup call.
	ArtworkHint func(iosID string) (string, bool)
}

func NewService(cfg Config, client *storefront.Client, catalog storefront.Catalog) *Service {
	if cfg.FetchDelay <= 0 {
		cfg.FetchDelay = 500 * time.Millisecond
	}
	return &Service{cfg: cfg, client: client, catalog: catalog}
}

// Resolve finds an icon URL for the campaign plus the cache key it
// should be stored under. Priority: an explicit icon creative variant,
// then iTunes artwork via the numeric ID, then the Play listing page.
func (s *Service) Resolve(ctx context.Context, c model.Campaign) (url, key string, err error) {
	if u := explicitIconURL(c); u != "" {
		if k, ok := cacheKeyFor(c); ok {
			return u, k, nil
		}
	}
	if id, ok := c.IOSStoreID(); ok {
		if s.ArtworkHint != nil {
			if u, ok := s.ArtworkHint(id); ok {
				return u, storeid.SanitizeForKey(id), nil
			}
		}
		if u, err := s.itunesArtworkURL(ctx, id); err == nil && u != "" {
			return u, storeid.SanitizeForKey(id), nil
		} else if err != nil {
			log.Debug().Err(err).Str("campaign", c.ID).Msg("itunes artwork resolution failed; trying Play listing")
		}
	}
	if pkg, ok := c.AndroidPackage(); ok {
		u, err := s.playIconURL(ctx, pkg)
		if err != nil {
			return "", "", fmt.Errorf("resolve icon from Play listing: %w", err)
		}
		return u, storeid.SanitizeForKey(pkg), nil
	}
	return "", "", ErrNoIconSource
}

// FetchAndCache resolves and downloads the campaign's icon. The call
// is idempotent: an already-cached entry short-circuits before any
// network traffic unless force is set (explicit refresh).
func (s *Service) FetchAndCache(ctx context.Context, c model.Campaign, force bool) (key string, downloaded bool, err error) {
	if !force {
		if k, ok := cacheKeyFor(c); ok && s.exists(k) {
			return k, false, nil
		}
	}

	url, key, err := s.Resolve(ctx, c)
	if err != nil {
		observability.IconFetches.WithLabelValues("resolve_failed").Inc()
		return "", false, err
	}
	if !force && s.exists(key) {
		return key, false, nil
	}

	resp, err := s.client.Get(ctx, url)
	if err != nil {
		observability.IconFetches.WithLabelValues("download_failed").Inc()
		return "", false, fmt.Errorf("download icon: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		observability.IconFetches.WithLabelValues("download_failed").Inc()
		return "", false, fmt.Errorf("download icon: unexpected status %d", resp.StatusCode)
	}

	if err := s.write(key, resp.Body); err != nil {
		observability.IconFetches.WithLabelValues("write_failed").Inc()
		return "", false, err
	}
	observability.IconFetches.WithLabelValues("ok").Inc()
	log.Info().Str("campaign", c.ID).Str("key", key).Int("bytes", len(resp.Body)).Msg("icon cached")
	return key, true, nil
}

// BatchResult aggregates one FetchAllMissing run.
type BatchResult struct {
	Fetched int      `json:"fetched"`
	Skipped int      `json:"skipped"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

// FetchAllMissing downloads icons for every campaign that lacks a
// cache entry, sequentially with a small inter-request delay. One
// item's failure never aborts the batch.
func (s *Service) FetchAllMissing(ctx context.Context, campaigns []model.Campaign) BatchResult {
	return s.FetchAll(ctx, campaigns, false)
}

// FetchAll is the force-capable batch: with force set every cached
// entry is re-downloaded and overwritten (explicit refresh requests).
func (s *Service) FetchAll(ctx context.Context, campaigns []model.Campaign, force bool) BatchResult {
	var res BatchResult
	for i, c := range campaigns {
		if !force {
			if k, ok := cacheKeyFor(c); ok && s.exists(k) {
				res.Skipped++
				continue
			}
		}
		if i > 0 {
			select {
			case <-time.After(s.cfg.FetchDelay):
			case <-ctx.Done():
				res.Failed++
				res.Errors = appendBounded(res.Errors, fmt.Sprintf("%s: %v", c.ID, ctx.Err()))
				return res
			}
		}
		if _, downloaded, err := s.FetchAndCache(ctx, c, force); err != nil {
			res.Failed++
			res.Errors = appendBounded(res.Errors, fmt.Sprintf("%s: %v", c.ID, err))
		} else if downloaded {
			res.Fetched++
		} else {
			res.Skipped++
		}
	}
	log.Info().Int("fetched", res.Fetched).Int("skipped", res.Skipped).Int("failed", res.Failed).Msg("icon batch finished")
	return res
}

// CachedIcon returns the cached bytes for a campaign, trying the
// iOS-derived key first and then the Android-derived one.
func (s *Service) CachedIcon(c model.Campaign) ([]byte, string, error) {
	if id, ok := c.IOSStoreID(); ok {
		if b, err := s.LoadCachedIcon(id); err == nil {
			return b, storeid.SanitizeForKey(id), nil
		}
	}
	if pkg, ok := c.AndroidPackage(); ok {
		if b, err := s.LoadCachedIcon(pkg); err == nil {
			return b, storeid.SanitizeForKey(pkg), nil
		}
	}
	return nil, "", ErrNotCached
}

// LoadCachedIcon returns the bytes cached under a store id.
func (s *Service) LoadCachedIcon(storeID string) ([]byte, error) {
	b, err := os.ReadFile(s.path(storeid.SanitizeForKey(storeID)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotCached
		}
		return nil, fmt.Errorf("read cached icon: %w", err)
	}
	return b, nil
}

func (s *Service) path(key string) string {
	return filepath.Join(s.cfg.Dir, key+"_icon.png")
}

func (s *Service) exists(key string) bool {
	_, err := os.Stat(s.path(key))
	return err == nil
}

func (s *Service) write(key string, data []byte) error {
	if err := os.MkdirAll(s.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("create icon cache dir: %w", err)
	}
	tmp := s.path(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write icon: %w", err)
	}
	if err := os.Rename(tmp, s.path(key)); err != nil {
		return fmt.Errorf("replace icon: %w", err)
	}
	return nil
}

// itunesArtworkURL derives an icon URL from the iTunes lookup API.
func (s *Service) itunesArtworkURL(ctx context.Context, iosID string) (string, error) {
	resp, err := s.client.Get(ctx, s.catalog.ITunesLookupURL(iosID))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("itunes lookup: unexpected status %d", resp.StatusCode)
	}
	var body struct {
		ResultCount int `json:"resultCount"`
		Results     []struct {
			ArtworkURL512 string `json:"artworkUrl512"`
			ArtworkURL100 string `json:"artworkUrl100"`
		} `json:"results"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return "", fmt.Errorf("itunes lookup: decode response: %w", err)
	}
	if body.ResultCount == 0 || len(body.Results) == 0 {
		return "", fmt.Errorf("itunes lookup: no listing for id %s", iosID)
	}
	if u := body.Results[0].ArtworkURL512; u != "" {
		return u, nil
	}
	return body.Results[0].ArtworkURL100, nil
}

func explicitIconURL(c model.Campaign) string {
	for _, cr := range c.Target.Creatives {
		if !strings.EqualFold(cr.Format, "icon") {
			continue
		}
		for _, v := range cr.Variants {
			if v.URL != "" {
				return v.URL
			}
		}
	}
	return ""
}

// cacheKeyFor picks the cache key a campaign's icon lives under:
// the normalized iOS store id when available, else the package name.
func cacheKeyFor(c model.Campaign) (string, bool) {
	if id, ok := c.IOSStoreID(); ok {
		return storeid.SanitizeForKey(id), true
	}
	if pkg, ok := c.AndroidPackage(); ok {
		return storeid.SanitizeForKey(pkg), true
	}
	return "", false
}

func appendBounded(errs []string, msg string) []string {
	if len(errs) >= maxBatchErrors {
		return errs
	}
	return append(errs, msg)
}
