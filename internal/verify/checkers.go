package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"crosspromo-engine/internal/storefront"
	"crosspromo-engine/internal/storeid"
)

// Play listings are rendered pages with no structured API; a real
// listing is a large document that mentions its own package name,
// while "not found" and interstitial pages are small.
const playListingMinBytes = 20_000

var botBlockMarkers = [][]byte{
	[]byte("captcha"),
	[]byte("unusual traffic"),
	[]byte("automated queries"),
	[]byte("Robot Check"),
}

// StoreChecker performs live lookups against the storefront endpoints.
type StoreChecker struct {
	client  *storefront.Client
	catalog storefront.Catalog
}

func NewStoreChecker(client *storefront.Client, catalog storefront.Catalog) *StoreChecker {
	return &StoreChecker{client: client, catalog: catalog}
}

func (c *StoreChecker) Check(ctx context.Context, platform storeid.Platform, value string) (Result, error) {
	switch platform {
	case storeid.Apple:
		return c.checkIOS(ctx, value)
	case storeid.Google:
		return c.checkAndroid(ctx, value)
	case storeid.Amazon:
		return c.checkAmazon(ctx, value)
	case storeid.Microsoft:
		return c.acceptFormatOnly(c.catalog.MicrosoftPageURL(value)), nil
	case storeid.Samsung:
		return c.acceptFormatOnly(c.catalog.SamsungPageURL(value)), nil
	default:
		return c.acceptFormatOnly(""), nil
	}
}

// acceptFormatOnly covers storefronts with no unauthenticated live
// endpoint: a non-empty identifier is accepted on format alone, with
// the listing page URL surfaced for a manual check.
func (c *StoreChecker) acceptFormatOnly(pageURL string) Result {
	detail := "no live check for this storefront"
	if pageURL != "" {
		detail += "; review manually at " + pageURL
	}
	return Result{Status: StatusVerified, Tier: TierFormatOnly, Detail: detail}
}

// checkIOS resolves the numeric ID against the iTunes lookup API.
// resultCount is authoritative; the canonical track name and artwork
// URL are harvested opportunistically.
func (c *StoreChecker) checkIOS(ctx context.Context, value string) (Result, error) {
	id, ok := storeid.NormalizeIOSID(value)
	if !ok {
		return Result{Status: StatusFailed, Detail: "not a valid App Store ID"}, nil
	}

	resp, err := c.client.Get(ctx, c.catalog.ITunesLookupURL(id))
	if err != nil {
		return Result{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("itunes lookup: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		ResultCount int `json:"resultCount"`
		Results     []struct {
			TrackName     string `json:"trackName"`
			ArtworkURL512 string `json:"artworkUrl512"`
		} `json:"results"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return Result{}, fmt.Errorf("itunes lookup: decode response: %w", err)
	}
	if body.ResultCount == 0 {
		return Result{Status: StatusFailed, Detail: "no App Store listing for this ID"}, nil
	}

	res := Result{Status: StatusVerified, Tier: TierConfirmed}
	if len(body.Results) > 0 {
		res.CanonicalName = body.Results[0].TrackName
		res.IconURL = body.Results[0].ArtworkURL512
	}
	return res, nil
}

// checkAndroid fetches the public Play listing and infers success
// heuristically. Bot-blocked responses are reported as a distinct
// condition, not folded into failure.
func (c *StoreChecker) checkAndroid(ctx context.Context, value string) (Result, error) {
	pkg, ok := storeid.NormalizeAndroidPackage(value)
	if !ok {
		return Result{Status: StatusFailed, Detail: "not a valid package name"}, nil
	}

	resp, err := c.client.Get(ctx, c.catalog.PlayListingURL(pkg))
	if err != nil {
		return Result{}, err
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Result{Status: StatusFailed, Detail: "no Play listing for this package"}, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden:
		return Result{Status: StatusBlocked, Detail: "Play listing likely bot-blocked"}, nil
	case resp.StatusCode != http.StatusOK:
		return Result{}, fmt.Errorf("play listing: unexpected status %d", resp.StatusCode)
	}

	if looksBotBlocked(resp.Body) {
		return Result{Status: StatusBlocked, Detail: "Play listing likely bot-blocked"}, nil
	}
	if len(resp.Body) >= playListingMinBytes && bytes.Contains(resp.Body, []byte(pkg)) {
		return Result{Status: StatusVerified, Tier: TierConfirmed}, nil
	}
	return Result{Status: StatusFailed, Detail: "Play listing check inconclusive"}, nil
}

// checkAmazon is a two-tier strategy: primary listing URL, then the
// mobile site, and finally format-only acceptance. The degraded path
// is surfaced through the tier, never hidden.
func (c *StoreChecker) checkAmazon(ctx context.Context, value string) (Result, error) {
	id, kind, ok := storeid.NormalizeAmazonID(value)
	if !ok {
		return Result{Status: StatusFailed, Detail: "not a valid ASIN or package name"}, nil
	}

	primary := c.catalog.AmazonASINURL(id)
	if kind == storeid.AmazonPackage {
		primary = c.catalog.AmazonPackageURL(id)
	}

	if status, conclusive := c.probeAmazon(ctx, primary); conclusive {
		return amazonResult(status, TierConfirmed), nil
	}
	// The mobile site only serves ASIN paths; probing it with a
	// package name would 404 and turn a blocked primary into a false
	// negative.
	if kind == storeid.AmazonASIN {
		if status, conclusive := c.probeAmazon(ctx, c.catalog.AmazonMobileURL(id)); conclusive {
			return amazonResult(status, TierMobileConfirmed), nil
		}
	}
	return Result{
		Status: StatusVerified,
		Tier:   TierFormatOnly,
		Detail: "listing check inconclusive; identifier accepted on format",
	}, nil
}

func amazonResult(status Status, tier Tier) Result {
	if status != StatusVerified {
		return Result{Status: status, Detail: "no Amazon listing for this identifier"}
	}
	return Result{Status: status, Tier: tier}
}

// probeAmazon reports (status, true) only when the response is
// conclusive either way.
func (c *StoreChecker) probeAmazon(ctx context.Context, url string) (Status, bool) {
	resp, err := c.client.Get(ctx, url)
	if err != nil {
		return StatusUnknown, false
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return StatusFailed, true
	case resp.StatusCode != http.StatusOK:
		return StatusUnknown, false
	case looksBotBlocked(resp.Body):
		return StatusUnknown, false
	case len(resp.Body) >= playListingMinBytes:
		return StatusVerified, true
	}
	return StatusUnknown, false
}

func looksBotBlocked(body []byte) bool {
	for _, marker := range botBlockMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	return false
}
