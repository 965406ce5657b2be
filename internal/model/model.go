// Package model defines the campaign document synchronized from the
// remote source plus the metadata recorded alongside it.
package model

import (
	"time"

	"crosspromo-engine/internal/storeid"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// CampaignDocument is the full synchronized snapshot: version info,
// the host project's own identity, and the promoted campaigns.
type CampaignDocument struct {
	Version   VersionInfo   `json:"versionInfo"`
	Project   SourceProject `json:"sourceProject"`
	Campaigns []Campaign    `json:"campaigns"`
}

// VersionInfo is informational only; nothing branches on it.
type VersionInfo struct {
	API         string    `json:"apiVersion"`
	Schema      string    `json:"schemaVersion"`
	Contract    string    `json:"contractVersion"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// SourceProject describes the host application itself. The remote
// source owns these values; local code treats them as read-only
// aside from cached fallback copies.
type SourceProject struct {
	BundleID       string            `json:"bundleId"`
	StoreIDs       map[string]string `json:"storeIds"`
	StoreURLs      map[string]string `json:"storeUrls"`
	MinSessions    int               `json:"minSessions"`
	MinDays        int               `json:"minDays"`
	FrequencyCap   FrequencyCap      `json:"frequencyCap"`
	DefaultTitle   string            `json:"defaultTitle"`
	DefaultTagline string            `json:"defaultTagline"`
}

// FrequencyCap limits how often a campaign may be shown.
// Impressions == 0 means unlimited.
type FrequencyCap struct {
	Impressions int    `json:"impressions"`
	TimeUnit    string `json:"timeUnit"`
}

func (f FrequencyCap) Unlimited() bool { return f.Impressions == 0 }

type Schedule struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Campaign is one cross-promotion entry. A nil FrequencyCap inherits
// the SourceProject-level cap.
type Campaign struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Status       Status        `json:"status"`
	FrequencyCap *FrequencyCap `json:"frequencyCap,omitempty"`
	Schedule     *Schedule     `json:"schedule,omitempty"`
	Target       TargetProject `json:"targetProject"`
}

// EffectiveCap resolves the per-campaign override against the global cap.
func (c Campaign) EffectiveCap(global FrequencyCap) FrequencyCap {
	if c.FrequencyCap != nil {
		return *c.FrequencyCap
	}
	return global
}

// TargetProject identifies the advertised application across storefronts.
// Map keys are storeid.Platform values.
type TargetProject struct {
	ProjectID   string            `json:"projectId"`
	StoreURLs   map[string]string `json:"storeUrls"`
	StoreIDs    map[string]string `json:"storeIds"`
	PlatformIDs map[string]string `json:"platformIds"`
	Creatives   []Creative        `json:"creatives,omitempty"`
}

// StoreURL returns the explicit URL entered for the platform, or ""
// when none was set. Callers needing an identifier fall back to
// StoreID themselves; URLs are never synthesized here.
func (t TargetProject) StoreURL(p storeid.Platform) string {
	return t.StoreURLs[string(p)]
}

func (t TargetProject) StoreID(p storeid.Platform) string {
	return t.StoreIDs[string(p)]
}

type Creative struct {
	CreativeID string            `json:"creativeId"`
	Format     string            `json:"format"`
	Variants   []CreativeVariant `json:"variants,omitempty"`
}

// CreativeVariant carries a remote URL or a derived local cache key,
// never both required.
type CreativeVariant struct {
	URL      string `json:"url,omitempty"`
	LocalKey string `json:"localKey,omitempty"`
}

// SyncMetadata records where, when and under which revision the
// current document was obtained. Updated only on a successful,
// non-empty sync.
type SyncMetadata struct {
	Source    string    `json:"source"` // api | remote-config | backup-file
	Timestamp time.Time `json:"timestamp"`
	Revision  int       `json:"revision"`
	RunID     string    `json:"runId"`
}

const (
	SourceAPI          = "api"
	SourceRemoteConfig = "remote-config"
	SourceBackupFile   = "backup-file"
)

// IOSStoreID extracts the normalized numeric App Store ID for the
// target, from either the stored ID or the store URL.
func (c Campaign) IOSStoreID() (string, bool) {
	if id, ok := storeid.NormalizeIOSID(c.Target.StoreID(storeid.Apple)); ok {
		return id, true
	}
	return storeid.NormalizeIOSID(c.Target.StoreURL(storeid.Apple))
}

// AndroidPackage extracts the validated package name for the target,
// from the stored ID or the Play listing URL's id query parameter.
func (c Campaign) AndroidPackage() (string, bool) {
	if pkg, ok := storeid.NormalizeAndroidPackage(c.Target.StoreID(storeid.Google)); ok {
		return pkg, true
	}
	u := c.Target.StoreURL(storeid.Google)
	if i := indexAfter(u, "id="); i >= 0 {
		end := i
		for end < len(u) && u[end] != '&' && u[end] != '#' {
			end++
		}
		return storeid.NormalizeAndroidPackage(u[i:end])
	}
	return "", false
}

func indexAfter(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i + len(sub)
		}
	}
	return -1
}

// Eligible reports whether the campaign carries at least one valid
// store link (iOS or Android at minimum). Campaigns failing this are
// dropped at parse time rather than surfaced as errors.
func (c Campaign) Eligible() bool {
	if _, ok := c.IOSStoreID(); ok {
		return true
	}
	if _, ok := c.AndroidPackage(); ok {
		return true
	}
	return false
}
