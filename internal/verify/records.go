package verify

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"crosspromo-engine/internal/storeid"
)

// Key identifies one verified field: a campaign index plus a
// storefront. It replaces the ad-hoc "{index}_{platform}" strings
// with a composite type usable as a map key.
type Key struct {
	Campaign int
	Platform storeid.Platform
}

func (k Key) String() string { return fmt.Sprintf("%d:%s", k.Campaign, k.Platform) }

func (k Key) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Key) UnmarshalText(text []byte) error {
	var idx int
	var platform string
	if _, err := fmt.Sscanf(string(text), "%d:%s", &idx, &platform); err != nil {
		return fmt.Errorf("parse verification key %q: %w", text, err)
	}
	k.Campaign = idx
	k.Platform = storeid.Platform(platform)
	return nil
}

// Status is the outcome of the most recent check for a key.
type Status string

const (
	StatusUnknown  Status = "unknown"
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusFailed   Status = "failed"
	StatusBlocked  Status = "blocked" // listing likely bot-blocked, not a negative result
)

// Tier records which strategy produced a verified result. Degraded
// acceptance is deliberate: bot protection must not turn valid
// identifiers into false negatives.
type Tier string

const (
	TierConfirmed       Tier = "confirmed"
	TierMobileConfirmed Tier = "mobile-confirmed"
	TierFormatOnly      Tier = "format-only"
)

// Record is the cached verification state for one key. Unchanged
// input values are never re-verified thanks to LastVerifiedValue.
type Record struct {
	Platform          storeid.Platform `json:"platform"`
	LastVerifiedValue string           `json:"lastVerifiedValue"`
	Verified          bool             `json:"verified"`
	Status            Status           `json:"status"`
	Tier              Tier             `json:"tier,omitempty"`
	CanonicalName     string           `json:"canonicalName,omitempty"`
	IconURL           string           `json:"iconUrl,omitempty"`
	Detail            string           `json:"detail,omitempty"`
	CheckedAt         time.Time        `json:"checkedAt"`
}

// RecordStore persists verification records as one JSON file so that
// unchanged fields survive process restarts without re-verification.
type RecordStore struct {
	mu   sync.Mutex
	path string
}

func NewRecordStore(path string) *RecordStore {
	return &RecordStore{path: path}
}

func (s *RecordStore) Load() map[Key]Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return map[Key]Record{}
	}
	records := map[Key]Record{}
	if err := json.Unmarshal(data, &records); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("verification cache unreadable; starting empty")
		return map[Key]Record{}
	}
	return records
}

func (s *RecordStore) Save(records map[Key]Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal verification records: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write verification records: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace verification records: %w", err)
	}
	return nil
}
