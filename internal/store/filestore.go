// Package store persists the last successfully synchronized campaign
// document across process restarts.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"

	"crosspromo-engine/internal/model"
)

// ErrEmptyDocument is returned when a save would overwrite a
// non-empty persisted document with an empty campaign list. Every
// upstream fetch failure must degrade to "keep showing old data",
// never to "show nothing".
var ErrEmptyDocument = errors.New("refusing to overwrite cached document with empty campaign list")

// FileStore keeps one JSON document (campaign document + sync
// metadata) on disk. Writes are whole-file replacements via a temp
// file rename, so a restart never observes a torn document.
type FileStore struct {
	mu   sync.Mutex
	path string
}

type persisted struct {
	Document model.CampaignDocument `json:"document"`
	Metadata model.SyncMetadata     `json:"metadata"`
}

func New(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string { return s.path }

// Save persists the document and metadata. The write is refused with
// ErrEmptyDocument when doc carries no campaigns while the current
// persisted document carries some.
func (s *FileStore) Save(doc model.CampaignDocument, meta model.SyncMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(doc.Campaigns) == 0 {
		if prev, ok := s.read(); ok && len(prev.Document.Campaigns) > 0 {
			return ErrEmptyDocument
		}
	}

	data, err := json.MarshalIndent(persisted{Document: doc, Metadata: meta}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cached document: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write cached document: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace cached document: %w", err)
	}
	log.Debug().Str("path", s.path).Int("campaigns", len(doc.Campaigns)).Msg("cached document saved")
	return nil
}

// Load returns the last successfully saved document. ok is false only
// when nothing has ever been saved (or the file is unreadable).
func (s *FileStore) Load() (model.CampaignDocument, model.SyncMetadata, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.read()
	if !ok {
		return model.CampaignDocument{}, model.SyncMetadata{}, false
	}
	return p.Document, p.Metadata, true
}

// Invalidate removes the persisted document. Only deliberate mode
// switches call this; a failed sync never does.
func (s *FileStore) Invalidate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("invalidate cached document: %w", err)
	}
	return nil
}

func (s *FileStore) read() (persisted, bool) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return persisted{}, false
	}
	var p persisted
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("cached document unreadable")
		return persisted{}, false
	}
	return p, true
}
