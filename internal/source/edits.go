package source

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"crosspromo-engine/internal/model"
	"crosspromo-engine/internal/observability"
)

// SetCampaignNameIfEmpty fills a campaign's display name with the
// canonical store name harvested during verification. A name the
// editor already set is never overwritten.
func (r *Resolver) SetCampaignNameIfEmpty(index int, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap, ok := r.snap.Load()
	if !ok || index < 0 || index >= len(snap.Document.Campaigns) {
		return
	}
	if snap.Document.Campaigns[index].Name != "" || name == "" {
		return
	}

	doc := snap.Document
	doc.Campaigns = append([]model.Campaign(nil), doc.Campaigns...)
	doc.Campaigns[index].Name = name

	snap.Document = doc
	r.snap.Store(snap)
	if err := r.files.Save(doc, snap.Metadata); err != nil {
		log.Warn().Err(err).Msg("persist harvested campaign name")
	}
	r.fresh.MarkDirty("campaign name auto-filled")
	log.Info().Int("campaign", index).Str("name", name).Msg("campaign name auto-filled from store listing")
}

// ReplaceDocument installs an edited document coming from the
// presentation layer, marking derived artifacts stale and persisting
// under the current metadata. The empty-overwrite guard still holds.
func (r *Resolver) ReplaceDocument(doc model.CampaignDocument) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap, _ := r.snap.Load()
	snap.Document = doc
	if err := r.files.Save(doc, snap.Metadata); err != nil {
		return fmt.Errorf("persist edited document: %w", err)
	}
	r.snap.Store(snap)
	observability.SnapshotCampaigns.Set(float64(len(doc.Campaigns)))
	r.fresh.MarkDirty("campaigns edited locally")
	return nil
}

// Invalidate discards persisted state on a deliberate mode switch.
// Failed syncs never route through here.
func (r *Resolver) Invalidate() error {
	if err := r.files.Invalidate(); err != nil {
		return err
	}
	r.snap.Store(Snapshot{})
	observability.SnapshotCampaigns.Set(0)
	r.fresh.MarkDirty("local state discarded")
	return nil
}
