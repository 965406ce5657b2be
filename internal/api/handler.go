package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"crosspromo-engine/internal/freshness"
	"crosspromo-engine/internal/icons"
	"crosspromo-engine/internal/model"
	"crosspromo-engine/internal/source"
	"crosspromo-engine/internal/store"
	"crosspromo-engine/internal/storeid"
	"crosspromo-engine/internal/verify"
)

// Handler is the HTTP surface the host application's presentation
// layer consumes: campaign snapshots, verification state, icon bytes
// and freshness for the regenerate button.
type Handler struct {
	Resolver *source.Resolver
	Verifier *verify.Service
	Icons    *icons.Service
	Fresh    *freshness.Tracker

	// SyncKick feeds the background scheduler. Nil disables the
	// background sync mode.
	SyncKick chan<- struct{}
}

func NewHandler(r *source.Resolver, v *verify.Service, ic *icons.Service, f *freshness.Tracker) *Handler {
	return &Handler{Resolver: r, Verifier: v, Icons: ic, Fresh: f}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Campaigns returns the current snapshot plus its sync metadata.
func (h *Handler) Campaigns(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.Resolver.Snapshot()
	if !ok {
		writeError(w, http.StatusNotFound, "no data available")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// ReplaceCampaigns installs an edited document from the editor.
func (h *Handler) ReplaceCampaigns(w http.ResponseWriter, r *http.Request) {
	var doc model.CampaignDocument
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid document: "+err.Error())
		return
	}
	if err := h.Resolver.ReplaceDocument(doc); err != nil {
		if errors.Is(err, store.ErrEmptyDocument) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"campaigns": len(doc.Campaigns)})
}

// Sync triggers the source precedence chain. With background=true the
// request is handed to the scheduler instead, which debounces bursts.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("background") == "true" && h.SyncKick != nil {
		select {
		case h.SyncKick <- struct{}{}:
		default: // a kick is already queued
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}
	snap, err := h.Resolver.Sync(r.Context())
	switch {
	case errors.Is(err, source.ErrSyncInFlight):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, source.ErrNoData):
		writeError(w, http.StatusServiceUnavailable, "no data available - action required")
	case err != nil:
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeJSON(w, http.StatusOK, snap.Metadata)
	}
}

// InvalidateCache discards persisted state. Deliberate mode switches
// only; nothing routes here on sync failure.
func (h *Handler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	if err := h.Resolver.Invalidate(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type verifyRequest struct {
	Platform string `json:"platform"`
	Campaign int    `json:"campaign"`
	Value    string `json:"value"`
}

// Verify schedules a debounced storefront check for one field.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	platform := storeid.Platform(req.Platform)
	if !validPlatform(platform) {
		writeError(w, http.StatusBadRequest, "unknown platform "+req.Platform)
		return
	}
	h.Verifier.RequestVerify(platform, req.Campaign, req.Value)
	w.WriteHeader(http.StatusAccepted)
}

// VerificationRecords returns all cached verification state.
func (h *Handler) VerificationRecords(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Verifier.Records())
}

// Icon serves cached icon bytes for a store id.
func (h *Handler) Icon(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeID")
	b, err := h.Icons.LoadCachedIcon(storeID)
	if err != nil {
		if errors.Is(err, icons.ErrNotCached) {
			writeError(w, http.StatusNotFound, "icon not cached")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

// FetchIcons runs the icon batch for the current snapshot. force=true
// re-downloads entries that are already cached.
func (h *Handler) FetchIcons(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.Resolver.Snapshot()
	if !ok {
		writeError(w, http.StatusNotFound, "no data available")
		return
	}
	force := r.URL.Query().Get("force") == "true"
	res := h.Icons.FetchAll(r.Context(), snap.Document.Campaigns, force)
	writeJSON(w, http.StatusOK, res)
}

type freshnessResponse struct {
	Stale           bool      `json:"stale"`
	Reason          string    `json:"reason"`
	LastGeneratedAt time.Time `json:"lastGeneratedAt,omitempty"`
}

// Freshness reports whether derived artifacts are stale.
func (h *Handler) Freshness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, freshnessResponse{
		Stale:           h.Fresh.IsStale(),
		Reason:          h.Fresh.Reason(),
		LastGeneratedAt: h.Fresh.LastGeneratedAt(),
	})
}

// ArtifactGenerated is the collaborator callback after a successful
// derived-artifact generation.
func (h *Handler) ArtifactGenerated(w http.ResponseWriter, r *http.Request) {
	h.Fresh.MarkGenerated()
	w.WriteHeader(http.StatusNoContent)
}

func validPlatform(p storeid.Platform) bool {
	for _, known := range storeid.Platforms {
		if p == known {
			return true
		}
	}
	return false
}
