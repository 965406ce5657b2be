package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// ParseDocument decodes a raw campaign document. Campaigns without a
// single valid store link are dropped, not reported.
//
// The per-store identifier maps are known-fragile: some encoders emit
// their values as numbers or nested objects and the strict decode
// rejects them. A type error from the strict pass is therefore not
// fatal; a second, schema-aware pass re-extracts those maps from the
// raw JSON with value coercion and repairs whatever the strict pass
// left empty.
func ParseDocument(raw []byte) (CampaignDocument, error) {
	var doc CampaignDocument
	partial := false
	if err := json.Unmarshal(raw, &doc); err != nil {
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) {
			return CampaignDocument{}, fmt.Errorf("decode campaign document: %w", err)
		}
		partial = true
		log.Warn().Str("field", typeErr.Field).Msg("partial decode failure; repairing store maps from raw payload")
	}

	repairStoreMaps(&doc, raw, partial)

	kept := doc.Campaigns[:0]
	for _, c := range doc.Campaigns {
		if !c.Eligible() {
			log.Debug().Str("campaign", c.ID).Msg("dropping campaign without a usable store link")
			continue
		}
		kept = append(kept, c)
	}
	doc.Campaigns = kept
	return doc, nil
}

// partialCampaign mirrors only the fragile substructures of Campaign,
// deferring value decoding so non-string scalars can be coerced.
type partialCampaign struct {
	Target struct {
		StoreURLs   map[string]json.RawMessage `json:"storeUrls"`
		StoreIDs    map[string]json.RawMessage `json:"storeIds"`
		PlatformIDs map[string]json.RawMessage `json:"platformIds"`
	} `json:"targetProject"`
}

// repairStoreMaps merges store-map entries the structured pass lost
// back in from the raw payload. The strict decoder keeps valid map
// entries and drops only the mismatched ones, so the repair adds
// missing keys rather than replacing whole maps.
func repairStoreMaps(doc *CampaignDocument, raw []byte, partial bool) {
	if !partial && !hasEmptyStoreMaps(doc) {
		return
	}
	var outer struct {
		Campaigns []json.RawMessage `json:"campaigns"`
	}
	if err := json.Unmarshal(raw, &outer); err != nil || len(outer.Campaigns) != len(doc.Campaigns) {
		return
	}
	for i := range doc.Campaigns {
		var pc partialCampaign
		if err := json.Unmarshal(outer.Campaigns[i], &pc); err != nil {
			continue
		}
		t := &doc.Campaigns[i].Target
		t.StoreURLs = mergeCoerced(t.StoreURLs, pc.Target.StoreURLs)
		t.StoreIDs = mergeCoerced(t.StoreIDs, pc.Target.StoreIDs)
		t.PlatformIDs = mergeCoerced(t.PlatformIDs, pc.Target.PlatformIDs)
	}
}

func hasEmptyStoreMaps(doc *CampaignDocument) bool {
	for _, c := range doc.Campaigns {
		if len(c.Target.StoreURLs) == 0 || len(c.Target.StoreIDs) == 0 {
			return true
		}
	}
	return false
}

// mergeCoerced fills keys missing from dst with raw values coerced to
// strings: quoted strings are unquoted, other scalars keep their
// literal text, composites are skipped.
func mergeCoerced(dst map[string]string, raw map[string]json.RawMessage) map[string]string {
	for k, v := range raw {
		if dst[k] != "" {
			continue
		}
		s := strings.TrimSpace(string(v))
		var coerced string
		switch {
		case s == "" || s == "null" || s[0] == '{' || s[0] == '[':
			continue
		case s[0] == '"':
			if err := json.Unmarshal(v, &coerced); err != nil {
				continue
			}
		default:
			coerced = s
		}
		if coerced == "" {
			continue
		}
		if dst == nil {
			dst = make(map[string]string, len(raw))
		}
		dst[k] = coerced
	}
	return dst
}

// UnquoteIfString unwraps a payload that arrives as a JSON-encoded
// string ("{\"campaigns\":...}") into the inner document bytes.
// Already-plain objects pass through unchanged.
func UnquoteIfString(raw []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return trimmed, nil
	}
	var inner string
	if err := json.Unmarshal(trimmed, &inner); err != nil {
		return nil, fmt.Errorf("unquote config payload: %w", err)
	}
	return []byte(inner), nil
}
