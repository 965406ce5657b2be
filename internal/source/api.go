package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"crosspromo-engine/internal/model"
)

// ErrProjectNotFound marks an authenticated lookup whose project does
// not exist on the API side.
var ErrProjectNotFound = errors.New("project not found on live API")

// apiEnvelope mirrors the live API response shape. boostops_config
// arrives either as a JSON object or as a JSON-encoded string.
type apiEnvelope struct {
	Found   bool `json:"found"`
	Project struct {
		Config json.RawMessage `json:"boostops_config"`
	} `json:"project"`
}

func (r *Resolver) fetchAPI(ctx context.Context) (model.CampaignDocument, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	url := fmt.Sprintf("%s/v1/projects/%s", r.cfg.APIBaseURL, r.cfg.ProjectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.CampaignDocument{}, fmt.Errorf("build API request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.cfg.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpc.Do(req)
	if err != nil {
		return model.CampaignDocument{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.CampaignDocument{}, fmt.Errorf("live API: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.CampaignDocument{}, fmt.Errorf("read API response: %w", err)
	}

	var env apiEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return model.CampaignDocument{}, fmt.Errorf("decode API envelope: %w", err)
	}
	if !env.Found {
		return model.CampaignDocument{}, ErrProjectNotFound
	}
	if len(env.Project.Config) == 0 {
		return model.CampaignDocument{}, ErrEmptyPayload
	}
	return parseConfigPayload(env.Project.Config)
}
