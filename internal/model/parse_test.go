package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `{
  "versionInfo": {"apiVersion": "1", "schemaVersion": "3", "contractVersion": "2024-05"},
  "sourceProject": {
    "bundleId": "com.host.app",
    "storeIds": {"ios": "529479190", "android": "com.host.app"},
    "frequencyCap": {"impressions": 3, "timeUnit": "day"}
  },
  "campaigns": [
    {
      "id": "c1",
      "name": "Puzzle Game",
      "status": "active",
      "targetProject": {
        "projectId": "p1",
        "storeUrls": {"ios": "https://apps.apple.com/app/id1144343820"},
        "storeIds": {"android": "com.example.puzzle"}
      }
    },
    {
      "id": "c2",
      "name": "No Links",
      "status": "active",
      "targetProject": {"projectId": "p2"}
    }
  ]
}`

func TestParseDocument_DropsCampaignsWithoutStoreLinks(t *testing.T) {
	doc, err := ParseDocument([]byte(sampleDoc))
	require.NoError(t, err)

	require.Len(t, doc.Campaigns, 1)
	assert.Equal(t, "c1", doc.Campaigns[0].ID)

	id, ok := doc.Campaigns[0].IOSStoreID()
	assert.True(t, ok)
	assert.Equal(t, "1144343820", id)
}

func TestParseDocument_InvalidJSON(t *testing.T) {
	_, err := ParseDocument([]byte("{not json"))
	assert.Error(t, err)
}

func TestParseDocument_RepairsFragileStoreMaps(t *testing.T) {
	// storeIds values arrive as numbers; the strict decode rejects
	// them but the repair pass must recover the entries.
	raw := `{
	  "campaigns": [{
	    "id": "c1",
	    "status": "active",
	    "targetProject": {
	      "projectId": "p1",
	      "storeIds": {"ios": 1144343820, "android": "com.example.puzzle"}
	    }
	  }]
	}`
	doc, err := ParseDocument([]byte(raw))
	require.NoError(t, err)

	require.Len(t, doc.Campaigns, 1)
	assert.Equal(t, "1144343820", doc.Campaigns[0].Target.StoreID("ios"))
	assert.Equal(t, "com.example.puzzle", doc.Campaigns[0].Target.StoreID("android"))
}

func TestCampaign_AndroidPackageFromURL(t *testing.T) {
	c := Campaign{Target: TargetProject{
		StoreURLs: map[string]string{"android": "https://play.google.com/store/apps/details?id=com.example.app&hl=en"},
	}}
	pkg, ok := c.AndroidPackage()
	assert.True(t, ok)
	assert.Equal(t, "com.example.app", pkg)
}

func TestUnquoteIfString(t *testing.T) {
	inner, err := UnquoteIfString([]byte(`"{\"campaigns\":[]}"`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"campaigns":[]}`, string(inner))

	plain, err := UnquoteIfString([]byte(`{"campaigns":[]}`))
	require.NoError(t, err)
	assert.Equal(t, `{"campaigns":[]}`, string(plain))
}

func TestEffectiveCap(t *testing.T) {
	global := FrequencyCap{Impressions: 3, TimeUnit: "day"}

	c := Campaign{}
	assert.Equal(t, global, c.EffectiveCap(global))

	c.FrequencyCap = &FrequencyCap{Impressions: 0, TimeUnit: "day"}
	assert.True(t, c.EffectiveCap(global).Unlimited())
}
