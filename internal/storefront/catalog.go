// Package storefront knows how to reach the five supported
// distribution platforms: endpoint templates plus a shared,
// rate-limited HTTP client for lookups and scraping.
package storefront

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Catalog holds per-storefront URL templates. Each template takes the
// normalized identifier as its single %s argument.
type Catalog struct {
	ITunesLookup  string `yaml:"itunesLookup"`
	AppStorePage  string `yaml:"appStorePage"`
	PlayListing   string `yaml:"playListing"`
	AmazonASIN    string `yaml:"amazonAsin"`
	AmazonPackage string `yaml:"amazonPackage"`
	AmazonMobile  string `yaml:"amazonMobile"`
	MicrosoftPage string `yaml:"microsoftPage"`
	SamsungPage   string `yaml:"samsungPage"`
}

// Default returns the built-in endpoint set.
func Default() Catalog {
	return Catalog{
		ITunesLookup:  "https://itunes.apple.com/lookup?id=%s",
		AppStorePage:  "https://apps.apple.com/app/id%s",
		PlayListing:   "https://play.google.com/store/apps/details?id=%s&hl=en",
		AmazonASIN:    "https://www.amazon.com/dp/%s",
		AmazonPackage: "https://www.amazon.com/gp/mas/dl/android?p=%s",
		AmazonMobile:  "https://www.amazon.com/gp/aw/d/%s",
		MicrosoftPage: "https://apps.microsoft.com/detail/%s",
		SamsungPage:   "https://galaxystore.samsung.com/detail/%s",
	}
}

// LoadCatalog overlays the defaults with templates from a YAML file.
// An empty path returns the defaults unchanged.
func LoadCatalog(path string) (Catalog, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("open storefront catalog %s: %w", path, err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(&c); err != nil {
		return Catalog{}, fmt.Errorf("decode storefront catalog %s: %w", path, err)
	}
	return c, nil
}

func (c Catalog) ITunesLookupURL(iosID string) string { return fmt.Sprintf(c.ITunesLookup, iosID) }
func (c Catalog) PlayListingURL(pkg string) string    { return fmt.Sprintf(c.PlayListing, pkg) }
func (c Catalog) AmazonASINURL(asin string) string    { return fmt.Sprintf(c.AmazonASIN, asin) }
func (c Catalog) AmazonPackageURL(pkg string) string  { return fmt.Sprintf(c.AmazonPackage, pkg) }
func (c Catalog) AmazonMobileURL(id string) string    { return fmt.Sprintf(c.AmazonMobile, id) }
func (c Catalog) MicrosoftPageURL(id string) string {
	if c.MicrosoftPage == "" {
		return ""
	}
	return fmt.Sprintf(c.MicrosoftPage, id)
}

func (c Catalog) SamsungPageURL(id string) string {
	if c.SamsungPage == "" {
		return ""
	}
	return fmt.Sprintf(c.SamsungPage, id)
}
