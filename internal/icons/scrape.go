package icons

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	sizeSuffixRe = regexp.MustCompile(`=s\d+(-[a-z0-9]+)*$`)
	whSuffixRe   = regexp.MustCompile(`=w\d+-h\d+(-[a-z0-9]+)*$`)
)

// playIconURL scrapes the Play listing page for the app icon <img>
// tag. Best effort only; heavy anti-bot evasion is out of scope.
func (s *Service) playIconURL(ctx context.Context, pkg string) (string, error) {
	resp, err := s.client.Get(ctx, s.catalog.PlayListingURL(pkg))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("play listing: unexpected status %d", resp.StatusCode)
	}

	src := findIconImg(resp.Body)
	if src == "" {
		return "", fmt.Errorf("play listing for %s has no recognizable icon tag", pkg)
	}
	return upgradeIconSize(src), nil
}

// findIconImg walks the document for an <img> whose class or alt
// marks it as the app icon.
func findIconImg(body []byte) string {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	var walk func(*html.Node) string
	walk = func(n *html.Node) string {
		if n.Type == html.ElementNode && n.Data == "img" {
			var src, class, alt string
			for _, a := range n.Attr {
				switch a.Key {
				case "src":
					src = a.Val
				case "class":
					class = a.Val
				case "alt":
					alt = a.Val
				}
			}
			if src != "" && (strings.Contains(strings.ToLower(class), "icon") ||
				strings.Contains(strings.ToLower(alt), "icon")) {
				return src
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if found := walk(c); found != "" {
				return found
			}
		}
		return ""
	}
	return walk(doc)
}

// upgradeIconSize rewrites the CDN size parameters so a larger
// variant is requested than the thumbnail embedded in the page.
func upgradeIconSize(src string) string {
	if sizeSuffixRe.MatchString(src) {
		return sizeSuffixRe.ReplaceAllString(src, "=s512")
	}
	if whSuffixRe.MatchString(src) {
		return whSuffixRe.ReplaceAllString(src, "=w512-h512")
	}
	return src
}
