// Package storeid parses and validates storefront identifiers from
// free-text input. All functions are pure; callers keep the original
// raw value when a normalization fails.
package storeid

import (
	"regexp"
	"strings"
)

// Platform identifies one of the supported storefronts.
type Platform string

const (
	Apple     Platform = "ios"
	Google    Platform = "android"
	Amazon    Platform = "amazon"
	Microsoft Platform = "microsoft"
	Samsung   Platform = "samsung"
)

// Platforms lists every supported storefront in a stable order.
var Platforms = []Platform{Apple, Google, Amazon, Microsoft, Samsung}

// AmazonIDKind distinguishes the two accepted Amazon identifier shapes;
// they map to different storefront URL templates.
type AmazonIDKind int

const (
	AmazonASIN AmazonIDKind = iota
	AmazonPackage
)

var (
	iosURLRe     = regexp.MustCompile(`id(\d{8,12})(?:\D|$)`)
	iosDigitsRe  = regexp.MustCompile(`^\d{8,12}$`)
	packageRe    = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*(\.[a-zA-Z][a-zA-Z0-9_]*)+$`)
	asinRe       = regexp.MustCompile(`^[A-Z0-9]{10}$`)
	teamIDRe     = regexp.MustCompile(`^[A-Z0-9]{10}$`)
	hex64Re      = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)
	hexPairRe    = regexp.MustCompile(`^[0-9a-fA-F]{2}$`)
	unsafeFileRe = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
)

// NormalizeIOSID extracts the numeric App Store ID from raw input.
// Accepted shapes: bare digits, an "id"-prefixed string, or a full
// store URL containing "id<digits>". The ID must be 8-12 digits.
func NormalizeIOSID(raw string) (string, bool) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return "", false
	}
	if iosDigitsRe.MatchString(v) {
		return v, true
	}
	if strings.HasPrefix(v, "id") && iosDigitsRe.MatchString(v[2:]) {
		return v[2:], true
	}
	if strings.Contains(v, "/") || strings.Contains(v, ".") {
		if m := iosURLRe.FindStringSubmatch(v); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// NormalizeAndroidPackage validates a reverse-domain package name.
// Validation only; the value passes through unchanged.
func NormalizeAndroidPackage(raw string) (string, bool) {
	v := strings.TrimSpace(raw)
	if !packageRe.MatchString(v) {
		return "", false
	}
	return v, true
}

// NormalizeAmazonID accepts either a 10-character uppercase ASIN or a
// package-style identifier and reports which shape matched.
func NormalizeAmazonID(raw string) (string, AmazonIDKind, bool) {
	v := strings.TrimSpace(raw)
	if asinRe.MatchString(v) {
		return v, AmazonASIN, true
	}
	if pkg, ok := NormalizeAndroidPackage(v); ok {
		return pkg, AmazonPackage, true
	}
	return "", 0, false
}

// ValidateAppleTeamID reports whether raw is exactly 10 uppercase
// alphanumeric characters. No case folding.
func ValidateAppleTeamID(raw string) bool {
	return teamIDRe.MatchString(strings.TrimSpace(raw))
}

// ValidateSHA256Fingerprint accepts 32 colon-separated hex byte pairs
// or a raw 64-character hex string. Nothing else.
func ValidateSHA256Fingerprint(raw string) bool {
	v := strings.TrimSpace(raw)
	if hex64Re.MatchString(v) {
		return true
	}
	pairs := strings.Split(v, ":")
	if len(pairs) != 32 {
		return false
	}
	for _, p := range pairs {
		if !hexPairRe.MatchString(p) {
			return false
		}
	}
	return true
}

// NormalizeFingerprint converts a valid fingerprint to the canonical
// uppercase colon-separated form. It never runs implicitly: callers
// opt in, the validators above accept both shapes as-is.
func NormalizeFingerprint(raw string) (string, bool) {
	v := strings.TrimSpace(raw)
	if !ValidateSHA256Fingerprint(v) {
		return "", false
	}
	v = strings.ToUpper(strings.ReplaceAll(v, ":", ""))
	pairs := make([]string, 0, 32)
	for i := 0; i < len(v); i += 2 {
		pairs = append(pairs, v[i:i+2])
	}
	return strings.Join(pairs, ":"), true
}

// SanitizeForKey maps an arbitrary store identifier to a string safe
// for use as a cache file name.
func SanitizeForKey(id string) string {
	return unsafeFileRe.ReplaceAllString(strings.TrimSpace(id), "_")
}
