package stages

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
)

var (
	nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)
	trimDashes      = regexp.MustCompile(`^-+|-+$`)
)

var genericStems = map[string]bool{
	"video": true, "clip": true, "output": true, "download": true, "file": true, "media": true,
}

const maxVideoIDLength = 50

// GenerateVideoID derives a stable, filesystem- and Redis-key-safe video
// id from a source URL: the URL's filename stem, lowercased and
// slug-ified, or a short SHA-256 hash of the normalized URL when the stem
// is empty or too generic to be useful as an identifier.
func GenerateVideoID(rawURL string) string {
	normalized := normalizeURL(rawURL)

	stem := ""
	if u, err := url.Parse(normalized); err == nil {
		base := path.Base(u.Path)
		stem = strings.TrimSuffix(base, path.Ext(base))
	}
	slug := slugify(stem)

	if slug == "" || genericStems[slug] {
		sum := sha256.Sum256([]byte(normalized))
		return fmt.Sprintf("video-%s", hex.EncodeToString(sum[:])[:8])
	}
	if len(slug) > maxVideoIDLength {
		slug = slug[:maxVideoIDLength]
	}
	return trimDashes.ReplaceAllString(slug, "")
}

func slugify(s string) string {
	lower := strings.ToLower(s)
	slug := nonAlphanumeric.ReplaceAllString(lower, "-")
	return trimDashes.ReplaceAllString(slug, "")
}

// normalizeURL decodes percent-encoding, lowercases, and drops every
// query parameter except signed-URL markers (X-Goog-*), so two URLs that
// differ only in query string or case hash identically.
func normalizeURL(rawURL string) string {
	decoded, err := url.QueryUnescape(rawURL)
	if err != nil {
		decoded = rawURL
	}
	u, err := url.Parse(decoded)
	if err != nil {
		return strings.ToLower(decoded)
	}
	kept := url.Values{}
	for k, v := range u.Query() {
		if strings.HasPrefix(k, "X-Goog-") {
			kept[k] = v
		}
	}
	u.RawQuery = kept.Encode()
	return strings.ToLower(u.String())
}

// MomentID is a deterministic identifier for a moment's time window,
// stable across processes and over repeated generations of the same
// boundaries.
func MomentID(start, end float64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%.2f_%.2f", start, end)))
	return hex.EncodeToString(sum[:])[:16]
}
