package schemas

import (
	"net/url"
	"regexp"
	"strings"
	"time"
)

// CacheEntry tracks hit accounting and TTL for one cached Plan.
type CacheEntry struct {
	CacheKey   string    `json:"cacheKey"`
	PlanID     string    `json:"planId"`
	HitCount   int64     `json:"hitCount"`
	LastUsedAt time.Time `json:"lastUsedAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// CacheStats summarizes a PlanCache backend for observability/debugging.
type CacheStats struct {
	Total    int      `json:"total"`
	Expired  int      `json:"expired"`
	HitRate  float64  `json:"hitRate"`
	Top      []string `json:"top"`
}

var whitespaceRE = regexp.MustCompile(`\s+`)

// TaskSignature computes the deterministic cache-key seed for (instruction, url)
// per spec.md §3: lowercase-trim-collapse-whitespace(instruction) || "|" ||
// scheme+host+path(url). It is invariant under whitespace/case normalization
// of the instruction and scheme/host case of the URL.
func TaskSignature(instruction, rawURL string) string {
	normInstruction := whitespaceRE.ReplaceAllString(strings.TrimSpace(strings.ToLower(instruction)), " ")
	return normInstruction + "|" + normalizeURLForSignature(rawURL)
}

// normalizeURLForSignature lowercases scheme and host and strips a single
// trailing slash from the path, so "HTTPS://Example.com/Path/" and
// "https://example.com/Path" collapse to the same signature component.
// Path case is preserved: paths are frequently case-sensitive on the server.
func normalizeURLForSignature(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return strings.ToLower(strings.TrimSpace(rawURL))
	}
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	path := u.Path
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	return scheme + "://" + host + path
}
