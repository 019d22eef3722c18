package ratelimit

import "strings"

// RouteLimit defines the request budget for a route prefix
type RouteLimit struct {
	Prefix        string
	Limit         int64  // Requests allowed per window
	WindowSeconds int    // Time window in seconds
	Description   string // Human-readable description
}

// Default per-route limits for the public API. Cards are browsed a page at
// a time, images are fetched in batches on scroll.
var DefaultRouteLimits = []RouteLimit{
	{
		Prefix:        "/api/v1/cards",
		Limit:         30,
		WindowSeconds: 60,
		Description:   "Card listing - 30 requests/minute per IP",
	},
	{
		Prefix:        "/api/v1/images",
		Limit:         200,
		WindowSeconds: 60,
		Description:   "Image fetches - 200 requests/minute per IP",
	},
}

// DefaultLimit applies to any /api/ route without an explicit entry
var DefaultLimit = RouteLimit{
	Prefix:        "/api/",
	Limit:         60,
	WindowSeconds: 60,
	Description:   "Default API limit - 60 requests/minute per IP",
}

// LimitForPath returns the limit config for a request path
func LimitForPath(path string) RouteLimit {
	for _, rl := range DefaultRouteLimits {
		if strings.HasPrefix(path, rl.Prefix) {
			return rl
		}
	}
	return DefaultLimit
}

// BucketForPath returns the counter bucket for a path: the first two path
// segments, so /api/v1/cards and /api/v1/cards?page=2 share a counter
func BucketForPath(path string) string {
	parts := strings.SplitN(strings.TrimPrefix(path, "/"), "/", 4)
	if len(parts) > 3 {
		parts = parts[:3]
	}
	return "/" + strings.Join(parts, "/")
}
