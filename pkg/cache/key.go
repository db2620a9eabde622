package cache

import (
	"strings"
)

// keySeparator cannot appear in an HTTP method or an encoded URL, so the
// concatenation below is injective.
const keySeparator = "\x00"

// CacheKey identifies a cached backend response.
type CacheKey struct {
	// Method is the HTTP method (case-insensitive).
	Method string

	// URL is the absolute request URL including the query string.
	URL string

	// Body is the serialized request body, nil for bodyless requests.
	Body []byte
}

// String derives the cache key.
// Format: METHOD \x00 URL \x00 BODY
//
// The key is an exact concatenation rather than a hash: two requests that
// differ only in their body must never share an entry.
func (k CacheKey) String() string {
	var b strings.Builder
	b.Grow(len(k.Method) + len(k.URL) + len(k.Body) + 2)
	b.WriteString(strings.ToUpper(k.Method))
	b.WriteString(keySeparator)
	b.WriteString(k.URL)
	b.WriteString(keySeparator)
	b.Write(k.Body)
	return b.String()
}

// Key is shorthand for CacheKey{method, url, body}.String().
func Key(method, url string, body []byte) string {
	return CacheKey{Method: method, URL: url, Body: body}.String()
}
