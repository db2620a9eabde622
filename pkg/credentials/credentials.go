// Package credentials builds the per-request headers sent to the commerce backend.
//
// Credentials are read once at process start and never mutated afterwards, so a
// Builder is safe for concurrent use by every in-flight request.
package credentials

import (
	"encoding/base64"
	"net/http"
)

// Header names set by the Builder.
const (
	HeaderAuthorization = "Authorization"
	HeaderAccept        = "Accept"
	HeaderContentType   = "Content-Type"
	HeaderUserAgent     = "User-Agent"
)

// DefaultUserAgent is sent when no User-Agent is configured.
const DefaultUserAgent = "marketplace-gateway/0.1.0"

// Credentials is the REST API key pair of the commerce backend
// (WooCommerce consumer key / consumer secret).
type Credentials struct {
	Key    string
	Secret string
}

// Configured reports whether both halves of the key pair are present.
func (c Credentials) Configured() bool {
	return c.Key != "" && c.Secret != ""
}

// String never prints the secret.
func (c Credentials) String() string {
	if !c.Configured() {
		return "credentials(unset)"
	}
	return "credentials(" + c.Key + ":***)"
}

// basic returns the value of a Basic authorization header.
func (c Credentials) basic() string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(c.Key+":"+c.Secret))
}

// Builder assembles request headers from process-wide configuration.
type Builder struct {
	creds     Credentials
	userAgent string
}

// NewBuilder creates a header builder. Missing credentials are not an error
// here; requests that need auth report it at first use.
func NewBuilder(creds Credentials, userAgent string) *Builder {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Builder{
		creds:     creds,
		userAgent: userAgent,
	}
}

// Configured reports whether an Authorization header can be produced.
func (b *Builder) Configured() bool {
	return b.creds.Configured()
}

// Headers returns a fresh header map. The Authorization entry is present only
// when includeAuth is set and credentials are configured. Content-Type is left
// to Merge, which sets it only for requests with a body.
func (b *Builder) Headers(includeAuth bool) http.Header {
	h := http.Header{}
	h.Set(HeaderAccept, "application/json")
	h.Set(HeaderUserAgent, b.userAgent)

	if includeAuth && b.creds.Configured() {
		h.Set(HeaderAuthorization, b.creds.basic())
	}
	return h
}

// Merge returns the default headers overlaid with extra. hasBody adds
// Content-Type: application/json. Callers may replace any default except
// Authorization.
func (b *Builder) Merge(extra http.Header, includeAuth, hasBody bool) http.Header {
	h := b.Headers(includeAuth)
	if hasBody {
		h.Set(HeaderContentType, "application/json")
	}
	for key, values := range extra {
		canonical := http.CanonicalHeaderKey(key)
		if canonical == HeaderAuthorization {
			continue
		}
		h.Del(canonical)
		for _, v := range values {
			h.Add(canonical, v)
		}
	}
	return h
}
