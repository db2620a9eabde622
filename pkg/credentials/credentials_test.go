package credentials

import (
	"encoding/base64"
	"net/http"
	"strings"
	"testing"
)

func TestCredentials_Configured(t *testing.T) {
	tests := []struct {
		name  string
		creds Credentials
		want  bool
	}{
		{name: "both set", creds: Credentials{Key: "ck_1", Secret: "cs_1"}, want: true},
		{name: "missing secret", creds: Credentials{Key: "ck_1"}, want: false},
		{name: "missing key", creds: Credentials{Secret: "cs_1"}, want: false},
		{name: "empty", creds: Credentials{}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.creds.Configured(); got != tt.want {
				t.Errorf("Configured() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCredentials_StringHidesSecret(t *testing.T) {
	c := Credentials{Key: "ck_live", Secret: "cs_topsecret"}
	if strings.Contains(c.String(), "cs_topsecret") {
		t.Errorf("String() leaked secret: %s", c.String())
	}
}

func TestBuilder_Headers(t *testing.T) {
	b := NewBuilder(Credentials{Key: "ck_1", Secret: "cs_1"}, "Shop/1.0")

	h := b.Headers(true)
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("ck_1:cs_1"))
	if got := h.Get(HeaderAuthorization); got != want {
		t.Errorf("Authorization = %q, want %q", got, want)
	}
	if got := h.Get(HeaderUserAgent); got != "Shop/1.0" {
		t.Errorf("User-Agent = %q, want Shop/1.0", got)
	}
	if got := h.Get(HeaderAccept); got != "application/json" {
		t.Errorf("Accept = %q, want application/json", got)
	}

	if got := b.Headers(false).Get(HeaderAuthorization); got != "" {
		t.Errorf("Authorization without auth = %q, want empty", got)
	}
}

func TestBuilder_Merge_ContentTypeOnlyWithBody(t *testing.T) {
	b := NewBuilder(Credentials{Key: "ck_1", Secret: "cs_1"}, "")

	tests := []struct {
		name    string
		hasBody bool
		want    string
	}{
		{name: "bodyless GET or DELETE", hasBody: false, want: ""},
		{name: "PUT with body", hasBody: true, want: "application/json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := b.Merge(nil, true, tt.hasBody)
			if got := h.Get(HeaderContentType); got != tt.want {
				t.Errorf("Content-Type = %q, want %q", got, tt.want)
			}
			if got := h.Get(HeaderAccept); got != "application/json" {
				t.Errorf("Accept = %q, want application/json", got)
			}
		})
	}
}

func TestBuilder_Headers_NoCredentials(t *testing.T) {
	b := NewBuilder(Credentials{}, "")

	if b.Configured() {
		t.Error("Configured() = true for empty credentials")
	}
	if _, ok := b.Headers(true)[HeaderAuthorization]; ok {
		t.Error("Authorization header present without credentials")
	}
	if got := b.Headers(true).Get(HeaderUserAgent); got != DefaultUserAgent {
		t.Errorf("User-Agent = %q, want %q", got, DefaultUserAgent)
	}
}

func TestBuilder_Merge(t *testing.T) {
	b := NewBuilder(Credentials{Key: "ck_1", Secret: "cs_1"}, "Shop/1.0")
	auth := b.Headers(true).Get(HeaderAuthorization)

	extra := http.Header{}
	extra.Set("authorization", "Bearer forged")
	extra.Set("X-Request-Id", "req-42")
	extra.Set(HeaderContentType, "application/merge-patch+json")

	h := b.Merge(extra, true, true)

	if got := h.Get(HeaderAuthorization); got != auth {
		t.Errorf("Authorization = %q, caller header must not override %q", got, auth)
	}
	if got := h.Values(HeaderAuthorization); len(got) != 1 {
		t.Errorf("Authorization values = %v, want exactly one", got)
	}
	if got := h.Get("X-Request-Id"); got != "req-42" {
		t.Errorf("X-Request-Id = %q, want req-42", got)
	}
	if got := h.Get(HeaderContentType); got != "application/merge-patch+json" {
		t.Errorf("Content-Type = %q, caller value should win", got)
	}
}

func TestBuilder_Merge_DoesNotInjectAuthWhenDisabled(t *testing.T) {
	b := NewBuilder(Credentials{Key: "ck_1", Secret: "cs_1"}, "")

	extra := http.Header{HeaderAuthorization: []string{"Basic Zm9vOmJhcg=="}}
	h := b.Merge(extra, false, false)

	if got := h.Get(HeaderAuthorization); got != "" {
		t.Errorf("Authorization = %q, want empty", got)
	}
}
