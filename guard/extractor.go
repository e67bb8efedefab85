package guard

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// TokenExtractor pulls a candidate token out of a request. Extractors are
// tried in order; the first hit wins and no fallback runs after it.
type TokenExtractor interface {
	Extract(r *http.Request) (token string, ok bool)
}

// HeaderExtractor reads a token from a request header, optionally stripping
// an auth scheme prefix.
type HeaderExtractor struct {
	Header string // defaults to Authorization
	Scheme string // e.g. "Bearer"; empty takes the raw header value
}

func (x HeaderExtractor) Extract(r *http.Request) (string, bool) {
	header := x.Header
	if header == "" {
		header = "Authorization"
	}

	value := strings.TrimSpace(r.Header.Get(header))
	if value == "" {
		return "", false
	}
	if x.Scheme == "" {
		return value, true
	}

	prefix := x.Scheme + " "
	if len(value) <= len(prefix) || !strings.EqualFold(value[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(value[len(prefix):]), true
}

// CookieExtractor reads a token from a named cookie.
type CookieExtractor struct {
	Name string
}

func (x CookieExtractor) Extract(r *http.Request) (string, bool) {
	c, err := r.Cookie(x.Name)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

// BodyFieldExtractor reads a token from a top-level field of a JSON request
// body. The body is restored afterwards so downstream handlers can read it
// again.
type BodyFieldExtractor struct {
	Field    string
	MaxBytes int64 // defaults to 1 MB
}

func (x BodyFieldExtractor) Extract(r *http.Request) (string, bool) {
	if r.Body == nil {
		return "", false
	}

	maxBytes := x.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxBytes))
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(data))
	if err != nil {
		return "", false
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return "", false
	}

	raw, ok := fields[x.Field]
	if !ok {
		return "", false
	}

	var token string
	if err := json.Unmarshal(raw, &token); err != nil || token == "" {
		return "", false
	}
	return token, true
}
