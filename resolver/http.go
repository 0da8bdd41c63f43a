package resolver

import (
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"time"
)

// HTTPResolver resolves http(s):// URIs with a plain net/http client. It is
// deliberately minimal (spec §1 scopes the HTTP fetcher itself out of the
// core; only the Resolver interface it satisfies is in scope) — no retry,
// no redirect-following beyond what net/http does by default, no caching.
type HTTPResolver struct {
	Client *http.Client
}

// NewHTTPResolver returns an HTTPResolver with a sane default timeout.
func NewHTTPResolver() *HTTPResolver {
	return &HTTPResolver{Client: &http.Client{Timeout: 30 * time.Second}}
}

// GetContent implements Resolver.
func (r *HTTPResolver) GetContent(uri, baseURI string) (*Resource, error) {
	resolved, err := resolveURL(uri, baseURI)
	if err != nil {
		return nil, err
	}

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Get(resolved)
	if err != nil {
		return nil, fmt.Errorf("resolver: GET %s: %w", resolved, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, resolved)
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, fmt.Errorf("resolver: GET %s: status %d", resolved, resp.StatusCode)
	}

	ct := resp.Header.Get("Content-Type")
	mimeType, params, _ := mime.ParseMediaType(ct)

	return &Resource{
		Body:        resp.Body,
		Encoding:    params["charset"],
		MIMEType:    mimeType,
		ResolvedURI: resp.Request.URL.String(),
	}, nil
}

func resolveURL(uri, baseURI string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("resolver: parse uri %q: %w", uri, err)
	}
	if u.IsAbs() {
		return uri, nil
	}
	if baseURI == "" {
		return "", fmt.Errorf("resolver: relative uri %q with no BaseUri", uri)
	}
	base, err := url.Parse(baseURI)
	if err != nil {
		return "", fmt.Errorf("resolver: parse base uri %q: %w", baseURI, err)
	}
	return base.ResolveReference(u).String(), nil
}
