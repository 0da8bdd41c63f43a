package resolver

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// FileResolver resolves file:// URIs and bare paths against the local
// filesystem (spec §4.1, §9 design notes). A Reader uses it only when the
// caller passes it via WithResolver; with no Resolver configured, only the
// built-in HTML DTD is resolvable.
type FileResolver struct{}

// GetContent implements Resolver.
func (FileResolver) GetContent(uri, baseURI string) (*Resource, error) {
	path, err := filePath(uri, baseURI)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	return &Resource{
		Body:        f,
		ResolvedURI: "file://" + filepath.ToSlash(abs),
	}, nil
}

func filePath(uri, baseURI string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("resolver: parse uri %q: %w", uri, err)
	}

	if u.Scheme != "" && u.Scheme != "file" {
		return "", fmt.Errorf("resolver: FileResolver cannot handle scheme %q", u.Scheme)
	}

	path := u.Path
	if path == "" {
		path = uri
	}

	if filepath.IsAbs(path) || strings.HasPrefix(path, "/") {
		return path, nil
	}

	if baseURI == "" {
		return path, nil
	}

	base, err := url.Parse(baseURI)
	if err != nil || base.Scheme == "" || base.Scheme == "file" {
		dir := baseURI
		if base != nil && base.Path != "" {
			dir = base.Path
		}
		return filepath.Join(filepath.Dir(dir), path), nil
	}

	return path, nil
}
