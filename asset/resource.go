package asset

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

var (
	ErrUnsupportedScheme = errors.New("resource: unsupported scheme")
	ErrFetch             = errors.New("resource: could not fetch")
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

// Resource wraps a stream backed by a local file or a remote http(s) URL.
// Callers must Close it.
type Resource struct {
	io.ReadCloser
	url *url.URL
}

// Path returns the location this resource was opened from.
func (r *Resource) Path() string {
	return r.url.String()
}

// Name returns the last path element of the resource location.
func (r *Resource) Name() string {
	if r.IsRemote() {
		return path.Base(r.url.Path)
	}
	return filepath.Base(r.url.Path)
}

// IsRemote returns true if the resource is streamed over http/https.
func (r *Resource) IsRemote() bool {
	return r.url.Scheme != ""
}

// NewResource opens a resource. Relative paths without a scheme are
// resolved against the directory of relTo when it is not nil, so that a
// remote scene can reference remote material libraries and textures.
func NewResource(pathToResource string, relTo *Resource) (*Resource, error) {
	loc, err := resolve(pathToResource, relTo)
	if err != nil {
		return nil, err
	}

	var reader io.ReadCloser
	switch loc.Scheme {
	case "":
		if reader, err = os.Open(filepath.Clean(loc.Path)); err != nil {
			return nil, err
		}
	case "http", "https":
		resp, err := httpClient.Get(loc.String())
		if err != nil {
			return nil, fmt.Errorf("%w '%s': %s", ErrFetch, loc.String(), err)
		}
		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return nil, fmt.Errorf("%w '%s': status %d", ErrFetch, loc.String(), resp.StatusCode)
		}
		reader = resp.Body
	default:
		return nil, fmt.Errorf("%w '%s'", ErrUnsupportedScheme, loc.Scheme)
	}

	return &Resource{ReadCloser: reader, url: loc}, nil
}

func resolve(pathToResource string, relTo *Resource) (*url.URL, error) {
	loc, err := url.Parse(strings.ReplaceAll(pathToResource, `\`, `/`))
	if err != nil {
		return nil, err
	}
	if loc.Scheme != "" || relTo == nil || filepath.IsAbs(loc.Path) {
		return loc, nil
	}

	if relTo.IsRemote() {
		base := *relTo.url
		base.Path = path.Join(path.Dir(relTo.url.Path), loc.Path)
		return &base, nil
	}

	prefix, err := filepath.Abs(relTo.url.Path)
	if err != nil {
		return nil, fmt.Errorf("resource: could not detect abs path for %s: %w", relTo.Path(), err)
	}
	return &url.URL{Path: filepath.Join(filepath.Dir(prefix), loc.Path)}, nil
}

// NewResourceFromStream wraps an in-memory stream.
func NewResourceFromStream(name string, source io.Reader) *Resource {
	return &Resource{
		ReadCloser: io.NopCloser(source),
		url:        &url.URL{Path: name},
	}
}
