// Package hub implements origins for model hubs: Hugging Face (hf://) and
// ModelScope (ms://).
//
// A hub protocol path names a repository by its first two segments and a
// file by the rest: hf://Qwen/Qwen3-8B/config.json:main.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	caterrors "github.com/inftyai/mantafs/pkg/catalog/errors"
	"github.com/inftyai/mantafs/pkg/origin"
	"github.com/inftyai/mantafs/pkg/protocolpath"
)

// Config holds configuration for a hub origin.
type Config struct {
	// Endpoint is the hub base URL. Empty selects the public hub, or the
	// hub's conventional environment variable when set.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty" validate:"omitempty,url"`

	// Token is sent as a bearer token. Empty falls back to the hub's
	// conventional environment variables.
	Token string `mapstructure:"token" yaml:"token,omitempty"`

	// Timeout bounds metadata requests (HEAD and listings). Downloads are
	// bounded only by the caller's context.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout,omitempty"`
}

// location is a parsed hub path.
type location struct {
	repo     string
	file     string
	revision string
}

func parseLocation(p protocolpath.Path, defaultRevision string) (location, error) {
	segs := p.Segments()
	if len(segs) < 2 {
		return location{}, caterrors.NewInvalidFormatError(p.String(), "hub path must name <org>/<repo>")
	}
	rev := p.Version
	if rev == "" {
		rev = defaultRevision
	}
	return location{
		repo:     segs[0] + "/" + segs[1],
		file:     strings.Join(segs[2:], "/"),
		revision: rev,
	}, nil
}

// client is the HTTP plumbing shared by the hub origins.
type client struct {
	name     string
	endpoint string
	token    string
	http     *http.Client
	timeout  time.Duration

	// noRedirect stops at the first response so HEAD sees the hub's own
	// headers instead of the CDN's.
	noRedirect *http.Client
}

func newClient(name, endpoint, token string, timeout time.Duration) *client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &client{
		name:     name,
		endpoint: strings.TrimSuffix(endpoint, "/"),
		token:    token,
		http:     &http.Client{},
		timeout:  timeout,
		noRedirect: &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (c *client) newRequest(ctx context.Context, method, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("User-Agent", "mantafs")
	return req, nil
}

// do sends the request and maps non-2xx statuses to origin errors. On
// success the caller owns the response body.
func (c *client) do(req *http.Request, p protocolpath.Path) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s %s: %w", c.name, req.Method, p, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
	return nil, statusError(c.name, req.Method, p, resp.StatusCode)
}

// head sends a HEAD without following redirects. A redirect that carries
// X-Linked-Size describes the file itself and is returned as is; any other
// redirect (a renamed repository, say) is followed.
func (c *client) head(ctx context.Context, url string, p protocolpath.Path) (*http.Response, error) {
	req, err := c.newRequest(ctx, http.MethodHead, url)
	if err != nil {
		return nil, err
	}
	resp, err := c.noRedirect.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s %s: %w", c.name, req.Method, p, err)
	}
	_ = resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return resp, nil
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		if resp.Header.Get("X-Linked-Size") != "" {
			return resp, nil
		}
		req, err = c.newRequest(ctx, http.MethodHead, url)
		if err != nil {
			return nil, err
		}
		resp, err = c.do(req, p)
		if err != nil {
			return nil, err
		}
		_ = resp.Body.Close()
		return resp, nil
	default:
		return nil, statusError(c.name, req.Method, p, resp.StatusCode)
	}
}

func statusError(name, method string, p protocolpath.Path, status int) error {
	switch status {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", origin.ErrNotFound, p)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s %s %s: status %d", origin.ErrAccessDenied, name, method, p, status)
	default:
		return fmt.Errorf("%s %s %s: unexpected status %d", name, method, p, status)
	}
}

// fetch GETs url and returns the body with its declared length.
func (c *client) fetch(ctx context.Context, url string, p protocolpath.Path) (io.ReadCloser, int64, error) {
	req, err := c.newRequest(ctx, http.MethodGet, url)
	if err != nil {
		return nil, 0, err
	}
	resp, err := c.do(req, p)
	if err != nil {
		return nil, 0, err
	}
	return resp.Body, resp.ContentLength, nil
}

// getJSON GETs url and decodes the body into v under the metadata timeout.
func (c *client) getJSON(ctx context.Context, url string, p protocolpath.Path, v any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, url)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(req, p)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%s decode %s: %w", c.name, p, err)
	}
	return nil
}
