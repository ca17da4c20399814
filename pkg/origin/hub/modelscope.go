package hub

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"

	"github.com/inftyai/mantafs/pkg/origin"
	"github.com/inftyai/mantafs/pkg/protocolpath"
)

const (
	// DefaultModelScopeEndpoint is used when neither config nor
	// MODELSCOPE_ENDPOINT set one.
	DefaultModelScopeEndpoint = "https://www.modelscope.cn"

	msDefaultRevision = "master"
)

// ModelScope is an origin for ms:// paths.
type ModelScope struct {
	c *client
}

var (
	_ origin.Origin = (*ModelScope)(nil)
	_ origin.Lister = (*ModelScope)(nil)
)

// NewModelScope returns a ModelScope origin. MODELSCOPE_ENDPOINT and
// MODELSCOPE_API_TOKEN are consulted when cfg leaves them empty.
func NewModelScope(cfg Config) *ModelScope {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = os.Getenv("MODELSCOPE_ENDPOINT")
	}
	if endpoint == "" {
		endpoint = DefaultModelScopeEndpoint
	}
	token := cfg.Token
	if token == "" {
		token = os.Getenv("MODELSCOPE_API_TOKEN")
	}
	return &ModelScope{c: newClient("ms", endpoint, token, cfg.Timeout)}
}

// FileURL returns the download URL for a file.
func (m *ModelScope) FileURL(p protocolpath.Path) (string, error) {
	loc, err := parseLocation(p, msDefaultRevision)
	if err != nil {
		return "", err
	}
	return m.fileURL(loc), nil
}

func (m *ModelScope) fileURL(loc location) string {
	q := url.Values{}
	q.Set("Revision", loc.revision)
	q.Set("FilePath", loc.file)
	return fmt.Sprintf("%s/api/v1/models/%s/repo?%s", m.c.endpoint, loc.repo, q.Encode())
}

func (m *ModelScope) filesURL(loc location) string {
	q := url.Values{}
	q.Set("Revision", loc.revision)
	q.Set("Root", loc.file)
	q.Set("Recursive", "false")
	return fmt.Sprintf("%s/api/v1/models/%s/repo/files?%s", m.c.endpoint, loc.repo, q.Encode())
}

// Fetch downloads a file.
func (m *ModelScope) Fetch(ctx context.Context, p protocolpath.Path) (io.ReadCloser, int64, error) {
	loc, err := parseLocation(p, msDefaultRevision)
	if err != nil {
		return nil, 0, err
	}
	if loc.file == "" {
		return nil, 0, fmt.Errorf("ms fetch %s: repository root is not a file: %w", p, origin.ErrNotFound)
	}
	return m.c.fetch(ctx, m.fileURL(loc), p)
}

type msFile struct {
	Name string `json:"Name"`
	Path string `json:"Path"`
	Type string `json:"Type"` // "blob" or "tree"
	Size int64  `json:"Size"`
}

type msFilesResponse struct {
	Code    int    `json:"Code"`
	Message string `json:"Message"`
	Data    struct {
		Files []msFile `json:"Files"`
	} `json:"Data"`
}

func (m *ModelScope) list(ctx context.Context, loc location, p protocolpath.Path) ([]msFile, error) {
	var resp msFilesResponse
	if err := m.c.getJSON(ctx, m.filesURL(loc), p, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 && resp.Code != 200 {
		if resp.Code == 404 {
			return nil, fmt.Errorf("%w: %s", origin.ErrNotFound, p)
		}
		return nil, fmt.Errorf("ms list %s: code %d: %s", p, resp.Code, resp.Message)
	}
	return resp.Data.Files, nil
}

// Stat lists the parent directory and picks the named entry.
func (m *ModelScope) Stat(ctx context.Context, p protocolpath.Path) (origin.ObjectInfo, error) {
	loc, err := parseLocation(p, msDefaultRevision)
	if err != nil {
		return origin.ObjectInfo{}, err
	}
	if loc.file == "" {
		if _, err := m.list(ctx, loc, p); err != nil {
			return origin.ObjectInfo{}, err
		}
		return origin.ObjectInfo{Dir: true, Version: loc.revision}, nil
	}

	parent := loc
	parent.file = path.Dir(loc.file)
	if parent.file == "." {
		parent.file = ""
	}
	files, err := m.list(ctx, parent, p)
	if err != nil {
		return origin.ObjectInfo{}, err
	}
	for _, f := range files {
		if f.Path == loc.file || (f.Path == "" && f.Name == path.Base(loc.file)) {
			return origin.ObjectInfo{Size: f.Size, Dir: f.Type == "tree", Version: loc.revision}, nil
		}
	}
	return origin.ObjectInfo{}, fmt.Errorf("%w: %s", origin.ErrNotFound, p)
}

// List returns the entries of a repository directory.
func (m *ModelScope) List(ctx context.Context, dir protocolpath.Path) ([]origin.Entry, error) {
	loc, err := parseLocation(dir, msDefaultRevision)
	if err != nil {
		return nil, err
	}
	files, err := m.list(ctx, loc, dir)
	if err != nil {
		return nil, err
	}

	entries := make([]origin.Entry, 0, len(files))
	for _, f := range files {
		name := f.Name
		if name == "" {
			name = path.Base(f.Path)
		}
		entries = append(entries, origin.Entry{Name: name, Dir: f.Type == "tree", Size: f.Size})
	}
	return entries, nil
}
