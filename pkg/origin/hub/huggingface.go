package hub

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strconv"

	"github.com/inftyai/mantafs/pkg/origin"
	"github.com/inftyai/mantafs/pkg/protocolpath"
)

const (
	// DefaultHuggingFaceEndpoint is used when neither config nor HF_ENDPOINT
	// set one.
	DefaultHuggingFaceEndpoint = "https://huggingface.co"

	hfDefaultRevision = "main"
)

// HuggingFace is an origin for hf:// paths.
type HuggingFace struct {
	c *client
}

var (
	_ origin.Origin = (*HuggingFace)(nil)
	_ origin.Lister = (*HuggingFace)(nil)
)

// NewHuggingFace returns a Hugging Face origin. HF_ENDPOINT overrides the
// default endpoint; HF_TOKEN, then HUGGING_FACE_HUB_TOKEN, supply the token
// when cfg has none.
func NewHuggingFace(cfg Config) *HuggingFace {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = os.Getenv("HF_ENDPOINT")
	}
	if endpoint == "" {
		endpoint = DefaultHuggingFaceEndpoint
	}

	token := cfg.Token
	if token == "" {
		token = os.Getenv("HF_TOKEN")
	}
	if token == "" {
		token = os.Getenv("HUGGING_FACE_HUB_TOKEN")
	}

	return &HuggingFace{c: newClient("hf", endpoint, token, cfg.Timeout)}
}

// ResolveURL returns the download URL for a file.
func (h *HuggingFace) ResolveURL(p protocolpath.Path) (string, error) {
	loc, err := parseLocation(p, hfDefaultRevision)
	if err != nil {
		return "", err
	}
	return h.resolveURL(loc), nil
}

func (h *HuggingFace) resolveURL(loc location) string {
	return fmt.Sprintf("%s/%s/resolve/%s/%s", h.c.endpoint, loc.repo, url.PathEscape(loc.revision), loc.file)
}

func (h *HuggingFace) treeURL(loc location) string {
	u := fmt.Sprintf("%s/api/models/%s/tree/%s", h.c.endpoint, loc.repo, url.PathEscape(loc.revision))
	if loc.file != "" {
		u += "/" + loc.file
	}
	return u
}

// Fetch downloads a file.
func (h *HuggingFace) Fetch(ctx context.Context, p protocolpath.Path) (io.ReadCloser, int64, error) {
	loc, err := parseLocation(p, hfDefaultRevision)
	if err != nil {
		return nil, 0, err
	}
	if loc.file == "" {
		return nil, 0, fmt.Errorf("hf fetch %s: repository root is not a file: %w", p, origin.ErrNotFound)
	}
	return h.c.fetch(ctx, h.resolveURL(loc), p)
}

// Stat HEADs the resolve URL. A 404 there may still be a directory, which
// the tree API confirms.
func (h *HuggingFace) Stat(ctx context.Context, p protocolpath.Path) (origin.ObjectInfo, error) {
	loc, err := parseLocation(p, hfDefaultRevision)
	if err != nil {
		return origin.ObjectInfo{}, err
	}
	if loc.file == "" {
		var entries []hfTreeEntry
		if err := h.c.getJSON(ctx, h.treeURL(loc), p, &entries); err != nil {
			return origin.ObjectInfo{}, err
		}
		return origin.ObjectInfo{Dir: true, Version: loc.revision}, nil
	}

	hctx, cancel := context.WithTimeout(ctx, h.c.timeout)
	defer cancel()

	resp, err := h.c.head(hctx, h.resolveURL(loc), p)
	if err == nil {
		info := origin.ObjectInfo{
			Size:    resp.ContentLength,
			ETag:    resp.Header.Get("ETag"),
			Version: loc.revision,
		}
		// LFS files answer with a redirect to a CDN; the hub puts the real
		// size and etag on that redirect.
		if etag := resp.Header.Get("X-Linked-Etag"); etag != "" {
			info.ETag = etag
		}
		if linked := resp.Header.Get("X-Linked-Size"); linked != "" {
			if n, perr := strconv.ParseInt(linked, 10, 64); perr == nil {
				info.Size = n
			}
		}
		if commit := resp.Header.Get("X-Repo-Commit"); commit != "" {
			info.Version = commit
		}
		return info, nil
	}
	if !origin.IsNotFound(err) {
		return origin.ObjectInfo{}, err
	}

	var entries []hfTreeEntry
	if terr := h.c.getJSON(ctx, h.treeURL(loc), p, &entries); terr != nil {
		return origin.ObjectInfo{}, err
	}
	return origin.ObjectInfo{Dir: true, Version: loc.revision}, nil
}

type hfTreeEntry struct {
	Type string `json:"type"` // "file" or "directory"
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// List returns the entries of a repository directory.
func (h *HuggingFace) List(ctx context.Context, dir protocolpath.Path) ([]origin.Entry, error) {
	loc, err := parseLocation(dir, hfDefaultRevision)
	if err != nil {
		return nil, err
	}

	var tree []hfTreeEntry
	if err := h.c.getJSON(ctx, h.treeURL(loc), dir, &tree); err != nil {
		return nil, err
	}

	entries := make([]origin.Entry, 0, len(tree))
	for _, e := range tree {
		entries = append(entries, origin.Entry{
			Name: path.Base(e.Path),
			Dir:  e.Type == "directory",
			Size: e.Size,
		})
	}
	return entries, nil
}
