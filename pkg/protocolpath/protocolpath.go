// Package protocolpath parses scheme-qualified remote locators of the form
// <scheme>://<path>[:<version>], e.g. s3://bucket/key:v1 or hf://org/model:main.
package protocolpath

import (
	"strings"

	"github.com/inftyai/mantafs/pkg/catalog/errors"
)

// Separator sits between the scheme and the scheme-relative path.
const Separator = "://"

// Path is an immutable, parsed protocol path.
//
// Version is empty when the locator is unversioned, which origins treat as
// "latest".
type Path struct {
	Scheme  string
	Path    string
	Version string
}

// Parse splits raw into scheme, path and version.
//
// raw must contain exactly one "://". The version is everything after the
// last ':' of the remainder, so hf://org/model:refs/pr/1 pins revision
// refs/pr/1. A trailing ':' with nothing after it is rejected.
func Parse(raw string) (Path, error) {
	switch n := strings.Count(raw, Separator); {
	case n == 0:
		return Path{}, errors.NewInvalidFormatError(raw, "missing \"://\" separator")
	case n > 1:
		return Path{}, errors.NewInvalidFormatError(raw, "duplicated \"://\" separator")
	}

	scheme, rest, _ := strings.Cut(raw, Separator)
	if scheme == "" {
		return Path{}, errors.NewInvalidFormatError(raw, "empty scheme")
	}

	path, version := rest, ""
	if i := strings.LastIndexByte(rest, ':'); i >= 0 {
		path, version = rest[:i], rest[i+1:]
		if version == "" {
			return Path{}, errors.NewInvalidFormatError(raw, "empty version after ':'")
		}
	}
	if path == "" {
		return Path{}, errors.NewInvalidFormatError(raw, "empty path")
	}

	return Path{Scheme: scheme, Path: path, Version: version}, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// package-level constants.
func MustParse(raw string) Path {
	p, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return p
}

// String reconstructs the canonical form. Parse(p.String()) == p for any p
// returned by Parse.
func (p Path) String() string {
	if p.IsZero() {
		return ""
	}
	s := p.Scheme + Separator + p.Path
	if p.Version != "" {
		s += ":" + p.Version
	}
	return s
}

// IsZero reports whether p is the zero value.
func (p Path) IsZero() bool {
	return p == Path{}
}

// Join returns the child locator name under p, keeping scheme and version.
func (p Path) Join(name string) Path {
	return Path{
		Scheme:  p.Scheme,
		Path:    strings.TrimSuffix(p.Path, "/") + "/" + strings.TrimPrefix(name, "/"),
		Version: p.Version,
	}
}

// Segments returns the slash-separated, non-empty components of the path.
func (p Path) Segments() []string {
	return strings.FieldsFunc(p.Path, func(r rune) bool { return r == '/' })
}

// Base returns the last path segment.
func (p Path) Base() string {
	segs := p.Segments()
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}
