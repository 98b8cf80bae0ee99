// Package source classifies path-or-URL strings before they are opened.
//
// Classification happens exactly once: URLs are kept verbatim and local paths
// are made absolute and checked for existence. Openers receive the resulting
// ports.Location and never re-derive it.
package source

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/user/framecue/pkg/ports"
)

var urlPrefixes = []string{"http://", "https://"}

// IsURL reports whether s starts with a recognized network scheme.
func IsURL(s string) bool {
	lower := strings.ToLower(s)
	for _, p := range urlPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

// Resolver classifies user and remote supplied locations.
type Resolver struct {
	fs      ports.FileSystem
	baseURL string
}

// NewResolver creates a resolver. baseURL is used to synthesize URLs for bare
// file names received from the remote channel; it may be empty.
func NewResolver(fs ports.FileSystem, baseURL string) *Resolver {
	return &Resolver{fs: fs, baseURL: strings.TrimRight(baseURL, "/")}
}

// Classify turns raw into a Location. Local paths must exist.
func (r *Resolver) Classify(raw string) (ports.Location, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ports.Location{}, fmt.Errorf("%w: empty path", ports.ErrSourceNotFound)
	}
	if IsURL(raw) {
		if _, err := url.Parse(raw); err != nil {
			return ports.Location{}, fmt.Errorf("%w: %v", ports.ErrUnsupportedFormat, err)
		}
		return ports.Location{Kind: ports.RemoteURL, Path: raw}, nil
	}

	abs, err := filepath.Abs(raw)
	if err != nil {
		return ports.Location{}, fmt.Errorf("%w: %s: %v", ports.ErrSourceNotFound, raw, err)
	}
	ok, err := r.fs.Exists(abs)
	if err != nil {
		return ports.Location{}, fmt.Errorf("%w: %s: %v", ports.ErrSourceNotFound, abs, err)
	}
	if !ok {
		return ports.Location{}, fmt.Errorf("%w: %s", ports.ErrSourceNotFound, abs)
	}
	return ports.Location{Kind: ports.LocalFile, Path: abs}, nil
}

// ResolveRemote classifies a videoPath received in a video_info message.
// URLs and existing local files are used as-is; anything else is treated as
// a path on the media server and mapped to <baseURL>/<path without
// extension>.mp4, sub-directories included.
func (r *Resolver) ResolveRemote(videoPath string) (ports.Location, error) {
	videoPath = strings.TrimSpace(videoPath)
	if videoPath == "" {
		return ports.Location{}, fmt.Errorf("%w: empty videoPath", ports.ErrSourceNotFound)
	}
	if IsURL(videoPath) {
		return r.Classify(videoPath)
	}
	if loc, err := r.Classify(videoPath); err == nil {
		return loc, nil
	}
	if r.baseURL == "" {
		return ports.Location{}, fmt.Errorf("%w: %s (no media base URL configured)", ports.ErrSourceNotFound, videoPath)
	}

	rel := strings.TrimLeft(filepath.ToSlash(videoPath), "/")
	segments := strings.Split(strings.TrimSuffix(rel, path.Ext(rel)), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return ports.Location{
		Kind: ports.RemoteURL,
		Path: r.baseURL + "/" + strings.Join(segments, "/") + ".mp4",
	}, nil
}
