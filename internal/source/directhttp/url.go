package directhttp

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// mediaExtensions is the set of file extensions this source claims.
var mediaExtensions = []string{
	".mp3", ".mp4", ".m4a", ".wav", ".flac", ".ogg", ".webm", ".mov", ".mkv",
}

func parseURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("disallowed scheme: %s", scheme)
	}
	return u, nil
}

// hasMediaExtension is a pure, fast check (no I/O): whether the URL path
// names a file by one of the supported media extensions.
func hasMediaExtension(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	ext := strings.ToLower(filepath.Ext(u.Path))
	for _, e := range mediaExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

func filenameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "download"
	}
	name := filepath.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "download"
	}
	return name
}
