// Package source defines the DownloadSource contract and the registry that
// tries sources in registration order until one claims a URL. Concrete
// sources live in the extractor and directhttp subpackages.
package source

import (
	"context"

	"doradura/internal/progress"
)

// Metadata is what a source can tell the Worker about a URL before
// committing to a download.
type Metadata struct {
	Title       string
	Artist      string
	IsLivestream bool
}

// Request describes one download attempt handed to a source.
type Request struct {
	JobID       string
	URL         string
	Format      string
	QualitySpec string
	OutputDir   string
}

// Output is what a successful download produces.
type Output struct {
	// LocalPath is the path to the downloaded artifact on disk.
	LocalPath string
	// SizeBytes is the final artifact size.
	SizeBytes int64
}

// ProgressFunc receives progress snapshots during a download.
type ProgressFunc func(progress.Update)

// DownloadSource is implemented by every media backend the Worker can use.
// supports_url must be pure and fast (no I/O): it decides routing, not
// availability.
type DownloadSource interface {
	// Name is a stable identifier for logs and metrics.
	Name() string
	// SupportsURL is a pure syntactic check, O(1), no I/O.
	SupportsURL(url string) bool
	// GetMetadata fetches title/artist and whether the URL is a livestream.
	// May fail with NetworkError, VideoUnavailable, BotDetection,
	// InvalidCookies, or Internal.
	GetMetadata(ctx context.Context, url string) (Metadata, error)
	// EstimateSize is a best-effort size probe; ok is false when unknown.
	EstimateSize(ctx context.Context, url string) (bytes int64, ok bool)
	// IsLivestream reports whether the Worker should reject this job
	// before attempting a download.
	IsLivestream(ctx context.Context, url string) bool
	// Download produces a local artifact, streaming progress via onProgress.
	// May fail with any source error kind from internal/errors.
	Download(ctx context.Context, req Request, onProgress ProgressFunc) (Output, error)
}

// Registry holds sources in registration order and resolves a URL to the
// first one whose SupportsURL returns true.
type Registry struct {
	sources []DownloadSource
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends source to the end of the registration order. Put
// specific sources first; the direct-HTTP fallback source should be
// registered last.
func (r *Registry) Register(s DownloadSource) {
	r.sources = append(r.sources, s)
}

// Resolve returns the first registered source claiming url, or nil if none
// do (the caller should treat this as NoSourceForUrl).
func (r *Registry) Resolve(url string) DownloadSource {
	for _, s := range r.sources {
		if s.SupportsURL(url) {
			return s
		}
	}
	return nil
}

// Sources returns every registered source, in registration order.
func (r *Registry) Sources() []DownloadSource {
	return r.sources
}
