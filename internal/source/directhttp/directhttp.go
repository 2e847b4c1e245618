// Package directhttp is the direct-HTTP DownloadSource: for URLs that name
// a media file by extension, it fetches over plain HTTP(S) with resumable
// range requests, generalizing the teacher's SSRF-hardened image client
// (DNS pinning, private-IP blocking, redirect validation, content-type
// sniffing) into a streaming downloader. Registered last, as the
// fallback source.
package directhttp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	apperr "doradura/internal/errors"
	"doradura/internal/progress"
	"doradura/internal/source"
)

const chunkSize = 1 << 20 // 1 MiB per read, for progress granularity

// Source is the direct-HTTP DownloadSource.
type Source struct{}

// New creates a directhttp Source.
func New() *Source {
	return &Source{}
}

func (s *Source) Name() string { return "directhttp" }

// SupportsURL is a pure extension check: no I/O, O(1).
func (s *Source) SupportsURL(url string) bool {
	return hasMediaExtension(url)
}

// GetMetadata issues a HEAD request to check the URL is reachable and
// derives a title from the filename; direct-HTTP sources have no artist
// concept. A server that rejects HEAD fails the call: no ranged-GET
// fallback is attempted.
func (s *Source) GetMetadata(ctx context.Context, rawURL string) (source.Metadata, error) {
	_, size, _, err := s.probe(ctx, rawURL)
	if err != nil {
		return source.Metadata{}, err
	}
	_ = size
	return source.Metadata{Title: filenameFromURL(rawURL)}, nil
}

// EstimateSize reports Content-Length when the server provides one.
func (s *Source) EstimateSize(ctx context.Context, rawURL string) (int64, bool) {
	_, size, _, err := s.probe(ctx, rawURL)
	if err != nil || size <= 0 {
		return 0, false
	}
	return size, true
}

// IsLivestream is always false: a URL that names a static media file by
// extension cannot be a livestream.
func (s *Source) IsLivestream(ctx context.Context, rawURL string) bool {
	return false
}

// probe validates the URL, resolves it with DNS pinning, and issues a HEAD
// request, returning the resolved client (reused for Download), the
// reported size, and the content type.
func (s *Source) probe(ctx context.Context, rawURL string) (*http.Client, int64, string, error) {
	_, pinnedIP, err := validateURL(ctx, rawURL)
	if err != nil {
		return nil, 0, "", apperr.New("directhttp.probe", apperr.KindInvalidUrl, err)
	}

	u, _ := parseURL(rawURL)
	port := u.Port()
	if port == "" {
		if u.Scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}

	client := pinnedClient(ctx, port, pinnedIP)

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return client, 0, "", apperr.New("directhttp.probe", apperr.KindInternal, err)
	}
	setHeaders(req)

	resp, err := client.Do(req)
	if err != nil {
		return client, 0, "", apperr.New("directhttp.probe", apperr.KindNetworkError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return client, 0, "", apperr.NewWithMessage("directhttp.probe", apperr.KindVideoUnavailable, nil,
			fmt.Sprintf("server returned status %d", resp.StatusCode))
	}

	return client, resp.ContentLength, resp.Header.Get("Content-Type"), nil
}

// Download performs a resumable, range-based fetch to req.OutputDir,
// streaming progress to onProgress. If a partial file from a prior,
// interrupted attempt already exists at the destination path, Download
// issues a ranged GET starting at its current size and appends to it; if
// the server ignores the Range header (replies 200 instead of 206) the
// partial bytes are discarded and the fetch restarts from zero, since
// appending server-fresh bytes onto stale ones would corrupt the file.
func (s *Source) Download(ctx context.Context, req source.Request, onProgress source.ProgressFunc) (source.Output, error) {
	client, total, contentType, err := s.probe(ctx, req.URL)
	if err != nil {
		return source.Output{}, err
	}
	if !strings.HasPrefix(contentType, "audio/") && !strings.HasPrefix(contentType, "video/") &&
		contentType != "" && !strings.HasPrefix(contentType, "application/octet-stream") {
		return source.Output{}, apperr.NewWithMessage("directhttp.Download", apperr.KindVideoUnavailable, nil,
			"url does not point to a media file")
	}

	outPath := filepath.Join(req.OutputDir, filenameFromURL(req.URL))

	var existingSize int64
	if fi, statErr := os.Stat(outPath); statErr == nil {
		existingSize = fi.Size()
	}
	resumeFrom := resumeOffset(existingSize, total)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return source.Output{}, apperr.New("directhttp.Download", apperr.KindInternal, err)
	}
	setHeaders(httpReq)
	if resumeFrom > 0 {
		httpReq.Header.Set("Range", fmt.Sprintf("bytes=%d-", resumeFrom))
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return source.Output{}, apperr.New("directhttp.Download", apperr.KindNetworkError, err)
	}
	defer resp.Body.Close()

	resumed := resumeFrom > 0 && resp.StatusCode == http.StatusPartialContent
	openFlags := openFlagsForResume(resumed)
	if !resumed {
		resumeFrom = 0
	}

	out, err := os.OpenFile(outPath, openFlags, 0o644)
	if err != nil {
		return source.Output{}, apperr.New("directhttp.Download", apperr.KindInternal, err)
	}
	defer out.Close()

	written := resumeFrom
	buf := make([]byte, chunkSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				return source.Output{}, apperr.New("directhttp.Download", apperr.KindInternal, writeErr)
			}
			written += int64(n)
			if onProgress != nil && total > 0 {
				onProgress(progress.Update{
					JobID:      req.JobID,
					Percent:    100 * float64(written) / float64(total),
					BytesDone:  written,
					BytesTotal: total,
					Phase:      progress.PhaseDownloading,
				})
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return source.Output{}, apperr.New("directhttp.Download", apperr.KindNetworkError, readErr)
		}
	}

	return source.Output{LocalPath: outPath, SizeBytes: written}, nil
}

// resumeOffset decides where a fetch should resume from given an existing
// local file of existingSize bytes and the server-reported total (0 if
// unknown). A partial file already at or past the known total is stale
// (e.g. left over from a prior attempt at a different format) and is
// refetched from zero rather than trusted.
func resumeOffset(existingSize, total int64) int64 {
	if existingSize <= 0 {
		return 0
	}
	if total > 0 && existingSize >= total {
		return 0
	}
	return existingSize
}

// openFlagsForResume returns the os.OpenFile flags for writing the
// destination file: append onto the existing partial when the server
// honored the Range request (206), otherwise truncate and start fresh.
func openFlagsForResume(resumed bool) int {
	if resumed {
		return os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	return os.O_CREATE | os.O_WRONLY | os.O_TRUNC
}

func setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; doradura-fetcher/1.0)")
	req.Header.Set("Accept", "*/*")
}
