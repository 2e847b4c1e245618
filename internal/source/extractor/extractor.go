// Package extractor is the extractor-based DownloadSource: it wraps an
// external extractor binary (the yt-dlp family) and runs the fallback
// chain from spec.md §4.7, classifying failures by stderr substring
// analysis (classify.go) and optionally routing attempts through a
// ProxyPool.
package extractor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	apperr "doradura/internal/errors"
	"doradura/internal/progress"
	"doradura/internal/source"
)

// maxStderrTail bounds the stderr tail used for classification and
// operator reporting. downloadAttempt keeps a rolling window of at most
// twice this much of the process output; fetchMetadata collects the
// probe's whole stderr and trims it to this size afterwards.
const maxStderrTail = 8 * 1024

var progressRegex = regexp.MustCompile(`(\d+\.?\d*)%`)

// videoInfo is the subset of extractor JSON metadata this source needs.
type videoInfo struct {
	Title     string `json:"title"`
	Uploader  string `json:"uploader"`
	IsLive    bool   `json:"is_live"`
	WasLive   bool   `json:"was_live"`
	Filesize  int64  `json:"filesize"`
	FilesizeApprox int64 `json:"filesize_approx"`
}

// Source wraps the extractor binary as a DownloadSource.
type Source struct {
	binaryPath    string
	hostPatterns  []*regexp.Regexp
	proxies       *ProxyPool
	chain         []AttemptConfig
}

// New creates an extractor Source. hostPatterns are compiled regexes
// matched against the raw URL in SupportsURL; proxies may be nil.
func New(binaryPath string, hostPatterns []string, proxies *ProxyPool) *Source {
	s := &Source{binaryPath: binaryPath, proxies: proxies, chain: defaultChain()}
	for _, p := range hostPatterns {
		s.hostPatterns = append(s.hostPatterns, regexp.MustCompile(p))
	}
	return s
}

func (s *Source) Name() string { return "extractor" }

// SupportsURL is a pure regex match against the configured host patterns;
// no I/O is performed.
func (s *Source) SupportsURL(url string) bool {
	for _, p := range s.hostPatterns {
		if p.MatchString(url) {
			return true
		}
	}
	return false
}

// GetMetadata runs the fallback chain's metadata probe, advancing to the
// next attempt config on a retriable/advancing error kind and
// short-circuiting on a terminal one.
func (s *Source) GetMetadata(ctx context.Context, url string) (source.Metadata, error) {
	var lastErr error
	for _, cfg := range s.chain {
		info, err := s.fetchMetadata(ctx, url, cfg)
		if err == nil {
			return source.Metadata{
				Title:        info.Title,
				Artist:       info.Uploader,
				IsLivestream: info.IsLive || info.WasLive,
			}, nil
		}
		lastErr = err
		if !apperr.KindOf(err).AdvancesFallbackChain() {
			return source.Metadata{}, err
		}
	}
	return source.Metadata{}, lastErr
}

func (s *Source) fetchMetadata(ctx context.Context, url string, cfg AttemptConfig) (*videoInfo, error) {
	args := []string{"--dump-json", "--no-playlist", "--no-warnings", "--no-check-certificate"}
	args = append(args, attemptArgs(cfg)...)
	args = append(args, url)

	cmd := exec.CommandContext(ctx, s.binaryPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, classifyExecError(ctx, err, tail(stderr.String(), maxStderrTail))
	}

	var info videoInfo
	if jsonErr := json.Unmarshal(out, &info); jsonErr != nil {
		return nil, apperr.New("extractor.GetMetadata", apperr.KindInternal, jsonErr)
	}
	return &info, nil
}

// EstimateSize is a best-effort probe riding on the same metadata fetch;
// ok is false if the extractor never reported a size.
func (s *Source) EstimateSize(ctx context.Context, url string) (int64, bool) {
	info, err := s.fetchMetadata(ctx, url, s.chain[0])
	if err != nil {
		return 0, false
	}
	if info.Filesize > 0 {
		return info.Filesize, true
	}
	if info.FilesizeApprox > 0 {
		return info.FilesizeApprox, true
	}
	return 0, false
}

// IsLivestream reports whether url names a livestream, so the Worker can
// reject the job before attempting a download.
func (s *Source) IsLivestream(ctx context.Context, url string) bool {
	meta, err := s.GetMetadata(ctx, url)
	if err != nil {
		return false
	}
	return meta.IsLivestream
}

// Download runs the fallback chain's download attempt, streaming progress
// through onProgress. Each step runs the full download; transient kinds
// advance to the next step, terminal kinds short-circuit the chain.
func (s *Source) Download(ctx context.Context, req source.Request, onProgress source.ProgressFunc) (source.Output, error) {
	var lastErr error
	for _, cfg := range s.chain {
		out, err := s.downloadAttempt(ctx, req, cfg, onProgress)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !apperr.KindOf(err).AdvancesFallbackChain() {
			return source.Output{}, err
		}
	}
	return source.Output{}, lastErr
}

func (s *Source) downloadAttempt(ctx context.Context, req source.Request, cfg AttemptConfig, onProgress source.ProgressFunc) (source.Output, error) {
	proxy := ""
	if s.proxies != nil {
		proxy = s.proxies.Next()
	}

	args := []string{
		"--newline", "--no-warnings", "--no-check-certificate",
		"-o", fmt.Sprintf("%s/%%(title)s.%%(ext)s", req.OutputDir),
	}
	args = append(args, attemptArgs(cfg)...)
	if proxy != "" {
		args = append(args, "--proxy", proxy)
	}
	if req.Format != "" {
		args = append(args, "-f", req.Format)
	}
	args = append(args, req.URL)

	cmd := exec.CommandContext(ctx, s.binaryPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return source.Output{}, apperr.New("extractor.Download", apperr.KindInternal, err)
	}
	var stderr strings.Builder
	cmd.Stderr = cmd.Stdout // progress and errors interleave on one stream

	if err := cmd.Start(); err != nil {
		return source.Output{}, apperr.New("extractor.Download", apperr.KindInternal, err)
	}

	scanner := bufio.NewScanner(stdout)
	var bytesSeen int64
	for scanner.Scan() {
		line := scanner.Text()
		stderr.WriteString(line + "\n")
		if stderr.Len() > 2*maxStderrTail {
			kept := tail(stderr.String(), maxStderrTail)
			stderr.Reset()
			stderr.WriteString(kept)
		}
		if m := progressRegex.FindStringSubmatch(line); len(m) == 2 {
			if pct, perr := strconv.ParseFloat(m[1], 64); perr == nil && onProgress != nil {
				onProgress(progress.Update{JobID: req.JobID, Percent: pct, Phase: progress.PhaseDownloading})
			}
		}
	}

	waitErr := cmd.Wait()
	if s.proxies != nil && proxy != "" {
		s.proxies.RecordResult(proxy, waitErr == nil, bytesSeen)
	}
	if waitErr != nil {
		return source.Output{}, classifyExecError(ctx, waitErr, tail(stderr.String(), maxStderrTail))
	}

	outPath, size, err := soleFileIn(req.OutputDir)
	if err != nil {
		return source.Output{}, apperr.New("extractor.Download", apperr.KindInternal, err)
	}
	return source.Output{LocalPath: outPath, SizeBytes: size}, nil
}

// soleFileIn returns the path and size of the one file a download attempt
// produced in dir. The output filename is templated by the extractor
// binary itself (title/extension unknown beforehand), but dir is a
// job-private working directory, so exactly one artifact is expected.
func soleFileIn(dir string) (string, int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", 0, err
	}
	var path string
	var size int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return "", 0, err
		}
		path = filepath.Join(dir, e.Name())
		size = info.Size()
	}
	if path == "" {
		return "", 0, fmt.Errorf("no output file found in %s", dir)
	}
	return path, size, nil
}

func attemptArgs(cfg AttemptConfig) []string {
	var args []string
	if cfg.UseCookies {
		args = append(args, "--cookies-from-browser", "chrome")
	}
	if cfg.UseProtectionToken {
		args = append(args, "--extractor-args", "generic:impersonate")
	}
	if cfg.ConservativeFlags {
		args = append(args, "--no-embed-thumbnail", "--no-embed-subs")
	}
	return args
}

// classifyExecError classifies a failed extractor invocation. ctx is the
// context the command ran under: exec.CommandContext kills the process on
// cancellation but its Wait/Output error is a plain *exec.ExitError, never
// context.DeadlineExceeded itself, so ctx.Err() is the only reliable way to
// detect a timeout versus an ordinary process failure.
func classifyExecError(ctx context.Context, err error, stderrTail string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperr.NewWithMessage("extractor", apperr.KindTimeout, err, apperr.KindTimeout.UserMessage())
	}
	kind := classifyStderr(stderrTail)
	return apperr.NewWithMessage("extractor", kind, err, kind.UserMessage())
}

func tail(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}
