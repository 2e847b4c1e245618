// Package validate provides input validation for URLs, paths, and other
// user-facing inputs. All public-facing inputs should be validated before
// they reach the scheduler core.
package validate

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	apperr "doradura/internal/errors"
)

// DangerousPathPatterns are patterns that could indicate path traversal attacks.
var DangerousPathPatterns = []string{
	"..",
	"~",
	"$",
	"%",
}

// filenameUnsafeChars matches characters not allowed in filenames.
var filenameUnsafeChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)

// URL validates a raw URL string, returning InvalidUrl on any malformed
// input. Platform routing (which source, if any, claims the URL) is the
// Source Registry's job, not this package's.
func URL(rawURL string) (*url.URL, error) {
	if rawURL == "" {
		return nil, apperr.NewWithMessage("validate.URL", apperr.KindInvalidUrl, nil, "empty url")
	}

	rawURL = strings.TrimSpace(rawURL)

	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return nil, apperr.NewWithMessage("validate.URL", apperr.KindInvalidUrl, nil, "missing http(s) scheme")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, apperr.NewWithMessage("validate.URL", apperr.KindInvalidUrl, err, "unparsable url")
	}

	if parsed.Host == "" {
		return nil, apperr.NewWithMessage("validate.URL", apperr.KindInvalidUrl, nil, "missing host")
	}

	return parsed, nil
}

// DirectoryPath validates a directory path, guarding against traversal.
// Returns the cleaned absolute path or an error.
func DirectoryPath(path string) (string, error) {
	if path == "" {
		return "", apperr.NewWithMessage("validate.DirectoryPath", apperr.KindInvalidUrl, nil, "empty path")
	}

	for _, pattern := range DangerousPathPatterns {
		if strings.Contains(path, pattern) {
			return "", apperr.NewWithMessage("validate.DirectoryPath", apperr.KindInternal, nil,
				"path contains disallowed characters")
		}
	}

	cleanPath := filepath.Clean(path)
	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		return "", apperr.New("validate.DirectoryPath", apperr.KindInternal, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Doesn't exist yet; caller (e.g. the Worker's job directory
			// setup) may create it.
			return absPath, nil
		}
		return "", apperr.New("validate.DirectoryPath", apperr.KindInternal, err)
	}

	if !info.IsDir() {
		return "", apperr.NewWithMessage("validate.DirectoryPath", apperr.KindInvalidUrl, nil, "not a directory")
	}

	return absPath, nil
}

// Filename sanitizes a filename to be safe for the filesystem.
func Filename(name string) string {
	if name == "" {
		return "untitled"
	}

	safe := filenameUnsafeChars.ReplaceAllString(name, "_")
	safe = strings.Trim(safe, " .")

	if len(safe) > 200 {
		safe = safe[:200]
	}

	if safe == "" {
		return "untitled"
	}

	return safe
}

// QualityValue clamps a quality value to 0-100.
func QualityValue(quality int) int {
	if quality < 0 {
		return 0
	}
	if quality > 100 {
		return 100
	}
	return quality
}

// Format validates a requested format string against the allowed set.
func Format(format string, allowedFormats []string) (string, error) {
	format = strings.ToLower(strings.TrimSpace(format))

	if format == "" {
		return allowedFormats[0], nil
	}

	for _, allowed := range allowedFormats {
		if format == allowed {
			return format, nil
		}
	}

	return "", apperr.NewWithMessage("validate.Format", apperr.KindInvalidUrl, nil,
		fmt.Sprintf("unsupported format: %s", format))
}

// PositiveInt ensures an integer is positive, returning a default if not.
func PositiveInt(value, defaultValue int) int {
	if value <= 0 {
		return defaultValue
	}
	return value
}

// NonEmptyString returns the string or a default if empty.
func NonEmptyString(value, defaultValue string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return defaultValue
	}
	return value
}
