package extractor

import (
	"strings"

	apperr "doradura/internal/errors"
)

// botDetectionPatterns are checked before cookiePatterns: per the recorded
// precedence decision, a stderr line matching both is classified
// BotDetection, since bot-detection messages are a more specific substring
// while cookie messages are a generic superset that can co-occur with them.
var botDetectionPatterns = []string{
	"sign in to confirm",
	"captcha",
	"unusual traffic",
	"confirm you're not a bot",
	"automated queries",
}

var cookiePatterns = []string{
	"cookies",
	"authentication required",
	"login required",
	"private video",
}

var unavailablePatterns = []string{
	"video unavailable",
	"this video is not available",
	"has been removed",
	"account has been terminated",
	"content is unavailable",
}

var networkPatterns = []string{
	"connection refused",
	"connection reset",
	"temporary failure in name resolution",
	"network is unreachable",
	"no route to host",
	"timed out",
}

// classifyStderr maps a raw extractor stderr tail to a taxonomy Kind.
// Unknown stderr maps to KindInternal per spec.md §7.
func classifyStderr(stderr string) apperr.Kind {
	lower := strings.ToLower(stderr)

	if containsAny(lower, botDetectionPatterns) {
		return apperr.KindBotDetection
	}
	if containsAny(lower, cookiePatterns) {
		return apperr.KindInvalidCookies
	}
	if containsAny(lower, unavailablePatterns) {
		return apperr.KindVideoUnavailable
	}
	if containsAny(lower, networkPatterns) {
		return apperr.KindNetworkError
	}
	return apperr.KindInternal
}

func containsAny(haystack string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(haystack, p) {
			return true
		}
	}
	return false
}
