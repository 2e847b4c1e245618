// Package submit implements submit_job, the one inbound entrypoint the
// chat-handler collaborator calls to accept a new download request. It owns
// the Rate Limiter check, URL normalisation, cache registration, Job Store
// insert, and Priority Queue enqueue described for the external interface.
package submit

import (
	"fmt"
	"strings"
	"time"

	"doradura/internal/config"
	"doradura/internal/constants"
	apperr "doradura/internal/errors"
	"doradura/internal/ratelimit"
	"doradura/internal/scheduler"
	"doradura/internal/source"
	"doradura/internal/storage"
	"doradura/internal/urlcache"
	"doradura/internal/validate"
)

// ErrorCode enumerates the SubmissionError variants a caller needs to
// branch on; message text stays inside Error.
type ErrorCode string

const (
	ErrorRateLimited    ErrorCode = "rate_limited"
	ErrorInvalidURL     ErrorCode = "invalid_url"
	ErrorNoSourceForURL ErrorCode = "no_source_for_url"
	ErrorQuotaExceeded  ErrorCode = "quota_exceeded"
	ErrorInternal       ErrorCode = "internal_error"
)

// Error is the SubmissionError a failed submit_job call returns.
type Error struct {
	Code       ErrorCode
	RetryAfter time.Duration // set only when Code == ErrorRateLimited
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("submit: %s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("submit: %s", e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// Submitter is submit_job: the single inbound entrypoint a chat-handler
// collaborator calls to accept a new download request.
type Submitter struct {
	Jobs      *storage.JobRepository
	URLCache  *urlcache.Cache
	Limiter   *ratelimit.PlanLimiter
	Registry  *source.Registry
	Scheduler *scheduler.Scheduler
	Config    *config.Config
}

// Submit validates and admits one job. On success it returns the new job's
// id, having already registered the url in the URL Cache, persisted the
// job, and enqueued it onto the Priority Queue. On failure it returns a
// *Error describing why, without recording the request or enqueuing
// anything; a failed Job Store insert leaves the url registered in the URL
// Cache.
func (s *Submitter) Submit(userID, chatID int64, plan constants.Plan, rawURL, format, qualitySpec string) (string, error) {
	if err := s.Limiter.TryAcquire(userID, plan); err != nil {
		retryAfter := time.Duration(0)
		if appErr, ok := err.(*apperr.AppError); ok {
			retryAfter = parseRetryAfter(appErr.Message)
		}
		return "", &Error{Code: ErrorRateLimited, RetryAfter: retryAfter, Err: err}
	}

	parsed, err := validate.URL(rawURL)
	if err != nil {
		return "", &Error{Code: ErrorInvalidURL, Err: err}
	}
	normalizedURL := parsed.String()

	if s.Registry.Resolve(normalizedURL) == nil {
		return "", &Error{Code: ErrorNoSourceForURL, Err: apperr.New("submit.Submit", apperr.KindNoSourceForUrl, nil)}
	}

	count, err := s.Jobs.CountActiveByUser(userID)
	if err != nil {
		return "", &Error{Code: ErrorInternal, Err: err}
	}
	if count >= s.Config.MaxActiveJobsPerUser {
		return "", &Error{Code: ErrorQuotaExceeded, Err: fmt.Errorf("user already has %d active jobs", count)}
	}

	format, err = validate.Format(format, formatStrings(constants.SupportedFormats))
	if err != nil {
		return "", &Error{Code: ErrorInvalidURL, Err: err}
	}

	if _, err := s.URLCache.Register(normalizedURL); err != nil {
		return "", &Error{Code: ErrorInternal, Err: err}
	}

	job := &storage.Job{
		UserID:      userID,
		ChatID:      chatID,
		URL:         normalizedURL,
		Format:      format,
		QualitySpec: qualitySpec,
		Priority:    int(constants.PriorityForPlan(plan)),
		Status:      constants.StatusPending,
	}
	if err := s.Jobs.Insert(job); err != nil {
		return "", &Error{Code: ErrorInternal, Err: err}
	}

	s.Limiter.RecordRequest(userID, plan)
	s.Scheduler.Enqueue(job)

	return job.ID, nil
}

func formatStrings(formats []constants.Format) []string {
	out := make([]string, len(formats))
	for i, f := range formats {
		out[i] = string(f)
	}
	return out
}

// parseRetryAfter best-effort extracts the duration ratelimit.TryAcquire
// embedded in its operator message, e.g. "rate limited, retry in 4s".
func parseRetryAfter(message string) time.Duration {
	const marker = "retry in "
	idx := strings.Index(message, marker)
	if idx < 0 {
		return 0
	}
	d, err := time.ParseDuration(message[idx+len(marker):])
	if err != nil {
		return 0
	}
	return d
}
