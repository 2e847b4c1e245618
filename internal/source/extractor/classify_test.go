package extractor

import (
	"context"
	"errors"
	"testing"
	"time"

	apperr "doradura/internal/errors"
)

func TestClassifyStderr_BotDetectionTakesPrecedenceOverCookies(t *testing.T) {
	stderr := "ERROR: [youtube] Sign in to confirm you're not a bot. Use --cookies."
	if got := classifyStderr(stderr); got != apperr.KindBotDetection {
		t.Errorf("classifyStderr() = %v, want %v", got, apperr.KindBotDetection)
	}
}

func TestClassifyStderr_CookiesOnly(t *testing.T) {
	stderr := "ERROR: This video requires cookies to view"
	if got := classifyStderr(stderr); got != apperr.KindInvalidCookies {
		t.Errorf("classifyStderr() = %v, want %v", got, apperr.KindInvalidCookies)
	}
}

func TestClassifyStderr_Unavailable(t *testing.T) {
	stderr := "ERROR: Video unavailable. This video has been removed"
	if got := classifyStderr(stderr); got != apperr.KindVideoUnavailable {
		t.Errorf("classifyStderr() = %v, want %v", got, apperr.KindVideoUnavailable)
	}
}

func TestClassifyStderr_Network(t *testing.T) {
	stderr := "urlopen error [Errno -2] Temporary failure in name resolution"
	if got := classifyStderr(stderr); got != apperr.KindNetworkError {
		t.Errorf("classifyStderr() = %v, want %v", got, apperr.KindNetworkError)
	}
}

func TestClassifyStderr_UnknownBecomesInternal(t *testing.T) {
	stderr := "ERROR: something completely unexpected happened"
	if got := classifyStderr(stderr); got != apperr.KindInternal {
		t.Errorf("classifyStderr() = %v, want %v", got, apperr.KindInternal)
	}
}

func TestClassifyStderr_CaseInsensitive(t *testing.T) {
	stderr := "ERROR: CAPTCHA required to continue"
	if got := classifyStderr(stderr); got != apperr.KindBotDetection {
		t.Errorf("classifyStderr() = %v, want %v", got, apperr.KindBotDetection)
	}
}

func TestClassifyExecError_ExpiredContextClassifiesAsTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	<-ctx.Done()

	err := classifyExecError(ctx, errors.New("signal: killed"), "ERROR: CAPTCHA required to continue")
	if apperr.KindOf(err) != apperr.KindTimeout {
		t.Errorf("KindOf(err) = %v, want %v", apperr.KindOf(err), apperr.KindTimeout)
	}
}

func TestClassifyExecError_LiveContextFallsBackToStderr(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	err := classifyExecError(ctx, errors.New("exit status 1"), "ERROR: Video unavailable. This video has been removed")
	if apperr.KindOf(err) != apperr.KindVideoUnavailable {
		t.Errorf("KindOf(err) = %v, want %v", apperr.KindOf(err), apperr.KindVideoUnavailable)
	}
}
