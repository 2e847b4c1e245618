package extractor

import "testing"

func TestDefaultChain_HasThreeSteps(t *testing.T) {
	chain := defaultChain()
	if len(chain) != 3 {
		t.Fatalf("defaultChain() has %d steps, want 3", len(chain))
	}
}

func TestDefaultChain_FirstStepHasNoCookies(t *testing.T) {
	chain := defaultChain()
	if chain[0].UseCookies {
		t.Error("expected first chain step to not use cookies")
	}
}

func TestDefaultChain_SecondStepUsesCookiesAndToken(t *testing.T) {
	chain := defaultChain()
	if !chain[1].UseCookies || !chain[1].UseProtectionToken {
		t.Error("expected second chain step to use cookies and a protection token")
	}
}

func TestDefaultChain_ThirdStepIsConservative(t *testing.T) {
	chain := defaultChain()
	if !chain[2].ConservativeFlags {
		t.Error("expected third chain step to disable post-processing tweaks")
	}
}

func TestAttemptArgs_NoCookiesStepHasNoFlags(t *testing.T) {
	args := attemptArgs(defaultChain()[0])
	for _, a := range args {
		if a == "--cookies-from-browser" {
			t.Error("expected no-cookies step to omit cookie flags")
		}
	}
}

func TestAttemptArgs_CookieStepIncludesCookieFlag(t *testing.T) {
	args := attemptArgs(defaultChain()[1])
	found := false
	for _, a := range args {
		if a == "--cookies-from-browser" {
			found = true
		}
	}
	if !found {
		t.Error("expected cookie step to include --cookies-from-browser")
	}
}
