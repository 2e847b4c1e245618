package extractor

// AttemptConfig is one step of the fallback chain: a client profile,
// cookie source and extra process flags, tried in order until one
// succeeds or a terminal error kind short-circuits the chain. The proxy is
// not part of the step: downloadAttempt takes one from the ProxyPool for
// each attempt.
type AttemptConfig struct {
	// Name identifies the step for logs ("no-cookies", "cookies+token", …).
	Name string
	// ClientProfile names the step's client profile. attemptArgs derives
	// no extractor flag from it.
	ClientProfile string
	// UseCookies requests the cookie jar / browser cookie source.
	UseCookies bool
	// UseProtectionToken requests a richer, token-backed client profile.
	UseProtectionToken bool
	// ConservativeFlags disables post-processing tweaks for a lowest-risk
	// attempt.
	ConservativeFlags bool
}

// defaultChain is the fixed three-step fallback chain from spec.md §4.7.
// Chain state is never persisted: a re-hydrated job always restarts here.
func defaultChain() []AttemptConfig {
	return []AttemptConfig{
		{Name: "no-cookies", ClientProfile: "low-footprint", UseCookies: false, UseProtectionToken: false},
		{Name: "cookies+token", ClientProfile: "rich", UseCookies: true, UseProtectionToken: true},
		{Name: "conservative", ClientProfile: "conservative", UseCookies: true, UseProtectionToken: false, ConservativeFlags: true},
	}
}
