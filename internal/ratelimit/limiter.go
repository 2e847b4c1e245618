// Package ratelimit throttles per-user request rate by subscription plan.
// It is intentionally non-persistent: a process restart resets every
// user's clock, which only ever costs a user one extra interval of wait.
package ratelimit

import (
	"sync"
	"time"

	"doradura/internal/constants"
	apperr "doradura/internal/errors"
)

// Intervals holds the minimum spacing between successful acquires for each
// plan tier, read from configuration.
type Intervals struct {
	Free    time.Duration
	Premium time.Duration
	Vip     time.Duration
}

func (iv Intervals) forPlan(plan constants.Plan) time.Duration {
	switch plan {
	case constants.PlanPremium:
		return iv.Premium
	case constants.PlanVip:
		return iv.Vip
	default:
		return iv.Free
	}
}

// IsAdmin reports whether userID is an administrator identity, exempt from
// rate limiting. Backed by an external identity collaborator.
type IsAdmin func(userID int64) bool

// PlanLimiter is the Rate Limiter: one earliest-next-instant clock per user,
// advanced by the plan-derived interval on every successful acquire.
type PlanLimiter struct {
	mu        sync.Mutex
	nextAfter map[int64]time.Time
	intervals Intervals
	isAdmin   IsAdmin
}

// New creates a PlanLimiter. isAdmin may be nil, in which case no user is
// treated as an administrator.
func New(intervals Intervals, isAdmin IsAdmin) *PlanLimiter {
	if isAdmin == nil {
		isAdmin = func(int64) bool { return false }
	}
	return &PlanLimiter{
		nextAfter: make(map[int64]time.Time),
		intervals: intervals,
		isAdmin:   isAdmin,
	}
}

// TryAcquire reports whether userID may proceed now. On denial it returns
// an AppError of KindRateLimited carrying the remaining wait in its
// message. Administrators always succeed.
func (l *PlanLimiter) TryAcquire(userID int64, plan constants.Plan) error {
	if l.isAdmin(userID) {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	next, seen := l.nextAfter[userID]
	if seen && now.Before(next) {
		retryAfter := next.Sub(now)
		return apperr.NewWithMessage("ratelimit.TryAcquire", apperr.KindRateLimited, nil,
			"rate limited, retry in "+retryAfter.Round(time.Second).String())
	}

	return nil
}

// RecordRequest advances userID's clock by one plan interval from now.
// Called after a successful TryAcquire to mark the request as consumed.
func (l *PlanLimiter) RecordRequest(userID int64, plan constants.Plan) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextAfter[userID] = time.Now().Add(l.intervals.forPlan(plan))
}

// Reset clears userID's clock, allowing an immediate next acquire.
func (l *PlanLimiter) Reset(userID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.nextAfter, userID)
}
