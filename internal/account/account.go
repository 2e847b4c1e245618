// Package account is the User preference external collaborator: plan,
// language, and default format are owned by account/subscription
// management, out of scope here (spec.md §1). This package is only the
// boundary the Worker queries through (worker.UserProfiles) plus a
// minimal in-memory default, the same pattern internal/chatapi and
// internal/operator use for their own out-of-scope collaborators.
package account

import (
	"sync"

	"doradura/internal/constants"
)

// InMemoryProfiles is the default UserProfiles adapter: a process-lifetime
// map of user id to plan. A real deployment queries a subscription/billing
// service instead; nothing in scope here requires one.
type InMemoryProfiles struct {
	mu    sync.RWMutex
	plans map[int64]constants.Plan
}

// NewInMemoryProfiles creates an InMemoryProfiles adapter. Every user not
// explicitly set defaults to the free plan.
func NewInMemoryProfiles() *InMemoryProfiles {
	return &InMemoryProfiles{plans: make(map[int64]constants.Plan)}
}

// SetPlan records userID's current plan.
func (p *InMemoryProfiles) SetPlan(userID int64, plan constants.Plan) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.plans[userID] = plan
}

// PlanForUser implements worker.UserProfiles.
func (p *InMemoryProfiles) PlanForUser(userID int64) (constants.Plan, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if plan, ok := p.plans[userID]; ok {
		return plan, nil
	}
	return constants.PlanFree, nil
}
