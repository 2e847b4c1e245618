// Package plan centralizes the policy a user's subscription tier grants:
// size caps and whether a custom quality_spec is honored or ignored in
// favor of the format's default. Generalizes the teacher's
// validate.QualityValue clamp into a plan-keyed gate.
package plan

import (
	"doradura/internal/config"
	"doradura/internal/constants"
)

// MaxFileSize returns the size cap in bytes for a plan, per cfg's
// per-plan megabyte settings.
func MaxFileSize(cfg *config.Config, p constants.Plan) int64 {
	var mb int
	switch p {
	case constants.PlanVip:
		mb = cfg.MaxFileSizeVipMB
	case constants.PlanPremium:
		mb = cfg.MaxFileSizePremiumMB
	default:
		mb = cfg.MaxFileSizeFreeMB
	}
	return int64(mb) * 1024 * 1024
}

// AllowsQuality reports whether a plan may request a custom quality_spec
// rather than the format's default. Free accounts always get the default.
func AllowsQuality(p constants.Plan) bool {
	return p == constants.PlanPremium || p == constants.PlanVip
}
