package plan

import (
	"testing"

	"doradura/internal/config"
	"doradura/internal/constants"
)

func TestMaxFileSize_PerPlan(t *testing.T) {
	cfg := config.Default()

	tests := []struct {
		plan constants.Plan
		mb   int
	}{
		{constants.PlanFree, cfg.MaxFileSizeFreeMB},
		{constants.PlanPremium, cfg.MaxFileSizePremiumMB},
		{constants.PlanVip, cfg.MaxFileSizeVipMB},
	}
	for _, tt := range tests {
		want := int64(tt.mb) * 1024 * 1024
		if got := MaxFileSize(cfg, tt.plan); got != want {
			t.Errorf("MaxFileSize(%s) = %d, want %d", tt.plan, got, want)
		}
	}
}

func TestAllowsQuality(t *testing.T) {
	if AllowsQuality(constants.PlanFree) {
		t.Error("free plan should not allow custom quality selection")
	}
	if !AllowsQuality(constants.PlanPremium) {
		t.Error("premium plan should allow custom quality selection")
	}
	if !AllowsQuality(constants.PlanVip) {
		t.Error("vip plan should allow custom quality selection")
	}
}
