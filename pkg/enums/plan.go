package enums

import (
	"fmt"
	"strings"
)

// PlanTier is the subscription tier a user is billed on.
type PlanTier string

const (
	PlanTierFree    PlanTier = "free"
	PlanTierCreator PlanTier = "creator"
	PlanTierPro     PlanTier = "pro"
	PlanTierAgency  PlanTier = "agency"
)

var validPlanTiers = []PlanTier{
	PlanTierFree,
	PlanTierCreator,
	PlanTierPro,
	PlanTierAgency,
}

// IsValid reports whether the value is a known tier.
func (t PlanTier) IsValid() bool {
	for _, candidate := range validPlanTiers {
		if candidate == t {
			return true
		}
	}
	return false
}

// AllowsAutoPost reports whether the tier includes unattended publishing.
func (t PlanTier) AllowsAutoPost() bool {
	switch t {
	case PlanTierCreator, PlanTierPro, PlanTierAgency:
		return true
	default:
		return false
	}
}

// ParsePlanTier converts raw input into PlanTier.
func ParsePlanTier(value string) (PlanTier, error) {
	normalized := PlanTier(strings.ToLower(strings.TrimSpace(value)))
	if normalized.IsValid() {
		return normalized, nil
	}
	return "", fmt.Errorf("invalid plan tier %q", value)
}

// PlanStatus mirrors the billing provider's subscription state for a plan.
type PlanStatus string

const (
	PlanStatusActive   PlanStatus = "active"
	PlanStatusTrialing PlanStatus = "trialing"
	PlanStatusPastDue  PlanStatus = "past_due"
	PlanStatusPaused   PlanStatus = "paused"
	PlanStatusCanceled PlanStatus = "canceled"
)

// Entitled reports whether the status grants plan features without a grace check.
func (s PlanStatus) Entitled() bool {
	return s == PlanStatusActive || s == PlanStatusTrialing
}
