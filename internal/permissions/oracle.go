// Package permissions answers whether a user's plan allows unattended
// publishing.
package permissions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/postpilot/postpilot-backend/internal/repo"
	"github.com/postpilot/postpilot-backend/pkg/db/models"
	"github.com/postpilot/postpilot-backend/pkg/enums"
	pkgerrors "github.com/postpilot/postpilot-backend/pkg/errors"
)

const (
	ReasonPaidPlanRequired = "auto-posting requires a paid plan"
	ReasonInactivePlan     = "subscription is not active"
)

// Decision is the gate result for one user. Reason is set when Allowed is false.
type Decision struct {
	Allowed bool           `json:"allowed"`
	Tier    enums.PlanTier `json:"tier"`
	Reason  string         `json:"reason,omitempty"`
}

// Oracle decides whether a user may auto-post. An error means no decision
// could be made; callers must not treat it as permission.
type Oracle interface {
	CanAutoPost(ctx context.Context, userID uuid.UUID) (Decision, error)
}

// PlanRepository loads plan snapshots. A user without a row yields (nil, nil).
type PlanRepository interface {
	FindPlan(ctx context.Context, userID uuid.UUID) (*models.UserPlan, error)
}

type planRepository struct {
	base repo.Base
}

// NewPlanRepository reads user_plans through db.
func NewPlanRepository(db *gorm.DB) PlanRepository {
	return &planRepository{base: repo.NewBase(db)}
}

func (r *planRepository) FindPlan(ctx context.Context, userID uuid.UUID) (*models.UserPlan, error) {
	var plan models.UserPlan
	err := r.base.DB(ctx).Where("user_id = ?", userID).Take(&plan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user plan")
	}
	return &plan, nil
}

// PlanOracle evaluates the stored plan on every call.
type PlanOracle struct {
	plans PlanRepository
	now   func() time.Time
}

// NewPlanOracle builds an oracle over plans.
func NewPlanOracle(plans PlanRepository) (*PlanOracle, error) {
	if plans == nil {
		return nil, errors.New("plan repository required")
	}
	return &PlanOracle{plans: plans, now: time.Now}, nil
}

func (o *PlanOracle) CanAutoPost(ctx context.Context, userID uuid.UUID) (Decision, error) {
	plan, err := o.plans.FindPlan(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	return Evaluate(plan, o.now().UTC()), nil
}

// Evaluate applies the auto-post rules to a plan snapshot. A nil plan is the
// free tier. past_due keeps access until the paid period ends.
func Evaluate(plan *models.UserPlan, now time.Time) Decision {
	if plan == nil {
		return Decision{Tier: enums.PlanTierFree, Reason: ReasonPaidPlanRequired}
	}
	decision := Decision{Tier: plan.Tier}
	if !plan.Tier.AllowsAutoPost() {
		decision.Reason = ReasonPaidPlanRequired
		return decision
	}
	switch {
	case plan.Status.Entitled():
		decision.Allowed = true
	case plan.Status == enums.PlanStatusPastDue && plan.CurrentPeriodEnd != nil && now.Before(*plan.CurrentPeriodEnd):
		decision.Allowed = true
	default:
		decision.Reason = ReasonInactivePlan
	}
	return decision
}
