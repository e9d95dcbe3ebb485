package sequencing

import (
	"fmt"

	"deposit-reconciler-go/internal/catalog"
	"deposit-reconciler-go/internal/models"
)

// Decision is the outcome of a sequencing check.
type Decision struct {
	Allowed bool
	Reason  string
}

// Validator decides whether a plan may be opened given a user's deposit
// history. It is pure and synchronous: the decision is re-derived from
// history on every call, never from cached flags, so the gate cannot
// diverge from ledger truth.
type Validator struct {
	catalog *catalog.PlanCatalog
}

func NewValidator(c *catalog.PlanCatalog) *Validator {
	return &Validator{catalog: c}
}

// CanOpen reports whether the plan may be opened now. A plan is open iff
// it is the entry plan or the plan ranked directly below it has an
// ACTIVE or COMPLETED deposit, and the user holds no non-cancelled
// deposit for the same plan.
func (v *Validator) CanOpen(planId string, history []models.DepositRecord) (Decision, error) {
	plan, err := v.catalog.ById(planId)
	if err != nil {
		return Decision{}, err
	}

	for _, rec := range history {
		if rec.PlanId == plan.Id && rec.Status != models.StatusCancelled {
			return Decision{
				Allowed: false,
				Reason:  fmt.Sprintf("plan %q already has a %s deposit", plan.Id, rec.Status),
			}, nil
		}
	}

	pred, ok := v.catalog.Predecessor(plan)
	if !ok {
		// Entry plan, always open.
		return Decision{Allowed: true}, nil
	}

	for _, rec := range history {
		if rec.PlanId != pred.Id {
			continue
		}
		if rec.Status == models.StatusActive || rec.Status == models.StatusCompleted {
			return Decision{Allowed: true}, nil
		}
	}

	return Decision{
		Allowed: false,
		Reason:  fmt.Sprintf("plan %q requires an active or completed deposit in plan %q first", plan.Id, pred.Id),
	}, nil
}
