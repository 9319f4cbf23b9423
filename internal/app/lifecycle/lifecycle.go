// Package lifecycle implements the deal transition rules: which stage and
// status moves are accepted for a given actor role, and which audit
// activities a committed transition derives.
package lifecycle

import (
	"github.com/shopspring/decimal"

	"github.com/ridgeline-labs/minicrm/internal/app/domain/activity"
	"github.com/ridgeline-labs/minicrm/internal/app/domain/deal"
	"github.com/ridgeline-labs/minicrm/internal/app/domain/org"
	"github.com/ridgeline-labs/minicrm/internal/app/policy"
	"github.com/ridgeline-labs/minicrm/internal/errors"
)

// ValidateStage checks a stage transition request. Forward and lateral moves
// are always accepted; a retreat (lower pipeline order) requires a role with
// retreat permission. There is no skip prevention.
func ValidateStage(current, requested deal.Stage, role org.Role) error {
	if !requested.Valid() {
		return errors.Validation("unknown stage")
	}
	if requested.Order() < current.Order() && !policy.CanRetreatStage(role) {
		return errors.Validation("stage cannot move backwards")
	}
	return nil
}

// ValidateStatus checks a status transition request against the deal's
// amount as it will be after the update. Any status may follow any other;
// the only rule is that a won deal must carry a positive amount.
func ValidateStatus(requested deal.Status, amount decimal.Decimal) error {
	if !requested.Valid() {
		return errors.Validation("unknown status")
	}
	if requested == deal.StatusWon && amount.Sign() <= 0 {
		return errors.Validation("won deal must have a positive amount")
	}
	return nil
}

// DerivedActivities returns the audit entries an accepted update must append
// in the same transaction: one per field whose value actually changed.
func DerivedActivities(d deal.Deal, prevStage deal.Stage, prevStatus deal.Status, actorID int64) []activity.Activity {
	var out []activity.Activity
	if d.Status != prevStatus {
		out = append(out, activity.Activity{
			DealID:   d.ID,
			AuthorID: actorID,
			Type:     activity.TypeStatusChanged,
			Payload:  map[string]interface{}{"from": string(prevStatus), "to": string(d.Status)},
		})
	}
	if d.Stage != prevStage {
		out = append(out, activity.Activity{
			DealID:   d.ID,
			AuthorID: actorID,
			Type:     activity.TypeStageChanged,
			Payload:  map[string]interface{}{"from": string(prevStage), "to": string(d.Stage)},
		})
	}
	return out
}
