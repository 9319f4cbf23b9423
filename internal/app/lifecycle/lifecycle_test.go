package lifecycle

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/ridgeline-labs/minicrm/internal/app/domain/activity"
	"github.com/ridgeline-labs/minicrm/internal/app/domain/deal"
	"github.com/ridgeline-labs/minicrm/internal/app/domain/org"
	"github.com/ridgeline-labs/minicrm/internal/errors"
)

func TestValidateStageForward(t *testing.T) {
	if err := ValidateStage(deal.StageQualification, deal.StageNegotiation, org.RoleMember); err != nil {
		t.Fatalf("forward move rejected: %v", err)
	}
	if err := ValidateStage(deal.StageProposal, deal.StageProposal, org.RoleMember); err != nil {
		t.Fatalf("lateral move rejected: %v", err)
	}
}

func TestValidateStageRetreat(t *testing.T) {
	if err := ValidateStage(deal.StageNegotiation, deal.StageProposal, org.RoleManager); err == nil {
		t.Fatal("manager retreat should be rejected")
	}
	if err := ValidateStage(deal.StageNegotiation, deal.StageProposal, org.RoleAdmin); err != nil {
		t.Fatalf("admin retreat rejected: %v", err)
	}
	if err := ValidateStage(deal.StageClosed, deal.StageQualification, org.RoleOwner); err != nil {
		t.Fatalf("owner retreat rejected: %v", err)
	}
}

func TestValidateStageUnknown(t *testing.T) {
	err := ValidateStage(deal.StageProposal, deal.Stage("archived"), org.RoleOwner)
	svcErr := errors.GetServiceError(err)
	if svcErr == nil || svcErr.Code != errors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestValidateStatusWonAmount(t *testing.T) {
	if err := ValidateStatus(deal.StatusWon, decimal.Zero); err == nil {
		t.Fatal("won with zero amount should be rejected")
	}
	if err := ValidateStatus(deal.StatusWon, decimal.NewFromInt(-5)); err == nil {
		t.Fatal("won with negative amount should be rejected")
	}
	if err := ValidateStatus(deal.StatusWon, decimal.NewFromInt(100)); err != nil {
		t.Fatalf("won with positive amount rejected: %v", err)
	}
	if err := ValidateStatus(deal.StatusLost, decimal.Zero); err != nil {
		t.Fatalf("lost with zero amount rejected: %v", err)
	}
}

func TestDerivedActivities(t *testing.T) {
	d := deal.Deal{ID: 9, Status: deal.StatusWon, Stage: deal.StageClosed}

	out := DerivedActivities(d, deal.StageNegotiation, deal.StatusInProgress, 3)
	if len(out) != 2 {
		t.Fatalf("expected 2 derived activities, got %d", len(out))
	}
	if out[0].Type != activity.TypeStatusChanged {
		t.Fatalf("first activity should be status_changed, got %s", out[0].Type)
	}
	if out[0].Payload["from"] != string(deal.StatusInProgress) || out[0].Payload["to"] != string(deal.StatusWon) {
		t.Fatalf("unexpected status payload %v", out[0].Payload)
	}
	if out[1].Type != activity.TypeStageChanged {
		t.Fatalf("second activity should be stage_changed, got %s", out[1].Type)
	}
	if out[1].AuthorID != 3 {
		t.Fatalf("author should be the actor, got %d", out[1].AuthorID)
	}

	if got := DerivedActivities(d, deal.StageClosed, deal.StatusWon, 3); len(got) != 0 {
		t.Fatalf("no-op update should derive nothing, got %d", len(got))
	}
}
