package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ridgeline-labs/minicrm/internal/app/domain/deal"
	"github.com/ridgeline-labs/minicrm/internal/app/domain/org"
	"github.com/ridgeline-labs/minicrm/internal/app/storage/memory"
	"github.com/ridgeline-labs/minicrm/internal/cache"
	"github.com/ridgeline-labs/minicrm/internal/errors"
)

func seedDeal(t *testing.T, store *memory.Store, orgID int64, status deal.Status, stage deal.Stage, amount int64) {
	t.Helper()
	_, err := store.CreateDeal(context.Background(), deal.Deal{
		OrganizationID: orgID,
		ContactID:      1,
		OwnerID:        1,
		Title:          "seed",
		Amount:         decimal.NewFromInt(amount),
		Currency:       "USD",
		Status:         status,
		Stage:          stage,
	})
	require.NoError(t, err)
}

func newOrg(t *testing.T, store *memory.Store) int64 {
	t.Helper()
	o, err := store.CreateOrganization(context.Background(), org.Organization{Name: "Analytics Co"})
	require.NoError(t, err)
	return o.ID
}

func TestSummaryZeroFill(t *testing.T) {
	store := memory.New()
	orgID := newOrg(t, store)
	svc := New(store, cache.NewMemory(), time.Minute, nil)

	summary, err := svc.DealsSummary(context.Background(), orgID, 0)
	require.NoError(t, err)
	require.Len(t, summary.CountByStatus, 4)
	require.Len(t, summary.AmountByStatus, 4)
	for _, status := range deal.Statuses() {
		require.Equal(t, 0, summary.CountByStatus[status])
		require.True(t, summary.AmountByStatus[status].IsZero())
	}
	require.Nil(t, summary.AverageWonAmount)
	require.Equal(t, 0, summary.NewDealsLastNDays)
}

func TestSummaryAggregates(t *testing.T) {
	store := memory.New()
	orgID := newOrg(t, store)
	svc := New(store, cache.NewMemory(), time.Minute, nil)
	ctx := context.Background()

	seedDeal(t, store, orgID, deal.StatusWon, deal.StageClosed, 100)
	seedDeal(t, store, orgID, deal.StatusWon, deal.StageClosed, 300)
	seedDeal(t, store, orgID, deal.StatusLost, deal.StageProposal, 50)

	summary, err := svc.DealsSummary(ctx, orgID, 30)
	require.NoError(t, err)
	require.Equal(t, 2, summary.CountByStatus[deal.StatusWon])
	require.Equal(t, 1, summary.CountByStatus[deal.StatusLost])
	require.Equal(t, 0, summary.CountByStatus[deal.StatusNew])
	require.True(t, summary.AmountByStatus[deal.StatusWon].Equal(decimal.NewFromInt(400)))
	require.NotNil(t, summary.AverageWonAmount)
	require.True(t, summary.AverageWonAmount.Equal(decimal.NewFromInt(200)))
	require.Equal(t, 3, summary.NewDealsLastNDays)
}

func TestSummaryDaysBounds(t *testing.T) {
	store := memory.New()
	orgID := newOrg(t, store)
	svc := New(store, cache.NewMemory(), time.Minute, nil)

	for _, days := range []int{-1, 181} {
		_, err := svc.DealsSummary(context.Background(), orgID, days)
		svcErr := errors.GetServiceError(err)
		require.NotNil(t, svcErr, "days=%d", days)
		require.Equal(t, errors.CodeValidation, svcErr.Code)
	}
}

func TestFunnelConversionCarriesForward(t *testing.T) {
	store := memory.New()
	orgID := newOrg(t, store)
	svc := New(store, cache.NewMemory(), time.Minute, nil)

	// qualification: 4 deals, proposal: empty, negotiation: 2 deals.
	for i := 0; i < 4; i++ {
		seedDeal(t, store, orgID, deal.StatusNew, deal.StageQualification, 10)
	}
	seedDeal(t, store, orgID, deal.StatusInProgress, deal.StageNegotiation, 10)
	seedDeal(t, store, orgID, deal.StatusWon, deal.StageNegotiation, 10)

	funnel, err := svc.DealsFunnel(context.Background(), orgID)
	require.NoError(t, err)
	require.Len(t, funnel.Stages, 4)

	require.Equal(t, deal.StageQualification, funnel.Stages[0].Stage)
	require.Nil(t, funnel.Stages[0].ConversionFromPrevious)
	require.Equal(t, 4, funnel.Stages[0].Counts[deal.StatusNew])

	// Empty proposal stage converts against qualification.
	require.NotNil(t, funnel.Stages[1].ConversionFromPrevious)
	require.Equal(t, 0.0, *funnel.Stages[1].ConversionFromPrevious)

	// Negotiation still converts against qualification's total of 4.
	require.NotNil(t, funnel.Stages[2].ConversionFromPrevious)
	require.Equal(t, 50.0, *funnel.Stages[2].ConversionFromPrevious)

	// Closed converts against negotiation's total of 2.
	require.NotNil(t, funnel.Stages[3].ConversionFromPrevious)
	require.Equal(t, 0.0, *funnel.Stages[3].ConversionFromPrevious)
}

func TestFunnelAllEmpty(t *testing.T) {
	store := memory.New()
	orgID := newOrg(t, store)
	svc := New(store, cache.NewMemory(), time.Minute, nil)

	funnel, err := svc.DealsFunnel(context.Background(), orgID)
	require.NoError(t, err)
	for _, stage := range funnel.Stages {
		require.Nil(t, stage.ConversionFromPrevious)
	}
}

func TestSummaryServedFromCache(t *testing.T) {
	store := memory.New()
	orgID := newOrg(t, store)
	svc := New(store, cache.NewMemory(), time.Minute, nil)
	ctx := context.Background()

	first, err := svc.DealsSummary(ctx, orgID, 30)
	require.NoError(t, err)
	require.Equal(t, 0, first.CountByStatus[deal.StatusNew])

	// A write after cache population is not visible until the TTL expires.
	seedDeal(t, store, orgID, deal.StatusNew, deal.StageQualification, 10)

	second, err := svc.DealsSummary(ctx, orgID, 30)
	require.NoError(t, err)
	require.Equal(t, 0, second.CountByStatus[deal.StatusNew])

	// A different window is a different cache key and sees the new deal.
	other, err := svc.DealsSummary(ctx, orgID, 7)
	require.NoError(t, err)
	require.Equal(t, 1, other.CountByStatus[deal.StatusNew])
}
