// Package analytics computes the deal summary and funnel aggregates. Results
// are cached per organization with a TTL; writes never invalidate the cache,
// so the TTL is the staleness bound.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ridgeline-labs/minicrm/internal/app/domain/deal"
	"github.com/ridgeline-labs/minicrm/internal/app/metrics"
	"github.com/ridgeline-labs/minicrm/internal/app/storage"
	"github.com/ridgeline-labs/minicrm/internal/cache"
	"github.com/ridgeline-labs/minicrm/internal/errors"
	"github.com/ridgeline-labs/minicrm/pkg/logger"
)

// Lookback window bounds in days.
const (
	DefaultDays = 30
	MinDays     = 1
	MaxDays     = 180
)

// Summary is the per-organization deal overview. Both maps always carry all
// four statuses, zero-filled.
type Summary struct {
	CountByStatus     map[deal.Status]int             `json:"count_by_status"`
	AmountByStatus    map[deal.Status]decimal.Decimal `json:"amount_by_status"`
	AverageWonAmount  *decimal.Decimal                `json:"average_won_amount"`
	NewDealsLastNDays int                             `json:"new_deals_last_n_days"`
}

// FunnelStage is one stage row of the funnel: a zero-filled per-status count
// breakdown plus the conversion percentage from the previous non-empty stage.
type FunnelStage struct {
	Stage                  deal.Stage          `json:"stage"`
	Counts                 map[deal.Status]int `json:"counts"`
	ConversionFromPrevious *float64            `json:"conversion_from_previous"`
}

// Funnel is the stage-ordered funnel breakdown.
type Funnel struct {
	Stages []FunnelStage `json:"stages"`
}

// Service computes and caches the aggregates.
type Service struct {
	deals storage.DealStore
	cache cache.Cache
	ttl   time.Duration
	log   *logger.Logger
}

// New constructs an analytics service.
func New(deals storage.DealStore, c cache.Cache, ttl time.Duration, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("analytics")
	}
	if c == nil {
		c = cache.NewMemory()
	}
	return &Service{deals: deals, cache: c, ttl: ttl, log: log}
}

// DealsSummary returns the cached or freshly computed summary for the
// organization over the given lookback window.
func (s *Service) DealsSummary(ctx context.Context, organizationID int64, days int) (Summary, error) {
	if days == 0 {
		days = DefaultDays
	}
	if days < MinDays || days > MaxDays {
		return Summary{}, errors.Validation(fmt.Sprintf("days must be between %d and %d", MinDays, MaxDays))
	}

	key := fmt.Sprintf("analytics:summary:%d:%d", organizationID, days)
	var cached Summary
	if s.lookup(ctx, "summary", key, &cached) {
		return cached, nil
	}

	rows, err := s.deals.SummarizeByStatus(ctx, organizationID)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{
		CountByStatus:  make(map[deal.Status]int, len(deal.Statuses())),
		AmountByStatus: make(map[deal.Status]decimal.Decimal, len(deal.Statuses())),
	}
	for _, status := range deal.Statuses() {
		summary.CountByStatus[status] = 0
		summary.AmountByStatus[status] = decimal.Zero
	}
	for _, row := range rows {
		summary.CountByStatus[row.Status] = row.Count
		summary.AmountByStatus[row.Status] = row.Amount
	}

	summary.AverageWonAmount, err = s.deals.AverageWonAmount(ctx, organizationID)
	if err != nil {
		return Summary{}, err
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	summary.NewDealsLastNDays, err = s.deals.CountDealsCreatedSince(ctx, organizationID, cutoff)
	if err != nil {
		return Summary{}, err
	}

	s.populate(ctx, key, summary)
	return summary, nil
}

// DealsFunnel returns the cached or freshly computed funnel breakdown.
func (s *Service) DealsFunnel(ctx context.Context, organizationID int64) (Funnel, error) {
	key := fmt.Sprintf("analytics:funnel:%d", organizationID)
	var cached Funnel
	if s.lookup(ctx, "funnel", key, &cached) {
		return cached, nil
	}

	rows, err := s.deals.FunnelCounts(ctx, organizationID)
	if err != nil {
		return Funnel{}, err
	}

	byStage := make(map[deal.Stage]map[deal.Status]int, len(deal.Stages()))
	for _, stage := range deal.Stages() {
		byStage[stage] = make(map[deal.Status]int, len(deal.Statuses()))
		for _, status := range deal.Statuses() {
			byStage[stage][status] = 0
		}
	}
	for _, row := range rows {
		byStage[row.Stage][row.Status] = row.Count
	}

	// An empty stage does not reset the conversion reference: the next
	// non-empty stage still converts against the last non-zero total.
	var previousTotal int
	funnel := Funnel{Stages: make([]FunnelStage, 0, len(deal.Stages()))}
	for _, stage := range deal.Stages() {
		total := 0
		for _, n := range byStage[stage] {
			total += n
		}

		var conversion *float64
		if previousTotal > 0 {
			v := math.Round(float64(total)/float64(previousTotal)*100*100) / 100
			conversion = &v
		}
		funnel.Stages = append(funnel.Stages, FunnelStage{
			Stage:                  stage,
			Counts:                 byStage[stage],
			ConversionFromPrevious: conversion,
		})
		if total > 0 {
			previousTotal = total
		}
	}

	s.populate(ctx, key, funnel)
	return funnel, nil
}

func (s *Service) lookup(ctx context.Context, view, key string, dest interface{}) bool {
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.WithError(err).WithField("key", key).Warn("cache read failed")
		return false
	}
	metrics.RecordCacheLookup(view, ok)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		s.log.WithError(err).WithField("key", key).Warn("cache entry corrupt")
		return false
	}
	return true
}

func (s *Service) populate(ctx context.Context, key string, value interface{}) {
	raw, err := json.Marshal(value)
	if err != nil {
		s.log.WithError(err).WithField("key", key).Warn("cache encode failed")
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
		s.log.WithError(err).WithField("key", key).Warn("cache write failed")
	}
}
