package services

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/northstar/services/custops/internal/cache"
	"example.com/northstar/services/custops/internal/models"
	"example.com/northstar/services/custops/internal/repositories"
	"example.com/northstar/services/custops/internal/scoring"
	"example.com/northstar/services/custops/internal/tracing"
)

// insightsCacheTTL bounds staleness of cached company insights. The
// counters behind them move with projector lag anyway, so a short TTL
// costs little accuracy.
const insightsCacheTTL = time.Minute

// InsightsService derives customer health and case priorities from the
// projector-maintained read models
type InsightsService struct {
	caseRepo      *repositories.CaseReadRepository
	lifecycleRepo *repositories.LifecycleReadRepository
	countsRepo    *repositories.CountsRepository
	cache         *cache.RedisCache
	tracer        tracing.Tracer
	now           func() time.Time
}

// NewInsightsService creates a new insights service
func NewInsightsService(
	caseRepo *repositories.CaseReadRepository,
	lifecycleRepo *repositories.LifecycleReadRepository,
	countsRepo *repositories.CountsRepository,
	redisCache *cache.RedisCache,
	tracer tracing.Tracer,
) *InsightsService {
	return &InsightsService{
		caseRepo:      caseRepo,
		lifecycleRepo: lifecycleRepo,
		countsRepo:    countsRepo,
		cache:         redisCache,
		tracer:        tracer,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// CompanyInsights is the derived health picture for one company
type CompanyInsights struct {
	CompanyID   string                   `json:"company_id"`
	Counts      models.CompanyCaseCounts `json:"counts"`
	Health      scoring.HealthResult     `json:"health"`
	GeneratedAt time.Time                `json:"generated_at"`
}

// CasePriority is one case's computed work-queue priority
type CasePriority struct {
	CaseID   string `json:"case_id"`
	Title    string `json:"title"`
	Severity string `json:"severity"`
	Status   string `json:"status"`
	Tier     int    `json:"tier"`
	Score    int    `json:"score"`
}

// CompanyInsights computes (or serves from cache) a company's counter
// snapshot and health score
func (s *InsightsService) CompanyInsights(ctx context.Context, companyID string) (CompanyInsights, error) {
	txn := s.tracer.StartTransaction("company-insights")
	defer s.tracer.EndTransaction(txn)
	s.tracer.AddAttribute(txn, "companyID", companyID)

	cacheKey := cache.GetCompanyInsightsCacheKey(companyID)
	var cached CompanyInsights
	if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
		return cached, nil
	}

	span := s.tracer.StartSpan("load-company-counts", txn)
	counts, err := s.countsRepo.GetByCompany(ctx, companyID)
	span.End()
	if err != nil {
		s.tracer.RecordError(txn, err)
		return CompanyInsights{}, errors.Wrap(err, "failed to load company counts")
	}

	insights := CompanyInsights{
		CompanyID:   companyID,
		Counts:      counts,
		Health:      scoring.HealthScore(scoring.HealthInputFromCounts(counts)),
		GeneratedAt: s.now(),
	}

	if err := s.cache.Set(ctx, cacheKey, insights, insightsCacheTTL); err != nil {
		log.Debug().Err(err).Str("companyID", companyID).Msg("Failed to cache company insights")
	}

	return insights, nil
}

// CaseQueue returns a company's open cases ranked by priority,
// highest first
func (s *InsightsService) CaseQueue(ctx context.Context, companyID string) ([]CasePriority, error) {
	txn := s.tracer.StartTransaction("case-queue")
	defer s.tracer.EndTransaction(txn)
	s.tracer.AddAttribute(txn, "companyID", companyID)

	span := s.tracer.StartSpan("load-open-cases", txn)
	rows, err := s.caseRepo.ListOpenByCompany(ctx, companyID)
	span.End()
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, errors.Wrap(err, "failed to load open cases")
	}

	tiers, err := s.companyTiers(ctx, companyID)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	now := s.now()
	queue := make([]CasePriority, 0, len(rows))
	for _, row := range rows {
		tier := tiers[row.ProductID]
		queue = append(queue, CasePriority{
			CaseID:   row.AggregateID,
			Title:    row.Title,
			Severity: row.Severity,
			Status:   row.Status,
			Tier:     tier,
			Score: scoring.PriorityScore(scoring.PriorityInput{
				Severity:         row.Severity,
				ValueMultiplier:  tierMultiplier(tier),
				RecencyBonus:     recencyBonus(row.LastCustomerMessageAt, now),
				EngagementFactor: engagementFactor(row.MessageCount, row.ResponseCount),
			}),
		})
	}

	sort.SliceStable(queue, func(i, j int) bool {
		return queue[i].Score > queue[j].Score
	})

	return queue, nil
}

// companyTiers maps a company's product IDs to their lifecycle tiers
func (s *InsightsService) companyTiers(ctx context.Context, companyID string) (map[string]int, error) {
	lifecycles, err := s.lifecycleRepo.ListByCompany(ctx, companyID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load company lifecycles")
	}

	tiers := make(map[string]int, len(lifecycles))
	for _, lc := range lifecycles {
		tiers[lc.ProductID] = lc.Tier
	}
	return tiers, nil
}

// tierMultiplier maps the customer value tier to a priority multiplier.
// Tier 1 is the top of the book; an unset tier is neutral.
func tierMultiplier(tier int) float64 {
	switch tier {
	case 1:
		return 2.0
	case 2:
		return 1.5
	case 3:
		return 1.0
	case 4:
		return 0.75
	}
	return 1.0
}

// recencyBonus rewards cases with recent customer activity: full bonus
// for a message just received, tapering to zero over 24 hours.
func recencyBonus(lastCustomerMessageAt *time.Time, now time.Time) float64 {
	if lastCustomerMessageAt == nil {
		return 0
	}
	hoursSince := now.Sub(*lastCustomerMessageAt).Hours()
	if hoursSince < 0 {
		hoursSince = 0
	}
	if hoursSince >= 24 {
		return 0
	}
	return 20 * (1 - hoursSince/24)
}

// engagementFactor rewards back-and-forth volume on a case, capped at
// the scoring clamp
func engagementFactor(messages, responses int) float64 {
	factor := float64(messages + responses)
	if factor > 20 {
		factor = 20
	}
	return factor
}
