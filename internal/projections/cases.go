package projections

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"example.com/northstar/services/custops/internal/cache"
	"example.com/northstar/services/custops/internal/domain"
	"example.com/northstar/services/custops/internal/models"
	"example.com/northstar/services/custops/internal/search"
)

// CaseProjector maintains the support case read model, the per-company
// case counters, and the Elasticsearch case index.
type CaseProjector struct {
	writer TableWriter
	search *search.ElasticClient
	cache  *cache.RedisCache
}

// NewCaseProjector creates a new case projector. The search client and
// cache may be nil when Elasticsearch or Redis is not configured.
func NewCaseProjector(writer TableWriter, searchClient *search.ElasticClient, redisCache *cache.RedisCache) *CaseProjector {
	return &CaseProjector{
		writer: writer,
		search: searchClient,
		cache:  redisCache,
	}
}

// Name identifies this projector's checkpoint
func (p *CaseProjector) Name() string {
	return "cases"
}

// Handle applies one event. The read-model row and the company counters
// move in a single transaction, guarded by the row's last applied
// sequence, so a re-delivered event changes nothing.
func (p *CaseProjector) Handle(ctx context.Context, ev domain.Event) error {
	if ev.AggregateType != domain.AggregateSupportCase {
		return nil
	}

	var indexed *models.CaseReadModel
	err := p.writer.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.CaseReadModel
		err := tx.Where("aggregate_id = ?", ev.AggregateID).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			row = models.CaseReadModel{AggregateID: ev.AggregateID}
		} else if err != nil {
			return errors.Wrap(err, "failed to load case row")
		}

		before := row
		changed, err := applyCaseEvent(&row, ev)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}

		if err := tx.Save(&row).Error; err != nil {
			return errors.Wrap(err, "failed to save case row")
		}

		// The counts row is shared with the lifecycle projector, which
		// runs in its own transactions. The row lock holds off its
		// writes until this transaction commits.
		var counts models.CompanyCaseCounts
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("company_id = ?", row.CompanyID).First(&counts).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			counts = models.CompanyCaseCounts{CompanyID: row.CompanyID}
		} else if err != nil {
			return errors.Wrap(err, "failed to load company counts")
		}

		applyCaseCountDeltas(&counts, before, row, ev)
		if err := tx.Save(&counts).Error; err != nil {
			return errors.Wrap(err, "failed to save company counts")
		}

		rowCopy := row
		indexed = &rowCopy
		return nil
	})
	if err != nil {
		return err
	}

	// Search indexing is a secondary view keyed by stable IDs; a failure
	// here must not wedge the checkpoint behind an already-applied event
	if indexed != nil && p.search != nil {
		if err := p.search.IndexCase(ctx, indexed); err != nil {
			log.Error().Err(err).Str("caseID", indexed.AggregateID).Msg("Failed to index case")
		}
		if err := p.search.IndexEvent(ctx, ev); err != nil {
			log.Error().Err(err).Str("eventID", ev.ID).Msg("Failed to index event")
		}
	}

	if indexed != nil {
		invalidateInsights(ctx, p.cache, indexed.CompanyID)
	}

	return nil
}

// invalidateInsights drops a company's cached insights snapshot after
// its counters move. Best effort: the snapshot also expires by TTL.
func invalidateInsights(ctx context.Context, c *cache.RedisCache, companyID string) {
	if companyID == "" {
		return
	}
	if err := c.Delete(ctx, cache.GetCompanyInsightsCacheKey(companyID)); err != nil {
		log.Warn().Err(err).Str("companyID", companyID).Msg("Failed to invalidate company insights cache")
	}
}

// applyCaseEvent folds one event into the read-model row, reporting
// whether the row changed. An event at or below the row's last applied
// sequence has already been folded in and is skipped. The fold trusts
// the ledger: transitions were validated when the event was appended.
func applyCaseEvent(row *models.CaseReadModel, ev domain.Event) (bool, error) {
	if ev.Sequence <= row.LastEventSequence {
		return false, nil
	}

	switch p := ev.Payload.(type) {
	case domain.CaseCreatedPayload:
		row.CompanyID = p.CompanyID
		row.ProductID = p.ProductID
		row.Title = p.Title
		row.Description = p.Description
		row.Category = p.Category
		row.Source = p.Source
		row.ContactEmail = p.ContactEmail
		row.Severity = p.Severity
		row.Impact = domain.ImpactNeutral
		row.Status = domain.StatusOpen
		row.OpenedAt = ev.OccurredAt
		if p.FirstResponseSLAHours > 0 {
			due := ev.OccurredAt.Add(hoursToDuration(p.FirstResponseSLAHours))
			row.FirstResponseDueAt = &due
		}
		if p.ResolutionSLAHours > 0 {
			due := ev.OccurredAt.Add(hoursToDuration(p.ResolutionSLAHours))
			row.ResolutionDueAt = &due
		}

	case domain.CaseAssignedPayload:
		row.OwnerID = p.OwnerID
		row.OwnerName = p.OwnerName

	case domain.CaseStatusChangedPayload:
		row.Status = p.ToStatus

	case domain.CaseSeverityChangedPayload:
		row.Severity = p.ToSeverity

	case domain.CaseImpactAssessedPayload:
		row.Impact = p.Impact

	case domain.CaseResolvedPayload:
		row.Status = domain.StatusResolved
		row.IsResolved = true
		resolvedAt := ev.OccurredAt
		row.ResolvedAt = &resolvedAt

	case domain.CaseClosedPayload:
		row.Status = domain.StatusClosed
		row.IsClosed = true
		closedAt := ev.OccurredAt
		row.ClosedAt = &closedAt
		row.CloseReason = p.CloseReason

	case domain.CaseReopenedPayload:
		row.Status = domain.StatusOpen
		row.IsResolved = false
		row.IsClosed = false
		row.ResolvedAt = nil
		row.ClosedAt = nil
		row.CloseReason = ""
		row.ReopenCount++

	case domain.CustomerMessageLoggedPayload:
		row.MessageCount++
		receivedAt := p.ReceivedAt
		row.LastCustomerMessageAt = &receivedAt

	case domain.AgentResponseSentPayload:
		row.ResponseCount++
		if p.IsFirstResponse && row.FirstResponseAt == nil {
			respondedAt := ev.OccurredAt
			row.FirstResponseAt = &respondedAt
		}

	case domain.CaseTagAddedPayload:
		tags, err := decodeTags(row.Tags)
		if err != nil {
			return false, err
		}
		if !containsTag(tags, p.Tag) {
			tags = append(tags, p.Tag)
			row.Tags, err = encodeTags(tags)
			if err != nil {
				return false, err
			}
		}

	case domain.CaseTagRemovedPayload:
		tags, err := decodeTags(row.Tags)
		if err != nil {
			return false, err
		}
		for i, tag := range tags {
			if tag == p.Tag {
				tags = append(tags[:i], tags[i+1:]...)
				row.Tags, err = encodeTags(tags)
				if err != nil {
					return false, err
				}
				break
			}
		}

	case domain.CaseSLABreachedPayload:
		switch p.SLAType {
		case domain.SLAFirstResponse:
			row.FirstResponseBreached = true
		case domain.SLAResolution:
			row.ResolutionBreached = true
		}

	case domain.UnknownPayload:
		// Forward compatibility: bookkeeping only
	}

	row.LastEventSequence = ev.Sequence
	return true, nil
}

// applyCaseCountDeltas moves the company counters for one applied event,
// given the row before and after the fold. Open-case buckets track only
// cases that are neither resolved nor closed; resolved and closed totals
// are lifetime counters.
func applyCaseCountDeltas(c *models.CompanyCaseCounts, before, after models.CaseReadModel, ev domain.Event) {
	openBefore := caseCounted(before)
	openAfter := caseCounted(after)

	switch {
	case openBefore && !openAfter:
		dec(&c.OpenTotal)
		decSeverity(c, before.Severity)
		decImpact(c, before.Impact)
		if before.FirstResponseBreached {
			dec(&c.FirstResponseBreaches)
		}
		if before.ResolutionBreached {
			dec(&c.ResolutionBreaches)
		}

	case !openBefore && openAfter:
		c.OpenTotal++
		incSeverity(c, after.Severity)
		incImpact(c, after.Impact)
		if after.FirstResponseBreached {
			c.FirstResponseBreaches++
		}
		if after.ResolutionBreached {
			c.ResolutionBreaches++
		}

	case openBefore && openAfter:
		if before.Severity != after.Severity {
			decSeverity(c, before.Severity)
			incSeverity(c, after.Severity)
		}
		if before.Impact != after.Impact {
			decImpact(c, before.Impact)
			incImpact(c, after.Impact)
		}
		if !before.FirstResponseBreached && after.FirstResponseBreached {
			c.FirstResponseBreaches++
		}
		if !before.ResolutionBreached && after.ResolutionBreached {
			c.ResolutionBreaches++
		}
	}

	switch ev.Type {
	case domain.CaseResolved:
		c.ResolvedTotal++
	case domain.CaseClosed:
		c.ClosedTotal++
	}
}

// caseCounted reports whether the row represents an existing open case
func caseCounted(row models.CaseReadModel) bool {
	return row.LastEventSequence > 0 && !row.IsResolved && !row.IsClosed
}

func incSeverity(c *models.CompanyCaseCounts, severity string) {
	if bucket := severityBucket(c, severity); bucket != nil {
		*bucket++
	}
}

func decSeverity(c *models.CompanyCaseCounts, severity string) {
	if bucket := severityBucket(c, severity); bucket != nil {
		dec(bucket)
	}
}

func severityBucket(c *models.CompanyCaseCounts, severity string) *int {
	switch severity {
	case domain.SeverityLow:
		return &c.OpenLow
	case domain.SeverityMedium:
		return &c.OpenMedium
	case domain.SeverityHigh:
		return &c.OpenHigh
	case domain.SeverityUrgent:
		return &c.OpenUrgent
	case domain.SeverityCritical:
		return &c.OpenCritical
	}
	return nil
}

func incImpact(c *models.CompanyCaseCounts, impact string) {
	switch impact {
	case domain.ImpactNegative:
		c.NegativeImpact++
	case domain.ImpactCritical:
		c.CriticalImpact++
	}
}

func decImpact(c *models.CompanyCaseCounts, impact string) {
	switch impact {
	case domain.ImpactNegative:
		dec(&c.NegativeImpact)
	case domain.ImpactCritical:
		dec(&c.CriticalImpact)
	}
}

func dec(n *int) {
	if *n > 0 {
		*n--
	}
}

func decodeTags(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var tags []string
	if err := json.Unmarshal(raw, &tags); err != nil {
		return nil, errors.Wrap(err, "failed to decode case tags")
	}
	return tags, nil
}

func encodeTags(tags []string) ([]byte, error) {
	raw, err := json.Marshal(tags)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode case tags")
	}
	return raw, nil
}

func hoursToDuration(hours float64) time.Duration {
	return time.Duration(hours * float64(time.Hour))
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
