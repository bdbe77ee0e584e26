package repositories

import (
	"context"

	"priceflow/dates"
	"priceflow/logger"
	"priceflow/models"
	"priceflow/sources"
)

// SecurityWithPricesQuery assembles authoritative read-model entries from
// the relational views: the previous business day's pricing system price,
// the current day's translated and relevance-filtered vendor prices, and
// the manual change trail. The refresh path in the read model depends on
// this being the single source of truth.
type SecurityWithPricesQuery struct {
	securities *SecurityRepository
	prices     *PriceRepository
	audit      *PriceAuditEntryRepository
	registry   *sources.Registry
	calendar   *dates.Calendar
	log        *logger.Log
}

func NewSecurityWithPricesQuery(securities *SecurityRepository, prices *PriceRepository, audit *PriceAuditEntryRepository, registry *sources.Registry, calendar *dates.Calendar) *SecurityWithPricesQuery {
	return &SecurityWithPricesQuery{
		securities: securities,
		prices:     prices,
		audit:      audit,
		registry:   registry,
		calendar:   calendar,
		log:        logger.GetLogger(),
	}
}

// Get builds one entry per requested security. Requested securities missing
// from the security master are skipped.
func (q *SecurityWithPricesQuery) Get(ctx context.Context, date dates.Date, secs []models.Security) ([]models.SecurityWithPrices, error) {
	lwIDs := make([]string, 0, len(secs))
	for _, sec := range secs {
		if sec.LWID != "" {
			lwIDs = append(lwIDs, sec.LWID)
		}
	}

	masterSecs, err := q.securities.Get(ctx, lwIDs)
	if err != nil {
		return nil, err
	}

	prevDate := q.calendar.PreviousBusinessDay(date)
	prevPrices, err := q.prices.Get(ctx, prevDate, sources.RawAPX, lwIDs)
	if err != nil {
		return nil, err
	}

	currPrices, err := q.prices.Get(ctx, date, "", lwIDs)
	if err != nil {
		return nil, err
	}
	relevant := currPrices[:0]
	for _, px := range currPrices {
		px.Source = sources.Translate(px.Source.Name)
		if q.registry.IsRelevant(px.Source) {
			relevant = append(relevant, px)
		}
	}
	currPrices = relevant

	auditTrail, err := q.audit.Get(ctx, date, lwIDs)
	if err != nil {
		return nil, err
	}

	swps := make([]models.SecurityWithPrices, 0, len(masterSecs))
	for _, sec := range masterSecs {
		swp := models.SecurityWithPrices{
			Security:       sec,
			DataDate:       date,
			CurrBdayPrices: []models.Price{},
			AuditTrail:     []models.PriceAuditEntry{},
		}
		for _, px := range prevPrices {
			if px.Security.LWID == sec.LWID {
				px.Source = sources.Translate(px.Source.Name)
				p := px
				swp.PrevBdayPrice = &p
				break
			}
		}
		for _, px := range currPrices {
			if px.Security.LWID == sec.LWID {
				swp.CurrBdayPrices = append(swp.CurrBdayPrices, px)
			}
		}
		for _, at := range auditTrail {
			if at.Security.LWID == sec.LWID {
				swp.AuditTrail = append(swp.AuditTrail, at)
			}
		}
		swps = append(swps, swp)
	}

	q.log.WithComponent("repositories").WithFields(logger.Fields{
		"date":      date.String(),
		"requested": len(secs),
		"built":     len(swps),
	}).Debug("securities with prices assembled")
	return swps, nil
}
