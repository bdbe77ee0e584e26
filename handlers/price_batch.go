package handlers

import (
	"context"

	"priceflow/dates"
	"priceflow/logger"
	"priceflow/models"
	"priceflow/readmodel"
	"priceflow/sources"
)

// PriceBatchCreatedHandler reacts to price batch notifications: it fetches
// the batch's prices, stores each one in the per-security model and rebuilds
// the master view for the touched securities. The pricing system's own feed
// reports the previous close, so its prices shift to the next business day
// and land in the previous-day slot. Batches from irrelevant feeds commit
// with no side effects.
type PriceBatchCreatedHandler struct {
	prices   BatchPriceSource
	registry *sources.Registry
	swp      SecurityWithPricesWriter
	heldView HeldViewWriter
	calendar *dates.Calendar
	log      *logger.Log
}

func NewPriceBatchCreatedHandler(prices BatchPriceSource, registry *sources.Registry, swp SecurityWithPricesWriter, heldView HeldViewWriter, calendar *dates.Calendar) *PriceBatchCreatedHandler {
	return &PriceBatchCreatedHandler{
		prices:   prices,
		registry: registry,
		swp:      swp,
		heldView: heldView,
		calendar: calendar,
		log:      logger.GetLogger(),
	}
}

func (h *PriceBatchCreatedHandler) Handle(ctx context.Context, event models.Event) bool {
	e, ok := event.(models.PriceBatchCreatedEvent)
	if !ok {
		h.log.WithComponent("handler_price_batch").WithFields(logger.Fields{
			"event": event.EventType(),
		}).Warn("unexpected event type")
		return true
	}
	batch := e.Batch
	translated := sources.Translate(batch.Source)
	log := h.log.WithComponent("handler_price_batch").WithFields(logger.Fields{
		"source":     batch.Source,
		"translated": translated.Name,
		"date":       batch.DataDate.String(),
	})

	mode := readmodel.PriceModeCurr
	targetDate := batch.DataDate
	switch {
	case batch.Source == sources.RawAPX:
		mode = readmodel.PriceModePrev
		targetDate = h.calendar.NextBusinessDay(batch.DataDate)
	case !h.registry.IsRelevant(translated):
		log.Debug("skipping batch from irrelevant feed")
		return true
	}

	prices, err := h.prices.Get(ctx, batch.DataDate, batch.Source, nil)
	if err != nil {
		log.WithError(err).Error("failed to fetch batch prices")
		return false
	}
	if len(prices) == 0 {
		log.Warn("batch notification with no prices")
		return true
	}

	secs := make([]models.Security, 0, len(prices))
	for _, px := range prices {
		px.Source = translated
		if _, err := h.swp.AddPrice(ctx, px, mode); err != nil {
			log.WithError(err).WithFields(logger.Fields{"lw_id": px.Security.LWID}).Error("failed to add price")
			return false
		}
		secs = append(secs, px.Security)
	}

	if _, err := h.heldView.RefreshForSecurities(ctx, targetDate, secs, false); err != nil {
		log.WithError(err).Error("failed to refresh held view")
		return false
	}
	log.WithFields(logger.Fields{"prices": len(prices)}).Info("price batch applied")
	return true
}
