package handlers

import (
	"context"

	"priceflow/dates"
	"priceflow/logger"
	"priceflow/models"
)

// SecurityCreatedHandler reacts to new or changed securities. Securities
// with reserved composite ids never enter the read model; securities not
// currently held are ignored. For the rest, the entry for today and the
// next business day gets refreshed attributes and the master view entry is
// rebuilt.
type SecurityCreatedHandler struct {
	swp      SecurityWithPricesWriter
	heldView HeldViewWriter
	held     HeldSnapshotWriter
	calendar *dates.Calendar
	log      *logger.Log
}

func NewSecurityCreatedHandler(swp SecurityWithPricesWriter, heldView HeldViewWriter, held HeldSnapshotWriter, calendar *dates.Calendar) *SecurityCreatedHandler {
	return &SecurityCreatedHandler{
		swp:      swp,
		heldView: heldView,
		held:     held,
		calendar: calendar,
		log:      logger.GetLogger(),
	}
}

func (h *SecurityCreatedHandler) Handle(ctx context.Context, event models.Event) bool {
	e, ok := event.(models.SecurityCreatedEvent)
	if !ok {
		h.log.WithComponent("handler_security").WithFields(logger.Fields{
			"event": event.EventType(),
		}).Warn("unexpected event type")
		return true
	}
	sec := e.Security
	log := h.log.WithComponent("handler_security").WithFields(logger.Fields{"lw_id": sec.LWID})

	if sec.HasCompositeID() {
		log.Debug("skipping security with composite id")
		return true
	}

	today := h.calendar.CurrentBusinessDay(dates.Today())
	held, err := h.held.IsHeld(ctx, today, sec)
	if err != nil {
		log.WithError(err).Error("failed to check held status")
		return false
	}
	if !held {
		log.Debug("skipping security not currently held")
		return true
	}

	for _, d := range []dates.Date{today, h.calendar.NextBusinessDay(today)} {
		if _, err := h.swp.AddSecurity(ctx, d, sec); err != nil {
			log.WithError(err).WithFields(logger.Fields{"date": d.String()}).Error("failed to update security entry")
			return false
		}
		if _, err := h.heldView.RefreshForSecurities(ctx, d, []models.Security{sec}, false); err != nil {
			log.WithError(err).WithFields(logger.Fields{"date": d.String()}).Error("failed to refresh held view")
			return false
		}
	}
	log.Info("security updated in read model")
	return true
}
