package handlers

import (
	"context"

	"priceflow/dates"
	"priceflow/logger"
	"priceflow/models"
)

// PositionHandler mirrors position changes into the pricing database and
// keeps the master view aligned with holdings transitions: a new position
// can pull a security into the view, deleting the last position pushes it
// out.
type PositionHandler struct {
	upserter PositionUpserter
	holdings HeldSource
	heldView HeldViewWriter
	calendar *dates.Calendar
	log      *logger.Log
}

func NewPositionHandler(upserter PositionUpserter, holdings HeldSource, heldView HeldViewWriter, calendar *dates.Calendar) *PositionHandler {
	return &PositionHandler{
		upserter: upserter,
		holdings: holdings,
		heldView: heldView,
		calendar: calendar,
		log:      logger.GetLogger(),
	}
}

func (h *PositionHandler) Handle(ctx context.Context, event models.Event) bool {
	e, ok := event.(models.PositionEvent)
	if !ok {
		h.log.WithComponent("handler_position").WithFields(logger.Fields{
			"event": event.EventType(),
		}).Warn("unexpected event type")
		return true
	}
	pos := e.Position
	log := h.log.WithComponent("handler_position").WithFields(logger.Fields{
		"pms_position_id": pos.Attributes[models.AttrPMSPositionID],
		"pms_security_id": pos.Security.PMSSecurityID(),
		"deleted":         e.Deleted,
	})

	rows, err := h.upserter.Upsert(ctx, pos, e.Deleted)
	if err != nil {
		log.WithError(err).Error("failed to upsert position")
		return false
	}
	if rows == 0 {
		log.Error("position upsert affected no rows")
		return false
	}

	today := h.calendar.CurrentBusinessDay(dates.Today())
	if !e.Deleted {
		if _, err := h.heldView.RefreshForSecurities(ctx, today, []models.Security{pos.Security}, false); err != nil {
			log.WithError(err).Error("failed to refresh held view")
			return false
		}
		log.Info("position applied")
		return true
	}

	// A delete only evicts the security when no live position remains.
	stillHeld, err := h.securityStillHeld(ctx, today, pos.Security)
	if err != nil {
		log.WithError(err).Error("failed to check remaining holdings")
		return false
	}
	if stillHeld {
		if _, err := h.heldView.RefreshForSecurities(ctx, today, []models.Security{pos.Security}, false); err != nil {
			log.WithError(err).Error("failed to refresh held view")
			return false
		}
	} else {
		if _, err := h.heldView.RemoveSecurities(ctx, today, []models.Security{pos.Security}); err != nil {
			log.WithError(err).Error("failed to remove security from held view")
			return false
		}
	}
	log.Info("position delete applied")
	return true
}

func (h *PositionHandler) securityStillHeld(ctx context.Context, date dates.Date, sec models.Security) (bool, error) {
	held, err := h.holdings.Get(ctx, date)
	if err != nil {
		return false, err
	}
	for _, hs := range held {
		if sec.LWID != "" && hs.LWID == sec.LWID {
			return true, nil
		}
		if sec.PMSSecurityID() != "" && hs.PMSSecurityID() == sec.PMSSecurityID() {
			return true, nil
		}
	}
	return false, nil
}
