package handlers

import (
	"context"

	"priceflow/dates"
	"priceflow/logger"
	"priceflow/models"
)

// AppraisalBatchCreatedHandler reacts to completed appraisal runs: it
// replaces the held-keys snapshot and rebuilds the whole master view for
// the batch date and the next business day, evicting securities no longer
// held. The next day gets the same held set because its appraisal has not
// run yet.
type AppraisalBatchCreatedHandler struct {
	positions HeldSource
	held      HeldSnapshotWriter
	heldView  HeldViewWriter
	calendar  *dates.Calendar
	log       *logger.Log
}

func NewAppraisalBatchCreatedHandler(positions HeldSource, held HeldSnapshotWriter, heldView HeldViewWriter, calendar *dates.Calendar) *AppraisalBatchCreatedHandler {
	return &AppraisalBatchCreatedHandler{
		positions: positions,
		held:      held,
		heldView:  heldView,
		calendar:  calendar,
		log:       logger.GetLogger(),
	}
}

func (h *AppraisalBatchCreatedHandler) Handle(ctx context.Context, event models.Event) bool {
	e, ok := event.(models.AppraisalBatchCreatedEvent)
	if !ok {
		h.log.WithComponent("handler_appraisal_batch").WithFields(logger.Fields{
			"event": event.EventType(),
		}).Warn("unexpected event type")
		return true
	}
	batch := e.Batch
	log := h.log.WithComponent("handler_appraisal_batch").WithFields(logger.Fields{
		"portfolios": batch.Portfolios,
		"date":       batch.DataDate.String(),
	})

	heldSecs, err := h.positions.Get(ctx, batch.DataDate)
	if err != nil {
		log.WithError(err).Error("failed to load held securities")
		return false
	}
	heldSecs = dedupeSecurities(heldSecs)

	if err := h.held.Create(ctx, batch.DataDate, heldSecs); err != nil {
		log.WithError(err).Error("failed to replace held snapshot")
		return false
	}

	for _, d := range []dates.Date{batch.DataDate, h.calendar.NextBusinessDay(batch.DataDate)} {
		if _, err := h.heldView.RefreshForSecurities(ctx, d, heldSecs, true); err != nil {
			log.WithError(err).WithFields(logger.Fields{"refresh_date": d.String()}).Error("failed to rebuild held view")
			return false
		}
	}
	log.WithFields(logger.Fields{"held": len(heldSecs)}).Info("appraisal batch applied")
	return true
}

func dedupeSecurities(secs []models.Security) []models.Security {
	seen := make(map[string]struct{}, len(secs))
	out := secs[:0]
	for _, sec := range secs {
		key := sec.LWID
		if key == "" {
			key = "pms:" + sec.PMSSecurityID()
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, sec)
	}
	return out
}
