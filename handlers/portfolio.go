package handlers

import (
	"context"

	"priceflow/logger"
	"priceflow/models"
)

// PortfolioHandler mirrors portfolio changes into the pricing database.
type PortfolioHandler struct {
	upserter PortfolioUpserter
	log      *logger.Log
}

func NewPortfolioHandler(upserter PortfolioUpserter) *PortfolioHandler {
	return &PortfolioHandler{upserter: upserter, log: logger.GetLogger()}
}

func (h *PortfolioHandler) Handle(ctx context.Context, event models.Event) bool {
	e, ok := event.(models.PortfolioCreatedEvent)
	if !ok {
		h.log.WithComponent("handler_portfolio").WithFields(logger.Fields{
			"event": event.EventType(),
		}).Warn("unexpected event type")
		return true
	}
	log := h.log.WithComponent("handler_portfolio").WithFields(logger.Fields{
		"portfolio_code": e.Portfolio.PortfolioCode,
	})

	rows, err := h.upserter.Upsert(ctx, e.Portfolio)
	if err != nil {
		log.WithError(err).Error("failed to upsert portfolio")
		return false
	}
	if rows == 0 {
		log.Error("portfolio upsert affected no rows")
		return false
	}
	log.Info("portfolio applied")
	return true
}
