// Package handlers contains one event handler per change topic. A handler
// returns its commit decision: true when the event's side effects are
// durable (or the event needs none), false when the message must be
// redelivered.
package handlers

import (
	"context"

	"priceflow/dates"
	"priceflow/models"
	"priceflow/readmodel"
)

// SecurityWithPricesWriter is the per-security read-model surface the
// handlers mutate.
type SecurityWithPricesWriter interface {
	AddPrice(ctx context.Context, price models.Price, mode readmodel.PriceMode) (models.SecurityWithPrices, error)
	AddSecurity(ctx context.Context, date dates.Date, sec models.Security) (models.SecurityWithPrices, error)
}

// HeldViewWriter is the master held-securities view surface.
type HeldViewWriter interface {
	RefreshForSecurities(ctx context.Context, date dates.Date, secs []models.Security, removeOthers bool) ([]models.SecurityWithPrices, error)
	RemoveSecurities(ctx context.Context, date dates.Date, secs []models.Security) ([]models.SecurityWithPrices, error)
}

// HeldSnapshotWriter is the held-keys snapshot surface.
type HeldSnapshotWriter interface {
	Create(ctx context.Context, date dates.Date, secs []models.Security) error
	IsHeld(ctx context.Context, date dates.Date, sec models.Security) (bool, error)
}

// BatchPriceSource fetches the prices a batch notification points at.
type BatchPriceSource interface {
	Get(ctx context.Context, date dates.Date, sourceName string, lwIDs []string) ([]models.Price, error)
}

// HeldSource answers which securities are held on a date, from the
// authoritative position data.
type HeldSource interface {
	Get(ctx context.Context, date dates.Date) ([]models.Security, error)
}

// PositionUpserter and PortfolioUpserter are capability interfaces; the
// wiring layer verifies the configured repositories provide them before a
// position or portfolio consumer starts.
type PositionUpserter interface {
	Upsert(ctx context.Context, pos models.Position, deleted bool) (int64, error)
}

type PortfolioUpserter interface {
	Upsert(ctx context.Context, p models.Portfolio) (int64, error)
}
