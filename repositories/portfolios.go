package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"priceflow/logger"
	"priceflow/models"
)

// AttrPortfolioType is the portfolio attribute mirrored into its own column.
const AttrPortfolioType = "portfolio_type"

// PortfolioRepository mirrors portfolios from the portfolio management
// system into the pricing database.
type PortfolioRepository struct {
	db  *sql.DB
	log *logger.Log
}

func NewPortfolioRepository(db *sql.DB) *PortfolioRepository {
	return &PortfolioRepository{db: db, log: logger.GetLogger()}
}

// Upsert writes one portfolio keyed on its code and returns the affected
// row count.
func (r *PortfolioRepository) Upsert(ctx context.Context, p models.Portfolio) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO pms_portfolio (portfolio_code, pms_portfolio_id, portfolio_type, modified_at, modified_by)
		VALUES ($1, $2, $3, $4, 'priceflow')
		ON CONFLICT (portfolio_code) DO UPDATE SET
			pms_portfolio_id = EXCLUDED.pms_portfolio_id,
			portfolio_type   = EXCLUDED.portfolio_type,
			modified_at      = EXCLUDED.modified_at,
			modified_by      = EXCLUDED.modified_by`,
		p.PortfolioCode,
		p.Attributes[models.AttrPMSPortfolioID],
		p.Attributes[AttrPortfolioType],
		time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert portfolio %s: %w", p.PortfolioCode, err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read upsert row count: %w", err)
	}
	return count, nil
}
