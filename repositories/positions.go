package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"priceflow/dates"
	"priceflow/logger"
	"priceflow/models"
)

// PositionRepository mirrors the portfolio management system's positions
// into the pricing database and answers holdings questions from them.
type PositionRepository struct {
	db  *sql.DB
	log *logger.Log
}

func NewPositionRepository(db *sql.DB) *PositionRepository {
	return &PositionRepository{db: db, log: logger.GetLogger()}
}

// Upsert writes one position keyed on the source system's position id and
// returns the affected row count. deleted marks a soft delete; the row
// stays for audit but stops counting as a holding.
func (r *PositionRepository) Upsert(ctx context.Context, pos models.Position, deleted bool) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO pms_position (pms_position_id, pms_portfolio_id, pms_security_id, is_short, quantity, is_deleted, modified_at, modified_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'priceflow')
		ON CONFLICT (pms_position_id) DO UPDATE SET
			pms_portfolio_id = EXCLUDED.pms_portfolio_id,
			pms_security_id  = EXCLUDED.pms_security_id,
			is_short         = EXCLUDED.is_short,
			quantity         = EXCLUDED.quantity,
			is_deleted       = EXCLUDED.is_deleted,
			modified_at      = EXCLUDED.modified_at,
			modified_by      = EXCLUDED.modified_by`,
		pos.Attributes[models.AttrPMSPositionID],
		pos.Portfolio.Attributes[models.AttrPMSPortfolioID],
		pos.Security.PMSSecurityID(),
		pos.IsShort,
		pos.Quantity,
		deleted,
		time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert position %s: %w", pos.Attributes[models.AttrPMSPositionID], err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read upsert row count: %w", err)
	}
	return count, nil
}

// Get returns the distinct securities with a live (not soft-deleted)
// position. The position table reflects the current book, so the date only
// labels the question being asked.
func (r *PositionRepository) Get(ctx context.Context, date dates.Date) ([]models.Security, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT s.lw_id, s.pms_security_id
		FROM pms_position p
		JOIN vw_security s ON s.pms_security_id = p.pms_security_id
		WHERE p.is_deleted = FALSE AND p.quantity <> 0`)
	if err != nil {
		return nil, fmt.Errorf("failed to query held securities for %s: %w", date, err)
	}
	defer rows.Close()
	return scanSecurities(rows)
}
