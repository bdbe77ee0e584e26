package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"priceflow/dates"
	"priceflow/logger"
	"priceflow/models"
)

// HeldSecurityRepository answers which securities were held on a date. It
// prefers the date's appraisal results; when no appraisal ran yet it falls
// back to the live positions view, which reflects the current book rather
// than the requested date.
type HeldSecurityRepository struct {
	db  *sql.DB
	log *logger.Log
}

func NewHeldSecurityRepository(db *sql.DB) *HeldSecurityRepository {
	return &HeldSecurityRepository{db: db, log: logger.GetLogger()}
}

func (r *HeldSecurityRepository) Get(ctx context.Context, date dates.Date) ([]models.Security, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT lw_id, pms_security_id
		FROM vw_apx_appraisal WHERE data_date = $1`, date.Time())
	if err != nil {
		return nil, fmt.Errorf("failed to query appraisal securities for %s: %w", date, err)
	}
	secs, err := scanAndClose(rows)
	if err != nil {
		return nil, err
	}
	if len(secs) > 0 {
		return secs, nil
	}

	r.log.WithComponent("repositories").WithFields(logger.Fields{
		"date": date.String(),
	}).Info("no appraisal for date, falling back to live positions")

	rows, err = r.db.QueryContext(ctx, `SELECT lw_id, pms_security_id FROM vw_held_security`)
	if err != nil {
		return nil, fmt.Errorf("failed to query live held securities: %w", err)
	}
	return scanAndClose(rows)
}

func scanAndClose(rows *sql.Rows) ([]models.Security, error) {
	defer rows.Close()
	return scanSecurities(rows)
}
