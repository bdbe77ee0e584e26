package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/lib/pq"

	"priceflow/logger"
	"priceflow/models"
)

// SecurityRepository reads the security master view.
type SecurityRepository struct {
	db  *sql.DB
	log *logger.Log
}

func NewSecurityRepository(db *sql.DB) *SecurityRepository {
	return &SecurityRepository{db: db, log: logger.GetLogger()}
}

// Get returns the securities with the given ids, or every security when ids
// is empty.
func (r *SecurityRepository) Get(ctx context.Context, lwIDs []string) ([]models.Security, error) {
	query := `SELECT lw_id, pms_security_id FROM vw_security`
	var args []interface{}
	if len(lwIDs) > 0 {
		query += ` WHERE lw_id = ANY($1)`
		args = append(args, pq.Array(lwIDs))
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query securities: %w", err)
	}
	defer rows.Close()
	return scanSecurities(rows)
}

// GetByPMSID resolves securities by the portfolio management system id.
func (r *SecurityRepository) GetByPMSID(ctx context.Context, pmsSecurityID string) ([]models.Security, error) {
	id, err := strconv.ParseInt(pmsSecurityID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid pms security id %q: %w", pmsSecurityID, err)
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT lw_id, pms_security_id FROM vw_security WHERE pms_security_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query securities by pms id: %w", err)
	}
	defer rows.Close()
	return scanSecurities(rows)
}

func scanSecurities(rows *sql.Rows) ([]models.Security, error) {
	var secs []models.Security
	for rows.Next() {
		var lwID sql.NullString
		var pmsID sql.NullInt64
		if err := rows.Scan(&lwID, &pmsID); err != nil {
			return nil, fmt.Errorf("failed to scan security row: %w", err)
		}
		sec := models.Security{LWID: lwID.String, Attributes: map[string]string{}}
		if pmsID.Valid {
			sec.Attributes[models.AttrPMSSecurityID] = strconv.FormatInt(pmsID.Int64, 10)
		}
		secs = append(secs, sec)
	}
	return secs, rows.Err()
}
