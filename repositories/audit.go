package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"priceflow/dates"
	"priceflow/logger"
	"priceflow/models"
	"priceflow/sources"
)

// PriceAuditEntryRepository reads the manual price change trail. Before and
// after price values live in paired columns per value type.
type PriceAuditEntryRepository struct {
	db  *sql.DB
	log *logger.Log
}

func NewPriceAuditEntryRepository(db *sql.DB) *PriceAuditEntryRepository {
	return &PriceAuditEntryRepository{db: db, log: logger.GetLogger()}
}

// Get returns the audit entries for a date, optionally narrowed to a set of
// securities.
func (r *PriceAuditEntryRepository) Get(ctx context.Context, date dates.Date, lwIDs []string) ([]models.PriceAuditEntry, error) {
	query := `SELECT lw_id, data_date, reason, comment, modified_by, modified_at,
			source_before, price_bid_before, yield_bid_before, duration_before,
			source_after, price_bid_after, yield_bid_after, duration_after
		FROM price_audit_trail WHERE data_date = $1`
	args := []interface{}{date.Time()}
	if len(lwIDs) > 0 {
		args = append(args, pq.Array(lwIDs))
		query += fmt.Sprintf(` AND lw_id = ANY($%d)`, len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit trail for %s: %w", date, err)
	}
	defer rows.Close()

	var entries []models.PriceAuditEntry
	for rows.Next() {
		var (
			lwID            string
			dataDate        time.Time
			reason, comment sql.NullString
			modifiedBy      string
			modifiedAt      time.Time
			srcBefore       string
			pxB, yldB, durB sql.NullFloat64
			srcAfter        string
			pxA, yldA, durA sql.NullFloat64
		)
		if err := rows.Scan(&lwID, &dataDate, &reason, &comment, &modifiedBy, &modifiedAt,
			&srcBefore, &pxB, &yldB, &durB, &srcAfter, &pxA, &yldA, &durA); err != nil {
			return nil, fmt.Errorf("failed to scan audit row: %w", err)
		}
		sec := models.Security{LWID: lwID}
		d := dates.FromTime(dataDate)
		entries = append(entries, models.PriceAuditEntry{
			DataDate:   d,
			Security:   sec,
			Reason:     reason.String,
			Comment:    comment.String,
			ModifiedBy: modifiedBy,
			ModifiedAt: modifiedAt,
			Before:     auditPrice(sec, srcBefore, d, modifiedAt, pxB, yldB, durB),
			After:      auditPrice(sec, srcAfter, d, modifiedAt, pxA, yldA, durA),
		})
	}
	return entries, rows.Err()
}

func auditPrice(sec models.Security, source string, d dates.Date, modifiedAt time.Time, px, yld, dur sql.NullFloat64) models.Price {
	return models.Price{
		Security:   sec,
		Source:     sources.PriceSource{Name: source},
		DataDate:   d,
		ModifiedAt: modifiedAt,
		Values: []models.PriceValue{
			models.NewPriceValue(models.TypePrice, nullableFloat(px)),
			models.NewPriceValue(models.TypeYield, nullableFloat(yld)),
			models.NewPriceValue(models.TypeDuration, nullableFloat(dur)),
		},
	}
}
