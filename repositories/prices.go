package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/lib/pq"

	"priceflow/dates"
	"priceflow/logger"
	"priceflow/models"
	"priceflow/sources"
)

// PriceRepository reads vendor and internal prices from the price view. One
// row carries up to three typed values (price, yield, duration); absent
// columns become absent values, never zeros.
type PriceRepository struct {
	db  *sql.DB
	log *logger.Log
}

func NewPriceRepository(db *sql.DB) *PriceRepository {
	return &PriceRepository{db: db, log: logger.GetLogger()}
}

// Get returns the prices for a date, optionally narrowed to one raw source
// name and/or a set of securities. sourceName is the stored (untranslated)
// name, e.g. "PXAPX".
func (r *PriceRepository) Get(ctx context.Context, date dates.Date, sourceName string, lwIDs []string) ([]models.Price, error) {
	query := `SELECT lw_id, pms_security_id, source, data_date, modified_at, price, yield, duration
		FROM vw_price WHERE data_date = $1`
	args := []interface{}{date.Time()}
	if sourceName != "" {
		args = append(args, sourceName)
		query += fmt.Sprintf(` AND source = $%d`, len(args))
	}
	if len(lwIDs) > 0 {
		args = append(args, pq.Array(lwIDs))
		query += fmt.Sprintf(` AND lw_id = ANY($%d)`, len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query prices for %s: %w", date, err)
	}
	defer rows.Close()

	var prices []models.Price
	for rows.Next() {
		var (
			lwID       sql.NullString
			pmsID      sql.NullInt64
			source     string
			dataDate   time.Time
			modifiedAt time.Time
			px, yld    sql.NullFloat64
			dur        sql.NullFloat64
		)
		if err := rows.Scan(&lwID, &pmsID, &source, &dataDate, &modifiedAt, &px, &yld, &dur); err != nil {
			return nil, fmt.Errorf("failed to scan price row: %w", err)
		}
		sec := models.Security{LWID: lwID.String, Attributes: map[string]string{}}
		if pmsID.Valid {
			sec.Attributes[models.AttrPMSSecurityID] = strconv.FormatInt(pmsID.Int64, 10)
		}
		prices = append(prices, models.Price{
			Security:   sec,
			Source:     sources.PriceSource{Name: source},
			DataDate:   dates.FromTime(dataDate),
			ModifiedAt: modifiedAt,
			Values: []models.PriceValue{
				models.NewPriceValue(models.TypePrice, nullableFloat(px)),
				models.NewPriceValue(models.TypeYield, nullableFloat(yld)),
				models.NewPriceValue(models.TypeDuration, nullableFloat(dur)),
			},
		})
	}
	return prices, rows.Err()
}

func nullableFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
