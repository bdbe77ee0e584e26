package readmodel

import (
	"context"

	"priceflow/dates"
	"priceflow/logger"
	"priceflow/models"
)

// PriceMode selects which slot AddPrice fills.
type PriceMode string

const (
	// PriceModeCurr merges the price into the entry's current-day prices,
	// replacing any earlier price from the same source.
	PriceModeCurr PriceMode = "curr"
	// PriceModePrev stores the price as the previous-business-day
	// reference price of the next business day's entry.
	PriceModePrev PriceMode = "prev"
)

// SecurityWithPricesRepository owns the per-date collection of single
// security read-model entries. Mutations are partial: one entry is located
// or created, updated, and the whole collection is persisted again.
type SecurityWithPricesRepository struct {
	store    Store
	calendar *dates.Calendar
	locks    *storeLocks
	log      *logger.Log
}

func NewSecurityWithPricesRepository(store Store, calendar *dates.Calendar) *SecurityWithPricesRepository {
	return &SecurityWithPricesRepository{
		store:    store,
		calendar: calendar,
		locks:    newStoreLocks(),
		log:      logger.GetLogger(),
	}
}

// Get returns the entries for the given ids, or all entries when ids is
// empty.
func (r *SecurityWithPricesRepository) Get(ctx context.Context, date dates.Date, lwIDs []string) ([]models.SecurityWithPrices, error) {
	swps, _, err := readSWPCollection(ctx, r.store, ModelSecurityWithPrices, date)
	if err != nil {
		return nil, err
	}
	if len(lwIDs) == 0 {
		return swps, nil
	}
	wanted := make(map[string]struct{}, len(lwIDs))
	for _, id := range lwIDs {
		wanted[id] = struct{}{}
	}
	var out []models.SecurityWithPrices
	for _, swp := range swps {
		if _, ok := wanted[swp.Security.LWID]; ok {
			out = append(out, swp)
		}
	}
	return out, nil
}

// Create inserts or replaces the entry for its security and persists the
// collection.
func (r *SecurityWithPricesRepository) Create(ctx context.Context, swp models.SecurityWithPrices) (models.SecurityWithPrices, error) {
	unlock := r.locks.lock(ModelSecurityWithPrices, swp.DataDate)
	defer unlock()
	return swp, r.upsertEntry(ctx, swp.DataDate, swp)
}

// AddPrice merges one price into the collection. In curr mode the entry for
// the price's own date gains (or replaces) the price among its current-day
// prices. In prev mode the price lands as the previous-day reference price
// on the next business day's entry, because the reference feed reports
// yesterday's close.
func (r *SecurityWithPricesRepository) AddPrice(ctx context.Context, price models.Price, mode PriceMode) (models.SecurityWithPrices, error) {
	date := price.DataDate
	if mode == PriceModePrev {
		date = r.calendar.NextBusinessDay(date)
	}

	unlock := r.locks.lock(ModelSecurityWithPrices, date)
	defer unlock()

	entry, err := r.findOrCreate(ctx, date, price.Security)
	if err != nil {
		return models.SecurityWithPrices{}, err
	}

	switch mode {
	case PriceModePrev:
		p := price
		entry.PrevBdayPrice = &p
	default:
		kept := entry.CurrBdayPrices[:0]
		for _, existing := range entry.CurrBdayPrices {
			if existing.Source != price.Source {
				kept = append(kept, existing)
			}
		}
		entry.CurrBdayPrices = append(kept, price)
	}

	return entry, r.upsertEntry(ctx, date, entry)
}

// AddSecurity refreshes the entry's security attributes without touching
// its prices.
func (r *SecurityWithPricesRepository) AddSecurity(ctx context.Context, date dates.Date, sec models.Security) (models.SecurityWithPrices, error) {
	unlock := r.locks.lock(ModelSecurityWithPrices, date)
	defer unlock()

	entry, err := r.findOrCreate(ctx, date, sec)
	if err != nil {
		return models.SecurityWithPrices{}, err
	}
	entry.Security = sec
	return entry, r.upsertEntry(ctx, date, entry)
}

func (r *SecurityWithPricesRepository) findOrCreate(ctx context.Context, date dates.Date, sec models.Security) (models.SecurityWithPrices, error) {
	swps, _, err := readSWPCollection(ctx, r.store, ModelSecurityWithPrices, date)
	if err != nil {
		return models.SecurityWithPrices{}, err
	}
	for _, swp := range swps {
		if swp.Security.LWID == sec.LWID {
			return swp, nil
		}
	}
	return models.SecurityWithPrices{
		Security:       sec,
		DataDate:       date,
		CurrBdayPrices: []models.Price{},
	}, nil
}

func (r *SecurityWithPricesRepository) upsertEntry(ctx context.Context, date dates.Date, entry models.SecurityWithPrices) error {
	swps, _, err := readSWPCollection(ctx, r.store, ModelSecurityWithPrices, date)
	if err != nil {
		return err
	}
	replaced := false
	for i := range swps {
		if swps[i].Security.LWID == entry.Security.LWID {
			swps[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		swps = append(swps, entry)
	}
	return writeSWPCollection(ctx, r.store, ModelSecurityWithPrices, date, swps)
}
