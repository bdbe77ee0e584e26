package readmodel

import (
	"context"

	"priceflow/dates"
	"priceflow/logger"
	"priceflow/models"
)

// HeldSecuritiesWithPricesRepository owns the master per-date view read by
// the pricing screens: one entry per held security with its competing
// prices. Everything downstream reads this collection, never the raw
// events.
type HeldSecuritiesWithPricesRepository struct {
	store    Store
	held     HeldSecuritiesSource
	source   SecurityWithPricesSource
	resolver PMSSecurityResolver
	locks    *storeLocks
	notify   chan<- dates.Date
	log      *logger.Log
}

func NewHeldSecuritiesWithPricesRepository(store Store, held HeldSecuritiesSource, source SecurityWithPricesSource, resolver PMSSecurityResolver) *HeldSecuritiesWithPricesRepository {
	return &HeldSecuritiesWithPricesRepository{
		store:    store,
		held:     held,
		source:   source,
		resolver: resolver,
		locks:    newStoreLocks(),
		log:      logger.GetLogger(),
	}
}

// NotifyRefreshes registers a channel receiving the date of every
// successful refresh, used to trigger snapshot archival. Sends never block;
// a slow receiver just misses a notification.
func (r *HeldSecuritiesWithPricesRepository) NotifyRefreshes(ch chan<- dates.Date) {
	r.notify = ch
}

// Get returns the date's persisted collection; the empty list when none
// exists yet.
func (r *HeldSecuritiesWithPricesRepository) Get(ctx context.Context, date dates.Date) ([]models.SecurityWithPrices, error) {
	swps, _, err := readSWPCollection(ctx, r.store, ModelHeldSecuritiesWithPrices, date)
	if swps == nil {
		swps = []models.SecurityWithPrices{}
	}
	return swps, err
}

// RefreshForSecurities rebuilds the entries for the given securities from
// the authoritative upstream data. Securities not held on the date are
// dropped from the refresh set. When removeOthers is true the persisted
// collection is discarded and rebuilt from the refresh set alone, evicting
// entries for securities no longer held; otherwise entries outside the
// refresh set are kept untouched.
func (r *HeldSecuritiesWithPricesRepository) RefreshForSecurities(ctx context.Context, date dates.Date, secs []models.Security, removeOthers bool) ([]models.SecurityWithPrices, error) {
	unlock := r.locks.lock(ModelHeldSecuritiesWithPrices, date)
	defer unlock()

	log := r.log.WithComponent("read_model").WithFields(logger.Fields{
		"date":          date.String(),
		"candidates":    len(secs),
		"remove_others": removeOthers,
	})

	heldSecs, err := r.held.Get(ctx, date)
	if err != nil {
		return nil, err
	}
	heldByID := make(map[string]struct{}, len(heldSecs))
	for _, h := range heldSecs {
		if h.LWID != "" {
			heldByID[h.LWID] = struct{}{}
		}
	}

	// Drop candidates that are not actually held; dedupe on id.
	refreshSet := make(map[string]struct{})
	var refreshSecs []models.Security
	for _, sec := range secs {
		id, ok := resolveLWID(ctx, r.resolver, sec)
		if !ok {
			log.WithFields(logger.Fields{"pms_security_id": sec.PMSSecurityID()}).Warn("skipping security without resolvable id")
			continue
		}
		if _, held := heldByID[id]; !held {
			continue
		}
		if _, seen := refreshSet[id]; seen {
			continue
		}
		refreshSet[id] = struct{}{}
		sec.LWID = id
		refreshSecs = append(refreshSecs, sec)
	}

	// One batched authoritative fetch for the whole refresh set.
	var fresh []models.SecurityWithPrices
	if len(refreshSecs) > 0 {
		fresh, err = r.source.Get(ctx, date, refreshSecs)
		if err != nil {
			return nil, err
		}
	}

	var base []models.SecurityWithPrices
	if !removeOthers {
		existing, _, err := readSWPCollection(ctx, r.store, ModelHeldSecuritiesWithPrices, date)
		if err != nil {
			return nil, err
		}
		for _, swp := range existing {
			if _, refreshed := refreshSet[swp.Security.LWID]; !refreshed {
				base = append(base, swp)
			}
		}
	}
	result := append(base, fresh...)

	if err := writeSWPCollection(ctx, r.store, ModelHeldSecuritiesWithPrices, date, result); err != nil {
		return nil, err
	}

	log.WithFields(logger.Fields{
		"refreshed": len(fresh),
		"total":     len(result),
	}).Info("held securities with prices refreshed")

	if r.notify != nil {
		select {
		case r.notify <- date:
		default:
		}
	}
	return result, nil
}

// RemoveSecurities evicts the given securities from the date's collection.
// Unknown securities are a no-op; the operation is idempotent.
func (r *HeldSecuritiesWithPricesRepository) RemoveSecurities(ctx context.Context, date dates.Date, secs []models.Security) ([]models.SecurityWithPrices, error) {
	unlock := r.locks.lock(ModelHeldSecuritiesWithPrices, date)
	defer unlock()

	removeSet := make(map[string]struct{}, len(secs))
	for _, sec := range secs {
		if id, ok := resolveLWID(ctx, r.resolver, sec); ok {
			removeSet[id] = struct{}{}
		} else {
			r.log.WithComponent("read_model").WithFields(logger.Fields{
				"pms_security_id": sec.PMSSecurityID(),
			}).Warn("cannot resolve security for removal; skipping")
		}
	}

	existing, _, err := readSWPCollection(ctx, r.store, ModelHeldSecuritiesWithPrices, date)
	if err != nil {
		return nil, err
	}
	remaining := make([]models.SecurityWithPrices, 0, len(existing))
	for _, swp := range existing {
		if _, remove := removeSet[swp.Security.LWID]; !remove {
			remaining = append(remaining, swp)
		}
	}

	if err := writeSWPCollection(ctx, r.store, ModelHeldSecuritiesWithPrices, date, remaining); err != nil {
		return nil, &DeleteFailedError{Model: ModelHeldSecuritiesWithPrices, Date: date, Cause: err}
	}

	r.log.WithComponent("read_model").WithFields(logger.Fields{
		"date":    date.String(),
		"removed": len(existing) - len(remaining),
	}).Info("securities removed from held view")
	return remaining, nil
}
