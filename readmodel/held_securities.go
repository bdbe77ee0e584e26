package readmodel

import (
	"context"
	"encoding/json"

	"priceflow/dates"
	"priceflow/logger"
	"priceflow/models"
)

// HeldSecuritiesRepository owns the per-date snapshot of currently held
// securities, rebuilt whenever an appraisal batch lands. The security
// handler consults it to decide whether a new security matters.
type HeldSecuritiesRepository struct {
	store Store
	locks *storeLocks
	log   *logger.Log
}

func NewHeldSecuritiesRepository(store Store) *HeldSecuritiesRepository {
	return &HeldSecuritiesRepository{
		store: store,
		locks: newStoreLocks(),
		log:   logger.GetLogger(),
	}
}

// Create replaces the held snapshot for the date.
func (r *HeldSecuritiesRepository) Create(ctx context.Context, date dates.Date, secs []models.Security) error {
	unlock := r.locks.lock(ModelHeldSecurities, date)
	defer unlock()

	if secs == nil {
		secs = []models.Security{}
	}
	data, err := json.Marshal(secs)
	if err != nil {
		return &CreateFailedError{Model: ModelHeldSecurities, Date: date, Cause: err}
	}
	if err := r.store.Write(ctx, ModelHeldSecurities, date, data); err != nil {
		return &CreateFailedError{Model: ModelHeldSecurities, Date: date, Cause: err}
	}
	if _, found, err := r.get(ctx, date); err != nil || !found {
		return &CreateFailedError{Model: ModelHeldSecurities, Date: date, Cause: err}
	}

	r.log.WithComponent("read_model").WithFields(logger.Fields{
		"date":       date.String(),
		"securities": len(secs),
	}).Debug("held securities snapshot replaced")
	return nil
}

// Get returns the held snapshot for the date; the empty list when none
// exists yet.
func (r *HeldSecuritiesRepository) Get(ctx context.Context, date dates.Date) ([]models.Security, error) {
	secs, _, err := r.get(ctx, date)
	return secs, err
}

// IsHeld reports whether the security appears in the date's snapshot,
// matching on the canonical id first, then the foreign system id.
func (r *HeldSecuritiesRepository) IsHeld(ctx context.Context, date dates.Date, sec models.Security) (bool, error) {
	held, err := r.Get(ctx, date)
	if err != nil {
		return false, err
	}
	for _, h := range held {
		if sec.LWID != "" && h.LWID == sec.LWID {
			return true, nil
		}
		if sec.LWID == "" && sec.PMSSecurityID() != "" && h.PMSSecurityID() == sec.PMSSecurityID() {
			return true, nil
		}
	}
	return false, nil
}

func (r *HeldSecuritiesRepository) get(ctx context.Context, date dates.Date) ([]models.Security, bool, error) {
	data, found, err := r.store.Read(ctx, ModelHeldSecurities, date)
	if err != nil || !found {
		return nil, found, err
	}
	var secs []models.Security
	if err := json.Unmarshal(data, &secs); err != nil {
		return nil, true, err
	}
	return secs, true, nil
}
