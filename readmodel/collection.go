package readmodel

import (
	"context"
	"encoding/json"
	"fmt"

	"priceflow/dates"
	"priceflow/models"
)

// Collaborator contracts consumed by the repositories. Implementations live
// in the repositories package; tests substitute fakes.

// HeldSecuritiesSource answers "which securities are held on this date",
// from the authoritative appraisal/position data.
type HeldSecuritiesSource interface {
	Get(ctx context.Context, date dates.Date) ([]models.Security, error)
}

// SecurityWithPricesSource builds authoritative read-model entries for a
// batch of securities from the upstream query layer.
type SecurityWithPricesSource interface {
	Get(ctx context.Context, date dates.Date, secs []models.Security) ([]models.SecurityWithPrices, error)
}

// PMSSecurityResolver resolves a security by the portfolio management
// system's internal id when the canonical id is blank.
type PMSSecurityResolver interface {
	GetByPMSID(ctx context.Context, pmsSecurityID string) ([]models.Security, error)
}

func readSWPCollection(ctx context.Context, store Store, model string, date dates.Date) ([]models.SecurityWithPrices, bool, error) {
	data, found, err := store.Read(ctx, model, date)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	var swps []models.SecurityWithPrices
	if err := json.Unmarshal(data, &swps); err != nil {
		return nil, true, fmt.Errorf("corrupt %s collection for %s: %w", model, date, err)
	}
	return swps, true, nil
}

// writeSWPCollection persists the collection and verifies it can be read
// back. Verification failure surfaces as CreateFailedError so the handler
// leaves the triggering message uncommitted.
func writeSWPCollection(ctx context.Context, store Store, model string, date dates.Date, swps []models.SecurityWithPrices) error {
	if swps == nil {
		swps = []models.SecurityWithPrices{}
	}
	data, err := json.Marshal(swps)
	if err != nil {
		return &CreateFailedError{Model: model, Date: date, Cause: err}
	}
	if err := store.Write(ctx, model, date, data); err != nil {
		return &CreateFailedError{Model: model, Date: date, Cause: err}
	}
	if _, found, err := readSWPCollection(ctx, store, model, date); err != nil || !found {
		return &CreateFailedError{Model: model, Date: date, Cause: err}
	}
	return nil
}

// resolveLWID returns the canonical id for a security, falling back to a
// lookup by the foreign system id when the canonical id is blank. The
// second return is false when no id could be resolved.
func resolveLWID(ctx context.Context, resolver PMSSecurityResolver, sec models.Security) (string, bool) {
	if sec.LWID != "" {
		return sec.LWID, true
	}
	pmsID := sec.PMSSecurityID()
	if pmsID == "" || resolver == nil {
		return "", false
	}
	resolved, err := resolver.GetByPMSID(ctx, pmsID)
	if err != nil || len(resolved) == 0 || resolved[0].LWID == "" {
		return "", false
	}
	return resolved[0].LWID, true
}
