package readmodel

import (
	"context"
	"sync"

	"priceflow/dates"
)

// Model names of the persisted view collections.
const (
	ModelSecurityWithPrices       = "security_with_prices"
	ModelHeldSecurities           = "held_securities"
	ModelHeldSecuritiesWithPrices = "held_securities_with_prices"
)

// Store persists one addressable unit per (model, date): the serialized
// collection for that view and date. Read reports "not found" distinctly
// from an empty collection via the boolean return.
type Store interface {
	Read(ctx context.Context, model string, date dates.Date) ([]byte, bool, error)
	Write(ctx context.Context, model string, date dates.Date, payload []byte) error
}

// storeLocks serializes mutations per (model, date). Every repository
// mutation runs a full read-modify-write of the date's collection; without
// this, two consumer processes sharing a store instance could interleave
// and silently drop one writer's update.
type storeLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newStoreLocks() *storeLocks {
	return &storeLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *storeLocks) lock(model string, date dates.Date) func() {
	key := model + "|" + date.String()
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}
