package handlers

import (
	"context"
	"errors"
	"testing"
	"time"

	"priceflow/dates"
	"priceflow/models"
	"priceflow/readmodel"
	"priceflow/sources"
)

type swpCall struct {
	price models.Price
	mode  readmodel.PriceMode
	date  dates.Date
	sec   models.Security
}

type fakeSWPWriter struct {
	prices     []swpCall
	securities []swpCall
	err        error
}

func (f *fakeSWPWriter) AddPrice(ctx context.Context, price models.Price, mode readmodel.PriceMode) (models.SecurityWithPrices, error) {
	if f.err != nil {
		return models.SecurityWithPrices{}, f.err
	}
	f.prices = append(f.prices, swpCall{price: price, mode: mode})
	return models.SecurityWithPrices{}, nil
}

func (f *fakeSWPWriter) AddSecurity(ctx context.Context, date dates.Date, sec models.Security) (models.SecurityWithPrices, error) {
	if f.err != nil {
		return models.SecurityWithPrices{}, f.err
	}
	f.securities = append(f.securities, swpCall{date: date, sec: sec})
	return models.SecurityWithPrices{}, nil
}

type refreshCall struct {
	date         dates.Date
	secs         []models.Security
	removeOthers bool
}

type fakeHeldView struct {
	refreshes []refreshCall
	removes   []refreshCall
}

func (f *fakeHeldView) RefreshForSecurities(ctx context.Context, date dates.Date, secs []models.Security, removeOthers bool) ([]models.SecurityWithPrices, error) {
	f.refreshes = append(f.refreshes, refreshCall{date: date, secs: secs, removeOthers: removeOthers})
	return nil, nil
}

func (f *fakeHeldView) RemoveSecurities(ctx context.Context, date dates.Date, secs []models.Security) ([]models.SecurityWithPrices, error) {
	f.removes = append(f.removes, refreshCall{date: date, secs: secs})
	return nil, nil
}

type fakeHeldSnapshot struct {
	isHeld  bool
	creates []refreshCall
}

func (f *fakeHeldSnapshot) Create(ctx context.Context, date dates.Date, secs []models.Security) error {
	f.creates = append(f.creates, refreshCall{date: date, secs: secs})
	return nil
}

func (f *fakeHeldSnapshot) IsHeld(ctx context.Context, date dates.Date, sec models.Security) (bool, error) {
	return f.isHeld, nil
}

type fakePriceSource struct {
	prices []models.Price
	err    error
}

func (f *fakePriceSource) Get(ctx context.Context, date dates.Date, sourceName string, lwIDs []string) ([]models.Price, error) {
	return f.prices, f.err
}

type fakeHeldSource struct {
	secs []models.Security
}

func (f *fakeHeldSource) Get(ctx context.Context, date dates.Date) ([]models.Security, error) {
	return f.secs, nil
}

type fakePositionUpserter struct {
	rows int64
	err  error
}

func (f *fakePositionUpserter) Upsert(ctx context.Context, pos models.Position, deleted bool) (int64, error) {
	return f.rows, f.err
}

type fakePortfolioUpserter struct {
	rows int64
	err  error
}

func (f *fakePortfolioUpserter) Upsert(ctx context.Context, p models.Portfolio) (int64, error) {
	return f.rows, f.err
}

func testRegistry() *sources.Registry {
	return sources.NewRegistry(
		[]string{"BLOOMBERG", "FTSE", "MARKIT", "FUNDRUN", "APX"},
		[]string{"OVERRIDE", "MANUAL"},
	)
}

func batchPrice(lwID string, source string, date dates.Date) models.Price {
	v := 100.0
	return models.Price{
		Security:   models.Security{LWID: lwID, Attributes: map[string]string{}},
		Source:     sources.PriceSource{Name: source},
		DataDate:   date,
		ModifiedAt: time.Now(),
		Values:     []models.PriceValue{models.NewPriceValue(models.TypePrice, &v)},
	}
}

func TestSecurityHandlerSkipsCompositeID(t *testing.T) {
	swp := &fakeSWPWriter{}
	view := &fakeHeldView{}
	h := NewSecurityCreatedHandler(swp, view, &fakeHeldSnapshot{isHeld: true}, dates.NewCalendar(nil))

	commit := h.Handle(context.Background(), models.SecurityCreatedEvent{
		Security: models.Security{LWID: "CASH/USD"},
	})
	if !commit {
		t.Fatal("composite-id security should commit")
	}
	if len(swp.securities) != 0 || len(view.refreshes) != 0 {
		t.Fatal("composite-id security must not touch the read model")
	}
}

func TestSecurityHandlerSkipsNotHeld(t *testing.T) {
	swp := &fakeSWPWriter{}
	view := &fakeHeldView{}
	h := NewSecurityCreatedHandler(swp, view, &fakeHeldSnapshot{isHeld: false}, dates.NewCalendar(nil))

	commit := h.Handle(context.Background(), models.SecurityCreatedEvent{
		Security: models.Security{LWID: "sec1"},
	})
	if !commit {
		t.Fatal("not-held security should commit")
	}
	if len(swp.securities) != 0 || len(view.refreshes) != 0 {
		t.Fatal("not-held security must not touch the read model")
	}
}

func TestSecurityHandlerUpdatesTrailingWindow(t *testing.T) {
	swp := &fakeSWPWriter{}
	view := &fakeHeldView{}
	h := NewSecurityCreatedHandler(swp, view, &fakeHeldSnapshot{isHeld: true}, dates.NewCalendar(nil))

	commit := h.Handle(context.Background(), models.SecurityCreatedEvent{
		Security: models.Security{LWID: "sec1"},
	})
	if !commit {
		t.Fatal("held security should commit")
	}
	if len(swp.securities) != 2 {
		t.Fatalf("AddSecurity called %d times, want 2 (today and next business day)", len(swp.securities))
	}
	if len(view.refreshes) != 2 {
		t.Fatalf("refresh called %d times, want 2", len(view.refreshes))
	}
	if swp.securities[0].date.Equal(swp.securities[1].date) {
		t.Fatal("window dates should differ")
	}
}

func TestPriceBatchHandlerAppliesVendorBatch(t *testing.T) {
	date := dates.New(2024, time.March, 4)
	swp := &fakeSWPWriter{}
	view := &fakeHeldView{}
	prices := &fakePriceSource{prices: []models.Price{batchPrice("sec1", "BB_EQUITY", date)}}
	h := NewPriceBatchCreatedHandler(prices, testRegistry(), swp, view, dates.NewCalendar(nil))

	commit := h.Handle(context.Background(), models.PriceBatchCreatedEvent{
		Batch: models.PriceBatch{Source: "BB_EQUITY", DataDate: date},
	})
	if !commit {
		t.Fatal("vendor batch should commit")
	}
	if len(swp.prices) != 1 {
		t.Fatalf("AddPrice called %d times, want 1", len(swp.prices))
	}
	if swp.prices[0].mode != readmodel.PriceModeCurr {
		t.Errorf("mode = %s, want curr", swp.prices[0].mode)
	}
	if swp.prices[0].price.Source.Name != sources.Bloomberg {
		t.Errorf("stored source = %s, want translated BLOOMBERG", swp.prices[0].price.Source.Name)
	}
	if len(view.refreshes) != 1 || !view.refreshes[0].date.Equal(date) {
		t.Fatalf("refresh = %+v, want one at batch date", view.refreshes)
	}
}

func TestPriceBatchHandlerShiftsReferencePrices(t *testing.T) {
	friday := dates.New(2024, time.March, 1)
	monday := dates.New(2024, time.March, 4)
	swp := &fakeSWPWriter{}
	view := &fakeHeldView{}
	prices := &fakePriceSource{prices: []models.Price{batchPrice("sec1", sources.RawAPX, friday)}}
	h := NewPriceBatchCreatedHandler(prices, testRegistry(), swp, view, dates.NewCalendar(nil))

	commit := h.Handle(context.Background(), models.PriceBatchCreatedEvent{
		Batch: models.PriceBatch{Source: sources.RawAPX, DataDate: friday},
	})
	if !commit {
		t.Fatal("reference batch should commit")
	}
	if swp.prices[0].mode != readmodel.PriceModePrev {
		t.Errorf("mode = %s, want prev", swp.prices[0].mode)
	}
	if len(view.refreshes) != 1 || !view.refreshes[0].date.Equal(monday) {
		t.Fatalf("refresh date = %+v, want next business day %s", view.refreshes, monday)
	}
}

func TestPriceBatchHandlerSkipsIrrelevantFeed(t *testing.T) {
	date := dates.New(2024, time.March, 4)
	swp := &fakeSWPWriter{}
	view := &fakeHeldView{}
	prices := &fakePriceSource{prices: []models.Price{batchPrice("sec1", "BB_BOND_DERIVED", date)}}
	h := NewPriceBatchCreatedHandler(prices, testRegistry(), swp, view, dates.NewCalendar(nil))

	commit := h.Handle(context.Background(), models.PriceBatchCreatedEvent{
		Batch: models.PriceBatch{Source: "BB_BOND_DERIVED", DataDate: date},
	})
	if !commit {
		t.Fatal("irrelevant batch should commit")
	}
	if len(swp.prices) != 0 || len(view.refreshes) != 0 {
		t.Fatal("irrelevant batch must not touch the read model")
	}
}

func TestPriceBatchHandlerDeclinesOnWriteFailure(t *testing.T) {
	date := dates.New(2024, time.March, 4)
	swp := &fakeSWPWriter{err: errors.New("store down")}
	prices := &fakePriceSource{prices: []models.Price{batchPrice("sec1", "BB_EQUITY", date)}}
	h := NewPriceBatchCreatedHandler(prices, testRegistry(), swp, &fakeHeldView{}, dates.NewCalendar(nil))

	commit := h.Handle(context.Background(), models.PriceBatchCreatedEvent{
		Batch: models.PriceBatch{Source: "BB_EQUITY", DataDate: date},
	})
	if commit {
		t.Fatal("failed write must decline the commit")
	}
}

func TestAppraisalBatchHandlerRebuildsBothDates(t *testing.T) {
	friday := dates.New(2024, time.March, 1)
	monday := dates.New(2024, time.March, 4)
	held := []models.Security{
		{LWID: "sec1"}, {LWID: "sec2"}, {LWID: "sec1"},
	}
	snapshot := &fakeHeldSnapshot{}
	view := &fakeHeldView{}
	h := NewAppraisalBatchCreatedHandler(&fakeHeldSource{secs: held}, snapshot, view, dates.NewCalendar(nil))

	commit := h.Handle(context.Background(), models.AppraisalBatchCreatedEvent{
		Batch: models.AppraisalBatch{Portfolios: "@LW_OpenandMeasurementandTest", DataDate: friday},
	})
	if !commit {
		t.Fatal("appraisal batch should commit")
	}
	if len(snapshot.creates) != 1 || len(snapshot.creates[0].secs) != 2 {
		t.Fatalf("held snapshot = %+v, want one create with 2 deduped securities", snapshot.creates)
	}
	if len(view.refreshes) != 2 {
		t.Fatalf("refresh called %d times, want 2", len(view.refreshes))
	}
	if !view.refreshes[0].date.Equal(friday) || !view.refreshes[1].date.Equal(monday) {
		t.Fatalf("refresh dates %s, %s; want %s then %s", view.refreshes[0].date, view.refreshes[1].date, friday, monday)
	}
	for _, r := range view.refreshes {
		if !r.removeOthers {
			t.Error("appraisal refresh must evict securities no longer held")
		}
		if len(r.secs) != 2 {
			t.Errorf("refresh set size %d, want 2", len(r.secs))
		}
	}
}

func TestPositionHandlerCreateRefreshesToday(t *testing.T) {
	view := &fakeHeldView{}
	h := NewPositionHandler(&fakePositionUpserter{rows: 1}, &fakeHeldSource{}, view, dates.NewCalendar(nil))

	commit := h.Handle(context.Background(), models.PositionEvent{
		Position: models.Position{
			Security:   models.Security{LWID: "sec1"},
			Attributes: map[string]string{models.AttrPMSPositionID: "55"},
		},
	})
	if !commit {
		t.Fatal("successful upsert should commit")
	}
	if len(view.refreshes) != 1 {
		t.Fatalf("refresh called %d times, want 1", len(view.refreshes))
	}
}

func TestPositionHandlerZeroRowsDeclines(t *testing.T) {
	h := NewPositionHandler(&fakePositionUpserter{rows: 0}, &fakeHeldSource{}, &fakeHeldView{}, dates.NewCalendar(nil))

	commit := h.Handle(context.Background(), models.PositionEvent{
		Position: models.Position{Security: models.Security{LWID: "sec1"}},
	})
	if commit {
		t.Fatal("zero-row upsert must decline the commit")
	}
}

func TestPositionHandlerDeleteEvictsLastHolding(t *testing.T) {
	view := &fakeHeldView{}
	h := NewPositionHandler(&fakePositionUpserter{rows: 1}, &fakeHeldSource{}, view, dates.NewCalendar(nil))

	commit := h.Handle(context.Background(), models.PositionEvent{
		Position: models.Position{Security: models.Security{LWID: "sec1"}},
		Deleted:  true,
	})
	if !commit {
		t.Fatal("delete should commit")
	}
	if len(view.removes) != 1 {
		t.Fatalf("remove called %d times, want 1", len(view.removes))
	}
	if len(view.refreshes) != 0 {
		t.Fatal("evicted security should not also be refreshed")
	}
}

func TestPositionHandlerDeleteKeepsStillHeldSecurity(t *testing.T) {
	view := &fakeHeldView{}
	holdings := &fakeHeldSource{secs: []models.Security{{LWID: "sec1"}}}
	h := NewPositionHandler(&fakePositionUpserter{rows: 1}, holdings, view, dates.NewCalendar(nil))

	commit := h.Handle(context.Background(), models.PositionEvent{
		Position: models.Position{Security: models.Security{LWID: "sec1"}},
		Deleted:  true,
	})
	if !commit {
		t.Fatal("delete should commit")
	}
	if len(view.removes) != 0 {
		t.Fatal("still-held security must not be evicted")
	}
	if len(view.refreshes) != 1 {
		t.Fatalf("refresh called %d times, want 1", len(view.refreshes))
	}
}

func TestPortfolioHandler(t *testing.T) {
	h := NewPortfolioHandler(&fakePortfolioUpserter{rows: 1})
	commit := h.Handle(context.Background(), models.PortfolioCreatedEvent{
		Portfolio: models.Portfolio{PortfolioCode: "LW-OPEN"},
	})
	if !commit {
		t.Fatal("successful upsert should commit")
	}

	h = NewPortfolioHandler(&fakePortfolioUpserter{err: errors.New("db down")})
	commit = h.Handle(context.Background(), models.PortfolioCreatedEvent{
		Portfolio: models.Portfolio{PortfolioCode: "LW-OPEN"},
	})
	if commit {
		t.Fatal("failed upsert must decline the commit")
	}
}
