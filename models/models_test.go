package models

import (
	"math"
	"testing"
	"time"

	"priceflow/dates"
	"priceflow/sources"
)

func pxFrom(source string) Price {
	v := 100.0
	return Price{
		Security: Security{LWID: "sec1"},
		Source:   sources.PriceSource{Name: source},
		DataDate: dates.New(2024, time.March, 4),
		Values:   []PriceValue{NewPriceValue(TypePrice, &v)},
	}
}

func TestChooseBestFollowsHierarchy(t *testing.T) {
	prices := []Price{pxFrom(sources.Bloomberg), pxFrom(sources.Override), pxFrom(sources.FTSE)}
	best := ChooseBest(prices)
	if best == nil || best.Source.Name != sources.Override {
		t.Fatalf("ChooseBest picked %v, want OVERRIDE", best)
	}
}

func TestChooseBestIgnoresInputOrder(t *testing.T) {
	forward := []Price{pxFrom(sources.Markit), pxFrom(sources.FTSE)}
	reversed := []Price{pxFrom(sources.FTSE), pxFrom(sources.Markit)}
	if ChooseBest(forward).Source != ChooseBest(reversed).Source {
		t.Fatal("winner must not depend on input order")
	}
}

func TestChooseBestEmpty(t *testing.T) {
	if ChooseBest(nil) != nil {
		t.Fatal("no prices should yield no winner")
	}
}

func TestNewPriceValueNormalizesNaN(t *testing.T) {
	nan := math.NaN()
	if v := NewPriceValue(TypePrice, &nan); v.Value != nil {
		t.Error("NaN should become an absent value")
	}
	inf := math.Inf(1)
	if v := NewPriceValue(TypeYield, &inf); v.Value != nil {
		t.Error("Inf should become an absent value")
	}
	ok := 99.5
	if v := NewPriceValue(TypePrice, &ok); v.Value == nil || *v.Value != 99.5 {
		t.Error("finite value should survive")
	}
}

func TestSecurityCompositeID(t *testing.T) {
	if !(Security{LWID: "CASH/USD"}).HasCompositeID() {
		t.Error("id containing the delimiter is composite")
	}
	if (Security{LWID: "sec1"}).HasCompositeID() {
		t.Error("plain id is not composite")
	}
	if (Security{}).HasCompositeID() {
		t.Error("empty id is not composite")
	}
}

func TestChosenPrice(t *testing.T) {
	swp := SecurityWithPrices{
		CurrBdayPrices: []Price{pxFrom(sources.RBC), pxFrom(sources.Manual)},
	}
	if got := swp.ChosenPrice(); got == nil || got.Source.Name != sources.Manual {
		t.Fatalf("ChosenPrice = %v, want MANUAL", got)
	}
}
