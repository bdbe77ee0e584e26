package models

import (
	"math"
	"strings"
	"time"

	"priceflow/dates"
	"priceflow/sources"
)

// AttrPMSSecurityID is the attribute key carrying the portfolio management
// system's internal numeric security id. Securities arriving from PMS
// change topics may carry only this id, with an empty LWID.
const AttrPMSSecurityID = "pms_security_id"

// AttrPMSPortfolioID and AttrPMSPositionID are the corresponding portfolio
// and position ids on Portfolio and Position attributes.
const (
	AttrPMSPortfolioID = "pms_portfolio_id"
	AttrPMSPositionID  = "pms_position_id"
)

// CompositeIDDelimiter marks composite/foreign security ids. Securities
// whose LWID contains it are never tracked in the read model.
const CompositeIDDelimiter = "/"

// Security is a priced instrument. LWID is the canonical identifier and is
// unique within one materialized-view date; it may be empty when only a
// foreign system id is known, in which case Attributes carries the foreign
// id.
type Security struct {
	LWID       string            `json:"lw_id"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

func (s Security) PMSSecurityID() string {
	return s.Attributes[AttrPMSSecurityID]
}

// HasCompositeID reports whether the security uses a reserved composite id.
func (s Security) HasCompositeID() bool {
	return s.LWID != "" && strings.Contains(s.LWID, CompositeIDDelimiter)
}

// PriceType tags one value within a price record.
type PriceType string

const (
	TypePrice    PriceType = "price"
	TypeYield    PriceType = "yield"
	TypeDuration PriceType = "duration"
)

// PriceValue is one typed observation. Value is nil when the vendor did not
// supply the field. NaN never survives construction.
type PriceValue struct {
	Type  PriceType `json:"type"`
	Value *float64  `json:"value"`
}

// NewPriceValue normalizes not-a-number input to an absent value at the
// boundary so it can never reach storage or comparison logic.
func NewPriceValue(t PriceType, v *float64) PriceValue {
	if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
		v = nil
	}
	return PriceValue{Type: t, Value: v}
}

// Price is the unit of price data for one (security, source, date). It may
// carry several typed values (price, yield, duration) delivered together.
type Price struct {
	Security   Security            `json:"security"`
	Source     sources.PriceSource `json:"source"`
	DataDate   dates.Date          `json:"data_date"`
	ModifiedAt time.Time           `json:"modified_at"`
	Values     []PriceValue        `json:"values"`
}

// PriceBatch is a notification that new prices exist for a source and date.
// The prices themselves must be fetched separately.
type PriceBatch struct {
	Source   string     `json:"source"`
	DataDate dates.Date `json:"data_date"`
}

// AppraisalBatch is a notification that a portfolio appraisal run completed
// for a date.
type AppraisalBatch struct {
	Portfolios string     `json:"portfolios"`
	DataDate   dates.Date `json:"data_date"`
}

type Portfolio struct {
	PortfolioCode string            `json:"portfolio_code"`
	Attributes    map[string]string `json:"attributes,omitempty"`
}

type Position struct {
	Portfolio  Portfolio         `json:"portfolio"`
	DataDate   dates.Date        `json:"data_date"`
	Security   Security          `json:"security"`
	Quantity   float64           `json:"quantity"`
	IsShort    bool              `json:"is_short"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// PriceAuditEntry records a manual price change: the full before and after
// price records plus who changed it and why.
type PriceAuditEntry struct {
	DataDate   dates.Date `json:"data_date"`
	Security   Security   `json:"security"`
	Reason     string     `json:"reason"`
	Comment    string     `json:"comment"`
	Before     Price      `json:"before"`
	After      Price      `json:"after"`
	ModifiedBy string     `json:"modified_by"`
	ModifiedAt time.Time  `json:"modified_at"`
}

// SecurityWithPrices is the read-model entry for one security and date:
// every relevant current-day price, the previous business day's reference
// price, and the audit trail.
type SecurityWithPrices struct {
	Security       Security          `json:"security"`
	DataDate       dates.Date        `json:"data_date"`
	CurrBdayPrices []Price           `json:"curr_bday_prices"`
	PrevBdayPrice  *Price            `json:"prev_bday_price"`
	AuditTrail     []PriceAuditEntry `json:"audit_trail"`
}

// ChosenPrice selects the current-day price whose source has the best
// precedence, or nil when no prices are present.
func (swp SecurityWithPrices) ChosenPrice() *Price {
	return ChooseBest(swp.CurrBdayPrices)
}

// ChooseBest picks the price whose source wins on precedence. Ties resolve
// deterministically through sources.ComparePrecedence regardless of the
// order prices were fetched in.
func ChooseBest(prices []Price) *Price {
	var best *Price
	for i := range prices {
		if best == nil || sources.ComparePrecedence(prices[i].Source, best.Source) < 0 {
			best = &prices[i]
		}
	}
	return best
}
