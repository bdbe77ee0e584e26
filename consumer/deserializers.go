package consumer

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"priceflow/dates"
	"priceflow/models"
)

// DeserializationError wraps a payload problem so the error policy can
// distinguish it from infrastructure failures.
type DeserializationError struct {
	Category string
	Cause    error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("failed to deserialize %s event: %v", e.Category, e.Cause)
}

func (e *DeserializationError) Unwrap() error { return e.Cause }

func deserializeFields(category string, value []byte) (map[string]interface{}, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(value, &raw); err != nil {
		return nil, &DeserializationError{Category: category, Cause: err}
	}
	// Upstream producers disagree on key casing.
	fields := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		fields[strings.ToLower(k)] = v
	}
	return fields, nil
}

func fieldString(fields map[string]interface{}, key string) (string, bool) {
	v, ok := fields[key]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10), true
		}
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return fmt.Sprintf("%v", t), true
	}
}

func fieldInt(fields map[string]interface{}, key string) (int64, bool) {
	v, ok := fields[key]
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return int64(t), true
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func fieldFloat(fields map[string]interface{}, key string) (float64, bool) {
	v, ok := fields[key]
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// SecurityDeserializer handles the security change topic: a flat object
// with the canonical id plus open-ended attributes. modified_at may arrive
// as epoch milliseconds and is normalized to RFC 3339.
type SecurityDeserializer struct{}

func (SecurityDeserializer) Deserialize(value []byte) (models.Event, bool, error) {
	fields, err := deserializeFields("security", value)
	if err != nil {
		return nil, false, err
	}
	lwID, ok := fieldString(fields, "lw_id")
	if !ok {
		return nil, false, &DeserializationError{Category: "security", Cause: fmt.Errorf("missing lw_id")}
	}

	attrs := make(map[string]string, len(fields))
	for k := range fields {
		if k == "lw_id" {
			continue
		}
		if k == "modified_at" {
			if millis, isInt := fieldInt(fields, k); isInt {
				attrs[k] = time.UnixMilli(millis).UTC().Format(time.RFC3339)
				continue
			}
		}
		if s, ok := fieldString(fields, k); ok {
			attrs[k] = s
		}
	}
	return models.SecurityCreatedEvent{
		Security: models.Security{LWID: lwID, Attributes: attrs},
	}, true, nil
}

// PriceBatchDeserializer handles price batch notifications. data_date is
// days since the Unix epoch.
type PriceBatchDeserializer struct{}

func (PriceBatchDeserializer) Deserialize(value []byte) (models.Event, bool, error) {
	fields, err := deserializeFields("price_batch", value)
	if err != nil {
		return nil, false, err
	}
	source, ok := fieldString(fields, "source")
	if !ok {
		return nil, false, &DeserializationError{Category: "price_batch", Cause: fmt.Errorf("missing source")}
	}
	days, ok := fieldInt(fields, "data_date")
	if !ok {
		return nil, false, &DeserializationError{Category: "price_batch", Cause: fmt.Errorf("missing data_date")}
	}
	return models.PriceBatchCreatedEvent{
		Batch: models.PriceBatch{Source: source, DataDate: dates.FromEpochDays(days)},
	}, true, nil
}

// AppraisalBatchDeserializer handles appraisal batch notifications.
// Messages that predate the portfolios field get the configured default
// portfolio group.
type AppraisalBatchDeserializer struct {
	DefaultPortfolios string
}

func (d AppraisalBatchDeserializer) Deserialize(value []byte) (models.Event, bool, error) {
	fields, err := deserializeFields("appraisal_batch", value)
	if err != nil {
		return nil, false, err
	}
	days, ok := fieldInt(fields, "data_date")
	if !ok {
		return nil, false, &DeserializationError{Category: "appraisal_batch", Cause: fmt.Errorf("missing data_date")}
	}
	portfolios, ok := fieldString(fields, "portfolios")
	if !ok {
		portfolios = d.DefaultPortfolios
	}
	return models.AppraisalBatchCreatedEvent{
		Batch: models.AppraisalBatch{Portfolios: portfolios, DataDate: dates.FromEpochDays(days)},
	}, true, nil
}

// PositionDeserializer handles the change-capture position topic. The
// single-letter op code selects the operation; records without a position
// id belong to other entities sharing the topic and are not applicable.
type PositionDeserializer struct{}

func (PositionDeserializer) Deserialize(value []byte) (models.Event, bool, error) {
	fields, err := deserializeFields("position", value)
	if err != nil {
		return nil, false, err
	}
	posID, ok := fieldString(fields, "pms_position_id")
	if !ok {
		return nil, true, nil
	}
	op, _ := fieldString(fields, "op")
	var deleted bool
	switch op {
	case "I", "U", "R":
		deleted = false
	case "D":
		deleted = true
	default:
		return nil, true, nil
	}

	pos := models.Position{
		Portfolio:  models.Portfolio{Attributes: map[string]string{}},
		Security:   models.Security{Attributes: map[string]string{}},
		Attributes: map[string]string{models.AttrPMSPositionID: posID},
		IsShort:    false,
	}
	if pfID, ok := fieldString(fields, "pms_portfolio_id"); ok {
		pos.Portfolio.Attributes[models.AttrPMSPortfolioID] = pfID
	}
	if secID, ok := fieldString(fields, "pms_security_id"); ok {
		pos.Security.Attributes[models.AttrPMSSecurityID] = secID
	}
	if lwID, ok := fieldString(fields, "lw_id"); ok {
		pos.Security.LWID = lwID
	}
	if qty, ok := fieldFloat(fields, "quantity"); ok {
		pos.Quantity = qty
	}
	if short, exists := fields["is_short"]; exists {
		if b, isBool := short.(bool); isBool {
			pos.IsShort = b
		}
	}
	if days, ok := fieldInt(fields, "data_date"); ok {
		pos.DataDate = dates.FromEpochDays(days)
	} else {
		pos.DataDate = dates.Today()
	}
	return models.PositionEvent{Position: pos, Deleted: deleted}, true, nil
}

// PortfolioDeserializer handles the portfolio change topic.
type PortfolioDeserializer struct{}

func (PortfolioDeserializer) Deserialize(value []byte) (models.Event, bool, error) {
	fields, err := deserializeFields("portfolio", value)
	if err != nil {
		return nil, false, err
	}
	code, ok := fieldString(fields, "portfolio_code")
	if !ok {
		return nil, true, nil
	}
	p := models.Portfolio{PortfolioCode: code, Attributes: map[string]string{}}
	for k := range fields {
		if k == "portfolio_code" {
			continue
		}
		if s, ok := fieldString(fields, k); ok {
			p.Attributes[k] = s
		}
	}
	return models.PortfolioCreatedEvent{Portfolio: p}, true, nil
}
