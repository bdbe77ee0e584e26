package models

// Event is a typed change notification consumed from one of the core-db
// change topics.
type Event interface {
	EventType() string
}

type SecurityCreatedEvent struct {
	Security Security
}

func (SecurityCreatedEvent) EventType() string { return "SecurityCreated" }

type PriceBatchCreatedEvent struct {
	Batch PriceBatch
}

func (PriceBatchCreatedEvent) EventType() string { return "PriceBatchCreated" }

type AppraisalBatchCreatedEvent struct {
	Batch AppraisalBatch
}

func (AppraisalBatchCreatedEvent) EventType() string { return "AppraisalBatchCreated" }

// PositionEvent covers both position creation/update and deletion, keyed by
// the single-letter operation code on the change topic.
type PositionEvent struct {
	Position Position
	Deleted  bool
}

func (PositionEvent) EventType() string { return "PositionChanged" }

type PortfolioCreatedEvent struct {
	Portfolio Portfolio
}

func (PortfolioCreatedEvent) EventType() string { return "PortfolioCreated" }
