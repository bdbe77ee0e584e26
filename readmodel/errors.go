package readmodel

import (
	"fmt"

	"priceflow/dates"
)

// CreateFailedError means a post-write verification read found the store
// does not reflect the intended collection. Handlers treat it as a
// processing failure: the message is not committed and will be redelivered.
type CreateFailedError struct {
	Model string
	Date  dates.Date
	Cause error
}

func (e *CreateFailedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("create failed for %s @ %s: %v", e.Model, e.Date, e.Cause)
	}
	return fmt.Sprintf("create failed for %s @ %s: written collection not retrievable", e.Model, e.Date)
}

func (e *CreateFailedError) Unwrap() error { return e.Cause }

// DeleteFailedError is the removal counterpart of CreateFailedError.
type DeleteFailedError struct {
	Model string
	Date  dates.Date
	Cause error
}

func (e *DeleteFailedError) Error() string {
	return fmt.Sprintf("delete failed for %s @ %s: %v", e.Model, e.Date, e.Cause)
}

func (e *DeleteFailedError) Unwrap() error { return e.Cause }
