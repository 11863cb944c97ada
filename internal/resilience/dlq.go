package resilience

import (
	"time"

	"github.com/sells-group/leadfetch/internal/model"
)

// DLQEntry is a job delivery that exhausted its retries or failed
// permanently.
type DLQEntry struct {
	ID           string           `json:"id"`
	Payload      model.JobPayload `json:"payload"`
	Error        string           `json:"error"`
	ErrorType    string           `json:"error_type"` // "transient" or "permanent"
	Attempts     int              `json:"attempts"`
	CreatedAt    time.Time        `json:"created_at"`
	LastFailedAt time.Time        `json:"last_failed_at"`
}

// DLQFilter specifies criteria for querying the dead letter queue.
type DLQFilter struct {
	ErrorType string `json:"error_type,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// NewDLQEntry builds an entry for payload failing with err after attempts
// deliveries.
func NewDLQEntry(payload model.JobPayload, err error, attempts int, now time.Time) DLQEntry {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return DLQEntry{
		Payload:      payload,
		Error:        msg,
		ErrorType:    ClassifyError(err),
		Attempts:     attempts,
		CreatedAt:    now,
		LastFailedAt: now,
	}
}

// ClassifyError categorizes an error as "transient" or "permanent".
func ClassifyError(err error) string {
	if IsTransient(err) {
		return "transient"
	}
	return "permanent"
}
