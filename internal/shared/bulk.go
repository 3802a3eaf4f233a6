package shared

import "github.com/google/uuid"

// Outcome classifies one per-user entry of a bulk operation.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// ItemResult is one user's outcome inside a bulk operation. A failed entry
// never aborts or rolls back the other entries.
type ItemResult struct {
	UserID      int64   `json:"userId"`
	Outcome     Outcome `json:"outcome"`
	ErrorDetail string  `json:"errorDetail,omitempty"`
}

// BulkResult covers every requested user exactly once. It is returned
// synchronously and never persisted as a first-class entity.
type BulkResult struct {
	OperationID uuid.UUID    `json:"operationId"`
	Kind        string       `json:"kind"`
	Items       []ItemResult `json:"items"`
}

// Failed counts failure entries.
func (r BulkResult) Failed() int {
	n := 0
	for _, item := range r.Items {
		if item.Outcome == OutcomeFailure {
			n++
		}
	}
	return n
}
