package ingest

// Outcome classifies an ingestion attempt.
type Outcome string

const (
	Created          Outcome = "created"
	Duplicate        Outcome = "duplicate"
	InvalidSignature Outcome = "invalid_signature"
	ValidationError  Outcome = "validation_error"

	// Unavailable only tags events for calls that failed in storage; Ingest
	// reports those through its error instead.
	Unavailable Outcome = "storage_unavailable"
)

// Accepted reports whether the sender should treat the outcome as success.
func (o Outcome) Accepted() bool {
	return o == Created || o == Duplicate
}

// Result is what Ingest returns for every non-storage outcome.
type Result struct {
	Outcome   Outcome
	MessageID string
	// Reason explains a validation_error.
	Reason string
	// Conflict is set on a duplicate whose body differs from the stored one.
	Conflict bool
}
