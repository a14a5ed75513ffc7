package domain

import "github.com/google/uuid"

// Queue task payloads, one per pipeline stage transition. Each is an
// immutable JSON message; ownership transfers fully to the consuming worker.
// Every message carries the worker shared secret so consumer-side endpoints
// can reject unauthenticated invocation.

// Tube names, one named work queue per stage.
const (
	TubeCSVExportStart    = "csv_export_start"
	TubeCSVExportWorker   = "csv_export_worker"
	TubeCSVExportFinalize = "csv_export_finalize"
)

// BuildTask asks the row builder to flatten one record's selected fields.
type BuildTask struct {
	JobID              uuid.UUID   `json:"job_id"`
	OwnerUserID        uuid.UUID   `json:"user_id"`
	DatatypeID         uuid.UUID   `json:"datatype_id"`
	RecordID           uuid.UUID   `json:"record_id"`
	FieldIDs           []uuid.UUID `json:"field_ids"`
	Delimiter          string      `json:"delimiter"`
	SecondaryDelimiter string      `json:"secondary_delimiter,omitempty"`
	APIKey             string      `json:"api_key"`
}

// WriteTask carries one fully-built row to the row writer.
type WriteTask struct {
	JobID       uuid.UUID   `json:"job_id"`
	OwnerUserID uuid.UUID   `json:"user_id"`
	RecordID    uuid.UUID   `json:"record_id"`
	FieldIDs    []uuid.UUID `json:"field_ids"`
	Delimiter   string      `json:"delimiter"`
	Row         []string    `json:"row"`
	APIKey      string      `json:"api_key"`
}

// ClaimRef is one (claim id, random key) pair in a finalize task's pending
// list, ordered by ascending claim id.
type ClaimRef struct {
	ClaimID   int64  `json:"claim_id"`
	RandomKey string `json:"random_key"`
}

// FinalizeTask drives one link of the self-chaining merge: exactly one temp
// file is appended per invocation, then the task re-enqueues itself with the
// reduced pending list until it empties.
type FinalizeTask struct {
	JobID         uuid.UUID  `json:"job_id"`
	OwnerUserID   uuid.UUID  `json:"user_id"`
	FinalFilename string     `json:"final_filename"`
	PendingClaims []ClaimRef `json:"pending_claims"`
	APIKey        string     `json:"api_key"`
}
