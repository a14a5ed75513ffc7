package domain

import (
	"time"

	"github.com/google/uuid"
)

// WriteClaim asserts one worker's ownership of a temp row file, or, with
// Finalize set, of the finalization step itself.
//
// The id is a bigserial rather than a UUID because the finalize protocol
// orders pending claims by insert order: the ticket hash and the merge
// sequence both walk claims by ascending id.
//
// Two unique indexes back the protocol:
//   - (job_id, random_key): a second insert of the same key is a no-op, which
//     makes the finalize-ticket race resolve to exactly one winner.
//   - (job_id, record_id): one claim per record per job, so a redelivered
//     write task cannot double-count toward the progress counter. Finalize
//     tickets carry a NULL record id and stay out of this index.
type WriteClaim struct {
	ID        int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	JobID     uuid.UUID  `gorm:"type:uuid;not null;index;uniqueIndex:uniq_claim_job_key;uniqueIndex:uniq_claim_job_record" json:"job_id"`
	RecordID  *uuid.UUID `gorm:"type:uuid;column:record_id;uniqueIndex:uniq_claim_job_record" json:"record_id,omitempty"`
	RandomKey string     `gorm:"column:random_key;not null;uniqueIndex:uniq_claim_job_key" json:"random_key"`
	Finalize  bool       `gorm:"column:finalize;not null;default:false" json:"finalize"`
	CreatedAt time.Time  `gorm:"not null;default:now()" json:"created_at"`
}

func (WriteClaim) TableName() string { return "write_claims" }
