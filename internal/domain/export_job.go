package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const JobTypeCSVExport = "csv_export"

// ExportJob is the persisted progress record for one export run. Current is
// only ever incremented, and CompletedAt is set exactly once by whichever
// increment first observes current >= total. Rows are never deleted; they
// double as the export history.
type ExportJob struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	OwnerUserID uuid.UUID      `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	JobType     string         `gorm:"column:job_type;not null;index" json:"job_type"`
	DatatypeID  uuid.UUID      `gorm:"type:uuid;not null;index" json:"datatype_id"`
	Total       int64          `gorm:"column:total;not null" json:"total"`
	Current     int64          `gorm:"column:current;not null;default:0" json:"current"`
	Description string         `gorm:"column:description" json:"description,omitempty"`
	Data        datatypes.JSON `gorm:"column:data;type:jsonb" json:"data,omitempty"`
	CompletedAt *time.Time     `gorm:"column:completed_at;index" json:"completed_at,omitempty"`
	CreatedAt   time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (ExportJob) TableName() string { return "export_jobs" }

func (j *ExportJob) Completed() bool { return j != nil && j.CompletedAt != nil }
