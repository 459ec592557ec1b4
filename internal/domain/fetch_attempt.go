package domain

import (
	"time"

	"gorm.io/datatypes"
)

// FetchAttempt is one independent sampling trial against the upstream API.
// Rows are append-only. ResultKey is nil exactly when the attempt failed.
type FetchAttempt struct {
	ID              int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	SyncUnitID      int64          `gorm:"not null;index:idx_fetch_attempts_unit_key,priority:1" json:"sync_unit_id"`
	SyncUnit        *SyncUnit      `gorm:"constraint:OnDelete:RESTRICT" json:"-"`
	ResultKey       *string        `gorm:"type:varchar(32);index:idx_fetch_attempts_unit_key,priority:2" json:"result_key,omitempty"`
	Error           datatypes.JSON `json:"error,omitempty"`
	Payload         datatypes.JSON `json:"-"`
	PayloadKey      string         `gorm:"type:text" json:"payload_key,omitempty"`
	ExecutionStart  time.Time      `json:"execution_start"`
	ExecutionEnd    time.Time      `json:"execution_end"`
	ExecutionTimeMs int64          `json:"execution_time_ms"`
	CreatedAt       time.Time      `json:"created_at"`
}

func (FetchAttempt) TableName() string {
	return "fetch_attempts"
}

// Succeeded reports whether the attempt produced a result key.
func (a *FetchAttempt) Succeeded() bool {
	return a.ResultKey != nil
}
