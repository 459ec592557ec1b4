package domain

import (
	"time"

	"gorm.io/datatypes"
)

// WatermarkState is the outcome of one incremental sync window.
type WatermarkState string

const (
	WatermarkStatePending  WatermarkState = "PENDING"
	WatermarkStateComplete WatermarkState = "COMPLETE"
	WatermarkStateError    WatermarkState = "ERROR"
)

// SyncWatermark records one incremental window. The newest COMPLETE row's To
// is the next run's Since, so consecutive windows never leave a gap.
type SyncWatermark struct {
	ID              int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Namespace       string         `gorm:"type:varchar(64);not null;index:idx_sync_watermarks_ns_state,priority:1" json:"namespace"`
	Since           time.Time      `gorm:"not null" json:"since"`
	To              time.Time      `gorm:"column:window_to;not null" json:"to"`
	State           WatermarkState `gorm:"type:varchar(16);not null;default:PENDING;index:idx_sync_watermarks_ns_state,priority:2" json:"state"`
	ConsensusKey    *string        `gorm:"type:varchar(32)" json:"consensus_key,omitempty"`
	Result          datatypes.JSON `json:"result,omitempty"`
	Error           datatypes.JSON `json:"error,omitempty"`
	ExecutionEnd    *time.Time     `json:"execution_end,omitempty"`
	ExecutionTimeMs *int64         `json:"execution_time_ms,omitempty"`
	CreatedAt       time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func (SyncWatermark) TableName() string {
	return "sync_watermarks"
}
