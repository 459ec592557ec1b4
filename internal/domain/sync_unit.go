package domain

import (
	"time"

	"gorm.io/datatypes"
)

// UnitState is the lifecycle state of a SyncUnit.
// PENDING -> PROCESSING -> CONSENSUS_REACHED -> DETAIL_FETCHED; there is no
// terminal error state, Error is a flag that never blocks a retry.
type UnitState string

const (
	UnitStatePending          UnitState = "PENDING"
	UnitStateProcessing       UnitState = "PROCESSING"
	UnitStateConsensusReached UnitState = "CONSENSUS_REACHED"
	UnitStateDetailFetched    UnitState = "DETAIL_FETCHED"
)

// Valid reports whether s is one of the four lifecycle states.
func (s UnitState) Valid() bool {
	switch s {
	case UnitStatePending, UnitStateProcessing, UnitStateConsensusReached, UnitStateDetailFetched:
		return true
	}
	return false
}

// BucketLayout is the format of SyncUnit.BucketKey: a calendar day in the
// configured local timezone.
const BucketLayout = "2006-01-02"

// WindowLayout formats the UTC bounds of a unit window.
const WindowLayout = "2006-01-02T15:04:05.000Z07:00"

// UnitParameters is the UTC creation window a backfill unit covers.
type UnitParameters struct {
	CreateSince string `json:"createSince"`
	CreateTo    string `json:"createTo"`
}

// DayWindow returns the UTC bounds of the calendar day containing day in loc:
// local midnight through the last millisecond before the next midnight.
func DayWindow(day time.Time, loc *time.Location) (since, to time.Time) {
	y, m, d := day.In(loc).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1).Add(-time.Millisecond)
	return start.UTC(), end.UTC()
}

// DayParameters builds the parameters of the unit covering day in loc.
func DayParameters(day time.Time, loc *time.Location) UnitParameters {
	since, to := DayWindow(day, loc)
	return UnitParameters{
		CreateSince: since.Format(WindowLayout),
		CreateTo:    to.Format(WindowLayout),
	}
}

// SyncUnit is one schedulable, independently retryable slice of sync work.
type SyncUnit struct {
	ID              int64                               `gorm:"primaryKey;autoIncrement" json:"id"`
	Namespace       string                              `gorm:"type:varchar(64);not null;uniqueIndex:idx_sync_units_ns_bucket,priority:1;index:idx_sync_units_ns_state,priority:1" json:"namespace"`
	BucketKey       string                              `gorm:"type:varchar(10);not null;uniqueIndex:idx_sync_units_ns_bucket,priority:2" json:"bucket_key"`
	Parameters      datatypes.JSONType[UnitParameters] `json:"parameters"`
	State           UnitState                           `gorm:"type:varchar(32);not null;default:PENDING;index:idx_sync_units_ns_state,priority:2" json:"state"`
	Error           datatypes.JSON                      `json:"error,omitempty"`
	ConsensusKey    *string                             `gorm:"type:varchar(32)" json:"consensus_key,omitempty"`
	ConsensusAt     *time.Time                          `json:"consensus_at,omitempty"`
	DetailFetchedAt *time.Time                          `json:"detail_fetched_at,omitempty"`
	CreatedAt       time.Time                           `json:"created_at"`
	UpdatedAt       time.Time                           `json:"updated_at"`
}

func (SyncUnit) TableName() string {
	return "sync_units"
}

// Day parses BucketKey as a calendar day in loc.
func (u *SyncUnit) Day(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(BucketLayout, u.BucketKey, loc)
}
