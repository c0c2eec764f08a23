package repository

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/engine-gc/pkg/model"
)

// SimRun represents the sim_runs table.
type SimRun struct {
	ID              int64      `gorm:"column:id;primaryKey;autoIncrement"`
	RunID           string     `gorm:"column:run_id;type:varchar(128);uniqueIndex"`
	Name            string     `gorm:"column:name;type:varchar(128);index"`
	Seed            int64      `gorm:"column:seed"`
	Status          string     `gorm:"column:status;type:varchar(16);index"`
	StartedAt       time.Time  `gorm:"column:started_at"`
	FinishedAt      *time.Time `gorm:"column:finished_at"`
	Ticks           int        `gorm:"column:ticks"`
	PeakObjects     int        `gorm:"column:peak_objects"`
	PeakBytes       uint64     `gorm:"column:peak_bytes"`
	FinalObjects    int        `gorm:"column:final_objects"`
	FinalBytes      uint64     `gorm:"column:final_bytes"`
	Cycles          uint64     `gorm:"column:cycles"`
	FullCollections uint64     `gorm:"column:full_collections"`
	Totals          JSONField  `gorm:"column:totals;type:json"`
	VerifyRuns      int        `gorm:"column:verify_runs"`
	VerifyFailures  int        `gorm:"column:verify_failures"`
	Error           string     `gorm:"column:error;type:text"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the table name for SimRun.
func (SimRun) TableName() string {
	return "sim_runs"
}

// SimCycle represents the sim_cycles table, one row per finished cycle.
type SimCycle struct {
	ID            int64  `gorm:"column:id;primaryKey;autoIncrement"`
	RunID         string `gorm:"column:run_id;type:varchar(128);index"`
	Seq           uint64 `gorm:"column:seq"`
	Tick          int    `gorm:"column:tick"`
	StartBytes    uint64 `gorm:"column:start_bytes"`
	EndBytes      uint64 `gorm:"column:end_bytes"`
	Threshold     uint64 `gorm:"column:threshold"`
	NextThreshold uint64 `gorm:"column:next_threshold"`
	Marked        uint64 `gorm:"column:marked"`
	Condemned     uint64 `gorm:"column:condemned"`
	Finalized     uint64 `gorm:"column:finalized"`
	Freed         uint64 `gorm:"column:freed"`
	DurationUS    int64  `gorm:"column:duration_us"`
}

// TableName returns the table name for SimCycle.
func (SimCycle) TableName() string {
	return "sim_cycles"
}

// NewSimRun converts a report into its table row.
func NewSimRun(r *model.RunReport) (*SimRun, error) {
	totals, err := json.Marshal(r.Totals)
	if err != nil {
		return nil, err
	}
	row := &SimRun{
		RunID:           r.RunID,
		Name:            r.Name,
		Seed:            r.Seed,
		Status:          string(r.Status),
		StartedAt:       r.StartedAt,
		Ticks:           r.Ticks,
		PeakObjects:     r.PeakObjects,
		PeakBytes:       r.PeakBytes,
		FinalObjects:    r.FinalObjects,
		FinalBytes:      r.FinalBytes,
		Cycles:          r.Totals.Cycles,
		FullCollections: r.Totals.FullCollections,
		Totals:          JSONField(totals),
		VerifyRuns:      r.VerifyRuns,
		VerifyFailures:  r.VerifyFailures,
		Error:           r.Error,
	}
	if !r.FinishedAt.IsZero() {
		at := r.FinishedAt
		row.FinishedAt = &at
	}
	return row, nil
}

// ToModel converts SimRun to model.RunReport. Cycles are left empty.
func (s *SimRun) ToModel() *model.RunReport {
	r := &model.RunReport{
		RunID:          s.RunID,
		Name:           s.Name,
		Seed:           s.Seed,
		Status:         model.RunStatus(s.Status),
		StartedAt:      s.StartedAt,
		Ticks:          s.Ticks,
		PeakObjects:    s.PeakObjects,
		PeakBytes:      s.PeakBytes,
		FinalObjects:   s.FinalObjects,
		FinalBytes:     s.FinalBytes,
		VerifyRuns:     s.VerifyRuns,
		VerifyFailures: s.VerifyFailures,
		Error:          s.Error,
		Cycles:         make([]model.CycleRecord, 0),
	}
	if s.FinishedAt != nil {
		r.FinishedAt = *s.FinishedAt
	}
	if s.Totals != nil {
		_ = json.Unmarshal(s.Totals, &r.Totals)
	}
	r.Totals.Cycles = s.Cycles
	r.Totals.FullCollections = s.FullCollections
	return r
}

// NewSimCycle converts a cycle record of run runID.
func NewSimCycle(runID string, c model.CycleRecord) SimCycle {
	return SimCycle{
		RunID:         runID,
		Seq:           c.Cycle,
		Tick:          c.Tick,
		StartBytes:    c.StartBytes,
		EndBytes:      c.EndBytes,
		Threshold:     c.Threshold,
		NextThreshold: c.NextThreshold,
		Marked:        c.Marked,
		Condemned:     c.Condemned,
		Finalized:     c.Finalized,
		Freed:         c.Freed,
		DurationUS:    c.DurationUS,
	}
}

// ToModel converts SimCycle to model.CycleRecord.
func (c *SimCycle) ToModel() model.CycleRecord {
	return model.CycleRecord{
		Tick:          c.Tick,
		Cycle:         c.Seq,
		StartBytes:    c.StartBytes,
		EndBytes:      c.EndBytes,
		Threshold:     c.Threshold,
		NextThreshold: c.NextThreshold,
		Marked:        c.Marked,
		Condemned:     c.Condemned,
		Finalized:     c.Finalized,
		Freed:         c.Freed,
		DurationUS:    c.DurationUS,
	}
}

// JSONField is a custom type for handling JSON fields in GORM.
type JSONField []byte

// Value implements driver.Valuer interface.
func (j JSONField) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return []byte(j), nil
}

// Scan implements sql.Scanner interface.
func (j *JSONField) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		*j = append((*j)[0:0], v...)
		return nil
	case string:
		*j = []byte(v)
		return nil
	default:
		return errors.New("unsupported type for JSONField")
	}
}

// MarshalJSON implements json.Marshaler interface.
func (j JSONField) MarshalJSON() ([]byte, error) {
	if j == nil {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON implements json.Unmarshaler interface.
func (j *JSONField) UnmarshalJSON(data []byte) error {
	if data == nil || string(data) == "null" {
		*j = nil
		return nil
	}
	*j = append((*j)[0:0], data...)
	return nil
}
