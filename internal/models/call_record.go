package models

import "time"

// CallRecord is the audit row for one exploration task attempt.
type CallRecord struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	CallID      string `gorm:"size:64;index"`
	NodeID      string `gorm:"size:32;index"`
	Response    string `gorm:"type:text"`
	Attempt     int
	State       string `gorm:"size:24;index"` // final task state: done or failed
	FailureKind string `gorm:"size:32"`
	Error       string `gorm:"type:text"`
	FinalNode   string `gorm:"size:32"`
	NewNodes    int
	NewEdges    int
	DurationMS  int64
	CreatedAt   time.Time
}
