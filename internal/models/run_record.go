package models

import "time"

// RunRecord summarizes one exploration run.
type RunRecord struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	Scenario       string `gorm:"type:text"`
	PhoneNumber    string `gorm:"size:32"`
	StopReason     string `gorm:"size:24"`
	CallsAttempted int
	CallsSucceeded int
	CallsFailed    int
	Nodes          int
	Edges          int
	Terminals      int
	GistURL        string `gorm:"size:256"`
	StartedAt      time.Time
	FinishedAt     time.Time
}
