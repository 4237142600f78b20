package dashboard

import (
	"github.com/zulandar/switchboard/internal/models"
	"gorm.io/gorm"
)

// recentCalls returns the newest call-log rows. A nil DB (call log
// disabled) yields an empty list rather than an error.
func recentCalls(db *gorm.DB, limit int) ([]models.CallRecord, error) {
	if db == nil {
		return []models.CallRecord{}, nil
	}
	var recs []models.CallRecord
	if err := db.Order("id DESC").Limit(limit).Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}
