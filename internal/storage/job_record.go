package storage

import (
	"errors"
	"time"
)

// JobRecord is the persisted summary of one finished job. Only terminal
// results are recorded; in-flight state never touches the database.
type JobRecord struct {
	Id           int64     `gorm:"primaryKey;autoIncrement" json:"-"`
	JobId        string    `gorm:"index" json:"job_id"`
	Status       int       `json:"status"`
	Message      string    `json:"message"`
	ArtifactName string    `json:"artifact_name,omitempty"`
	ArtifactSize int64     `json:"artifact_size,omitempty"`
	NumFrames    int       `json:"num_frames,omitempty"`
	Duration     float64   `json:"duration,omitempty"`
	CreateTime   time.Time `gorm:"index" json:"create_time"`
}

// SaveRecord persists one finished job result.
func SaveRecord(record *JobRecord) error {
	if DB == nil {
		return errors.New("database not initialized")
	}
	if record.CreateTime.IsZero() {
		record.CreateTime = time.Now()
	}
	return DB.Create(record).Error
}

// RecentRecords returns the most recent finished jobs, newest first.
func RecentRecords(limit int) ([]JobRecord, error) {
	if DB == nil {
		return nil, errors.New("database not initialized")
	}
	var records []JobRecord
	if err := DB.Order("create_time desc").Limit(limit).Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
