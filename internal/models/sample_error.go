package models

import (
	"time"

	"gorm.io/gorm"
)

// Sample error sources
const (
	SourceWindow = "window"
	SourceScreen = "screen"
	SourceCamera = "camera"
)

// SampleError records a per-tick failure that was swallowed by a sampling loop.
type SampleError struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	SessionID string         `gorm:"index" json:"session_id"`
	Timestamp time.Time      `gorm:"not null;index" json:"timestamp"`
	Source    string         `gorm:"not null" json:"source"`
	ErrorMsg  string         `gorm:"not null" json:"error_msg"`
	CreatedAt time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
