package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Session lifecycle states stored in Session.Status
const (
	SessionRecording = "recording"
	SessionStopped   = "stopped"
	SessionExported  = "exported"
	SessionFailed    = "failed"
)

type Session struct {
	ID             string         `gorm:"primaryKey;type:text" json:"id"`
	Status         string         `gorm:"not null;index" json:"status"`
	StartedAt      time.Time      `gorm:"not null;index" json:"started_at"`
	EndedAt        *time.Time     `json:"ended_at,omitempty"`
	Interval       int64          `gorm:"not null;default:0" json:"interval"` // Sample interval in seconds
	LogPath        string         `gorm:"not null" json:"log_path"`
	VideoPath      string         `json:"video_path"`
	ReportPath     string         `json:"report_path"`
	Samples        int64          `gorm:"not null;default:0" json:"samples"`
	SampleFailures int64          `gorm:"not null;default:0" json:"sample_failures"`
	FramesWritten  int64          `gorm:"not null;default:0" json:"frames_written"`
	FramesSkipped  int64          `gorm:"not null;default:0" json:"frames_skipped"`
	RemoteName     string         `json:"remote_name"`
	RemoteState    string         `json:"remote_state"`
	LastError      string         `json:"last_error"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate assigns a random ID to sessions created without one.
func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// Duration returns the recorded span, or the time since start for a running session.
func (s *Session) Duration(now time.Time) time.Duration {
	if s.EndedAt != nil {
		return s.EndedAt.Sub(s.StartedAt)
	}
	return now.Sub(s.StartedAt)
}
