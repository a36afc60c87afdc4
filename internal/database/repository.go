package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/dayflow/dayflow/internal/models"

	"github.com/pkg/errors"

	"gorm.io/gorm"
)

// ErrSessionNotFound is returned when no session matches an ID or prefix.
var ErrSessionNotFound = fmt.Errorf("session not found")

// Repository handles all database operations for sessions and sample errors
type Repository struct {
	db *DB
}

// NewRepository creates a new repository instance
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// CreateSession inserts a new session row
func (r *Repository) CreateSession(session *models.Session) error {
	if session.Status == "" {
		session.Status = models.SessionRecording
	}
	result := r.db.Create(session)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to insert session")
	}
	return nil
}

// UpdateSession saves every field of an existing session
func (r *Repository) UpdateSession(session *models.Session) error {
	result := r.db.Save(session)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to update session")
	}
	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// UpdateRemoteState records the latest remote processing state of a session
func (r *Repository) UpdateRemoteState(id, remoteName, state string) error {
	result := r.db.Model(&models.Session{}).Where("id = ?", id).Updates(map[string]any{
		"remote_name":  remoteName,
		"remote_state": state,
	})
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to update remote state")
	}
	return nil
}

// GetSession retrieves a session by full ID or unique ID prefix
func (r *Repository) GetSession(id string) (*models.Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrSessionNotFound
	}

	var sessions []*models.Session
	result := r.db.Where("id LIKE ?", id+"%").Limit(2).Find(&sessions)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to get session")
	}

	switch len(sessions) {
	case 0:
		return nil, ErrSessionNotFound
	case 1:
		return sessions[0], nil
	default:
		for _, s := range sessions {
			if s.ID == id {
				return s, nil
			}
		}
		return nil, fmt.Errorf("session prefix %q is ambiguous", id)
	}
}

// GetLatestSession retrieves the most recently started session
func (r *Repository) GetLatestSession() (*models.Session, error) {
	var session models.Session
	result := r.db.Order("started_at DESC").First(&session)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, errors.Wrap(result.Error, "failed to get latest session")
	}
	return &session, nil
}

// ListSessions returns sessions newest first; limit <= 0 returns all of them
func (r *Repository) ListSessions(limit int) ([]*models.Session, error) {
	var sessions []*models.Session
	query := r.db.Order("started_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if result := query.Find(&sessions); result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to list sessions")
	}
	return sessions, nil
}

// DeleteSessionsBefore soft-deletes sessions started before a given time
func (r *Repository) DeleteSessionsBefore(before time.Time) (int64, error) {
	result := r.db.Where("started_at < ?", before).Delete(&models.Session{})
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "failed to delete old sessions")
	}
	return result.RowsAffected, nil
}

// CreateSampleError inserts a swallowed per-tick failure
func (r *Repository) CreateSampleError(sampleErr *models.SampleError) error {
	result := r.db.Create(sampleErr)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to insert sample error")
	}
	return nil
}

// GetSampleErrors returns the sample errors of a session in time order
func (r *Repository) GetSampleErrors(sessionID string) ([]*models.SampleError, error) {
	var errs []*models.SampleError
	result := r.db.Where("session_id = ?", sessionID).Order("timestamp ASC").Find(&errs)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to query sample errors")
	}
	return errs, nil
}

// CountSampleErrors returns the number of sample errors per source for a session
func (r *Repository) CountSampleErrors(sessionID string) (map[string]int64, error) {
	var rows []struct {
		Source string
		Count  int64
	}
	result := r.db.Model(&models.SampleError{}).
		Select("source, COUNT(*) as count").
		Where("session_id = ?", sessionID).
		Group("source").
		Scan(&rows)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to count sample errors")
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Source] = row.Count
	}
	return counts, nil
}
