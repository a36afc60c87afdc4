package tracker

import (
	"fmt"
	"time"

	"github.com/dayflow/dayflow/internal/models"

	"github.com/rs/zerolog/log"
)

// TransientSampleError is a single failed sample. Sampling loops swallow it after
// logging and storing it; it never stops a session.
type TransientSampleError struct {
	Source    string
	Timestamp time.Time
	Err       error
}

func NewTransientError(source string, ts time.Time, err error) *TransientSampleError {
	return &TransientSampleError{Source: source, Timestamp: ts, Err: err}
}

func (e *TransientSampleError) Error() string {
	return fmt.Sprintf("%s sample at %s failed: %v", e.Source, e.Timestamp.Format(time.TimeOnly), e.Err)
}

func (e *TransientSampleError) Unwrap() error {
	return e.Err
}

// ErrorStore persists swallowed sample errors.
type ErrorStore interface {
	CreateSampleError(sampleErr *models.SampleError) error
}

// Report logs a sample error and stores it when store is not nil.
func Report(store ErrorStore, sessionID string, sampleErr *TransientSampleError) {
	log.Warn().Err(sampleErr.Err).Str("source", sampleErr.Source).Msg("Sample failed")

	if store == nil {
		return
	}

	row := &models.SampleError{
		SessionID: sessionID,
		Timestamp: sampleErr.Timestamp,
		Source:    sampleErr.Source,
		ErrorMsg:  sampleErr.Err.Error(),
	}
	if dbErr := store.CreateSampleError(row); dbErr != nil {
		log.Error().Err(dbErr).Str("original", sampleErr.Error()).Msg("Failed to store sample error")
	}
}
