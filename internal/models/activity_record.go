package models

import "time"

// ActivityRecord is one sample of the foreground window. A record with an empty
// Application is a placeholder written for a tick whose window query failed.
type ActivityRecord struct {
	Timestamp   time.Time `json:"timestamp"`
	Application string    `json:"application"`
	WindowTitle string    `json:"window_title"`
}

// Placeholder returns the record written when a sample could not be taken.
func Placeholder(ts time.Time) ActivityRecord {
	return ActivityRecord{Timestamp: ts}
}

// IsPlaceholder reports whether the record stands for a failed sample.
func (r ActivityRecord) IsPlaceholder() bool {
	return r.Application == "" && r.WindowTitle == ""
}
