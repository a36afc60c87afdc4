package models

import "time"

type AppSummary struct {
	Application  string        `json:"application"`
	Duration     time.Duration `json:"-"`
	TotalSeconds float64       `json:"total_seconds"`
	SampleCount  int           `json:"sample_count"`
	Percentage   float64       `json:"percentage,omitempty"`
}

type TitleSummary struct {
	Application  string        `json:"application"`
	WindowTitle  string        `json:"window_title"`
	Duration     time.Duration `json:"-"`
	TotalSeconds float64       `json:"total_seconds"`
	SampleCount  int           `json:"sample_count"`
}

// Run is an uninterrupted stretch of samples on the same application.
type Run struct {
	Application  string        `json:"application"`
	Start        time.Time     `json:"start"`
	Duration     time.Duration `json:"-"`
	TotalSeconds float64       `json:"total_seconds"`
}

type Summary struct {
	Start        time.Time      `json:"start"`
	End          time.Time      `json:"end"`
	Tick         time.Duration  `json:"-"`
	Apps         []AppSummary   `json:"apps"`
	Titles       []TitleSummary `json:"titles"`
	Total        time.Duration  `json:"-"`
	TotalSeconds float64        `json:"total_seconds"`
	MostUsed     string         `json:"most_used,omitempty"`
	LongestRun   *Run           `json:"longest_run,omitempty"`
	SampleCount  int            `json:"sample_count"`
	Placeholders int            `json:"placeholders"`
	SkippedRows  int            `json:"skipped_rows,omitempty"`
	GeneratedAt  time.Time      `json:"generated_at"`
}
