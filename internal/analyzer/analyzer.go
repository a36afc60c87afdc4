// Package analyzer turns an activity log into per-application and per-window
// time totals.
package analyzer

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dayflow/dayflow/internal/activitylog"
	"github.com/dayflow/dayflow/internal/models"
	"github.com/dayflow/dayflow/pkg/utils"
)

// DefaultTick is credited per record when neither the caller nor the log
// itself gives a sampling interval.
const DefaultTick = 5 * time.Second

const titleWidth = 70

// Options controls how records are credited.
type Options struct {
	// Tick is the sampling interval. Zero means infer it from the log.
	Tick time.Duration
	// Now stamps GeneratedAt; defaults to time.Now.
	Now func() time.Time
}

// Analyze credits every record with the time until the next one, capped at the
// tick, and the last record with one tick. Placeholder records count toward
// nothing and break runs.
func Analyze(records []models.ActivityRecord, opts Options) *models.Summary {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	recs := make([]models.ActivityRecord, len(records))
	copy(recs, records)
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Timestamp.Before(recs[j].Timestamp) })

	tick := opts.Tick
	if tick <= 0 {
		tick = InferTick(recs)
	}

	summary := &models.Summary{
		Tick:        tick,
		SampleCount: len(recs),
		GeneratedAt: now(),
	}
	if len(recs) == 0 {
		return summary
	}
	summary.Start = recs[0].Timestamp
	summary.End = recs[len(recs)-1].Timestamp.Add(tick)

	apps := map[string]*models.AppSummary{}
	titles := map[[2]string]*models.TitleSummary{}

	var current, longest *models.Run
	closeRun := func() {
		if current != nil && (longest == nil || current.Duration > longest.Duration) {
			longest = current
		}
		current = nil
	}

	for i, rec := range recs {
		credit := tick
		if i+1 < len(recs) {
			gap := recs[i+1].Timestamp.Sub(rec.Timestamp)
			if gap < 0 {
				gap = 0
			}
			if gap < credit {
				credit = gap
			}
		}

		if rec.IsPlaceholder() {
			summary.Placeholders++
			closeRun()
			continue
		}

		app := apps[rec.Application]
		if app == nil {
			app = &models.AppSummary{Application: rec.Application}
			apps[rec.Application] = app
		}
		app.Duration += credit
		app.SampleCount++

		key := [2]string{rec.Application, rec.WindowTitle}
		title := titles[key]
		if title == nil {
			title = &models.TitleSummary{Application: rec.Application, WindowTitle: rec.WindowTitle}
			titles[key] = title
		}
		title.Duration += credit
		title.SampleCount++

		summary.Total += credit

		if current != nil && current.Application != rec.Application {
			closeRun()
		}
		if current == nil {
			current = &models.Run{Application: rec.Application, Start: rec.Timestamp}
		}
		current.Duration += credit

		// A gap much longer than the tick means sampling stopped in between.
		if i+1 < len(recs) && recs[i+1].Timestamp.Sub(rec.Timestamp) > 2*tick {
			closeRun()
		}
	}
	closeRun()

	for _, app := range apps {
		app.TotalSeconds = app.Duration.Seconds()
		if summary.Total > 0 {
			app.Percentage = float64(app.Duration) / float64(summary.Total) * 100.0
		}
		summary.Apps = append(summary.Apps, *app)
	}
	sort.Slice(summary.Apps, func(i, j int) bool {
		a, b := summary.Apps[i], summary.Apps[j]
		if a.Duration != b.Duration {
			return a.Duration > b.Duration
		}
		return a.Application < b.Application
	})

	for _, title := range titles {
		title.TotalSeconds = title.Duration.Seconds()
		summary.Titles = append(summary.Titles, *title)
	}
	sort.Slice(summary.Titles, func(i, j int) bool {
		a, b := summary.Titles[i], summary.Titles[j]
		if a.Duration != b.Duration {
			return a.Duration > b.Duration
		}
		if a.Application != b.Application {
			return a.Application < b.Application
		}
		return a.WindowTitle < b.WindowTitle
	})

	summary.TotalSeconds = summary.Total.Seconds()
	if len(summary.Apps) > 0 {
		summary.MostUsed = summary.Apps[0].Application
	}
	if longest != nil {
		longest.TotalSeconds = longest.Duration.Seconds()
		summary.LongestRun = longest
	}

	return summary
}

// InferTick returns the median positive gap between consecutive records, or
// DefaultTick when the log has fewer than two distinct timestamps.
func InferTick(records []models.ActivityRecord) time.Duration {
	var gaps []time.Duration
	for i := 1; i < len(records); i++ {
		if gap := records[i].Timestamp.Sub(records[i-1].Timestamp); gap > 0 {
			gaps = append(gaps, gap)
		}
	}
	if len(gaps) == 0 {
		return DefaultTick
	}
	sort.Slice(gaps, func(i, j int) bool { return gaps[i] < gaps[j] })
	return gaps[len(gaps)/2]
}

// AnalyzeFile reads an activity log, skipping malformed rows, and analyzes it.
func AnalyzeFile(path string, opts Options) (*models.Summary, error) {
	result, err := activitylog.ReadAll(path)
	if err != nil {
		return nil, err
	}
	summary := Analyze(result.Records, opts)
	summary.SkippedRows = result.Skipped
	return summary, nil
}

// FormatText renders the summary as a human-readable report.
func FormatText(s *models.Summary) string {
	var b strings.Builder

	b.WriteString("Activity Summary\n")
	if s.SampleCount == 0 {
		b.WriteString("No activity recorded.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "Period: %s to %s\n", s.Start.Format("2006-01-02 15:04:05"), s.End.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Samples: %d (%d failed, tick %v)\n", s.SampleCount, s.Placeholders, s.Tick)
	if s.SkippedRows > 0 {
		fmt.Fprintf(&b, "Skipped rows: %d\n", s.SkippedRows)
	}
	fmt.Fprintf(&b, "Total Time: %s\n", utils.FormatClock(s.Total))
	if s.MostUsed != "" {
		fmt.Fprintf(&b, "Most Used: %s\n", s.MostUsed)
	}
	if s.LongestRun != nil {
		fmt.Fprintf(&b, "Longest Run: %s for %s from %s\n",
			s.LongestRun.Application,
			utils.FormatClock(s.LongestRun.Duration),
			s.LongestRun.Start.Format("15:04:05"))
	}

	b.WriteString("\n--- Detailed Activity Summary ---\n")
	for _, t := range s.Titles {
		fmt.Fprintf(&b, "[%s] %-20s - %s\n", utils.FormatClock(t.Duration), t.Application, utils.Truncate(t.WindowTitle, titleWidth))
	}

	b.WriteString("\n--- Application Time Summary ---\n")
	for _, a := range s.Apps {
		fmt.Fprintf(&b, "[%s] %-30s %5.1f%%\n", utils.FormatClock(a.Duration), a.Application, a.Percentage)
	}

	return b.String()
}

// FormatJSON formats the summary as JSON
func FormatJSON(s *models.Summary) (string, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(data), nil
}
