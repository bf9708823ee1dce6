package pause

import (
	"context"
	"fmt"

	"github.com/breakdesk/breakdesk/internal/metrics"
	"github.com/breakdesk/breakdesk/internal/storage"
	"github.com/rs/zerolog"
)

// Budgets holds the advisory per-category daily limits, in seconds. A zero
// budget disables tracking for that category.
type Budgets struct {
	LunchSeconds  int64
	ScreenSeconds int64
}

// DailyReport summarizes one user's pause usage for a calendar day.
type DailyReport struct {
	Date                string `json:"date"`
	LunchSecondsUsed    int64  `json:"lunch_seconds_used"`
	ScreenSecondsUsed   int64  `json:"screen_seconds_used"`
	BreakSecondsUsed    int64  `json:"break_seconds_used"`
	LunchBudgetSeconds  int64  `json:"lunch_budget_seconds"`
	ScreenBudgetSeconds int64  `json:"screen_budget_seconds"`
	LunchExceeded       bool   `json:"lunch_exceeded"`
	ScreenExceeded      bool   `json:"screen_exceeded"`
}

// Exceeded reports whether either tracked budget is surpassed.
func (r *DailyReport) Exceeded() bool {
	return r.LunchExceeded || r.ScreenExceeded
}

// Ledger accumulates per-user daily pause seconds against budgets. It never
// subtracts; the storage layer performs the increment atomically.
type Ledger struct {
	usage   storage.UsageStore
	budgets Budgets
	logger  zerolog.Logger
}

// NewLedger creates a usage ledger.
func NewLedger(usage storage.UsageStore, budgets Budgets, logger zerolog.Logger) *Ledger {
	return &Ledger{
		usage:   usage,
		budgets: budgets,
		logger:  logger.With().Str("component", "usage-ledger").Logger(),
	}
}

// AddUsage folds seconds into the user's bucket for the date and returns the
// new total. Negative amounts are clamped to zero.
func (l *Ledger) AddUsage(ctx context.Context, userID, date string, category storage.Category, seconds int64) (int64, error) {
	if !category.Valid() {
		return 0, ErrInvalidCategory
	}
	if seconds < 0 {
		seconds = 0
	}

	total, err := l.usage.IncrementDaily(ctx, date, userID, category, seconds)
	if err != nil {
		return 0, fmt.Errorf("increment daily usage: %w", err)
	}

	metrics.UsageSecondsTotal.WithLabelValues(string(category)).Add(float64(seconds))

	l.logger.Debug().
		Str("user_id", userID).
		Str("date", date).
		Str("category", string(category)).
		Int64("seconds", seconds).
		Int64("total", total).
		Msg("Usage recorded")

	return total, nil
}

// UsageForDate returns the user's accumulated seconds per category for a
// date. Missing buckets read as zero.
func (l *Ledger) UsageForDate(ctx context.Context, userID, date string) (map[storage.Category]int64, error) {
	usages, err := l.usage.ForDate(ctx, date, userID)
	if err != nil {
		return nil, fmt.Errorf("get daily usage: %w", err)
	}

	totals := map[storage.Category]int64{
		storage.CategoryLunch:  0,
		storage.CategoryScreen: 0,
		storage.CategoryBreak:  0,
	}
	for _, usage := range usages {
		totals[usage.Category] = usage.TotalSeconds
	}
	return totals, nil
}

// ReportForDate builds the budget report for a user and date.
func (l *Ledger) ReportForDate(ctx context.Context, userID, date string) (*DailyReport, error) {
	totals, err := l.UsageForDate(ctx, userID, date)
	if err != nil {
		return nil, err
	}

	report := &DailyReport{
		Date:                date,
		LunchSecondsUsed:    totals[storage.CategoryLunch],
		ScreenSecondsUsed:   totals[storage.CategoryScreen],
		BreakSecondsUsed:    totals[storage.CategoryBreak],
		LunchBudgetSeconds:  l.budgets.LunchSeconds,
		ScreenBudgetSeconds: l.budgets.ScreenSeconds,
	}
	if l.budgets.LunchSeconds > 0 {
		report.LunchExceeded = report.LunchSecondsUsed > l.budgets.LunchSeconds
	}
	if l.budgets.ScreenSeconds > 0 {
		report.ScreenExceeded = report.ScreenSecondsUsed > l.budgets.ScreenSeconds
	}

	return report, nil
}
