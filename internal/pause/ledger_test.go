package pause

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/breakdesk/breakdesk/internal/storage"
	"github.com/breakdesk/breakdesk/internal/storage/bolt"
	"github.com/rs/zerolog"
)

func newLedgerFixture(t *testing.T, budgets Budgets) *Ledger {
	t.Helper()

	store, err := bolt.Open(filepath.Join(t.TempDir(), "breakdesk.bolt"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return NewLedger(store.Usage(), budgets, zerolog.Nop())
}

func TestAddUsageAccumulates(t *testing.T) {
	ledger := newLedgerFixture(t, Budgets{LunchSeconds: 3600})
	ctx := context.Background()

	total, err := ledger.AddUsage(ctx, "alice", "2026-08-27", storage.CategoryLunch, 1200)
	if err != nil {
		t.Fatalf("add usage: %v", err)
	}
	if total != 1200 {
		t.Fatalf("expected 1200, got %d", total)
	}

	total, err = ledger.AddUsage(ctx, "alice", "2026-08-27", storage.CategoryLunch, 600)
	if err != nil {
		t.Fatalf("second add: %v", err)
	}
	if total != 1800 {
		t.Fatalf("expected 1800, got %d", total)
	}
}

func TestAddUsageClampsNegative(t *testing.T) {
	ledger := newLedgerFixture(t, Budgets{})
	ctx := context.Background()

	if _, err := ledger.AddUsage(ctx, "alice", "2026-08-27", storage.CategoryBreak, 500); err != nil {
		t.Fatalf("add usage: %v", err)
	}
	total, err := ledger.AddUsage(ctx, "alice", "2026-08-27", storage.CategoryBreak, -100)
	if err != nil {
		t.Fatalf("negative add: %v", err)
	}
	if total != 500 {
		t.Fatalf("expected total unchanged at 500, got %d", total)
	}
}

func TestAddUsageInvalidCategory(t *testing.T) {
	ledger := newLedgerFixture(t, Budgets{})

	if _, err := ledger.AddUsage(context.Background(), "alice", "2026-08-27", storage.Category("nap"), 60); !errors.Is(err, ErrInvalidCategory) {
		t.Fatalf("expected ErrInvalidCategory, got %v", err)
	}
}

func TestUsageForDateMissingBucketsReadZero(t *testing.T) {
	ledger := newLedgerFixture(t, Budgets{})

	totals, err := ledger.UsageForDate(context.Background(), "alice", "2026-08-27")
	if err != nil {
		t.Fatalf("usage for date: %v", err)
	}
	for _, category := range []storage.Category{storage.CategoryLunch, storage.CategoryScreen, storage.CategoryBreak} {
		if totals[category] != 0 {
			t.Fatalf("expected 0 for %s, got %d", category, totals[category])
		}
	}
}

func TestReportForDateExceeded(t *testing.T) {
	ledger := newLedgerFixture(t, Budgets{LunchSeconds: 1000, ScreenSeconds: 500})
	ctx := context.Background()

	if _, err := ledger.AddUsage(ctx, "alice", "2026-08-27", storage.CategoryLunch, 1000); err != nil {
		t.Fatalf("add lunch: %v", err)
	}
	if _, err := ledger.AddUsage(ctx, "alice", "2026-08-27", storage.CategoryScreen, 501); err != nil {
		t.Fatalf("add screen: %v", err)
	}

	report, err := ledger.ReportForDate(ctx, "alice", "2026-08-27")
	if err != nil {
		t.Fatalf("report: %v", err)
	}

	// Usage equal to the budget is not an overrun.
	if report.LunchExceeded {
		t.Fatal("lunch at exactly the budget must not be exceeded")
	}
	if !report.ScreenExceeded {
		t.Fatal("screen over the budget must be exceeded")
	}
	if !report.Exceeded() {
		t.Fatal("expected report exceeded")
	}
}

func TestReportForDateZeroBudgetDisablesTracking(t *testing.T) {
	ledger := newLedgerFixture(t, Budgets{LunchSeconds: 0, ScreenSeconds: 0})
	ctx := context.Background()

	if _, err := ledger.AddUsage(ctx, "alice", "2026-08-27", storage.CategoryLunch, 100000); err != nil {
		t.Fatalf("add lunch: %v", err)
	}

	report, err := ledger.ReportForDate(ctx, "alice", "2026-08-27")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if report.Exceeded() {
		t.Fatal("zero budgets must never flag usage")
	}
}
