package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/breakdesk/breakdesk/internal/config"
	"github.com/breakdesk/breakdesk/internal/pause"
	"github.com/breakdesk/breakdesk/internal/storage"
	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	checkDate string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Inspect pause state interactively",
	Long:  `Inspect what Breakdesk currently knows about a team or a user.`,
}

var checkTeamCmd = &cobra.Command{
	Use:   "team TEAM_ID",
	Short: "Check a team's admission state",
	Long:  `Show a team's concurrent pause count against its cap and whether a new pause would be admitted.`,
	Example: `  breakdesk -c config.yaml check team 4f7d2a10-...
  breakdesk check team 4f7d2a10-...`,
	Args: cobra.ExactArgs(1),
	RunE: runCheckTeam,
}

var checkUsageCmd = &cobra.Command{
	Use:   "usage USER_ID",
	Short: "Check a user's daily usage against budgets",
	Long:  `Show a user's accumulated pause seconds for a day and whether any advisory budget is exceeded.`,
	Example: `  breakdesk check usage 9b1c33d8-...
  breakdesk check usage 9b1c33d8-... --date 2026-08-27`,
	Args: cobra.ExactArgs(1),
	RunE: runCheckUsage,
}

func init() {
	checkUsageCmd.Flags().StringVar(&checkDate, "date", "", "Date to inspect (YYYY-MM-DD) - defaults to today")

	checkCmd.AddCommand(checkTeamCmd)
	checkCmd.AddCommand(checkUsageCmd)
	rootCmd.AddCommand(checkCmd)
}

func runCheckTeam(cmd *cobra.Command, args []string) error {
	teamID := args[0]

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Create a quiet logger for check mode
	logger := zerolog.New(os.Stderr).Level(zerolog.ErrorLevel).With().Timestamp().Logger()

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	ctx := context.Background()

	team, err := store.Teams().Get(ctx, teamID)
	if err != nil {
		return fmt.Errorf("failed to load team: %w", err)
	}

	gate := pause.NewGate(store.Sessions(), store.Teams(), cfg.Pause.DefaultTeamLimit, logger)
	decision, err := gate.TryAdmit(ctx, teamID)
	if err != nil {
		return fmt.Errorf("failed to evaluate admission: %w", err)
	}

	active, err := store.Sessions().ListActiveByTeam(ctx, teamID)
	if err != nil {
		return fmt.Errorf("failed to list active sessions: %w", err)
	}

	printTeamResult(team, decision, active)

	return nil
}

func runCheckUsage(cmd *cobra.Command, args []string) error {
	userID := args[0]

	date := checkDate
	if date == "" {
		date = storage.DateKey(time.Now().UTC())
	} else if _, err := time.Parse("2006-01-02", date); err != nil {
		return fmt.Errorf("invalid date %q, expected YYYY-MM-DD", checkDate)
	}

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Create a quiet logger for check mode
	logger := zerolog.New(os.Stderr).Level(zerolog.ErrorLevel).With().Timestamp().Logger()

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	ctx := context.Background()

	user, err := store.Users().Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}

	ledger := pause.NewLedger(store.Usage(), pause.Budgets{
		LunchSeconds:  cfg.Pause.LunchBudgetSeconds,
		ScreenSeconds: cfg.Pause.ScreenBudgetSeconds,
	}, logger)

	report, err := ledger.ReportForDate(ctx, userID, date)
	if err != nil {
		return fmt.Errorf("failed to build usage report: %w", err)
	}

	printUsageResult(user, report)

	return nil
}

// printTeamResult prints the team check result with colors
func printTeamResult(team *storage.Team, decision pause.Decision, active []storage.PauseSession) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	red := color.New(color.FgRed, color.Bold)

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	cyan.Println("TEAM ADMISSION CHECK")
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	fmt.Printf("Team:       %s\n", team.Name)
	fmt.Printf("Team ID:    %s\n", team.ID)
	fmt.Printf("Active:     %d / %d\n", decision.Active, decision.Limit)
	fmt.Println()

	cyan.Print("Next start: ")
	if decision.Admitted {
		green.Println("ADMITTED")
		fmt.Println("            → A new pause would be allowed right now")
	} else {
		red.Println("REJECTED")
		fmt.Println("            → The team is at its concurrent pause cap")
	}

	if len(active) > 0 {
		fmt.Println()
		cyan.Println("Active pauses:")
		for _, session := range active {
			fmt.Printf("  %-8s user=%s since=%s\n",
				session.Category, session.UserID, session.StartedAt.Format("15:04:05"))
		}
	}

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()
}

// printUsageResult prints the usage check result with colors
func printUsageResult(user *storage.User, report *pause.DailyReport) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	red := color.New(color.FgRed, color.Bold)
	yellow := color.New(color.FgYellow)

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	cyan.Println("DAILY USAGE CHECK")
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	fmt.Printf("User:       %s\n", user.DisplayName())
	fmt.Printf("User ID:    %s\n", user.ID)
	fmt.Printf("Date:       %s\n", report.Date)
	fmt.Println()

	printBudgetLine("Lunch", report.LunchSecondsUsed, report.LunchBudgetSeconds, report.LunchExceeded, green, red)
	printBudgetLine("Screen", report.ScreenSecondsUsed, report.ScreenBudgetSeconds, report.ScreenExceeded, green, red)
	fmt.Printf("Break:      %s (untracked)\n", formatSeconds(report.BreakSecondsUsed))

	if user.BreakLimitExceeded {
		fmt.Println()
		yellow.Println("⚠ User is flagged as over budget (admin can clear the flag)")
	}

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()
}

func printBudgetLine(name string, used, budget int64, exceeded bool, green, red *color.Color) {
	fmt.Printf("%-11s %s / %s  ", name+":", formatSeconds(used), formatSeconds(budget))
	if exceeded {
		red.Println("EXCEEDED")
	} else {
		green.Println("OK")
	}
}

func formatSeconds(seconds int64) string {
	return (time.Duration(seconds) * time.Second).String()
}
