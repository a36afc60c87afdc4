package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dayflow/dayflow/internal/activitylog"
	"github.com/dayflow/dayflow/internal/analyzer"

	"github.com/spf13/cobra"
)

var (
	logPathFlag   string
	jsonFlag      bool
	tickFlag      int
	olderThanFlag time.Duration
	yesFlag       bool
)

var analyzeLogCmd = &cobra.Command{
	Use:   "analyze-log",
	Short: "Summarize an activity log",
	Long: `Summarizes time per application and window title from an activity CSV.
Defaults to the newest log in output/logs. Each sample is credited until the
next one, capped at the sample interval (--tick, or inferred from the log).`,
	RunE: runAnalyzeLog,
}

var clearSessionsCmd = &cobra.Command{
	Use:   "clear-sessions",
	Short: "Remove old sessions from the session index",
	Long:  `Removes index entries for sessions started before --older-than. Logs, videos and reports on disk are kept.`,
	RunE:  runClearSessions,
}

func init() {
	analyzeLogCmd.Flags().StringVar(&logPathFlag, "path", "", "Activity log to analyze (default: newest in output/logs)")
	analyzeLogCmd.Flags().BoolVar(&jsonFlag, "json", false, "Print the summary as JSON")
	analyzeLogCmd.Flags().IntVar(&tickFlag, "tick", 0, "Sample interval in seconds (0 = infer from the log)")

	clearSessionsCmd.Flags().DurationVar(&olderThanFlag, "older-than", 30*24*time.Hour, "Remove sessions started longer ago than this")
	clearSessionsCmd.Flags().BoolVarP(&yesFlag, "yes", "y", false, "Do not ask for confirmation")

	rootCmd.AddCommand(analyzeLogCmd, clearSessionsCmd)
}

func runAnalyzeLog(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	path := logPathFlag
	if path == "" {
		if path, err = activitylog.Latest(cfg.LogsDir()); err != nil {
			return err
		}
	}

	summary, err := analyzer.AnalyzeFile(path, analyzer.Options{Tick: time.Duration(tickFlag) * time.Second})
	if err != nil {
		return err
	}

	if jsonFlag {
		out, err := analyzer.FormatJSON(summary)
		if err != nil {
			return fmt.Errorf("failed to format JSON: %w", err)
		}
		fmt.Println(out)
		return nil
	}

	fmt.Printf("Log: %s\n", path)
	if summary.SkippedRows > 0 {
		fmt.Printf("Skipped %d malformed rows\n", summary.SkippedRows)
	}
	fmt.Println(analyzer.FormatText(summary))
	return nil
}

func runClearSessions(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	before := time.Now().Add(-olderThanFlag)
	if !yesFlag {
		fmt.Printf("Remove sessions started before %s from the index? (yes/no): ", before.Format("2006-01-02 15:04"))
		response, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "yes" && response != "y" {
			fmt.Println("Operation cancelled")
			return nil
		}
	}

	repo, closeDB, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	n, err := repo.DeleteSessionsBefore(before)
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d sessions\n", n)
	return nil
}
