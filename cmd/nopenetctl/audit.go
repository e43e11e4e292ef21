package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/nopenet/nopenet/internal/audit"
)

type auditFlags struct {
	endpoint string
	limit    int
}

func newAuditCmd(flags *globalFlags) *cobra.Command {
	af := &auditFlags{}

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent audited gateway requests",
		Long: `Reads the request audit log the gateway writes when DATABASE_URL is
set. Only metadata is stored: endpoint, status, outcome, duration and sizes.`,
		Example: `  nopenetctl audit
  nopenetctl audit --endpoint chat --limit 50`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.load()
			if err != nil {
				return err
			}
			if cfg.Audit.DatabaseURL == "" {
				return errors.New("audit log is not configured, set DATABASE_URL")
			}
			if af.limit <= 0 {
				return fmt.Errorf("--limit must be positive, got %d", af.limit)
			}

			store, err := audit.Connect(cmd.Context(), cfg.Audit.DatabaseURL, cfg.Audit.RetentionDays, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.Recent(cmd.Context(), af.endpoint, af.limit)
			if err != nil {
				return fmt.Errorf("read audit log: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderAudit(entries))
			return nil
		},
	}

	cmd.Flags().StringVar(&af.endpoint, "endpoint", "", "Only show one endpoint (chat, ws_chat, predict)")
	cmd.Flags().IntVar(&af.limit, "limit", 20, "Number of entries to show")
	return cmd
}

func renderAudit(entries []audit.Entry) string {
	if len(entries) == 0 {
		return dimStyle.Render("no audited requests")
	}

	lines := []string{fmt.Sprintf("%-20s %-8s %-6s %-9s %10s %8s %s", "TIME", "ENDPOINT", "STATUS", "OUTCOME", "DURATION", "BYTES", "REQUEST")}
	for _, e := range entries {
		outcome := fmt.Sprintf("%-9s", e.Outcome)
		switch e.Outcome {
		case audit.OutcomeOK:
			outcome = okStyle.Render(outcome)
		case audit.OutcomeFailed:
			outcome = alertStyle.Render(outcome)
		}
		lines = append(lines, fmt.Sprintf("%-20s %-8s %-6d %s %8.1fms %8d %s",
			e.Timestamp.Local().Format("2006-01-02 15:04:05"),
			e.Endpoint, e.Status, outcome, e.DurationMs, e.Bytes, e.RequestID))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(fmt.Sprintf("%d audited requests", len(entries))),
		boxStyle.Render(strings.Join(lines, "\n")),
	)
}
