package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

var cleanupFlag bool

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List stored sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStores(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		if cleanupFlag {
			if err := st.sessions.Cleanup(); err != nil {
				return fmt.Errorf("failed to clean up sessions: %w", err)
			}
		}

		list, err := st.sessions.List()
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No sessions yet.")
			return nil
		}

		t := newTable("NODE", "PHASE", "VERSIONS", "UPDATED", "TITLE")
		for _, m := range list {
			t.Row(m.NodeID, string(m.Phase), fmt.Sprint(m.VersionCount), m.UpdatedAt.Format(time.DateTime), m.Title)
		}
		fmt.Fprintln(cmd.OutOrStdout(), t)
		return nil
	},
}

var sessionsRmCmd = &cobra.Command{
	Use:   "rm <node>",
	Short: "Delete a stored session and its cached media",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStores(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.sessions.Delete(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("failed to delete session %s: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %s\n", args[0])
		return nil
	},
}

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "List accepted plans",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStores(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		records, err := st.plans.List()
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No plans yet.")
			return nil
		}

		t := newTable("ID", "NODE", "SCENES", "CREATED", "TASK")
		for _, r := range records {
			t.Row(r.ID, r.NodeID, fmt.Sprint(len(r.Plan.Scenes)), r.CreatedAt.Format(time.DateTime), r.Task)
		}
		fmt.Fprintln(cmd.OutOrStdout(), t)
		return nil
	},
}

var plansShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a saved plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStores(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		rec, err := st.plans.Load(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s (%s)\n", rec.Task, rec.CreatedAt.Format(time.DateTime))
		fmt.Fprintln(out, rec.Plan.Outline())
		return nil
	},
}

func newTable(headers ...string) *table.Table {
	headerStyle := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	return table.New().
		Border(lipgloss.HiddenBorder()).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

func init() {
	sessionsCmd.Flags().BoolVar(&cleanupFlag, "cleanup", false, "Remove sessions older than the retention period first")
	sessionsCmd.AddCommand(sessionsRmCmd)
	plansCmd.AddCommand(plansShowCmd)
	rootCmd.AddCommand(sessionsCmd, plansCmd)
}
