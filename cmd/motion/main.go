package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/yanmxa/genmotion/internal/log"
	"github.com/yanmxa/genmotion/internal/tui"
)

var (
	version = "0.1.0"
)

func init() {
	// Load .env file if it exists (silent fail if not found)
	_ = godotenv.Load()

	// Initialize logging (enabled via MOTION_DEBUG=1)
	_ = log.Init()
}

func main() {
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// nodeFlag selects the canvas node a session belongs to.
var nodeFlag string

var rootCmd = &cobra.Command{
	Use:   "motion",
	Short: "Motion - animation generation agent for the terminal",
	Long: `Motion drives an animation agent from the terminal.
Describe an animation, review the proposed plan, and preview the render.

Non-interactive mode:
  motion run "a logo reveal"         Draft a plan and print it
  motion run --yes "a logo reveal"   Accept the plan and render it`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), nodeFlag)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := tui.Run(a.engine, a.settings); err != nil {
			return fmt.Errorf("error: %w", err)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("motion version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&nodeFlag, "node", "n", "", "Canvas node id (defaults to the most recent session)")
	rootCmd.AddCommand(versionCmd)
}
