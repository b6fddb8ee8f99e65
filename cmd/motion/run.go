package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/yanmxa/genmotion/internal/session"
)

var (
	yesFlag      bool
	finalizeFlag bool
	timeoutFlag  time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run [prompt]",
	Short: "Run a session without the terminal UI",
	Long: `Run sends a prompt to the agent and prints the plan it proposes.

With --yes the plan is accepted and rendered, and the preview URL is
printed. Questions from the agent are answered with their first option.
With --finalize the preview is also accepted and the final video URL is
printed.

The prompt can be given as arguments or piped on stdin:
  motion run "a bouncing logo"
  echo "a bouncing logo" | motion run --yes`,
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt := getInputMessage(args)
		if prompt == "" {
			return errors.New("no prompt given")
		}

		nodeID := nodeFlag
		if nodeID == "" {
			nodeID = newNodeID()
		}
		a, err := openApp(cmd.Context(), nodeID)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), timeoutFlag)
		defer cancel()

		return runNonInteractive(ctx, a.engine, prompt, cmd.OutOrStdout())
	},
}

func init() {
	runCmd.Flags().BoolVarP(&yesFlag, "yes", "y", false, "Accept the plan and render without asking")
	runCmd.Flags().BoolVar(&finalizeFlag, "finalize", false, "Accept the preview and print the final video URL")
	runCmd.Flags().DurationVar(&timeoutFlag, "timeout", 15*time.Minute, "Give up after this long")
	rootCmd.AddCommand(runCmd)
}

// getInputMessage gets input from args or stdin
func getInputMessage(args []string) string {
	if len(args) > 0 {
		return strings.Join(args, " ")
	}

	// Check if stdin has data (non-interactive pipe)
	stat, _ := os.Stdin.Stat()
	if (stat.Mode() & os.ModeCharDevice) == 0 {
		reader := bufio.NewReader(os.Stdin)
		data, err := io.ReadAll(reader)
		if err == nil && len(data) > 0 {
			return strings.TrimSpace(string(data))
		}
	}

	return ""
}

// runNonInteractive drives the engine from prompt to the furthest step the
// flags allow, printing each result to out.
func runNonInteractive(ctx context.Context, e *session.Engine, prompt string, out io.Writer) error {
	st, err := sendAndSettle(ctx, e, session.Submit{Text: prompt})
	if err != nil {
		return err
	}

	for {
		switch p := st.Phase.(type) {
		case session.Question:
			if !yesFlag || len(p.Options) == 0 {
				return fmt.Errorf("the agent needs an answer: %s", p.Question)
			}
			fmt.Fprintf(out, "? %s\n  → %s\n", p.Question, p.Options[0])
			st, err = sendAndSettle(ctx, e, session.SelectStyle{Style: p.Options[0]})

		case session.PlanReview:
			printPlan(out, st)
			if !yesFlag {
				fmt.Fprintln(out, "\nRun again with --yes to render this plan.")
				return nil
			}
			st, err = sendAndSettle(ctx, e, session.AcceptPlan{})

		case session.Preview:
			fmt.Fprintf(out, "Preview: %s\n", st.PreviewURL)
			if !finalizeFlag {
				return nil
			}
			if err := e.Send(session.AcceptPreview{}); err != nil {
				return err
			}
			st, err = e.WaitFor(ctx, func(s session.State) bool {
				switch s.Phase.(type) {
				case session.Complete, session.Failed:
					return true
				}
				return false
			})

		case session.Complete:
			fmt.Fprintf(out, "Video: %s\n", p.VideoURL)
			return nil

		case session.Failed:
			return fmt.Errorf("generation failed: %s", p.Err.Message)

		default:
			return fmt.Errorf("session stopped in the %s phase", p.Kind())
		}
		if err != nil {
			return err
		}
	}
}

// sendAndSettle sends in and waits for the turn it starts to finish.
func sendAndSettle(ctx context.Context, e *session.Engine, in session.Input) (session.State, error) {
	before := e.Snapshot().TurnID
	if err := e.Send(in); err != nil {
		return session.State{}, err
	}
	st, err := e.WaitFor(ctx, func(s session.State) bool {
		return s.TurnID > before && !s.Streaming
	})
	if errors.Is(err, context.DeadlineExceeded) {
		return st, fmt.Errorf("timed out after %s", timeoutFlag)
	}
	return st, err
}

func printPlan(out io.Writer, st session.State) {
	p := st.Plan
	if p == nil {
		return
	}
	if p.Title != "" {
		fmt.Fprintln(out, p.Title)
	}
	fmt.Fprintf(out, "%gs at %d fps", p.TotalDuration, p.FPS)
	if p.Style != "" {
		fmt.Fprintf(out, ", %s", p.Style)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, p.Outline())
	if st.PlanDiff != "" {
		fmt.Fprintln(out, st.PlanDiff)
	}
}
