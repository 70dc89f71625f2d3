package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/COMEONSOM/stargrid/internal/journal"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Journal  string
	User     string
	Segment  string
	Card     string
	Op       string
	Outcome  string
	SinceSeq uint64
	Limit    int
}

// TraceRow is one journal transition in trace output.
type TraceRow struct {
	Seq     uint64    `json:"seq"`
	Token   string    `json:"token"`
	User    string    `json:"user"`
	Segment string    `json:"segment,omitempty"`
	Card    string    `json:"card"`
	Op      string    `json:"op"`
	Outcome string    `json:"outcome"`
	Evicted string    `json:"evicted,omitempty"`
	At      time.Time `json:"at"`
}

// TraceStats summarizes the listed transitions.
type TraceStats struct {
	Total     int `json:"total"`
	Applied   int `json:"applied"`
	Declined  int `json:"declined"`
	Rejected  int `json:"rejected"`
	Evictions int `json:"evictions"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Transitions []TraceRow `json:"transitions"`
	Stats       TraceStats `json:"stats"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Query the transition journal",
		Long: `Trace lists journaled star transitions in logical order, with
optional filters. Every toggle outcome is journaled, including
declined evictions and rejected unknown cards, so the trace is the
full audit trail of what the engine decided and why.

Examples:
  stargrid trace --journal ./slots/journal.db
  stargrid trace --journal ./slots/journal.db --user alice --segment tools
  stargrid trace --journal ./slots/journal.db --outcome declined --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "transition journal path (required)")
	_ = cmd.MarkFlagRequired("journal")
	cmd.Flags().StringVar(&opts.User, "user", "", "filter by user")
	cmd.Flags().StringVar(&opts.Segment, "segment", "", "filter by segment id")
	cmd.Flags().StringVar(&opts.Card, "card", "", "filter by card id")
	cmd.Flags().StringVar(&opts.Op, "op", "", "filter by op (star|unstar|none)")
	cmd.Flags().StringVar(&opts.Outcome, "outcome", "", "filter by outcome (applied|declined|rejected)")
	cmd.Flags().Uint64Var(&opts.SinceSeq, "since-seq", 0, "only transitions with seq at or above this")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "cap the number of rows (0 = no cap)")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	switch opts.Op {
	case "", string(journal.OpStar), string(journal.OpUnstar), string(journal.OpNone):
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid --op %q: must be star, unstar or none", opts.Op))
	}
	switch opts.Outcome {
	case "", string(journal.OutcomeApplied), string(journal.OutcomeDeclined), string(journal.OutcomeRejected):
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid --outcome %q: must be applied, declined or rejected", opts.Outcome))
	}

	jnl, err := journal.Open(opts.Journal)
	if err != nil {
		return WrapExitError(ExitCommandError, "opening journal", err)
	}
	defer jnl.Close()

	transitions, err := jnl.List(ctx, journal.Filter{
		User:     opts.User,
		Segment:  opts.Segment,
		Card:     opts.Card,
		Op:       journal.Op(opts.Op),
		Outcome:  journal.Outcome(opts.Outcome),
		SinceSeq: opts.SinceSeq,
		Limit:    opts.Limit,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "listing transitions", err)
	}

	if len(transitions) == 0 {
		if opts.Format == "json" {
			return outputTraceJSON(cmd, TraceResult{Transitions: []TraceRow{}})
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No transitions found.")
		return nil
	}

	result := TraceResult{Transitions: make([]TraceRow, 0, len(transitions))}
	for _, tr := range transitions {
		result.Transitions = append(result.Transitions, TraceRow{
			Seq:     tr.Seq,
			Token:   tr.Token,
			User:    tr.User,
			Segment: tr.Segment,
			Card:    tr.Card,
			Op:      string(tr.Op),
			Outcome: string(tr.Outcome),
			Evicted: tr.Evicted,
			At:      tr.At,
		})

		result.Stats.Total++
		switch tr.Outcome {
		case journal.OutcomeApplied:
			result.Stats.Applied++
		case journal.OutcomeDeclined:
			result.Stats.Declined++
		case journal.OutcomeRejected:
			result.Stats.Rejected++
		}
		if tr.Evicted != "" {
			result.Stats.Evictions++
		}
	}

	if opts.Format == "json" {
		return outputTraceJSON(cmd, result)
	}
	return outputTraceText(cmd, result, opts.Verbose)
}

func outputTraceJSON(cmd *cobra.Command, result TraceResult) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(CLIResponse{Status: "ok", Data: result})
}

func outputTraceText(cmd *cobra.Command, result TraceResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintln(w, "=== Transitions ===")
	for _, row := range result.Transitions {
		target := row.Card
		if row.Segment != "" {
			target = row.Segment + "/" + row.Card
		}
		fmt.Fprintf(w, "  [%d] %s %s %s", row.Seq, row.Op, target, row.Outcome)
		if row.Evicted != "" {
			fmt.Fprintf(w, " (evicted %s)", row.Evicted)
		}
		fmt.Fprintln(w)
		if verbose {
			fmt.Fprintf(w, "       user: %s  token: %s  at: %s\n",
				row.User, truncateToken(row.Token), row.At.Format(time.RFC3339))
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total:     %d\n", result.Stats.Total)
	fmt.Fprintf(w, "  Applied:   %d\n", result.Stats.Applied)
	fmt.Fprintf(w, "  Declined:  %d\n", result.Stats.Declined)
	fmt.Fprintf(w, "  Rejected:  %d\n", result.Stats.Rejected)
	fmt.Fprintf(w, "  Evictions: %d\n", result.Stats.Evictions)

	return nil
}

// truncateToken shortens a long token for display.
func truncateToken(token string) string {
	if len(token) <= 16 {
		return token
	}
	return token[:8] + "..." + token[len(token)-8:]
}
