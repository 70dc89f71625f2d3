package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/spf13/cobra"

	"github.com/COMEONSOM/stargrid/internal/journal"
	"github.com/COMEONSOM/stargrid/internal/profile"
	"github.com/COMEONSOM/stargrid/internal/state"
	"github.com/COMEONSOM/stargrid/internal/storage"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Journal     string
	User        string // optional, replay one user only
	ProfilePath string
	DataDir     string
}

// ReplayUserResult holds the replay result for a single user.
type ReplayUserResult struct {
	User        string `json:"user"`
	Transitions int    `json:"transitions"`
	Applied     int    `json:"applied"`
	Starred     int    `json:"starred"`
	Consistent  bool   `json:"consistent"`

	// Rebuilt and Stored carry the diverging star sets, set only when
	// Consistent is false.
	Rebuilt map[string][]string `json:"rebuilt,omitempty"`
	Stored  map[string][]string `json:"stored,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Users         []ReplayUserResult `json:"users"`
	TotalUsers    int                `json:"total_users"`
	AllConsistent bool               `json:"all_consistent"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Rebuild star state from the journal and diff the slot store",
		Long: `Replay rebuilds each user's star sets from their applied journal
transitions and compares the result against the snapshot persisted in
the slot store. The two agree when every applied toggle was also
persisted; divergence means the journal and the store have drifted.

Exit codes:
  0 - Journal and slot store agree for every user
  1 - Replay diverged from stored state
  2 - Command error (unopenable journal, bad profile, etc.)

Examples:
  stargrid replay --journal ./slots/journal.db --data-dir ./slots
  stargrid replay --journal ./slots/journal.db --data-dir ./slots --user alice
  stargrid replay --journal ./slots/journal.db --data-dir ./slots --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "transition journal path (required)")
	_ = cmd.MarkFlagRequired("journal")
	cmd.Flags().StringVar(&opts.User, "user", "", "replay a single user only")
	cmd.Flags().StringVar(&opts.ProfilePath, "profile", "", "CUE profile overlay (default: embedded profile)")
	cmd.Flags().StringVar(&opts.DataDir, "data-dir", "stargrid-data", "slot store directory")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	prof := profile.Default()
	if opts.ProfilePath != "" {
		loaded, err := profile.Load(opts.ProfilePath)
		if err != nil {
			return WrapExitError(ExitCommandError, "loading profile", err)
		}
		prof = loaded
	}

	jnl, err := journal.Open(opts.Journal)
	if err != nil {
		return WrapExitError(ExitCommandError, "opening journal", err)
	}
	defer jnl.Close()

	store, err := storage.OpenDir(opts.DataDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "opening data directory", err)
	}
	gateway := storage.NewGateway(store, setupLogger(opts.Verbose))

	transitions, err := jnl.List(ctx, journal.Filter{User: opts.User})
	if err != nil {
		return WrapExitError(ExitCommandError, "listing transitions", err)
	}

	if len(transitions) == 0 {
		if opts.Format == "json" {
			return outputReplayJSON(cmd, ReplayResult{
				Users:         []ReplayUserResult{},
				AllConsistent: true,
			})
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No transitions found in journal.")
		return nil
	}

	// Group by user, preserving first-seen order; List already sorts
	// by seq so per-user slices stay in logical order.
	var users []string
	byUser := make(map[string][]journal.Transition)
	for _, tr := range transitions {
		if _, seen := byUser[tr.User]; !seen {
			users = append(users, tr.User)
		}
		byUser[tr.User] = append(byUser[tr.User], tr)
	}

	result := ReplayResult{
		Users:         make([]ReplayUserResult, 0, len(users)),
		TotalUsers:    len(users),
		AllConsistent: true,
	}

	for _, user := range users {
		userResult := replayUser(ctx, gateway, prof, user, byUser[user])
		result.Users = append(result.Users, userResult)
		if !userResult.Consistent {
			result.AllConsistent = false
		}
	}

	if opts.Format == "json" {
		return outputReplayJSON(cmd, result)
	}
	return outputReplayText(cmd, result)
}

// replayUser rebuilds one user's state from the journal and diffs the
// stored snapshot.
func replayUser(ctx context.Context, gateway *storage.Gateway, prof *profile.Profile, user string, transitions []journal.Transition) ReplayUserResult {
	rebuilt := journal.Rebuild(transitions, prof.MaxStars)
	stored := gateway.Load(ctx, prof.StateKey(user), state.EmptySnapshot())

	applied := 0
	for _, tr := range transitions {
		if tr.Outcome == journal.OutcomeApplied {
			applied++
		}
	}

	res := ReplayUserResult{
		User:        user,
		Transitions: len(transitions),
		Applied:     applied,
		Starred:     rebuilt.Total(),
		Consistent:  reflect.DeepEqual(rebuilt.Segments, stored.Segments),
	}
	if !res.Consistent {
		res.Rebuilt = rebuilt.Segments
		res.Stored = stored.Segments
	}
	return res
}

func outputReplayJSON(cmd *cobra.Command, result ReplayResult) error {
	response := CLIResponse{Status: "ok", Data: result}
	if !result.AllConsistent {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_REPLAY_DIVERGED",
			Message: "replay diverged from stored state",
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if !result.AllConsistent {
		return NewExitError(ExitFailure, "replay diverged from stored state")
	}
	return nil
}

func outputReplayText(cmd *cobra.Command, result ReplayResult) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Replay Summary: %d user(s)\n", result.TotalUsers)
	fmt.Fprintln(w)

	for _, user := range result.Users {
		status := "✓"
		if !user.Consistent {
			status = "✗"
		}
		fmt.Fprintf(w, "%s User: %s\n", status, user.User)
		fmt.Fprintf(w, "  Transitions: %d (%d applied), %d starred\n",
			user.Transitions, user.Applied, user.Starred)

		if !user.Consistent {
			fmt.Fprintln(w, "  Journal rebuild does not match the stored snapshot:")
			fmt.Fprintf(w, "    rebuilt: %v\n", user.Rebuilt)
			fmt.Fprintf(w, "    stored:  %v\n", user.Stored)
		}
		fmt.Fprintln(w)
	}

	if result.AllConsistent {
		fmt.Fprintln(w, "✓ Journal and slot store agree")
		return nil
	}

	fmt.Fprintln(w, "✗ Replay diverged from stored state")
	return NewExitError(ExitFailure, "replay diverged from stored state")
}
