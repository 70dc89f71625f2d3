package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/COMEONSOM/stargrid/internal/engine"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Engine EngineOptions
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}
	opts.Engine.RootOptions = rootOpts

	cmd := &cobra.Command{
		Use:   "run <page.html>",
		Short: "Run the star engine over a grid page",
		Long: `Run resolves the user, hydrates starred state from the slot store,
and keeps the page's star state live until interrupted.

The slot directory is watched: a write to the main-site identity slot by
another process naming a different user queues a reload, and the command
exits cleanly once the reload fires. Restarting picks up the new user.

Example:
  stargrid run ./grid.html --data-dir ./slots
  stargrid run ./grid.html --page-url 'https://example.com/grid?user=alice'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(opts, args[0], cmd)
		},
	}

	addEngineFlags(cmd, &opts.Engine)
	return cmd
}

func runEngine(opts *RunOptions, pagePath string, cmd *cobra.Command) error {
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	env, err := setupEngine(ctx, &opts.Engine, pagePath, true)
	if err != nil {
		return err
	}
	defer env.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			env.Logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	ident := env.Engine.Identity()
	stats := env.Engine.Index().Stats
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Engine started for user %s (%s).\n", ident.User, ident.Source)
	fmt.Fprintf(w, "Tracking %d card(s) in %d segment(s), capacity %d per segment.\n",
		stats.Cards, stats.Segments, env.Engine.Capacity())
	fmt.Fprintln(w, "Press Ctrl-C to stop.")

	err = env.Engine.Run(ctx)
	switch {
	case err == nil:
		env.Logger.Info("engine stopped gracefully")
		return nil
	case errors.Is(err, engine.ErrReload):
		fmt.Fprintln(w, "Identity changed in another tab. Restart to pick up the new user.")
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		env.Logger.Info("engine stopped gracefully")
		return nil
	default:
		return WrapExitError(ExitFailure, "engine error", err)
	}
}
