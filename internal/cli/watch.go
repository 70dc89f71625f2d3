package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/COMEONSOM/stargrid/internal/engine"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Engine EngineOptions
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}
	opts.Engine.RootOptions = rootOpts

	cmd := &cobra.Command{
		Use:   "watch <page.html>",
		Short: "Run the engine and rebuild on identity changes",
		Long: `Watch behaves like run, but survives identity changes: when another
process writes a different user to the main-site slot, the engine is
torn down and a fresh one is built for the new user, re-reading the
page from disk. The loop ends on Ctrl-C.

Example:
  stargrid watch ./grid.html --data-dir ./slots`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, args[0], cmd)
		},
	}

	addEngineFlags(cmd, &opts.Engine)
	return cmd
}

func runWatch(opts *WatchOptions, pagePath string, cmd *cobra.Command) error {
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "Press Ctrl-C to stop.")

	for {
		err := watchOnce(ctx, opts, pagePath, w)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, engine.ErrReload):
			fmt.Fprintln(w, "Identity changed, rebuilding...")
			continue
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil
		default:
			return err
		}
	}
}

// watchOnce runs one engine lifetime. Returns engine.ErrReload when the
// caller should rebuild, nil when the loop should end.
func watchOnce(ctx context.Context, opts *WatchOptions, pagePath string, w io.Writer) error {
	env, err := setupEngine(ctx, &opts.Engine, pagePath, true)
	if err != nil {
		return err
	}
	defer env.Close()

	ident := env.Engine.Identity()
	fmt.Fprintf(w, "Engine started for user %s (%s).\n", ident.User, ident.Source)

	err = env.Engine.Run(ctx)
	if err != nil && !errors.Is(err, engine.ErrReload) &&
		!errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "engine error", err)
	}
	return err
}
