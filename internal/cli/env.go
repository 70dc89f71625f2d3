package cli

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/COMEONSOM/stargrid/internal/engine"
	"github.com/COMEONSOM/stargrid/internal/journal"
	"github.com/COMEONSOM/stargrid/internal/page"
	"github.com/COMEONSOM/stargrid/internal/profile"
	"github.com/COMEONSOM/stargrid/internal/storage"
)

// EngineOptions holds the flags shared by every command that builds an
// engine over a page file.
type EngineOptions struct {
	*RootOptions
	ProfilePath string
	DataDir     string
	JournalPath string
	PageURL     string
}

// addEngineFlags registers the shared engine flags on cmd.
func addEngineFlags(cmd *cobra.Command, opts *EngineOptions) {
	cmd.Flags().StringVar(&opts.ProfilePath, "profile", "", "CUE profile overlay (default: embedded profile)")
	cmd.Flags().StringVar(&opts.DataDir, "data-dir", "stargrid-data", "slot store directory")
	cmd.Flags().StringVar(&opts.JournalPath, "journal", "", "transition journal path (default: <data-dir>/journal.db)")
	cmd.Flags().StringVar(&opts.PageURL, "page-url", "", "page address, consulted for query identity")
}

// environment bundles everything a command needs to drive one engine
// lifetime. Close releases the notifier and the journal.
type environment struct {
	Profile  *profile.Profile
	Doc      *page.Document
	Store    *storage.DirStore
	Journal  *journal.Journal
	Notifier *storage.Notifier
	Engine   *engine.Engine
	Logger   *slog.Logger
}

// Close stops the notifier and closes the journal. Safe to call after
// a partial setup.
func (env *environment) Close() {
	if env.Notifier != nil {
		env.Notifier.Stop()
	}
	if env.Journal != nil {
		if err := env.Journal.Close(); err != nil {
			env.Logger.Error("closing journal", "error", err)
		}
	}
}

// setupLogger builds the CLI logger. Diagnostics go to stderr so JSON
// output on stdout stays parseable.
func setupLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// setupEngine loads the profile and the page, opens the slot store and
// the journal, and constructs an engine. When watch is true the slot
// directory is watched and change events feed the engine's cross-tab
// monitor.
func setupEngine(ctx context.Context, opts *EngineOptions, pagePath string, watch bool, extra ...engine.Option) (*environment, error) {
	env := &environment{Logger: setupLogger(opts.Verbose)}

	prof := profile.Default()
	if opts.ProfilePath != "" {
		loaded, err := profile.Load(opts.ProfilePath)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "loading profile", err)
		}
		prof = loaded
	}
	env.Profile = prof

	doc, err := page.ParseFile(pagePath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "parsing page", err)
	}
	env.Doc = doc

	store, err := storage.OpenDir(opts.DataDir)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "opening data directory", err)
	}
	env.Store = store

	journalPath := opts.JournalPath
	if journalPath == "" {
		journalPath = filepath.Join(opts.DataDir, "journal.db")
	}
	jnl, err := journal.Open(journalPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "opening journal", err)
	}
	env.Journal = jnl

	engOpts := []engine.Option{
		engine.WithDurable(store),
		engine.WithSession(storage.NewMemStore()),
		engine.WithJournal(jnl),
		engine.WithLogger(env.Logger),
		engine.WithPageURL(opts.PageURL),
	}

	if watch {
		notifier, err := storage.Watch(store, storage.WithNotifierLogger(env.Logger))
		if err != nil {
			env.Close()
			return nil, WrapExitError(ExitCommandError, "watching data directory", err)
		}
		if err := notifier.Start(ctx); err != nil {
			env.Close()
			return nil, WrapExitError(ExitCommandError, "starting directory watch", err)
		}
		env.Notifier = notifier
		engOpts = append(engOpts, engine.WithChangeEvents(notifier.Events()))
	}

	engOpts = append(engOpts, extra...)

	eng, err := engine.New(ctx, doc, prof, engOpts...)
	if err != nil {
		env.Close()
		return nil, WrapExitError(ExitCommandError, "constructing engine", err)
	}
	env.Engine = eng

	return env, nil
}
