package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/COMEONSOM/stargrid/internal/profile"
)

// ValidationError describes one profile problem for output.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid   bool              `json:"valid"`
	Profile *profile.Profile  `json:"profile,omitempty"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [profile.cue]",
		Short: "Validate a grid profile",
		Long: `Validate compiles a CUE profile over the embedded defaults and checks
the structural rules: at least one card and segment class, non-empty
attribute names, distinct identity keys, maxStars >= 1. Without an
argument the embedded defaults are validated and printed.

Exit codes:
  0 - Profile valid
  1 - Profile invalid
  2 - Command error (file not readable)

Examples:
  stargrid validate
  stargrid validate ./profiles/two_stars.cue
  stargrid validate ./profiles/two_stars.cue --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runValidate(rootOpts, path, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	var (
		prof *profile.Profile
		err  error
	)
	if path == "" {
		formatter.VerboseLog("validating embedded default profile")
		prof = profile.Default()
	} else {
		src, readErr := os.ReadFile(path)
		if readErr != nil {
			return WrapExitError(ExitCommandError, "reading profile", readErr)
		}
		formatter.VerboseLog("validating %s (%d bytes)", path, len(src))
		prof, err = profile.Parse(src, path)
	}

	if err != nil {
		return outputValidationErrors(formatter, err)
	}
	return outputValidateSuccess(formatter, prof)
}

// outputValidateSuccess prints the resolved profile.
func outputValidateSuccess(formatter *OutputFormatter, prof *profile.Profile) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Profile: prof})
	}

	w := formatter.Writer
	fmt.Fprintln(w, "✓ Profile valid")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  cards.classes:        %v\n", prof.Cards.Classes)
	fmt.Fprintf(w, "  segments.classes:     %v\n", prof.Segments.Classes)
	fmt.Fprintf(w, "  identity.queryParams: %v\n", prof.Identity.QueryParams)
	fmt.Fprintf(w, "  identity.mainSiteKey: %s\n", prof.Identity.MainSiteKey)
	fmt.Fprintf(w, "  identity.cacheKey:    %s\n", prof.Identity.CacheKey)
	fmt.Fprintf(w, "  identity.guest:       %s\n", prof.Identity.Guest)
	fmt.Fprintf(w, "  stateKeyPrefix:       %s\n", prof.StateKeyPrefix)
	fmt.Fprintf(w, "  maxStars:             %d\n", prof.MaxStars)
	fmt.Fprintf(w, "  reloadDelayMs:        %d\n", prof.ReloadDelayMs)
	return nil
}

// outputValidationErrors reports a failed parse or validation.
func outputValidationErrors(formatter *OutputFormatter, err error) error {
	verr := ValidationError{Field: "profile", Message: err.Error()}
	var parseErr *profile.ParseError
	if errors.As(err, &parseErr) {
		verr.Field = parseErr.Field
		verr.Message = parseErr.Message
		if parseErr.Pos.IsValid() {
			verr.Line = parseErr.Pos.Line()
		}
	}

	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: []ValidationError{verr}},
			Error: &CLIError{
				Code:    "E_INVALID_PROFILE",
				Message: verr.Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "profile validation failed")
	}

	fmt.Fprintln(formatter.Writer, "✗ Profile invalid")
	fmt.Fprintln(formatter.Writer)
	if verr.Line > 0 {
		fmt.Fprintf(formatter.Writer, "line %d\n", verr.Line)
	}
	fmt.Fprintf(formatter.Writer, "  %s: %s\n", verr.Field, verr.Message)

	return NewExitError(ExitFailure, "profile validation failed")
}
