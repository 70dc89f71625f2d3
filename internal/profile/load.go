package profile

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

//go:embed default.cue
var defaultSource string

// ParseError is a profile error with a CUE source position when one is
// available.
type ParseError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *ParseError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Load reads a CUE profile from path, unifies it over the embedded
// defaults and validates the result.
func Load(path string) (*Profile, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profile: %w", err)
	}
	return Parse(src, path)
}

// Parse compiles src as a CUE profile. Fields src does not mention keep
// their defaults; fields it does mention must unify with the schema
// constraints in default.cue.
func Parse(src []byte, filename string) (*Profile, error) {
	ctx := cuecontext.New()

	base := ctx.CompileString(defaultSource, cue.Filename("default.cue"))
	if err := base.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	user := ctx.CompileBytes(src, cue.Filename(filename))
	if err := user.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	merged := base.Unify(user)
	if err := merged.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if err := merged.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	p := &Profile{}
	if err := merged.Decode(p); err != nil {
		return nil, formatCUEError(err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := cueerrors.Positions(firstErr)
	if len(positions) > 0 {
		return &ParseError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
