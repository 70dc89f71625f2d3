package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/COMEONSOM/stargrid/internal/engine"
)

// promptConfirmer asks the terminal before an eviction, standing in for
// the page's confirm dialog. Only "y" or "yes" approves; everything
// else, including EOF, declines.
type promptConfirmer struct {
	in  *bufio.Reader
	out io.Writer
}

func newPromptConfirmer(in io.Reader, out io.Writer) *promptConfirmer {
	return &promptConfirmer{in: bufio.NewReader(in), out: out}
}

func (c *promptConfirmer) Confirm(ctx context.Context, req engine.ConfirmRequest) (bool, error) {
	fmt.Fprintf(c.out, "Segment %s is full: starring %s evicts %s. Continue? [y/N] ",
		req.Segment, req.Card, req.Evict)

	line, err := c.in.ReadString('\n')
	if err != nil && line == "" {
		return false, nil
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
