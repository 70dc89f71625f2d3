package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/COMEONSOM/stargrid/internal/engine"
)

func TestPromptConfirmer(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		approve bool
	}{
		{"y", "y\n", true},
		{"yes", "yes\n", true},
		{"uppercase yes", "YES\n", true},
		{"y at EOF without newline", "y", true},
		{"n", "n\n", false},
		{"no", "no\n", false},
		{"empty line defaults to no", "\n", false},
		{"anything else defaults to no", "sure\n", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			c := newPromptConfirmer(strings.NewReader(tc.input), out)

			ok, err := c.Confirm(context.Background(), engine.ConfirmRequest{
				Segment: "tools", Card: "card_3", Evict: "card_1",
			})
			require.NoError(t, err)
			assert.Equal(t, tc.approve, ok)

			prompt := out.String()
			assert.Contains(t, prompt, "Segment tools is full")
			assert.Contains(t, prompt, "starring card_3 evicts card_1")
			assert.Contains(t, prompt, "[y/N]")
		})
	}
}

func TestPromptConfirmerEOFDeclines(t *testing.T) {
	c := newPromptConfirmer(strings.NewReader(""), &bytes.Buffer{})

	ok, err := c.Confirm(context.Background(), engine.ConfirmRequest{
		Segment: "tools", Card: "card_3", Evict: "card_1",
	})
	require.NoError(t, err)
	assert.False(t, ok)
}
