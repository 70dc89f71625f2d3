package frame

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler() *Scheduler {
	return NewScheduler(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestFlushRunsFIFO(t *testing.T) {
	s := newTestScheduler()
	var got []string

	s.Defer("first", func() error { got = append(got, "first"); return nil })
	s.Defer("second", func() error { got = append(got, "second"); return nil })
	s.Defer("third", func() error { got = append(got, "third"); return nil })

	ran := s.Flush()

	assert.Equal(t, 3, ran)
	assert.Equal(t, []string{"first", "second", "third"}, got)
	assert.Zero(t, s.Pending())
}

func TestFailedCallbackDoesNotStopFlush(t *testing.T) {
	s := newTestScheduler()
	var got []string

	s.Defer("bad", func() error { return errors.New("node vanished") })
	s.Defer("good", func() error { got = append(got, "good"); return nil })

	ran := s.Flush()

	assert.Equal(t, 2, ran)
	assert.Equal(t, []string{"good"}, got)
}

func TestReentrantDeferWaitsForNextFlush(t *testing.T) {
	s := newTestScheduler()
	var got []string

	s.Defer("outer", func() error {
		got = append(got, "outer")
		s.Defer("inner", func() error { got = append(got, "inner"); return nil })
		return nil
	})

	require.Equal(t, 1, s.Flush())
	assert.Equal(t, []string{"outer"}, got)
	require.Equal(t, 1, s.Pending())

	require.Equal(t, 1, s.Flush())
	assert.Equal(t, []string{"outer", "inner"}, got)
}

func TestFlushEmpty(t *testing.T) {
	s := newTestScheduler()
	assert.Zero(t, s.Flush())
}

func TestNilCallbackIgnored(t *testing.T) {
	s := newTestScheduler()
	s.Defer("nothing", nil)
	assert.Zero(t, s.Pending())
}

func TestLaterToggleSupersedesVisually(t *testing.T) {
	// Two repositions of the same card queue back to back. Both run in
	// FIFO order, so the one scheduled later is the one that sticks.
	s := newTestScheduler()
	position := ""

	s.Defer("reposition card_1", func() error { position = "starred"; return nil })
	s.Defer("reposition card_1", func() error { position = "unstarred"; return nil })
	s.Flush()

	assert.Equal(t, "unstarred", position, "last-applied wins")
}
