package journal

import (
	"context"
	"fmt"
	"time"
)

// Record inserts a transition. Idempotent on token: replaying a
// request the journal has already seen is silently ignored, so a retry
// after a crash never double-counts.
func (j *Journal) Record(ctx context.Context, tr Transition) error {
	if tr.Token == "" {
		return fmt.Errorf("record transition: empty token")
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO transitions
		(token, seq, user, segment, card, op, outcome, evicted, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(token) DO NOTHING
	`,
		tr.Token,
		tr.Seq,
		tr.User,
		tr.Segment,
		tr.Card,
		string(tr.Op),
		string(tr.Outcome),
		tr.Evicted,
		tr.At.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record transition: %w", err)
	}
	return nil
}
