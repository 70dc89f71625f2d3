package journal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/COMEONSOM/stargrid/internal/state"
)

// Filter narrows a journal listing. Zero-valued fields match
// everything.
type Filter struct {
	User    string
	Segment string
	Card    string
	Op      Op
	Outcome Outcome

	// SinceSeq keeps only transitions with seq >= SinceSeq.
	SinceSeq uint64

	// Limit caps the number of rows; 0 means no cap.
	Limit int
}

// buildListQuery compiles a filter into parameterized SQL. Clause
// order is fixed and every value is a parameter, so equal filters
// always produce the identical statement. All listings order by
// (seq, token) ascending; results must not depend on insert timing.
func buildListQuery(f Filter) (string, []any) {
	var conds []string
	var params []any

	add := func(cond string, value any) {
		conds = append(conds, cond)
		params = append(params, value)
	}

	if f.User != "" {
		add("user = ?", f.User)
	}
	if f.Segment != "" {
		add("segment = ?", f.Segment)
	}
	if f.Card != "" {
		add("card = ?", f.Card)
	}
	if f.Op != "" {
		add("op = ?", string(f.Op))
	}
	if f.Outcome != "" {
		add("outcome = ?", string(f.Outcome))
	}
	if f.SinceSeq > 0 {
		add("seq >= ?", f.SinceSeq)
	}

	var sb strings.Builder
	sb.WriteString("SELECT token, seq, user, segment, card, op, outcome, evicted, at FROM transitions")
	if len(conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}
	sb.WriteString(" ORDER BY seq ASC, token ASC")
	if f.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		params = append(params, f.Limit)
	}
	return sb.String(), params
}

// List returns transitions matching the filter in logical-clock order.
func (j *Journal) List(ctx context.Context, f Filter) ([]Transition, error) {
	query, params := buildListQuery(f)
	rows, err := j.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var tr Transition
		var op, outcome, at string
		if err := rows.Scan(&tr.Token, &tr.Seq, &tr.User, &tr.Segment, &tr.Card, &op, &outcome, &tr.Evicted, &at); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		tr.Op = Op(op)
		tr.Outcome = Outcome(outcome)
		if tr.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("parse transition time %q: %w", at, err)
		}
		out = append(out, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	return out, nil
}

// LastSeq returns the highest recorded logical clock value, 0 when
// the journal is empty. Engines resume their clock past this.
func (j *Journal) LastSeq(ctx context.Context) (uint64, error) {
	var seq uint64
	err := j.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(seq), 0) FROM transitions").Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq, nil
}

// Rebuild replays applied transitions into a fresh snapshot. Declined
// and rejected rows are skipped; evictions recorded on a star row are
// honored before the star itself, so replay never needs capacity
// logic of its own.
//
// If the journal is complete, the result equals the persisted
// snapshot. `stargrid replay` diffs the two.
func Rebuild(transitions []Transition, capacity int) state.Snapshot {
	reg := state.NewRegistry(capacity)
	for _, tr := range transitions {
		if tr.Outcome != OutcomeApplied {
			continue
		}
		switch tr.Op {
		case OpStar:
			if tr.Evicted != "" {
				reg.Remove(tr.Segment, tr.Evicted)
			}
			reg.Add(tr.Segment, tr.Card)
		case OpUnstar:
			reg.Remove(tr.Segment, tr.Card)
		}
	}
	return reg.Snapshot()
}
