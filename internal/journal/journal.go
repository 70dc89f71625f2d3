// Package journal provides the SQLite-backed transition log.
//
// Every toggle request the engine decides lands here: applied stars and
// unstars with their evictions, plus declined and rejected requests.
// The journal is observational. Star state itself lives in the
// snapshot slots; the journal exists for tracing (`stargrid trace`) and
// for verifying that replaying the log reproduces the stored snapshot
// (`stargrid replay`).
//
// Ordering discipline: all queries order by (seq, token), both
// ascending. seq is the engine's logical clock; wall time is recorded
// but never used for ordering.
package journal

import (
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - Initial schema
const currentSchemaVersion = 1

// Op is the requested transition direction.
type Op string

const (
	OpStar   Op = "star"
	OpUnstar Op = "unstar"

	// OpNone marks requests that never resolved to a direction because
	// the card was unknown. Always paired with OutcomeRejected.
	OpNone Op = "none"
)

// Outcome is what the engine decided.
type Outcome string

const (
	// OutcomeApplied: the registry changed and was persisted.
	OutcomeApplied Outcome = "applied"
	// OutcomeDeclined: capacity conflict, user declined the eviction.
	OutcomeDeclined Outcome = "declined"
	// OutcomeRejected: unknown card or segment, nothing changed.
	OutcomeRejected Outcome = "rejected"
)

// Transition is one journal row.
type Transition struct {
	Token   string
	Seq     uint64
	User    string
	Segment string
	Card    string
	Op      Op
	Outcome Outcome

	// Evicted is the card removed to make room, empty otherwise. Only
	// ever set on applied star transitions.
	Evicted string

	At time.Time
}

// Journal is a handle to the transition database.
type Journal struct {
	db *sql.DB
}

// Open creates or opens the journal database at path, applying
// pragmas and schema migrations. Idempotent.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to journal: %w", err)
	}

	// SQLite allows one writer; a single connection avoids BUSY errors.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("configuring journal: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating journal: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("executing %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("reading user_version: %w", err)
	}
	// No migrations yet beyond the initial schema.
	if version < currentSchemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("setting user_version: %w", err)
		}
	}
	return nil
}
