// Package ledger is the transaction-log/data-tree stand-in FLE treats as an
// external collaborator (spec §1, §6): it is the only source of truth for
// "what zxid have I last logged" and "what peer epoch am I currently in",
// and it keeps an audit trail of every vote a round decided on.
//
// Grounded on db_service/internal/database/database.go's sqlite3-backed
// Database type (open, migrate, pooled *sql.DB), generalized from that
// service's scheduling schema to a single append-only decisions table plus
// a one-row epoch counter.
package ledger

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Store is what fle.Peer needs from the data tree, plus the bookkeeping a
// real peerserver performs around a decision.
type Store struct {
	db *sql.DB
}

// Open creates or attaches to a sqlite3-backed ledger at path, running
// migrations as needed.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("ledger: create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("ledger: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS epoch_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			current_epoch INTEGER NOT NULL DEFAULT 0,
			last_zxid INTEGER NOT NULL DEFAULT 0
		);
	`); err != nil {
		return fmt.Errorf("create epoch_state: %w", err)
	}
	if _, err := tx.Exec(`INSERT OR IGNORE INTO epoch_state (id, current_epoch, last_zxid) VALUES (1, 0, 0);`); err != nil {
		return fmt.Errorf("seed epoch_state: %w", err)
	}
	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS decisions (
			id TEXT PRIMARY KEY,
			leader_sid TEXT NOT NULL,
			zxid INTEGER NOT NULL,
			election_epoch INTEGER NOT NULL,
			peer_epoch INTEGER NOT NULL,
			state TEXT NOT NULL,
			decided_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`); err != nil {
		return fmt.Errorf("create decisions: %w", err)
	}

	return tx.Commit()
}

// LastLoggedZxid implements fle.Peer.
func (s *Store) LastLoggedZxid() (uint64, error) {
	var zxid int64
	err := s.db.QueryRow(`SELECT last_zxid FROM epoch_state WHERE id = 1`).Scan(&zxid)
	if err != nil {
		return 0, fmt.Errorf("ledger: read last zxid: %w", err)
	}
	return uint64(zxid), nil
}

// CurrentEpoch implements fle.Peer.
func (s *Store) CurrentEpoch() (uint64, error) {
	var epoch int64
	err := s.db.QueryRow(`SELECT current_epoch FROM epoch_state WHERE id = 1`).Scan(&epoch)
	if err != nil {
		return 0, fmt.Errorf("ledger: read current epoch: %w", err)
	}
	return uint64(epoch), nil
}

// AdvanceEpoch bumps the locally durable peer epoch to newEpoch if it is
// higher than what is already recorded; it never moves epoch backwards.
func (s *Store) AdvanceEpoch(newEpoch uint64) error {
	_, err := s.db.Exec(`UPDATE epoch_state SET current_epoch = ? WHERE id = 1 AND current_epoch < ?`, int64(newEpoch), int64(newEpoch))
	if err != nil {
		return fmt.Errorf("ledger: advance epoch: %w", err)
	}
	return nil
}

// RecordDecision appends the outcome of a completed election round to the
// audit log, for operators inspecting how the ensemble converged.
func (s *Store) RecordDecision(leaderSid string, zxid, electionEpoch, peerEpoch uint64, state string) error {
	_, err := s.db.Exec(
		`INSERT INTO decisions (id, leader_sid, zxid, election_epoch, peer_epoch, state) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), leaderSid, int64(zxid), int64(electionEpoch), int64(peerEpoch), state,
	)
	if err != nil {
		return fmt.Errorf("ledger: record decision: %w", err)
	}
	return nil
}

// Decision is one row of the decisions audit log.
type Decision struct {
	ID            uuid.UUID
	LeaderSid     string
	Zxid          uint64
	ElectionEpoch uint64
	PeerEpoch     uint64
	State         string
}

// RecentDecisions returns the most recent n decisions, newest first, for
// the admin status surface.
func (s *Store) RecentDecisions(n int) ([]Decision, error) {
	rows, err := s.db.Query(
		`SELECT id, leader_sid, zxid, election_epoch, peer_epoch, state FROM decisions ORDER BY rowid DESC LIMIT ?`, n,
	)
	if err != nil {
		return nil, fmt.Errorf("ledger: query decisions: %w", err)
	}
	defer rows.Close()

	var out []Decision
	for rows.Next() {
		var d Decision
		var id string
		var zxid, eEpoch, pEpoch int64
		if err := rows.Scan(&id, &d.LeaderSid, &zxid, &eEpoch, &pEpoch, &d.State); err != nil {
			return nil, fmt.Errorf("ledger: scan decision: %w", err)
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("ledger: parse decision id: %w", err)
		}
		d.ID = parsed
		d.Zxid, d.ElectionEpoch, d.PeerEpoch = uint64(zxid), uint64(eEpoch), uint64(pEpoch)
		out = append(out, d)
	}
	return out, rows.Err()
}
