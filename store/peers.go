package store

import "database/sql"

// PeerRecord is a persisted peer row: an (ip, port, timestamp) triple.
// The live in-memory Peer (which additionally carries a socket) lives in
// package p2p; this type is the datastore's view only.
type PeerRecord struct {
	IP        string
	Port      int
	Timestamp int64
}

// ListPeers returns all known peers ordered by timestamp descending
// (most recently seen first), matching the bootstrap read order.
func (s *Store) ListPeers() ([]PeerRecord, error) {
	rows, err := s.db.Query(`SELECT ip, port, timestamp FROM peers ORDER BY timestamp DESC;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PeerRecord
	for rows.Next() {
		var p PeerRecord
		if err := rows.Scan(&p.IP, &p.Port, &p.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpsertPeer inserts a new (ip, port) row or, if one already exists,
// updates its timestamp and returns ErrValueExists.
func (s *Store) UpsertPeer(p PeerRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRow(`SELECT 1 FROM peers WHERE ip = ? AND port = ?;`, p.IP, p.Port).Scan(&exists)
	switch {
	case err == sql.ErrNoRows:
		if _, err := tx.Exec(`INSERT INTO peers (ip, port, timestamp) VALUES (?, ?, ?);`, p.IP, p.Port, p.Timestamp); err != nil {
			return err
		}
		return tx.Commit()
	case err != nil:
		return err
	default:
		if _, err := tx.Exec(`UPDATE peers SET timestamp = ? WHERE ip = ? AND port = ?;`, p.Timestamp, p.IP, p.Port); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		return ErrValueExists
	}
}
