// Package store is the relational datastore backing the node: peers,
// transactions, their inputs and outputs, and blocks, held in SQLite via
// database/sql.
package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kilimba/chainode/ledger"
)

// ErrValueExists is the one distinguished, non-fatal datastore error: the
// row being inserted already exists.
var ErrValueExists = errors.New("store: value exists")

const schema = `
CREATE TABLE IF NOT EXISTS peers (
	ip        TEXT NOT NULL,
	port      INTEGER NOT NULL,
	timestamp INTEGER NOT NULL,
	PRIMARY KEY (ip, port)
);

CREATE TABLE IF NOT EXISTS blocks (
	block_hash  BLOB PRIMARY KEY,
	txs_hash    BLOB NOT NULL,
	parent_hash BLOB NOT NULL,
	target      BLOB NOT NULL,
	timestamp   INTEGER NOT NULL,
	nonce       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS blocks_timestamp_idx ON blocks (timestamp);

CREATE TABLE IF NOT EXISTS transactions (
	hash      BLOB PRIMARY KEY,
	timestamp INTEGER NOT NULL,
	block     BLOB
);

CREATE TABLE IF NOT EXISTS tx_inputs (
	tx        BLOB NOT NULL,
	src_hash  BLOB NOT NULL,
	src_idx   INTEGER NOT NULL,
	signature BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS tx_inputs_tx_idx ON tx_inputs (tx);
CREATE INDEX IF NOT EXISTS tx_inputs_src_idx ON tx_inputs (src_hash, src_idx);

CREATE TABLE IF NOT EXISTS tx_outputs (
	tx      BLOB NOT NULL,
	idx     INTEGER NOT NULL,
	amount  INTEGER NOT NULL,
	address BLOB NOT NULL,
	PRIMARY KEY (tx, idx)
);
CREATE INDEX IF NOT EXISTS tx_outputs_address_idx ON tx_outputs (address);
`

// Store wraps a SQLite connection configured for the node's single
// writer / many readers access pattern.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite database at path and
// applies the schema.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: pinging %s: %w", path, err)
	}
	// SQLite allows only one writer; serialize through a single
	// connection so transactions never deadlock against each other.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: applying schema: %w", err)
	}
	return s, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func hashBytes(h [ledger.HashSize]byte) []byte {
	b := make([]byte, ledger.HashSize)
	copy(b, h[:])
	return b
}

func toHash(b []byte) [ledger.HashSize]byte {
	var h [ledger.HashSize]byte
	copy(h[:], b)
	return h
}

func toTarget(b []byte) [ledger.TargetSize]byte {
	var t [ledger.TargetSize]byte
	copy(t[:], b)
	return t
}

func toSig(b []byte) [ledger.SignatureSize]byte {
	var s [ledger.SignatureSize]byte
	copy(s[:], b)
	return s
}

func toAddr(b []byte) [ledger.AddressSize]byte {
	var a [ledger.AddressSize]byte
	copy(a[:], b)
	return a
}

