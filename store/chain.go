package store

import (
	"database/sql"
	"fmt"

	"github.com/kilimba/chainode/ledger"
)

// ListHeaders returns every block ordered by timestamp ascending, with
// Txs left empty. Headers and full bodies are separate read paths;
// use LoadBlockFull to hydrate transactions.
func (s *Store) ListHeaders() ([]ledger.Block, error) {
	rows, err := s.db.Query(`SELECT txs_hash, parent_hash, target, timestamp, nonce, block_hash FROM blocks ORDER BY timestamp ASC;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Block
	for rows.Next() {
		var txsHash, parentHash, target, blockHash []byte
		var b ledger.Block
		if err := rows.Scan(&txsHash, &parentHash, &target, &b.Timestamp, &b.Nonce, &blockHash); err != nil {
			return nil, err
		}
		b.TxsHash = toHash(txsHash)
		b.ParentHash = toHash(parentHash)
		b.Target = toTarget(target)
		b.BlockHash = toHash(blockHash)
		out = append(out, b)
	}
	return out, rows.Err()
}

// Block fetches a single block by hash, without hydrating transactions.
func (s *Store) Block(hash [ledger.HashSize]byte) (*ledger.Block, error) {
	row := s.db.QueryRow(`SELECT txs_hash, parent_hash, target, timestamp, nonce, block_hash FROM blocks WHERE block_hash = ?;`, hashBytes(hash))
	var txsHash, parentHash, target, blockHash []byte
	var b ledger.Block
	if err := row.Scan(&txsHash, &parentHash, &target, &b.Timestamp, &b.Nonce, &blockHash); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	b.TxsHash = toHash(txsHash)
	b.ParentHash = toHash(parentHash)
	b.Target = toTarget(target)
	b.BlockHash = toHash(blockHash)
	return &b, nil
}

// LoadBlockFull fetches a block by hash and hydrates its transactions
// (and their inputs/outputs) from the datastore.
func (s *Store) LoadBlockFull(hash [ledger.HashSize]byte) (*ledger.Block, error) {
	b, err := s.Block(hash)
	if err != nil || b == nil {
		return b, err
	}
	rows, err := s.db.Query(`SELECT hash, timestamp FROM transactions WHERE block = ?;`, hashBytes(hash))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var h []byte
		var ts int64
		if err := rows.Scan(&h, &ts); err != nil {
			return nil, err
		}
		tx := ledger.Transaction{Hash: toHash(h), Timestamp: ts}
		inputs, outputs, err := s.txInputsOutputs(tx.Hash)
		if err != nil {
			return nil, err
		}
		tx.Inputs = inputs
		tx.Outputs = outputs
		b.Txs = append(b.Txs, tx)
	}
	return b, rows.Err()
}

// PendingTransactions returns every transaction whose block is NULL,
// hydrated with inputs and outputs.
func (s *Store) PendingTransactions() ([]ledger.Transaction, error) {
	rows, err := s.db.Query(`SELECT hash, timestamp FROM transactions WHERE block IS NULL;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Transaction
	for rows.Next() {
		var h []byte
		var ts int64
		if err := rows.Scan(&h, &ts); err != nil {
			return nil, err
		}
		tx := ledger.Transaction{Hash: toHash(h), Timestamp: ts}
		inputs, outputs, err := s.txInputsOutputs(tx.Hash)
		if err != nil {
			return nil, err
		}
		tx.Inputs = inputs
		tx.Outputs = outputs
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (s *Store) txInputsOutputs(hash [ledger.HashSize]byte) ([]ledger.TxInput, []ledger.TxOutput, error) {
	inRows, err := s.db.Query(`SELECT src_hash, src_idx, signature FROM tx_inputs WHERE tx = ?;`, hashBytes(hash))
	if err != nil {
		return nil, nil, err
	}
	defer inRows.Close()
	var inputs []ledger.TxInput
	for inRows.Next() {
		var srcHash, sig []byte
		var srcIdx int64
		if err := inRows.Scan(&srcHash, &srcIdx, &sig); err != nil {
			return nil, nil, err
		}
		inputs = append(inputs, ledger.TxInput{SrcHash: toHash(srcHash), SrcIdx: srcIdx, Signature: toSig(sig)})
	}
	if err := inRows.Err(); err != nil {
		return nil, nil, err
	}

	outRows, err := s.db.Query(`SELECT amount, address FROM tx_outputs WHERE tx = ? ORDER BY idx ASC;`, hashBytes(hash))
	if err != nil {
		return nil, nil, err
	}
	defer outRows.Close()
	var outputs []ledger.TxOutput
	for outRows.Next() {
		var amount int64
		var addr []byte
		if err := outRows.Scan(&amount, &addr); err != nil {
			return nil, nil, err
		}
		outputs = append(outputs, ledger.TxOutput{Amount: amount, Address: toAddr(addr)})
	}
	return inputs, outputs, outRows.Err()
}

// InsertTransaction inserts a standalone (unmined) transaction. Returns
// ErrValueExists if the hash is already known.
func (s *Store) InsertTransaction(tx *ledger.Transaction) error {
	dbtx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer dbtx.Rollback()

	var exists int
	err = dbtx.QueryRow(`SELECT 1 FROM transactions WHERE hash = ?;`, hashBytes(tx.Hash)).Scan(&exists)
	if err != nil && err != sql.ErrNoRows {
		return err
	}
	if err == nil {
		return ErrValueExists
	}

	if err := insertTxRow(dbtx, tx, nil); err != nil {
		return err
	}
	return dbtx.Commit()
}

func insertTxRow(dbtx *sql.Tx, tx *ledger.Transaction, block []byte) error {
	if _, err := dbtx.Exec(`INSERT INTO transactions (hash, timestamp, block) VALUES (?, ?, ?);`,
		hashBytes(tx.Hash), tx.Timestamp, block); err != nil {
		return err
	}
	for _, in := range tx.Inputs {
		if _, err := dbtx.Exec(`INSERT INTO tx_inputs (tx, src_hash, src_idx, signature) VALUES (?, ?, ?, ?);`,
			hashBytes(tx.Hash), hashBytes(in.SrcHash), in.SrcIdx, in.Signature[:]); err != nil {
			return err
		}
	}
	for i, out := range tx.Outputs {
		if _, err := dbtx.Exec(`INSERT INTO tx_outputs (tx, idx, amount, address) VALUES (?, ?, ?, ?);`,
			hashBytes(tx.Hash), i, out.Amount, out.Address[:]); err != nil {
			return err
		}
	}
	return nil
}

// InsertBlock atomically inserts a block and reassigns every contained
// transaction's block field, inserting any transaction not already
// known. Returns ErrValueExists if the block hash is already known.
func (s *Store) InsertBlock(b *ledger.Block) error {
	dbtx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer dbtx.Rollback()

	var exists int
	err = dbtx.QueryRow(`SELECT 1 FROM blocks WHERE block_hash = ?;`, hashBytes(b.BlockHash)).Scan(&exists)
	if err != nil && err != sql.ErrNoRows {
		return err
	}
	if err == nil {
		return ErrValueExists
	}

	if _, err := dbtx.Exec(`INSERT INTO blocks (block_hash, txs_hash, parent_hash, target, timestamp, nonce) VALUES (?, ?, ?, ?, ?, ?);`,
		hashBytes(b.BlockHash), hashBytes(b.TxsHash), hashBytes(b.ParentHash), b.Target[:], b.Timestamp, b.Nonce); err != nil {
		return err
	}

	for i := range b.Txs {
		tx := &b.Txs[i]
		var txExists int
		err := dbtx.QueryRow(`SELECT 1 FROM transactions WHERE hash = ?;`, hashBytes(tx.Hash)).Scan(&txExists)
		switch {
		case err == sql.ErrNoRows:
			if err := insertTxRow(dbtx, tx, hashBytes(b.BlockHash)); err != nil {
				return fmt.Errorf("store: inserting tx %x for block %x: %w", tx.Hash, b.BlockHash, err)
			}
		case err != nil:
			return err
		default:
			if _, err := dbtx.Exec(`UPDATE transactions SET block = ? WHERE hash = ?;`, hashBytes(b.BlockHash), hashBytes(tx.Hash)); err != nil {
				return err
			}
		}
	}
	return dbtx.Commit()
}
