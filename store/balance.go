package store

import (
	"database/sql"

	"github.com/kilimba/chainode/ledger"
)

// UnspentOutputs returns every output addressed to address that no
// accepted transaction's input references, restricted to outputs whose
// transaction has actually been mined into a block.
func (s *Store) UnspentOutputs(address [ledger.AddressSize]byte) ([]ledger.TxOutput, error) {
	rows, err := s.db.Query(`
		SELECT tx_outputs.amount, tx_outputs.address
		FROM tx_outputs
		JOIN transactions ON tx_outputs.tx = transactions.hash
		JOIN blocks ON transactions.block = blocks.block_hash
		WHERE tx_outputs.address = ?
		AND NOT EXISTS (
			SELECT 1 FROM tx_inputs
			WHERE tx_inputs.src_hash = tx_outputs.tx
			AND tx_inputs.src_idx = tx_outputs.idx
		);`, address[:])
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.TxOutput
	for rows.Next() {
		var amount int64
		var addr []byte
		if err := rows.Scan(&amount, &addr); err != nil {
			return nil, err
		}
		out = append(out, ledger.TxOutput{Amount: amount, Address: toAddr(addr)})
	}
	return out, rows.Err()
}

// UnspentOutputRef is an unspent output together with the (tx hash, idx)
// that references it, the form a spending transaction's TxInput needs.
type UnspentOutputRef struct {
	SrcHash [ledger.HashSize]byte
	SrcIdx  int64
	Output  ledger.TxOutput
}

// UnspentOutputRefs is UnspentOutputs plus each output's originating
// (tx hash, idx), for building a spending transaction's inputs.
func (s *Store) UnspentOutputRefs(address [ledger.AddressSize]byte) ([]UnspentOutputRef, error) {
	rows, err := s.db.Query(`
		SELECT tx_outputs.tx, tx_outputs.idx, tx_outputs.amount, tx_outputs.address
		FROM tx_outputs
		JOIN transactions ON tx_outputs.tx = transactions.hash
		JOIN blocks ON transactions.block = blocks.block_hash
		WHERE tx_outputs.address = ?
		AND NOT EXISTS (
			SELECT 1 FROM tx_inputs
			WHERE tx_inputs.src_hash = tx_outputs.tx
			AND tx_inputs.src_idx = tx_outputs.idx
		);`, address[:])
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UnspentOutputRef
	for rows.Next() {
		var txHash, addr []byte
		var idx, amount int64
		if err := rows.Scan(&txHash, &idx, &amount, &addr); err != nil {
			return nil, err
		}
		out = append(out, UnspentOutputRef{
			SrcHash: toHash(txHash),
			SrcIdx:  idx,
			Output:  ledger.TxOutput{Amount: amount, Address: toAddr(addr)},
		})
	}
	return out, rows.Err()
}

// Balance sums the amounts of every unspent output addressed to address.
func (s *Store) Balance(address [ledger.AddressSize]byte) (int64, error) {
	outputs, err := s.UnspentOutputs(address)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, o := range outputs {
		total += o.Amount
	}
	return total, nil
}

// OutputAddress resolves the address owning the output (srcHash, idx),
// used by ledger.Transaction.Verify / ledger.Block.Verify callbacks.
func (s *Store) OutputAddress(srcHash [ledger.HashSize]byte, idx int64) ([ledger.AddressSize]byte, bool, error) {
	row := s.db.QueryRow(`SELECT address FROM tx_outputs WHERE tx = ? AND idx = ?;`, hashBytes(srcHash), idx)
	var addr []byte
	if err := row.Scan(&addr); err != nil {
		if err == sql.ErrNoRows {
			return [ledger.AddressSize]byte{}, false, nil
		}
		return [ledger.AddressSize]byte{}, false, err
	}
	return toAddr(addr), true, nil
}
