package ledger

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// TargetSize is the width of a PoW target / block hash in bytes.
const TargetSize = 32

// Block is a batch of transactions linked to a parent by hash.
type Block struct {
	TxsHash    [HashSize]byte
	Txs        []Transaction
	ParentHash [HashSize]byte
	Target     [TargetSize]byte
	Timestamp  int64
	Nonce      int64
	BlockHash  [HashSize]byte
}

// ComputeTxsHash hashes the ordered concatenation of contained
// transaction hashes.
func ComputeTxsHash(txs []Transaction) [HashSize]byte {
	var buf bytes.Buffer
	for _, tx := range txs {
		buf.Write(tx.Hash[:])
	}
	return sha256.Sum256(buf.Bytes())
}

// hashableBody is txs_hash ‖ parent_hash ‖ target ‖ timestamp(LE) ‖ nonce(LE).
func (b *Block) hashableBody() []byte {
	var buf bytes.Buffer
	buf.Write(b.TxsHash[:])
	buf.Write(b.ParentHash[:])
	buf.Write(b.Target[:])
	writeI64(&buf, b.Timestamp)
	writeI64(&buf, b.Nonce)
	return buf.Bytes()
}

// ComputeBlockHash derives the block hash from the current header fields.
// It does not depend on Txs directly, only on the already-derived TxsHash.
func (b *Block) ComputeBlockHash() [HashSize]byte {
	return sha256.Sum256(b.hashableBody())
}

// SetHashes recomputes TxsHash (from Txs) and BlockHash.
func (b *Block) SetHashes() {
	b.TxsHash = ComputeTxsHash(b.Txs)
	b.BlockHash = b.ComputeBlockHash()
}

// Less reports whether hash is strictly less than target, compared as
// unsigned big-endian 256-bit integers. Fixed-length lexicographic byte
// comparison is sufficient.
func Less(hash, target [TargetSize]byte) bool {
	return bytes.Compare(hash[:], target[:]) < 0
}

// Verify checks every contained transaction and recomputes BlockHash.
// The PoW comparison against Target is enforced by the acceptance layer,
// not here. prevOutputAddr resolves the ed25519 public key owning a
// referenced previous output, for per-input signature checks.
func (b *Block) Verify(prevOutputAddr func(srcHash [HashSize]byte, idx int64) (ed25519.PublicKey, bool)) bool {
	for i := range b.Txs {
		if !b.Txs[i].Verify(prevOutputAddr) {
			return false
		}
	}
	txsHash := ComputeTxsHash(b.Txs)
	return bytes.Equal(b.TxsHash[:], txsHash[:]) && b.ComputeBlockHash() == b.BlockHash
}

// EncodeBlock writes the external serialized form:
// txs_hash(32) ‖ n_txs(u32 LE) ‖ {tx_len(u32 LE) ‖ tx_bytes} × n_txs
//   ‖ parent_hash(32) ‖ target(32) ‖ timestamp(i64 LE) ‖ nonce(i64 LE) ‖ block_hash(32)
func EncodeBlock(b *Block) []byte {
	var buf bytes.Buffer
	buf.Write(b.TxsHash[:])

	var n32 [4]byte
	binary.LittleEndian.PutUint32(n32[:], uint32(len(b.Txs)))
	buf.Write(n32[:])
	for i := range b.Txs {
		txBytes := EncodeTransaction(&b.Txs[i])
		binary.LittleEndian.PutUint32(n32[:], uint32(len(txBytes)))
		buf.Write(n32[:])
		buf.Write(txBytes)
	}

	buf.Write(b.ParentHash[:])
	buf.Write(b.Target[:])
	writeI64(&buf, b.Timestamp)
	writeI64(&buf, b.Nonce)
	buf.Write(b.BlockHash[:])
	return buf.Bytes()
}

// DecodeBlock parses the external serialized form produced by EncodeBlock.
func DecodeBlock(data []byte) (*Block, error) {
	const headLen = HashSize + 4
	if len(data) < headLen {
		return nil, fmt.Errorf("ledger: block buffer too short (%d bytes)", len(data))
	}
	b := &Block{}
	idx := 0
	copy(b.TxsHash[:], data[idx:idx+HashSize])
	idx += HashSize

	nTxs := int(binary.LittleEndian.Uint32(data[idx : idx+4]))
	idx += 4

	b.Txs = make([]Transaction, nTxs)
	for i := 0; i < nTxs; i++ {
		if len(data[idx:]) < 4 {
			return nil, fmt.Errorf("ledger: block buffer truncated before tx %d length", i)
		}
		txLen := int(binary.LittleEndian.Uint32(data[idx : idx+4]))
		idx += 4
		if len(data[idx:]) < txLen {
			return nil, fmt.Errorf("ledger: block buffer truncated in tx %d body", i)
		}
		tx, consumed, err := DecodeTransaction(data[idx : idx+txLen])
		if err != nil {
			return nil, fmt.Errorf("ledger: decoding tx %d: %w", i, err)
		}
		if consumed != txLen {
			return nil, fmt.Errorf("ledger: tx %d consumed %d bytes, length prefix says %d", i, consumed, txLen)
		}
		b.Txs[i] = *tx
		idx += txLen
	}

	tail := HashSize + TargetSize + 8 + 8 + HashSize
	if len(data[idx:]) < tail {
		return nil, fmt.Errorf("ledger: block buffer truncated in trailer")
	}
	copy(b.ParentHash[:], data[idx:idx+HashSize])
	idx += HashSize
	copy(b.Target[:], data[idx:idx+TargetSize])
	idx += TargetSize
	b.Timestamp = readI64(data[idx : idx+8])
	idx += 8
	b.Nonce = readI64(data[idx : idx+8])
	idx += 8
	copy(b.BlockHash[:], data[idx:idx+HashSize])
	idx += HashSize

	return b, nil
}

// Equal compares two blocks field-for-field, including contained
// transactions.
func (b *Block) Equal(other *Block) bool {
	if b == nil || other == nil {
		return b == other
	}
	if b.TxsHash != other.TxsHash || b.ParentHash != other.ParentHash ||
		b.Target != other.Target || b.Timestamp != other.Timestamp ||
		b.Nonce != other.Nonce || b.BlockHash != other.BlockHash {
		return false
	}
	if len(b.Txs) != len(other.Txs) {
		return false
	}
	for i := range b.Txs {
		if !b.Txs[i].Equal(&other.Txs[i]) {
			return false
		}
	}
	return true
}
