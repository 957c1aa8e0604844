// Package ledger implements the canonical byte layout, content hashing,
// signing, and verification rules for transactions and blocks.
package ledger

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"
)

const (
	HashSize      = 32
	AddressSize   = 32
	SignatureSize = ed25519.SignatureSize
)

// TxInput references an earlier transaction's output.
type TxInput struct {
	SrcHash   [HashSize]byte
	SrcIdx    int64
	Signature [SignatureSize]byte
}

// TxOutput assigns value to a public key.
type TxOutput struct {
	Amount  int64
	Address [AddressSize]byte
}

// Transaction is the unit of value transfer.
type Transaction struct {
	Hash      [HashSize]byte
	Timestamp int64
	Inputs    []TxInput
	Outputs   []TxOutput
}

// signableBody concatenates, in order, every input's SrcHash/SrcIdx (the
// Signature field is deliberately excluded) followed by every output's
// Amount/Address.
func (tx *Transaction) signableBody() []byte {
	var buf bytes.Buffer
	for _, in := range tx.Inputs {
		buf.Write(in.SrcHash[:])
		writeI64(&buf, in.SrcIdx)
	}
	for _, out := range tx.Outputs {
		writeI64(&buf, out.Amount)
		buf.Write(out.Address[:])
	}
	return buf.Bytes()
}

// hashableBody prepends the timestamp to the signable body.
func (tx *Transaction) hashableBody() []byte {
	var buf bytes.Buffer
	writeI64(&buf, tx.Timestamp)
	buf.Write(tx.signableBody())
	return buf.Bytes()
}

// ComputeHash derives the content hash from the current field values.
func (tx *Transaction) ComputeHash() [HashSize]byte {
	return sha256.Sum256(tx.hashableBody())
}

// SetHash recomputes and stores the content hash.
func (tx *Transaction) SetHash() {
	tx.Hash = tx.ComputeHash()
}

// Sign stamps the transaction (if Timestamp is zero), computes one
// Ed25519 signature over the signable body, copies it into every input,
// and recomputes the content hash.
func (tx *Transaction) Sign(priv ed25519.PrivateKey) {
	if tx.Timestamp == 0 {
		tx.Timestamp = time.Now().Unix()
	}
	sig := ed25519.Sign(priv, tx.signableBody())
	var sigArr [SignatureSize]byte
	copy(sigArr[:], sig)
	for i := range tx.Inputs {
		tx.Inputs[i].Signature = sigArr
	}
	tx.SetHash()
}

// Verify checks the content hash and, for every input, the Ed25519
// signature against the public key recorded on the referenced output
// (addr). prevOutputAddr must return the address owning (srcHash, idx);
// it is nil-safe to call with a zero-input transaction (coinbase-like
// seed with no inputs).
func (tx *Transaction) Verify(prevOutputAddr func(srcHash [HashSize]byte, idx int64) (ed25519.PublicKey, bool)) bool {
	if tx.ComputeHash() != tx.Hash {
		return false
	}
	body := tx.signableBody()
	for _, in := range tx.Inputs {
		pub, ok := prevOutputAddr(in.SrcHash, in.SrcIdx)
		if !ok {
			return false
		}
		if !ed25519.Verify(pub, body, in.Signature[:]) {
			return false
		}
	}
	return true
}

func writeI64(buf *bytes.Buffer, v int64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(v))
	buf.Write(tmp[:])
}

func readI64(b []byte) int64 {
	return int64(binary.LittleEndian.Uint64(b))
}

// EncodeTransaction writes the external serialized form:
// hash(32) ‖ timestamp(i64) ‖ n_inputs(u32)
//   ‖ { src_hash(32) ‖ src_idx(i64) ‖ signature(64) } × n_inputs
//   ‖ n_outputs(u32)
//   ‖ { amount(i64) ‖ address(32) } × n_outputs
func EncodeTransaction(tx *Transaction) []byte {
	var buf bytes.Buffer
	buf.Write(tx.Hash[:])
	writeI64(&buf, tx.Timestamp)

	var n32 [4]byte
	binary.LittleEndian.PutUint32(n32[:], uint32(len(tx.Inputs)))
	buf.Write(n32[:])
	for _, in := range tx.Inputs {
		buf.Write(in.SrcHash[:])
		writeI64(&buf, in.SrcIdx)
		buf.Write(in.Signature[:])
	}

	binary.LittleEndian.PutUint32(n32[:], uint32(len(tx.Outputs)))
	buf.Write(n32[:])
	for _, out := range tx.Outputs {
		writeI64(&buf, out.Amount)
		buf.Write(out.Address[:])
	}
	return buf.Bytes()
}

// DecodeTransaction parses the external serialized form produced by
// EncodeTransaction. It returns the number of bytes consumed.
func DecodeTransaction(data []byte) (*Transaction, int, error) {
	const minLen = HashSize + 8 + 4 + 4
	if len(data) < minLen {
		return nil, 0, fmt.Errorf("ledger: transaction buffer too short (%d bytes)", len(data))
	}
	tx := &Transaction{}
	idx := 0
	copy(tx.Hash[:], data[idx:idx+HashSize])
	idx += HashSize
	tx.Timestamp = readI64(data[idx : idx+8])
	idx += 8

	nIn := int(binary.LittleEndian.Uint32(data[idx : idx+4]))
	idx += 4
	inputLen := HashSize + 8 + SignatureSize
	if len(data[idx:]) < nIn*inputLen+4 {
		return nil, 0, fmt.Errorf("ledger: transaction buffer truncated in inputs")
	}
	tx.Inputs = make([]TxInput, nIn)
	for i := 0; i < nIn; i++ {
		var in TxInput
		copy(in.SrcHash[:], data[idx:idx+HashSize])
		idx += HashSize
		in.SrcIdx = readI64(data[idx : idx+8])
		idx += 8
		copy(in.Signature[:], data[idx:idx+SignatureSize])
		idx += SignatureSize
		tx.Inputs[i] = in
	}

	nOut := int(binary.LittleEndian.Uint32(data[idx : idx+4]))
	idx += 4
	outputLen := 8 + AddressSize
	if len(data[idx:]) < nOut*outputLen {
		return nil, 0, fmt.Errorf("ledger: transaction buffer truncated in outputs")
	}
	tx.Outputs = make([]TxOutput, nOut)
	for i := 0; i < nOut; i++ {
		var out TxOutput
		out.Amount = readI64(data[idx : idx+8])
		idx += 8
		copy(out.Address[:], data[idx:idx+AddressSize])
		idx += AddressSize
		tx.Outputs[i] = out
	}
	return tx, idx, nil
}

// Equal compares two transactions field-for-field.
func (tx *Transaction) Equal(other *Transaction) bool {
	if tx == nil || other == nil {
		return tx == other
	}
	if tx.Hash != other.Hash || tx.Timestamp != other.Timestamp {
		return false
	}
	if len(tx.Inputs) != len(other.Inputs) || len(tx.Outputs) != len(other.Outputs) {
		return false
	}
	for i := range tx.Inputs {
		if tx.Inputs[i] != other.Inputs[i] {
			return false
		}
	}
	for i := range tx.Outputs {
		if tx.Outputs[i] != other.Outputs[i] {
			return false
		}
	}
	return true
}
