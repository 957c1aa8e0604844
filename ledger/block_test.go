package ledger

import (
	"crypto/ed25519"
	"testing"
)

func signedTx(t *testing.T, priv ed25519.PrivateKey, srcHash [HashSize]byte, amount int64, addr [AddressSize]byte) Transaction {
	t.Helper()
	tx := Transaction{Timestamp: 1}
	tx.Inputs = []TxInput{{SrcHash: srcHash, SrcIdx: 0}}
	tx.Outputs = []TxOutput{{Amount: amount, Address: addr}}
	tx.Sign(priv)
	return tx
}

func TestBlockRoundTrip(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	var addr [AddressSize]byte
	copy(addr[:], pub)
	var srcHash [HashSize]byte
	srcHash[0] = 9

	tx1 := signedTx(t, priv, srcHash, 10, addr)
	tx2 := signedTx(t, priv, srcHash, 20, addr)

	b := &Block{Txs: []Transaction{tx1, tx2}, Timestamp: 1000, Nonce: 7}
	b.Target = MaxTarget()
	b.SetHashes()

	encoded := EncodeBlock(b)
	decoded, err := DecodeBlock(encoded)
	if err != nil {
		t.Fatalf("DecodeBlock: %v", err)
	}
	if !b.Equal(decoded) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, b)
	}
}

func TestBlockHashesArePureFunctions(t *testing.T) {
	tx := Transaction{Timestamp: 1, Outputs: []TxOutput{{Amount: 1}}}
	tx.SetHash()

	b := &Block{Txs: []Transaction{tx}, Target: MaxTarget(), Timestamp: 5, Nonce: 1}
	b.SetHashes()

	if b.TxsHash != ComputeTxsHash(b.Txs) {
		t.Fatalf("txs_hash is not SHA256(concat(tx hashes))")
	}
	if b.BlockHash != b.ComputeBlockHash() {
		t.Fatalf("block_hash is not a pure function of the hashable body")
	}

	before := b.BlockHash
	b.Txs[0].Outputs[0].Amount = 999
	if b.ComputeBlockHash() != before {
		t.Fatalf("block_hash changed after mutating Txs directly; it must depend only on TxsHash")
	}
}

func TestBlockVerify(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	var addr [AddressSize]byte
	copy(addr[:], pub)
	var srcHash [HashSize]byte

	tx := signedTx(t, priv, srcHash, 5, addr)
	b := &Block{Txs: []Transaction{tx}, Target: MaxTarget(), Timestamp: 1}
	b.SetHashes()

	resolve := func(h [HashSize]byte, idx int64) (ed25519.PublicKey, bool) {
		return pub, true
	}
	if !b.Verify(resolve) {
		t.Fatalf("expected block to verify")
	}

	tampered := *b
	tampered.ParentHash[0] = 1
	if tampered.Verify(resolve) {
		t.Fatalf("expected verify to fail after tampering with parent hash without recomputing block_hash")
	}
}

func TestLess(t *testing.T) {
	var small, large [TargetSize]byte
	large[0] = 1
	if !Less(small, large) {
		t.Fatalf("expected %v < %v", small, large)
	}
	if Less(large, small) {
		t.Fatalf("expected %v to not be < %v", large, small)
	}
	if Less(small, small) {
		t.Fatalf("expected strict less-than: equal values must not compare less")
	}
}

func TestGenesisTargetBytePattern(t *testing.T) {
	target := GenesisTarget()
	for i, b := range target {
		switch i {
		case 2:
			if b != 0x7F {
				t.Fatalf("byte 2 = %#x, want 0x7F", b)
			}
		default:
			if b != 0 {
				t.Fatalf("byte %d = %#x, want 0", i, b)
			}
		}
	}
}
