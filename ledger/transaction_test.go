package ledger

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func TestSHA256Conformance(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
		{"abc", "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
		{"abcdbcdecdefdefgefghfghighijhijkijkljklmklmnlmnomnopnopq", "248d6a61d20638b8e5c026930c3e6039a33ce45964ff2167f6ecedd419db06c1"},
	}
	for _, c := range cases {
		sum := sha256.Sum256([]byte(c.input))
		got := hex.EncodeToString(sum[:])
		if got != c.want {
			t.Errorf("sha256(%q) = %s, want %s", c.input, got, c.want)
		}
	}
}

func TestEd25519RoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	inputs := []string{"", "abc", "abcdbcdecdefdefgefghfghighijhijkijkljklmklmnlmnomnopnopq"}
	for _, in := range inputs {
		sig := ed25519.Sign(priv, []byte(in))
		if !ed25519.Verify(pub, []byte(in), sig) {
			t.Errorf("verify failed for input %q", in)
		}
	}
}

func TestTransactionRoundTrip(t *testing.T) {
	tx := &Transaction{Timestamp: 6}
	var in TxInput
	for i := range in.SrcHash {
		in.SrcHash[i] = 1
	}
	in.SrcIdx = 2
	for i := range in.Signature {
		in.Signature[i] = 3
	}
	tx.Inputs = []TxInput{in}

	var out TxOutput
	out.Amount = 4
	for i := range out.Address {
		out.Address[i] = 5
	}
	tx.Outputs = []TxOutput{out}
	tx.SetHash()

	encoded := EncodeTransaction(tx)
	decoded, consumed, err := DecodeTransaction(encoded)
	if err != nil {
		t.Fatalf("DecodeTransaction: %v", err)
	}
	if consumed != len(encoded) {
		t.Fatalf("consumed %d bytes, want %d", consumed, len(encoded))
	}
	if !tx.Equal(decoded) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, tx)
	}
}

func TestTransactionHashIsPureFunction(t *testing.T) {
	tx := &Transaction{Timestamp: 100}
	tx.Outputs = []TxOutput{{Amount: 1}}
	tx.SetHash()
	want := tx.ComputeHash()
	if tx.Hash != want {
		t.Fatalf("hash mismatch after SetHash")
	}
	tx.Timestamp = 200
	if tx.ComputeHash() == want {
		t.Fatalf("hash did not change after mutating timestamp")
	}
}

func TestSignAndVerify(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	srcHash := sha256.Sum256([]byte("seed"))

	tx := &Transaction{Timestamp: 42}
	tx.Inputs = []TxInput{{SrcHash: srcHash, SrcIdx: 0}}
	tx.Outputs = []TxOutput{{Amount: 10}}
	tx.Sign(priv)

	ok := tx.Verify(func(h [HashSize]byte, idx int64) (ed25519.PublicKey, bool) {
		if h == srcHash && idx == 0 {
			return pub, true
		}
		return nil, false
	})
	if !ok {
		t.Fatalf("expected signature to verify")
	}

	otherPub, _, _ := ed25519.GenerateKey(nil)
	ok = tx.Verify(func(h [HashSize]byte, idx int64) (ed25519.PublicKey, bool) {
		return otherPub, true
	})
	if ok {
		t.Fatalf("expected signature verification against wrong key to fail")
	}
}
