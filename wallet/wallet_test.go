package wallet

import (
	"crypto/ed25519"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesAndReloads(t *testing.T) {
	dir := t.TempDir()

	w1, err := Load(dir)
	if err != nil {
		t.Fatalf("Load (create): %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, walletDir, publicKeyFile)); err != nil {
		t.Fatalf("expected public key file to be created: %v", err)
	}

	w2, err := Load(dir)
	if err != nil {
		t.Fatalf("Load (reload): %v", err)
	}
	if !w1.PublicKey().Equal(w2.PublicKey()) {
		t.Fatalf("reloaded public key does not match original")
	}

	sig := w2.Sign([]byte("hello"))
	if !ed25519.Verify(w1.PublicKey(), []byte("hello"), sig) {
		t.Fatalf("signature from reloaded wallet does not verify against original public key")
	}
}
