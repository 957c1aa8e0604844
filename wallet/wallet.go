// Package wallet loads or creates the node's Ed25519 keypair once at
// startup and hands out a read-only handle, instead of re-reading the
// key files on every signature call.
package wallet

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"path/filepath"
)

const (
	walletDir      = ".wallet"
	privateKeyFile = "id_ed25519"
	publicKeyFile  = "id_ed25519.pub"
)

// Wallet is an immutable handle on a loaded Ed25519 keypair.
type Wallet struct {
	public  ed25519.PublicKey
	private ed25519.PrivateKey
}

// Load reads the keypair from the .wallet directory under baseDir,
// generating and persisting a new one on first run.
func Load(baseDir string) (*Wallet, error) {
	dir := filepath.Join(baseDir, walletDir)
	pubPath := filepath.Join(dir, publicKeyFile)
	privPath := filepath.Join(dir, privateKeyFile)

	if _, err := os.Stat(dir); err == nil {
		pub, err := os.ReadFile(pubPath)
		if err != nil {
			return nil, fmt.Errorf("wallet: reading public key: %w", err)
		}
		seed, err := os.ReadFile(privPath)
		if err != nil {
			return nil, fmt.Errorf("wallet: reading private key: %w", err)
		}
		if len(pub) != ed25519.PublicKeySize || len(seed) != ed25519.SeedSize {
			return nil, fmt.Errorf("wallet: key files have unexpected size")
		}
		return &Wallet{public: ed25519.PublicKey(pub), private: ed25519.NewKeyFromSeed(seed)}, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("wallet: stat %s: %w", dir, err)
	}

	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("wallet: generating keypair: %w", err)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("wallet: creating %s: %w", dir, err)
	}
	if err := os.WriteFile(pubPath, pub, 0600); err != nil {
		return nil, fmt.Errorf("wallet: writing public key: %w", err)
	}
	if err := os.WriteFile(privPath, priv.Seed(), 0600); err != nil {
		return nil, fmt.Errorf("wallet: writing private key: %w", err)
	}
	return &Wallet{public: pub, private: priv}, nil
}

// PublicKey returns the wallet's 32-byte Ed25519 public key, which also
// serves as its wire/consensus address.
func (w *Wallet) PublicKey() ed25519.PublicKey {
	return w.public
}

// Address returns the public key as a fixed 32-byte array, the form
// used in TxOutput.Address.
func (w *Wallet) Address() [32]byte {
	var addr [32]byte
	copy(addr[:], w.public)
	return addr
}

// DisplayAddress renders the public key as a base58 string for humans;
// it is cosmetic only and carries no checksum.
func (w *Wallet) DisplayAddress() string {
	return string(Base58Encode(w.public))
}

// Sign signs data with the wallet's private key.
func (w *Wallet) Sign(data []byte) []byte {
	return ed25519.Sign(w.private, data)
}

// PrivateKey exposes the raw private key for packages (ledger) that sign
// whole transactions rather than raw bytes.
func (w *Wallet) PrivateKey() ed25519.PrivateKey {
	return w.private
}
