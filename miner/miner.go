// Package miner implements the snapshot-retarget-search-publish loop: it
// builds a candidate block from pending transactions and the current
// chain, searches for a nonce satisfying the retargeted proof-of-work
// target, and restarts whenever new network input invalidates the
// snapshot it is working from.
package miner

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"log"
	"time"

	"github.com/kilimba/chainode/ledger"
	"github.com/kilimba/chainode/store"
)

// Store is the subset of store.Store the miner needs: chain headers and
// hydrated pending transactions for the snapshot, and block insertion to
// publish a winning candidate.
type Store interface {
	ListHeaders() ([]ledger.Block, error)
	PendingTransactions() ([]ledger.Transaction, error)
	InsertBlock(b *ledger.Block) error
}

// Miner runs the mining loop against a Store, pre-empting on inbound
// transactions/blocks and publishing successes to mined.
type Miner struct {
	store    Store
	newTx    <-chan *ledger.Transaction
	newBlock <-chan *ledger.Block
	mined    chan<- *ledger.Block
}

// New builds a Miner. newTx and newBlock are read non-blockingly during
// the search to pre-empt it; mined receives every block this node
// successfully produces, for broadcast by the network loop.
func New(s Store, newTx <-chan *ledger.Transaction, newBlock <-chan *ledger.Block, mined chan<- *ledger.Block) *Miner {
	return &Miner{store: s, newTx: newTx, newBlock: newBlock, mined: mined}
}

// Run drives the outer loop until quit is closed.
func (m *Miner) Run(quit <-chan struct{}) {
	for {
		select {
		case <-quit:
			return
		default:
		}

		b, err := m.buildCandidate()
		if err != nil {
			log.Printf("miner: snapshot: %v", err)
			select {
			case <-quit:
				return
			case <-time.After(time.Second):
			}
			continue
		}

		if !Mine(b, quit, m.newTx, m.newBlock) {
			select {
			case <-quit:
				return
			default:
			}
			continue
		}

		if err := m.store.InsertBlock(b); err != nil && !errors.Is(err, store.ErrValueExists) {
			log.Printf("miner: inserting mined block %x: %v", b.BlockHash, err)
			continue
		}

		select {
		case m.mined <- b:
		case <-quit:
			return
		}
	}
}

// buildCandidate takes a snapshot of the chain and pending transactions
// and assembles an unsolved candidate block: parent is the current tip
// (zero hash if the chain is empty), target is freshly retargeted, and
// the nonce starts from a uniformly random value.
func (m *Miner) buildCandidate() (*ledger.Block, error) {
	headers, err := m.store.ListHeaders()
	if err != nil {
		return nil, err
	}
	txs, err := m.store.PendingTransactions()
	if err != nil {
		return nil, err
	}

	var parentHash [ledger.HashSize]byte
	if len(headers) > 0 {
		parentHash = headers[len(headers)-1].BlockHash
	}

	b := &ledger.Block{
		Txs:        txs,
		ParentHash: parentHash,
		Target:     nextTarget(headers),
		Timestamp:  0,
		Nonce:      randomNonce(),
	}
	b.TxsHash = ledger.ComputeTxsHash(b.Txs)
	return b, nil
}

func randomNonce() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return time.Now().UnixNano()
	}
	return int64(binary.LittleEndian.Uint64(buf[:]))
}
