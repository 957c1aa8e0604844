package miner

import (
	"math"
	"time"

	"github.com/kilimba/chainode/ledger"
)

// Mine searches for a nonce that drives b's block hash strictly below
// b.Target, mutating b.Timestamp, b.Nonce, and b.BlockHash in place on
// every iteration. b.TxsHash must already be set.
//
// Between nonce increments it non-blockingly polls quit, newTx, and
// newBlock; any one of them firing abandons the search and returns false,
// signalling the caller to rebuild a fresh candidate from a new snapshot.
func Mine(b *ledger.Block, quit <-chan struct{}, newTx <-chan *ledger.Transaction, newBlock <-chan *ledger.Block) bool {
	for {
		select {
		case <-quit:
			return false
		case <-newTx:
			return false
		case <-newBlock:
			return false
		default:
		}

		b.Timestamp = time.Now().Unix()
		if b.Nonce == math.MaxInt64 {
			b.Nonce = 0
		} else {
			b.Nonce++
		}
		b.BlockHash = b.ComputeBlockHash()
		if ledger.Less(b.BlockHash, b.Target) {
			return true
		}
	}
}
