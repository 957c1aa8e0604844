package miner

import (
	"math/big"

	"github.com/kilimba/chainode/ledger"
)

// targetFreq is the desired mean seconds between blocks.
const targetFreq = 10

// nextTarget computes the PoW target for the next candidate block from
// headers (ordered oldest to newest, as returned by store.ListHeaders).
// With fewer than two blocks it returns the fixed genesis target. Otherwise
// it averages the inter-block interval and the target over the last
// min(10, len(headers)) blocks and scales the mean target by dt/targetFreq.
// A non-positive dt (clock skew, duplicate timestamps) reuses the most
// recent block's target unchanged.
func nextTarget(headers []ledger.Block) [ledger.TargetSize]byte {
	if len(headers) < 2 {
		return ledger.GenesisTarget()
	}

	n := len(headers)
	if n > 10 {
		n = 10
	}
	window := headers[len(headers)-n:]

	var dtSum int64
	for i := 1; i < len(window); i++ {
		dtSum += window[i].Timestamp - window[i-1].Timestamp
	}
	count := int64(len(window) - 1)
	var dt int64
	if count > 0 {
		dt = dtSum / count
	}

	latest := window[len(window)-1].Target
	if dt <= 0 {
		return latest
	}

	sum := new(big.Int)
	for _, h := range window {
		sum.Add(sum, new(big.Int).SetBytes(h.Target[:]))
	}
	mean := sum.Div(sum, big.NewInt(int64(len(window))))

	next := mean.Mul(mean, big.NewInt(dt))
	next.Div(next, big.NewInt(targetFreq))

	var out [ledger.TargetSize]byte
	if next.BitLen() > ledger.TargetSize*8 {
		max := ledger.MaxTarget()
		return max
	}
	next.FillBytes(out[:])
	return out
}
