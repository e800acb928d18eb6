// Package mpp implements multi-part payment splitting on the sender side
// and part collection with invoice matching and timeout sweeping on the
// receiver side.
package mpp

import (
	"fmt"
	"sort"

	"github.com/lnmobile/lncore/lnwire"
)

// DefaultMaxParts is the default cap on the number of HTLCs a payment may
// be split across.
const DefaultMaxParts = 16

// CandidateRoute is one route a sender could dispatch a payment part
// over, already filtered to the hop policies' htlc_maximum_msat.
type CandidateRoute struct {
	// ID identifies the route for the caller; opaque to this package.
	ID string

	// MaxAmt is the largest amount, in millisatoshi, this route can
	// carry given its hops' htlc_maximum_msat and available liquidity.
	MaxAmt lnwire.MilliSatoshi
}

// Part is one HTLC's share of a split payment.
type Part struct {
	RouteID string
	Amount  lnwire.MilliSatoshi
}

// ErrInsufficientLiquidity is returned when the candidate routes cannot
// carry the requested total even when combined.
var ErrInsufficientLiquidity = fmt.Errorf("mpp: total feasible liquidity is less than the payment amount")

// ErrTooManyParts is returned when no split within maxParts parts can
// cover the total while keeping every part at least minPart.
var ErrTooManyParts = fmt.Errorf("mpp: payment cannot be split within the max parts budget")

// Split greedily assigns part sizes across routes, largest-capacity route
// first, such that parts sum to exactly total, each part is >= minPart,
// and at most maxParts parts are used. If maxParts <= 0, DefaultMaxParts
// is used.
func Split(total lnwire.MilliSatoshi, routes []CandidateRoute, maxParts int,
	minPart lnwire.MilliSatoshi) ([]Part, error) {

	if maxParts <= 0 {
		maxParts = DefaultMaxParts
	}

	sorted := make([]CandidateRoute, len(routes))
	copy(sorted, routes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MaxAmt > sorted[j].MaxAmt })

	var totalLiquidity lnwire.MilliSatoshi
	for _, r := range sorted {
		totalLiquidity += r.MaxAmt
	}
	if totalLiquidity < total {
		return nil, ErrInsufficientLiquidity
	}

	var parts []Part
	remaining := total
	for _, r := range sorted {
		if remaining == 0 {
			break
		}
		if len(parts) >= maxParts {
			return nil, ErrTooManyParts
		}

		amt := r.MaxAmt
		if amt > remaining {
			amt = remaining
		}

		// Don't leave a sliver below minPart stranded for the last part:
		// hold back exactly minPart for the routes that follow.
		if rest := remaining - amt; rest > 0 && rest < minPart && remaining >= minPart {
			amt = remaining - minPart
		}
		if amt < minPart {
			continue
		}

		parts = append(parts, Part{RouteID: r.ID, Amount: amt})
		remaining -= amt
	}

	if remaining != 0 {
		return nil, ErrTooManyParts
	}

	return parts, nil
}
