package mpp

import (
	"fmt"
	"sync"
	"time"

	"github.com/lnmobile/lncore/clock"
	"github.com/lnmobile/lncore/lnwire"
	"github.com/lnmobile/lncore/queue"
)

// DefaultTimeout is how long a payment_hash's first part may sit
// unfulfilled before the whole set is failed back.
const DefaultTimeout = 60 * time.Second

// FailureCode is a BOLT #4 final-node failure reason.
type FailureCode uint16

const (
	FailureIncorrectOrUnknownPaymentDetails FailureCode = iota
	FailureIncorrectHTLCAmount
	FailureMPPTimeout
)

// PartArrival describes one HTLC landing on the final hop.
type PartArrival struct {
	PaymentHash   [32]byte
	HTLCID        uint64
	PaymentSecret [32]byte
	AmountMsat    lnwire.MilliSatoshi
	TotalMsat     lnwire.MilliSatoshi
}

// Invoice is the receiver's expectation for a payment_hash, registered
// ahead of any HTLC arriving for it.
type Invoice struct {
	PaymentHash   [32]byte
	PaymentSecret [32]byte
}

// Action is emitted onto the registry's queue once a payment_hash's set of
// parts can be finally resolved.
type Action struct {
	PaymentHash [32]byte
	HTLCIDs     []uint64
	Fulfill     bool
	FailureCode FailureCode
}

type pendingSet struct {
	secret    [32]byte
	total     lnwire.MilliSatoshi
	received  lnwire.MilliSatoshi
	htlcIDs   []uint64
	firstSeen time.Time
}

// ReceiverRegistry collects in-flight HTLC parts keyed by payment_hash,
// matching them against registered invoices and emitting fulfill/reject
// Actions onto a single-writer queue once each set resolves.
type ReceiverRegistry struct {
	mu sync.Mutex

	clock    clock.Clock
	timeout  time.Duration
	invoices map[[32]byte]Invoice
	pending  map[[32]byte]*pendingSet

	actions *queue.ConcurrentQueue[Action]
	quit    chan struct{}
}

// NewReceiverRegistry constructs a registry. timeout <= 0 selects
// DefaultTimeout.
func NewReceiverRegistry(clk clock.Clock, timeout time.Duration) *ReceiverRegistry {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ReceiverRegistry{
		clock:    clk,
		timeout:  timeout,
		invoices: make(map[[32]byte]Invoice),
		pending:  make(map[[32]byte]*pendingSet),
		actions:  queue.NewConcurrentQueue[Action](64),
		quit:     make(chan struct{}),
	}
}

// Actions returns the channel of resolved fulfill/reject decisions.
func (r *ReceiverRegistry) Actions() <-chan Action { return r.actions.ChanOut() }

// RegisterInvoice makes inv's secret known so future parts can be matched
// against it.
func (r *ReceiverRegistry) RegisterInvoice(inv Invoice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invoices[inv.PaymentHash] = inv
}

// Start launches the queue dispatcher and the timeout sweep loop, and
// returns a stop function.
func (r *ReceiverRegistry) Start(sweepInterval time.Duration) func() {
	stopQueue := r.actions.Start()

	go func() {
		for {
			select {
			case <-r.clock.TickAfter(sweepInterval):
				r.sweepExpired()
			case <-r.quit:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(r.quit) })
		stopQueue()
	}
}

// HandlePart processes one arriving HTLC part, returning immediately
// whether it was rejected outright; acceptance/fulfillment is reported
// asynchronously via Actions().
func (r *ReceiverRegistry) HandlePart(arrival PartArrival) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inv, known := r.invoices[arrival.PaymentHash]
	if !known || inv.PaymentSecret != arrival.PaymentSecret {
		r.actions.Push(Action{
			PaymentHash: arrival.PaymentHash,
			HTLCIDs:     []uint64{arrival.HTLCID},
			FailureCode: FailureIncorrectOrUnknownPaymentDetails,
		})
		return fmt.Errorf("mpp: unknown payment_hash or payment_secret mismatch")
	}

	set, exists := r.pending[arrival.PaymentHash]
	if !exists {
		set = &pendingSet{
			secret:    arrival.PaymentSecret,
			total:     arrival.TotalMsat,
			firstSeen: r.clock.Now(),
		}
		r.pending[arrival.PaymentHash] = set
	} else if set.total != arrival.TotalMsat {
		r.actions.Push(Action{
			PaymentHash: arrival.PaymentHash,
			HTLCIDs:     append(set.htlcIDs, arrival.HTLCID),
			FailureCode: FailureIncorrectHTLCAmount,
		})
		delete(r.pending, arrival.PaymentHash)
		return fmt.Errorf("mpp: declared total_msat disagrees with the first part's total")
	}

	set.received += arrival.AmountMsat
	set.htlcIDs = append(set.htlcIDs, arrival.HTLCID)

	if set.received >= set.total {
		log.Debugf("mpp: payment_hash=%x complete, %d parts, %d msat",
			arrival.PaymentHash, len(set.htlcIDs), set.received)
		r.actions.Push(Action{
			PaymentHash: arrival.PaymentHash,
			HTLCIDs:     set.htlcIDs,
			Fulfill:     true,
		})
		delete(r.pending, arrival.PaymentHash)
	}

	return nil
}

// sweepExpired fails back any payment_hash whose first part has been
// pending longer than the configured timeout.
func (r *ReceiverRegistry) sweepExpired() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	for hash, set := range r.pending {
		if now.Sub(set.firstSeen) < r.timeout {
			continue
		}
		log.Warnf("mpp: payment_hash=%x timed out with %d/%d msat received",
			hash, set.received, set.total)
		r.actions.Push(Action{
			PaymentHash: hash,
			HTLCIDs:     set.htlcIDs,
			FailureCode: FailureMPPTimeout,
		})
		delete(r.pending, hash)
	}
}
