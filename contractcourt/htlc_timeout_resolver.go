package contractcourt

import (
	"fmt"

	"github.com/btcsuite/btcd/wire"

	"github.com/lnmobile/lncore/chainntfs"
	"github.com/lnmobile/lncore/lnwire"
)

// HTLCResolution carries everything needed to sweep one outgoing HTLC
// output, either via its CLTV timeout clause or (if the commitment is the
// remote party's) via a direct timeout spend.
type HTLCResolution struct {
	ChannelID lnwire.ChannelID
	HTLCIndex uint64
	HTLCAmt   lnwire.MilliSatoshi

	ClaimOutpoint wire.OutPoint
	CLTVExpiry    uint32

	// SecondLevelTx is set when the HTLC output lives on our own
	// commitment: the timeout must go through a pre-signed second-level
	// transaction before its own output sweeps to our wallet.
	SecondLevelTx *wire.MsgTx
}

// htlcTimeoutResolver drives an outgoing HTLC to resolution once it has
// timed out: it waits for the HTLC output (or, on our own commitment, the
// second-level timeout transaction) to confirm, then reports the HTLC as
// permanently failed so the switch can fail it back upstream.
type htlcTimeoutResolver struct {
	resolution HTLCResolution

	notifier chainntfs.ChainNotifier
	monitor  *ChainMonitor

	resolved bool
	quit     chan struct{}
}

// NewHTLCTimeoutResolver constructs a resolver for res, using notifier to
// watch for the confirmations that mark it resolved.
func NewHTLCTimeoutResolver(res HTLCResolution, notifier chainntfs.ChainNotifier,
	monitor *ChainMonitor) *htlcTimeoutResolver {

	return &htlcTimeoutResolver{
		resolution: res,
		notifier:   notifier,
		monitor:    monitor,
		quit:       make(chan struct{}),
	}
}

// Resolve blocks until the HTLC output (or its second-level transaction,
// if on our own commitment) has confirmed, then reports the HTLC as
// permanently failed.
func (h *htlcTimeoutResolver) Resolve() error {
	if h.resolved {
		return nil
	}

	if h.resolution.SecondLevelTx == nil {
		log.Infof("htlc %d: waiting for direct timeout spend of %v",
			h.resolution.HTLCIndex, h.resolution.ClaimOutpoint)
		if err := h.waitForSpend(h.resolution.ClaimOutpoint); err != nil {
			return err
		}
	} else {
		txid := h.resolution.SecondLevelTx.TxHash()
		sweepScript := h.resolution.SecondLevelTx.TxOut[0].PkScript

		log.Infof("htlc %d: waiting for second-level tx %v to confirm",
			h.resolution.HTLCIndex, txid)

		confEvent, err := h.notifier.RegisterConfirmationsNtfn(&txid, sweepScript, 1, 0)
		if err != nil {
			return err
		}
		select {
		case _, ok := <-confEvent.Confirmed:
			if !ok {
				return fmt.Errorf("htlc timeout resolver: notifier quit")
			}
		case <-h.quit:
			return fmt.Errorf("htlc timeout resolver: stopped")
		}
	}

	log.Infof("htlc %d: resolved via timeout", h.resolution.HTLCIndex)
	h.resolved = true
	return nil
}

func (h *htlcTimeoutResolver) waitForSpend(outpoint wire.OutPoint) error {
	spendEvent, err := h.notifier.RegisterSpendNtfn(&outpoint, nil, 0)
	if err != nil {
		return err
	}

	select {
	case _, ok := <-spendEvent.Spend:
		if !ok {
			return fmt.Errorf("htlc timeout resolver: notifier quit")
		}
	case <-h.quit:
		return fmt.Errorf("htlc timeout resolver: stopped")
	}
	return nil
}

// Stop cancels any in-progress wait.
func (h *htlcTimeoutResolver) Stop() {
	close(h.quit)
}

// IsResolved reports whether the HTLC has reached finality.
func (h *htlcTimeoutResolver) IsResolved() bool {
	return h.resolved
}

// htlcSuccessResolver mirrors htlcTimeoutResolver for an incoming HTLC:
// once the monitor observes a success spend (preimage on the witness
// stack), it hands the extracted preimage back to the caller so the
// switch can fulfill the HTLC upstream.
type htlcSuccessResolver struct {
	channelID lnwire.ChannelID
	outpoint  wire.OutPoint

	monitor  *ChainMonitor
	notifier chainntfs.ChainNotifier

	preimage [32]byte
	resolved bool
	quit     chan struct{}
}

// NewHTLCSuccessResolver constructs a resolver that waits for outpoint's
// success spend and extracts its preimage.
func NewHTLCSuccessResolver(channelID lnwire.ChannelID, outpoint wire.OutPoint,
	notifier chainntfs.ChainNotifier, monitor *ChainMonitor) *htlcSuccessResolver {

	return &htlcSuccessResolver{
		channelID: channelID,
		outpoint:  outpoint,
		notifier:  notifier,
		monitor:   monitor,
		quit:      make(chan struct{}),
	}
}

// Resolve waits for the HTLC output's spend, classifies it, and on
// HTLC_SUCCESS extracts the preimage proving the payment was claimed.
func (h *htlcSuccessResolver) Resolve() ([32]byte, error) {
	if h.resolved {
		return h.preimage, nil
	}

	spendEvent, err := h.notifier.RegisterSpendNtfn(&h.outpoint, nil, 0)
	if err != nil {
		return [32]byte{}, err
	}

	var detail *chainntfs.SpendDetail
	select {
	case d, ok := <-spendEvent.Spend:
		if !ok {
			return [32]byte{}, fmt.Errorf("htlc success resolver: notifier quit")
		}
		detail = d
	case <-h.quit:
		return [32]byte{}, fmt.Errorf("htlc success resolver: stopped")
	}

	class, preimage, ok := h.monitor.ProcessTransaction(
		h.channelID, detail.SpendingTx, uint32(detail.SpendingHeight),
	)
	if class != ClassHTLCSuccess || !ok {
		return [32]byte{}, fmt.Errorf("htlc success resolver: spend of %v "+
			"did not carry a preimage (class=%v)", h.outpoint, class)
	}

	h.preimage = preimage
	h.resolved = true

	log.Infof("htlc output %v resolved with preimage %x", h.outpoint, preimage)

	return preimage, nil
}

// Stop cancels any in-progress wait.
func (h *htlcSuccessResolver) Stop() {
	close(h.quit)
}

