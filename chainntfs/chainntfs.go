// Package chainntfs defines the notifier abstraction the on-chain pieces of
// this module (contractcourt's HTLC resolvers) use to
// learn about spends and confirmations without depending on a concrete
// chain backend.
package chainntfs

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// ChainNotifier is a trusted source of notifications about targeted events
// on the Bitcoin blockchain. The interface is intentionally general so it
// can be backed by a full node's RPC, a light client, or a test double.
type ChainNotifier interface {
	// RegisterConfirmationsNtfn registers an intent to be notified once
	// txid reaches numConfs confirmations.
	RegisterConfirmationsNtfn(txid *chainhash.Hash, pkScript []byte,
		numConfs, heightHint uint32) (*ConfirmationEvent, error)

	// RegisterSpendNtfn registers an intent to be notified once the
	// given outpoint is spent by a confirmed transaction.
	RegisterSpendNtfn(outpoint *wire.OutPoint, pkScript []byte,
		heightHint uint32) (*SpendEvent, error)

	// RegisterBlockEpochNtfn registers an intent to be notified of each
	// new block connected to the chain tip.
	RegisterBlockEpochNtfn() (*BlockEpochEvent, error)

	// Start readies the notifier to accept registrations.
	Start() error

	// Stop tears the notifier down, closing every pending client
	// channel.
	Stop() error
}

// ConfirmationEvent is delivered once a transaction reaches its requested
// depth, or if the transaction it reports on gets reorged out.
type ConfirmationEvent struct {
	Confirmed    chan *TxConfirmation // MUST be buffered.
	NegativeConf chan int32           // MUST be buffered.
}

// TxConfirmation carries the details of a confirmed transaction.
type TxConfirmation struct {
	Tx          *wire.MsgTx
	BlockHeight uint32
	BlockHash   *chainhash.Hash
	TxIndex     uint32
}

// SpendDetail describes a spend of a registered outpoint.
type SpendDetail struct {
	SpentOutPoint     *wire.OutPoint
	SpenderTxHash     *chainhash.Hash
	SpendingTx        *wire.MsgTx
	SpenderInputIndex uint32
	SpendingHeight    int32
}

// SpendEvent is delivered once the registered outpoint is spent.
type SpendEvent struct {
	Spend chan *SpendDetail // MUST be buffered.
}

// BlockEpoch carries the metadata of one newly connected block.
type BlockEpoch struct {
	Height int32
	Hash   *chainhash.Hash
}

// BlockEpochEvent streams each new block connected to the chain tip.
type BlockEpochEvent struct {
	Epochs chan *BlockEpoch // MUST be buffered.
	Cancel func()
}
