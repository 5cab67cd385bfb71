package storagefund

import (
	"fmt"

	"go.domainledger.dev/node/consensus"
)

// ErrorCode enumerates storage fund rejections (spec §4.6).
type ErrorCode string

const (
	ErrInsufficientFunds ErrorCode = "INSUFFICIENT_FUNDS"
	ErrNoSuchOperator    ErrorCode = "NO_SUCH_OPERATOR"
)

type Error struct {
	Code ErrorCode
	Msg  string
}

func (e *Error) Error() string { return fmt.Sprintf("storagefund: %s: %s", e.Code, e.Msg) }

// Config parameterizes the per-byte charge and the protocol's cut of a
// confirmed bundle's refund (spec §4.6).
type Config struct {
	ChargePerByte            uint64
	ProtocolShareNumerator   uint64
	ProtocolShareDenominator uint64
}

// Fund is the escrow backing bundle storage fees: operators (and their
// nominators, indirectly, through staking) top up a balance here at
// registration and nomination time, bundles are charged per byte on
// submission, and the unused portion (minus the protocol's cut) is returned
// once the bundle's receipt is confirmed (spec §4.6).
type Fund struct {
	cfg      Config
	balances map[consensus.OperatorId]uint64
	// escrowed tracks amounts charged against a still-unconfirmed bundle,
	// keyed by the bundle's preimage hash, so RefundOnConfirmation can
	// return exactly what was charged rather than re-deriving it.
	escrowed map[[32]byte]escrowEntry
}

type escrowEntry struct {
	Operator consensus.OperatorId
	Amount   uint64
}

func NewFund(cfg Config) *Fund {
	return &Fund{
		cfg:      cfg,
		balances: map[consensus.OperatorId]uint64{},
		escrowed: map[[32]byte]escrowEntry{},
	}
}

func (f *Fund) Balance(operator consensus.OperatorId) uint64 { return f.balances[operator] }

// Credit funds an operator's escrow balance, called on operator registration
// and on each nomination.
func (f *Fund) Credit(operator consensus.OperatorId, amount uint64) {
	f.balances[operator] += amount
}

// ChargeForBundle deducts the per-byte fee for a submitted bundle from the
// operator's balance and escrows it against bundleHash pending confirmation
// (spec §4.6, §4.2 "storage-fee charging" step following admission).
func (f *Fund) ChargeForBundle(operator consensus.OperatorId, bundleHash [32]byte, bundleSizeBytes uint64) (uint64, error) {
	charge := f.cfg.ChargePerByte * bundleSizeBytes
	if f.balances[operator] < charge {
		return 0, &Error{Code: ErrInsufficientFunds, Msg: "operator storage fund balance too low for this bundle"}
	}
	f.balances[operator] -= charge
	f.escrowed[bundleHash] = escrowEntry{Operator: operator, Amount: charge}
	return charge, nil
}

// RefundOnConfirmation returns the escrowed charge for bundleHash to the
// operator's balance minus the protocol's share, once the bundle's embedded
// receipt reaches confirmation depth (spec §4.6).
func (f *Fund) RefundOnConfirmation(bundleHash [32]byte) (refunded uint64, protocolCut uint64, err error) {
	entry, ok := f.escrowed[bundleHash]
	if !ok {
		return 0, 0, &Error{Code: ErrNoSuchOperator, Msg: "no escrow entry for this bundle hash"}
	}
	delete(f.escrowed, bundleHash)

	den := f.cfg.ProtocolShareDenominator
	if den == 0 {
		den = 1
	}
	protocolCut = entry.Amount * f.cfg.ProtocolShareNumerator / den
	refunded = entry.Amount - protocolCut
	f.balances[entry.Operator] += refunded
	return refunded, protocolCut, nil
}

// EscrowEntry flattens an in-flight escrow record for Snapshot/Restore.
type EscrowEntry struct {
	BundleHash [32]byte
	Operator   consensus.OperatorId
	Amount     uint64
}

// Snapshot is the serializable form of the fund's balances and in-flight
// escrow (runtime/store).
type Snapshot struct {
	Balances map[consensus.OperatorId]uint64
	Escrowed []EscrowEntry
}

func (f *Fund) Snapshot() Snapshot {
	snap := Snapshot{Balances: make(map[consensus.OperatorId]uint64, len(f.balances))}
	for id, bal := range f.balances {
		snap.Balances[id] = bal
	}
	for hash, e := range f.escrowed {
		snap.Escrowed = append(snap.Escrowed, EscrowEntry{BundleHash: hash, Operator: e.Operator, Amount: e.Amount})
	}
	return snap
}

func (f *Fund) Restore(snap Snapshot) {
	f.balances = make(map[consensus.OperatorId]uint64, len(snap.Balances))
	for id, bal := range snap.Balances {
		f.balances[id] = bal
	}
	f.escrowed = make(map[[32]byte]escrowEntry, len(snap.Escrowed))
	for _, e := range snap.Escrowed {
		f.escrowed[e.BundleHash] = escrowEntry{Operator: e.Operator, Amount: e.Amount}
	}
}
