package runtime

import "fmt"

// Params is the protocol-parameter analogue of the teacher's node.Config:
// one struct, one DefaultParams(), one Validate() pass of cheap checks
// (spec §9 "model these as an explicit State record"; SPEC_FULL.md §A).
type Params struct {
	// ConfirmationDepth is K, the pruning depth at which a block-tree node
	// becomes confirmed (spec §4.1).
	ConfirmationDepth uint64
	// StakeEpochDuration is the domain-block-number interval that triggers
	// an epoch transition on confirmation (spec §4.4).
	StakeEpochDuration uint64
	// BundleLongevity bounds how many slots a bundle may lag behind the
	// current slot before it is rejected as stale (spec §4.2 check 6).
	BundleLongevity uint64
	// MaxNominators bounds the nominator set size per operator (spec §4.5).
	MaxNominators uint32
	// DomainTxRangeAdjustmentInterval is the consensus-block interval the
	// tx-range controller would adjust on, if wired (spec §4.7, §9).
	DomainTxRangeAdjustmentInterval uint64
	// InitialDomainTxRange is checked to be non-zero by Validate. NewState
	// does not keep it, and InstantiateDomain starts every domain's
	// TxRangeState at zero; no initial range is derived from this value.
	InitialDomainTxRange uint64
	// MaxBundleSize and MaxBundleWeight bound a single bundle (spec §4.2
	// check 4).
	MaxBundleSize   uint64
	MaxBundleWeight uint64
	// StorageFeeChargePerByte and the protocol's retained share of a
	// confirmed bundle's refund (spec §4.6).
	StorageFeeChargePerByte  uint64
	ProtocolShareNumerator   uint64
	ProtocolShareDenominator uint64
	// MinOperatorStake / MinNominatorStake / WithdrawalLockDomainBlocks /
	// MaxNominationTax parameterize the staking ledger (spec §4.4).
	MinOperatorStake           uint64
	MinNominatorStake          uint64
	WithdrawalLockDomainBlocks uint64
	MaxNominationTax           uint32
	// SlotProbabilityNumerator/Denominator is the VRF election threshold
	// ("bundle_slot_probability", spec §4.2 check 8).
	SlotProbabilityNumerator   uint64
	SlotProbabilityDenominator uint64
}

// DefaultParams returns conservative, internally-consistent defaults, the
// same role node.DefaultConfig() plays for the teacher's network settings.
func DefaultParams() Params {
	return Params{
		ConfirmationDepth:               10,
		StakeEpochDuration:              100,
		BundleLongevity:                 256,
		MaxNominators:                   256,
		DomainTxRangeAdjustmentInterval: 100,
		InitialDomainTxRange:            6,
		MaxBundleSize:                   4 << 20,
		MaxBundleWeight:                 2_000_000_000,
		StorageFeeChargePerByte:         1,
		ProtocolShareNumerator:          1,
		ProtocolShareDenominator:        10,
		MinOperatorStake:                1_000,
		MinNominatorStake:               10,
		WithdrawalLockDomainBlocks:      14_400,
		MaxNominationTax:                100_000, // 10% in parts-per-million
		SlotProbabilityNumerator:        1,
		SlotProbabilityDenominator:      6,
	}
}

// Validate runs the single pass of cheap, self-contained checks the teacher
// applies in ValidateConfig: every field must be in a range that keeps the
// arithmetic in consensus/staking/storagefund from dividing by zero or
// overflowing in a way that would make the chain unable to make progress.
func Validate(p Params) error {
	if p.ConfirmationDepth == 0 {
		return fmt.Errorf("confirmation_depth must be > 0")
	}
	if p.MaxBundleSize == 0 {
		return fmt.Errorf("max_bundle_size must be > 0")
	}
	if p.MaxBundleWeight == 0 {
		return fmt.Errorf("max_bundle_weight must be > 0")
	}
	if p.SlotProbabilityDenominator == 0 {
		return fmt.Errorf("slot_probability_denominator must be > 0")
	}
	if p.SlotProbabilityNumerator > p.SlotProbabilityDenominator {
		return fmt.Errorf("slot_probability must be <= 1 (numerator <= denominator)")
	}
	if p.ProtocolShareDenominator == 0 {
		return fmt.Errorf("protocol_share_denominator must be > 0")
	}
	if p.ProtocolShareNumerator > p.ProtocolShareDenominator {
		return fmt.Errorf("protocol_share must be <= 1 (numerator <= denominator)")
	}
	if p.MaxNominationTax >= 1_000_000 {
		return fmt.Errorf("max_nomination_tax must be < 1_000_000 (parts-per-million of 1.0)")
	}
	if p.InitialDomainTxRange == 0 {
		return fmt.Errorf("initial_domain_tx_range must be > 0")
	}
	return nil
}
