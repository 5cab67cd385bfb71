package runtime

import "go.domainledger.dev/node/consensus"

// Event is the tagged union of everything State.emit can produce (spec §6
// "Events"). Concrete event types below carry only the fields their
// subscribers need; dispatch handlers never flatten them into strings
// (spec §9, "pattern-match exhaustively").
type Event interface{ isEvent() }

type BundleStored struct {
	Domain     consensus.DomainId
	BlockNumber uint64
	BundleHash  [32]byte
}

type DomainRuntimeCreated struct{ RuntimeId consensus.RuntimeId }
type DomainRuntimeUpgradeScheduled struct {
	RuntimeId consensus.RuntimeId
	AtBlock   uint64
}
type DomainRuntimeUpgraded struct{ RuntimeId consensus.RuntimeId }

type OperatorRegisteredEvent struct {
	Operator consensus.OperatorId
	Domain   consensus.DomainId
}
type OperatorNominated struct {
	Operator  consensus.OperatorId
	Nominator consensus.AccountId
	Amount    uint64
}
type DomainInstantiated struct{ Domain consensus.DomainId }
type OperatorSwitchedDomain struct {
	Operator consensus.OperatorId
	To       consensus.DomainId
}
type OperatorDeregistered struct{ Operator consensus.OperatorId }
type OperatorUnlocked struct{ Operator consensus.OperatorId }
type WithdrewStake struct {
	Operator  consensus.OperatorId
	Nominator consensus.AccountId
}
type FundsUnlocked struct {
	Operator  consensus.OperatorId
	Nominator consensus.AccountId
	Amount    uint64
}
type OperatorRewarded struct {
	Operator consensus.OperatorId
	Amount   uint64
}
type OperatorTaxCollected struct {
	Operator consensus.OperatorId
	Amount   uint64
}
type DomainEpochCompletedEvent struct {
	Domain     consensus.DomainId
	EpochIndex consensus.EpochIndex
}
type ForceDomainEpochTransition struct{ Domain consensus.DomainId }
type FraudProofProcessed struct {
	Domain              consensus.DomainId
	NewHeadReceiptNumber *uint64
}
type DomainOperatorAllowListUpdated struct{ Domain consensus.DomainId }
type OperatorSlashedEvent struct {
	Operator consensus.OperatorId
	Reason   SlashReason
}
type StorageFeeDeposited struct {
	Operator consensus.OperatorId
	Amount   uint64
}

func (BundleStored) isEvent()                   {}
func (DomainRuntimeCreated) isEvent()            {}
func (DomainRuntimeUpgradeScheduled) isEvent()   {}
func (DomainRuntimeUpgraded) isEvent()           {}
func (OperatorRegisteredEvent) isEvent()         {}
func (OperatorNominated) isEvent()               {}
func (DomainInstantiated) isEvent()              {}
func (OperatorSwitchedDomain) isEvent()          {}
func (OperatorDeregistered) isEvent()            {}
func (OperatorUnlocked) isEvent()                {}
func (WithdrewStake) isEvent()                   {}
func (FundsUnlocked) isEvent()                   {}
func (OperatorRewarded) isEvent()                {}
func (OperatorTaxCollected) isEvent()            {}
func (DomainEpochCompletedEvent) isEvent()       {}
func (ForceDomainEpochTransition) isEvent()      {}
func (FraudProofProcessed) isEvent()             {}
func (DomainOperatorAllowListUpdated) isEvent()  {}
func (OperatorSlashedEvent) isEvent()            {}
func (StorageFeeDeposited) isEvent()             {}
