package runtime

import (
	"fmt"

	"go.domainledger.dev/node/consensus"
	"go.domainledger.dev/node/staking"
	"go.domainledger.dev/node/storagefund"
)

// Subsystem tags which closed error union produced an Error (spec §7: "a
// single outer error union tags each failure with its originating
// subsystem").
type Subsystem string

const (
	SubsystemFraudProof             Subsystem = "FraudProof"
	SubsystemRuntimeRegistry        Subsystem = "RuntimeRegistry"
	SubsystemStaking                Subsystem = "Staking"
	SubsystemStakingEpoch           Subsystem = "StakingEpoch"
	SubsystemDomainRegistry         Subsystem = "DomainRegistry"
	SubsystemBlockTree              Subsystem = "BlockTree"
	SubsystemBundleStorageFund      Subsystem = "BundleStorageFund"
	SubsystemPermissionedAction     Subsystem = "PermissionedActionNotAllowed"
)

// Error is the outer union every dispatch handler returns (spec §7).
type Error struct {
	Subsystem Subsystem
	Code      string
	Msg       string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s: %s", e.Subsystem, e.Code, e.Msg) }

// wrap classifies an error returned by one of the subsystem packages into
// the outer union, preserving its original code and message.
func wrap(subsystem Subsystem, err error) *Error {
	if err == nil {
		return nil
	}
	switch e := err.(type) {
	case *consensus.BlockTreeError:
		return &Error{Subsystem: SubsystemBlockTree, Code: string(e.Code), Msg: e.Msg}
	case *consensus.FraudProofError:
		return &Error{Subsystem: SubsystemFraudProof, Code: string(e.Code), Msg: e.Msg}
	case *consensus.BundleError:
		return &Error{Subsystem: subsystem, Code: string(e.Code), Msg: e.Msg}
	case *staking.Error:
		return &Error{Subsystem: subsystem, Code: string(e.Code), Msg: e.Msg}
	case *storagefund.Error:
		return &Error{Subsystem: SubsystemBundleStorageFund, Code: string(e.Code), Msg: e.Msg}
	default:
		return &Error{Subsystem: subsystem, Code: "INTERNAL", Msg: err.Error()}
	}
}

func errOf(subsystem Subsystem, code, msg string) *Error {
	return &Error{Subsystem: subsystem, Code: code, Msg: msg}
}
