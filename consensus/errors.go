package consensus

import "fmt"

// ErrorCode is a closed enumeration of block-tree failure reasons, kept as a
// distinct string type (not an int) so values survive round-tripping through
// JSON/log output unambiguously — the same split the teacher used for
// TxError/ErrorCode.
type ErrorCode string

const (
	ErrStale                         ErrorCode = "STALE"
	ErrInFuture                      ErrorCode = "IN_FUTURE"
	ErrUnknownParent                 ErrorCode = "UNKNOWN_PARENT"
	ErrBuiltOnUnknownConsensusBlock  ErrorCode = "BUILT_ON_UNKNOWN_CONSENSUS_BLOCK"
	ErrUnavailableConsensusBlockHash ErrorCode = "UNAVAILABLE_CONSENSUS_BLOCK_HASH"
	ErrNewBranchReceipt              ErrorCode = "NEW_BRANCH_RECEIPT"
	ErrGenesisReceiptImmutable       ErrorCode = "GENESIS_RECEIPT_IMMUTABLE"
	ErrUnknownDomain                 ErrorCode = "UNKNOWN_DOMAIN"
	ErrNodeNotFound                  ErrorCode = "NODE_NOT_FOUND"
)

// BlockTreeError is the typed failure returned by classify/process/prune (C1).
// Bundle admission wraps this as BundleError.Receipt(err); fraud-proof
// verification reports an unresolvable target as a FraudProofError instead.
type BlockTreeError struct {
	Code ErrorCode
	Msg  string
}

func (e *BlockTreeError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func blockTreeErr(code ErrorCode, msg string) *BlockTreeError {
	return &BlockTreeError{Code: code, Msg: msg}
}
