package staking

import "fmt"

// ErrorCode enumerates the ways a staking call can be rejected (spec §4.4).
type ErrorCode string

const (
	ErrOperatorNotFound       ErrorCode = "OPERATOR_NOT_FOUND"
	ErrOperatorNotRegistered  ErrorCode = "OPERATOR_NOT_REGISTERED"
	ErrOperatorAlreadyExists  ErrorCode = "OPERATOR_ALREADY_EXISTS"
	ErrMinimumOperatorStake   ErrorCode = "MINIMUM_OPERATOR_STAKE"
	ErrMinimumNominatorStake  ErrorCode = "MINIMUM_NOMINATOR_STAKE"
	ErrMaxNominatorsReached   ErrorCode = "MAX_NOMINATORS_REACHED"
	ErrInvalidNominationTax   ErrorCode = "INVALID_NOMINATION_TAX"
	ErrNotAllowedToNominate   ErrorCode = "NOT_ALLOWED_TO_NOMINATE"
	ErrNominatorNotFound      ErrorCode = "NOMINATOR_NOT_FOUND"
	ErrInsufficientShares     ErrorCode = "INSUFFICIENT_SHARES"
	ErrWithdrawalNotUnlocked  ErrorCode = "WITHDRAWAL_NOT_UNLOCKED"
	ErrNothingToWithdraw      ErrorCode = "NOTHING_TO_WITHDRAW"
	ErrOperatorAlreadySlashed ErrorCode = "OPERATOR_ALREADY_SLASHED"
	ErrUnknownDomain          ErrorCode = "UNKNOWN_DOMAIN"
	ErrAlreadyInDomain        ErrorCode = "ALREADY_IN_DOMAIN"
	ErrNoPendingSwitch        ErrorCode = "NO_PENDING_SWITCH"
)

type Error struct {
	Code ErrorCode
	Msg  string
}

func (e *Error) Error() string { return fmt.Sprintf("staking: %s: %s", e.Code, e.Msg) }

func errOf(code ErrorCode, msg string) *Error { return &Error{Code: code, Msg: msg} }
