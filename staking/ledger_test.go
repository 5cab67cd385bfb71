package staking

import (
	"testing"

	"go.domainledger.dev/node/consensus"
)

func testConfig() Config {
	return Config{
		MinOperatorStake:  100,
		MinNominatorStake: 10,
		MaxNominators:     2,
	}
}

func mustLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := NewLedger(testConfig())
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func TestRegisterOperator_BelowMinStake(t *testing.T) {
	l := mustLedger(t)
	_, err := l.RegisterOperator(1, consensus.PublicKey{1}, 50, 0, 0)
	se, ok := err.(*Error)
	if !ok || se.Code != ErrMinimumOperatorStake {
		t.Fatalf("expected MinimumOperatorStake, got %v", err)
	}
}

func TestRegisterOperator_Success(t *testing.T) {
	l := mustLedger(t)
	id, err := l.RegisterOperator(1, consensus.PublicKey{1}, 100, 50_000, 0)
	if err != nil {
		t.Fatal(err)
	}
	op, ok := l.Operator(id)
	if !ok || op.Status != consensus.OperatorRegistered {
		t.Fatalf("operator not registered: %+v ok=%v", op, ok)
	}
	if op.PendingDeposit != 100 {
		t.Fatalf("pending deposit = %d, want 100", op.PendingDeposit)
	}
}

func TestNominate_MaxNominatorsReached(t *testing.T) {
	l := mustLedger(t)
	id, err := l.RegisterOperator(1, consensus.PublicKey{1}, 100, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Nominate(id, consensus.AccountId{1}, 10, 0); err != nil {
		t.Fatal(err)
	}
	if err := l.Nominate(id, consensus.AccountId{2}, 10, 0); err != nil {
		t.Fatal(err)
	}
	err = l.Nominate(id, consensus.AccountId{3}, 10, 0)
	se, ok := err.(*Error)
	if !ok || se.Code != ErrMaxNominatorsReached {
		t.Fatalf("expected MaxNominatorsReached, got %v", err)
	}
}

func TestNominate_ToppingUpDoesNotCountAgainstBound(t *testing.T) {
	l := mustLedger(t)
	id, err := l.RegisterOperator(1, consensus.PublicKey{1}, 100, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Nominate(id, consensus.AccountId{1}, 10, 0); err != nil {
		t.Fatal(err)
	}
	if err := l.Nominate(id, consensus.AccountId{2}, 10, 0); err != nil {
		t.Fatal(err)
	}
	if err := l.Nominate(id, consensus.AccountId{1}, 10, 0); err != nil {
		t.Fatalf("topping up an existing nominator should not hit the bound: %v", err)
	}
}

func TestDeregister_ThenUnlockOperatorRequiresLockElapsed(t *testing.T) {
	l := mustLedger(t)
	id, err := l.RegisterOperator(1, consensus.PublicKey{1}, 100, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	op, _ := l.Operator(id)
	op.CurrentTotalStake = 100
	l.operators[id].CurrentTotalStake = 100

	if err := l.Deregister(id, 1); err != nil {
		t.Fatal(err)
	}
	_, err = l.UnlockOperator(id, 5, 10)
	se, ok := err.(*Error)
	if !ok || se.Code != ErrWithdrawalNotUnlocked {
		t.Fatalf("expected WithdrawalNotUnlocked, got %v", err)
	}

	amount, err := l.UnlockOperator(id, 10, 10)
	if err != nil {
		t.Fatal(err)
	}
	if amount != 100 {
		t.Fatalf("unlocked amount = %d, want 100", amount)
	}
}

func TestSlash_ZeroesStakeAndCannotBeSlashedTwice(t *testing.T) {
	l := mustLedger(t)
	id, err := l.RegisterOperator(1, consensus.PublicKey{1}, 100, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	l.operators[id].CurrentTotalStake = 500

	amount, err := l.Slash(id)
	if err != nil {
		t.Fatal(err)
	}
	if amount != 500 {
		t.Fatalf("slashed amount = %d, want 500", amount)
	}
	if _, err := l.Slash(id); err == nil {
		t.Fatalf("expected error slashing an already-slashed operator")
	}
}

func TestRequestSwitch_SetsPendingSwitchTo(t *testing.T) {
	l := mustLedger(t)
	id, err := l.RegisterOperator(1, consensus.PublicKey{1}, 100, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.RequestSwitch(id, 2); err != nil {
		t.Fatal(err)
	}
	op, _ := l.Operator(id)
	if op.PendingSwitchTo == nil || *op.PendingSwitchTo != 2 {
		t.Fatalf("PendingSwitchTo = %v, want 2", op.PendingSwitchTo)
	}
}

func TestRequestSwitch_RejectsSameDomain(t *testing.T) {
	l := mustLedger(t)
	id, err := l.RegisterOperator(1, consensus.PublicKey{1}, 100, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	err = l.RequestSwitch(id, 1)
	se, ok := err.(*Error)
	if !ok || se.Code != ErrAlreadyInDomain {
		t.Fatalf("expected AlreadyInDomain, got %v", err)
	}
}

func TestCancelSwitch_ClearsPendingSwitchTo(t *testing.T) {
	l := mustLedger(t)
	id, err := l.RegisterOperator(1, consensus.PublicKey{1}, 100, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.RequestSwitch(id, 2); err != nil {
		t.Fatal(err)
	}
	if err := l.CancelSwitch(id); err != nil {
		t.Fatal(err)
	}
	op, _ := l.Operator(id)
	if op.PendingSwitchTo != nil {
		t.Fatalf("expected PendingSwitchTo cleared, got %v", *op.PendingSwitchTo)
	}
	err = l.CancelSwitch(id)
	se, ok := err.(*Error)
	if !ok || se.Code != ErrNoPendingSwitch {
		t.Fatalf("expected NoPendingSwitch on a second cancel, got %v", err)
	}
}

func TestApplySwitch_MovesOperatorAndClearsPending(t *testing.T) {
	l := mustLedger(t)
	id, err := l.RegisterOperator(1, consensus.PublicKey{1}, 100, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.RequestSwitch(id, 2); err != nil {
		t.Fatal(err)
	}
	l.ApplySwitch(id, 2)
	op, _ := l.Operator(id)
	if op.CurrentDomainId != 2 {
		t.Fatalf("CurrentDomainId = %d, want 2", op.CurrentDomainId)
	}
	if op.PendingSwitchTo != nil {
		t.Fatalf("expected PendingSwitchTo cleared after apply, got %v", *op.PendingSwitchTo)
	}
}

func TestDeregister_ClearsPendingSwitch(t *testing.T) {
	l := mustLedger(t)
	id, err := l.RegisterOperator(1, consensus.PublicKey{1}, 100, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	l.operators[id].CurrentTotalStake = 100
	if err := l.RequestSwitch(id, 2); err != nil {
		t.Fatal(err)
	}
	if err := l.Deregister(id, 1); err != nil {
		t.Fatal(err)
	}
	op, _ := l.Operator(id)
	if op.PendingSwitchTo != nil {
		t.Fatalf("a deregistering operator should never reach its pending target domain, got %v", *op.PendingSwitchTo)
	}
}
