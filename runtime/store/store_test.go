package store

import (
	"testing"

	"go.domainledger.dev/node/consensus"
	"go.domainledger.dev/node/runtime"
	"go.domainledger.dev/node/staking"
	"go.domainledger.dev/node/storagefund"
)

func mustOpen(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func mustLedgerAndFund(t *testing.T) (*staking.Ledger, *storagefund.Fund) {
	t.Helper()
	ledger, err := staking.NewLedger(staking.Config{MinOperatorStake: 10, MaxNominators: 8})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	fund := storagefund.NewFund(storagefund.Config{ChargePerByte: 1, ProtocolShareNumerator: 1, ProtocolShareDenominator: 10})
	return ledger, fund
}

func TestSaveLoad_RoundTripsScalarsAndRegistries(t *testing.T) {
	db := mustOpen(t)
	ledger, fund := mustLedgerAndFund(t)

	params := runtime.DefaultParams()
	params.StakeEpochDuration = 42
	params.ConfirmationDepth = 7
	s := runtime.NewState(ledger, fund, params)

	rt := s.RegisterDomainRuntime(runtime.RuntimeTypeEVM, [32]byte{9}, 3)
	domain, err := s.InstantiateDomain(consensus.AccountId{1}, rt)
	if err != nil {
		t.Fatalf("instantiate domain: %v", err)
	}
	opID, err := s.RegisterOperator(consensus.AccountId{1}, domain, consensus.PublicKey{2}, 100, 0)
	if err != nil {
		t.Fatalf("register operator: %v", err)
	}

	if err := db.Save(s); err != nil {
		t.Fatalf("save: %v", err)
	}

	loadedLedger, loadedFund := mustLedgerAndFund(t)
	loaded, err := db.Load(loadedLedger, loadedFund)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if loaded.NextRuntimeId != s.NextRuntimeId {
		t.Fatalf("NextRuntimeId = %d, want %d", loaded.NextRuntimeId, s.NextRuntimeId)
	}
	if loaded.NextDomainId != s.NextDomainId {
		t.Fatalf("NextDomainId = %d, want %d", loaded.NextDomainId, s.NextDomainId)
	}
	if loaded.StakeEpochDuration != 42 {
		t.Fatalf("StakeEpochDuration = %d, want 42", loaded.StakeEpochDuration)
	}
	if loaded.PruningDepth != 7 {
		t.Fatalf("PruningDepth = %d, want 7", loaded.PruningDepth)
	}
	entry, ok := loaded.DomainRegistry[domain]
	if !ok || entry.RuntimeId != rt {
		t.Fatalf("domain registry entry = %+v, ok=%v, want RuntimeId %d", entry, ok, rt)
	}
	if _, ok := loaded.OperatorIdOwner[opID]; !ok {
		t.Fatalf("expected operator %d owner to round-trip", opID)
	}
	if _, ok := loaded.BlockTrees[domain]; !ok {
		t.Fatalf("expected block tree for domain %d to round-trip", domain)
	}
	if op, ok := loadedLedger.Operator(opID); !ok || op.CurrentDomainId != domain {
		t.Fatalf("expected staking ledger snapshot to restore operator %d, got %+v ok=%v", opID, op, ok)
	}
	loadedRT, ok := loaded.RuntimeRegistry[rt]
	if !ok || loadedRT.EVMChainId != s.RuntimeRegistry[rt].EVMChainId || loadedRT.EVMChainId == 0 {
		t.Fatalf("expected EVM chain id to round-trip, got %+v (source %+v)", loadedRT, s.RuntimeRegistry[rt])
	}
	if loaded.NextEVMChainId != s.NextEVMChainId {
		t.Fatalf("NextEVMChainId = %d, want %d", loaded.NextEVMChainId, s.NextEVMChainId)
	}
}

func TestSaveLoad_RoundTripsPendingRewards(t *testing.T) {
	db := mustOpen(t)
	ledger, fund := mustLedgerAndFund(t)

	params := runtime.DefaultParams()
	s := runtime.NewState(ledger, fund, params)

	rt := s.RegisterDomainRuntime(runtime.RuntimeTypeEVM, [32]byte{9}, 3)
	domain, err := s.InstantiateDomain(consensus.AccountId{1}, rt)
	if err != nil {
		t.Fatalf("instantiate domain: %v", err)
	}
	opID, err := s.RegisterOperator(consensus.AccountId{1}, domain, consensus.PublicKey{2}, 100, 0)
	if err != nil {
		t.Fatalf("register operator: %v", err)
	}
	s.PendingRewards[domain] = map[consensus.OperatorId]uint64{opID: 55}

	if err := db.Save(s); err != nil {
		t.Fatalf("save: %v", err)
	}

	loadedLedger, loadedFund := mustLedgerAndFund(t)
	loaded, err := db.Load(loadedLedger, loadedFund)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if got := loaded.PendingRewards[domain][opID]; got != 55 {
		t.Fatalf("PendingRewards[domain][opID] = %d, want 55", got)
	}
}

func TestSaveLoad_EmptyStateRoundTrips(t *testing.T) {
	db := mustOpen(t)
	ledger, fund := mustLedgerAndFund(t)
	s := runtime.NewState(ledger, fund, runtime.DefaultParams())

	if err := db.Save(s); err != nil {
		t.Fatalf("save: %v", err)
	}
	loadedLedger, loadedFund := mustLedgerAndFund(t)
	loaded, err := db.Load(loadedLedger, loadedFund)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.DomainRegistry) != 0 || len(loaded.RuntimeRegistry) != 0 {
		t.Fatalf("expected empty registries, got domains=%d runtimes=%d", len(loaded.DomainRegistry), len(loaded.RuntimeRegistry))
	}
}

func TestOpen_ReopensExistingFile(t *testing.T) {
	dir := t.TempDir()
	db1, err := Open(dir)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	ledger, fund := mustLedgerAndFund(t)
	s := runtime.NewState(ledger, fund, runtime.DefaultParams())
	s.RegisterDomainRuntime(runtime.RuntimeTypeEVM, [32]byte{1}, 1)
	if err := db1.Save(s); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := db1.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = db2.Close() }()
	loadedLedger, loadedFund := mustLedgerAndFund(t)
	loaded, err := db2.Load(loadedLedger, loadedFund)
	if err != nil {
		t.Fatalf("load after reopen: %v", err)
	}
	if loaded.NextRuntimeId != 1 {
		t.Fatalf("NextRuntimeId = %d, want 1", loaded.NextRuntimeId)
	}
}
