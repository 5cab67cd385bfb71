// Package store persists a runtime.State to disk, one bbolt bucket per
// spec-listed table, the same bucket-per-table layout node/store uses for
// the UTXO chain (headers/blocks/index/utxo/undo). Values are JSON rather
// than hand-rolled binary codecs: the teacher already reaches for
// encoding/json for its MANIFEST.json commit point, and runtime.State's
// tables are config/bookkeeping records, not hot-path wire data.
package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"go.domainledger.dev/node/consensus"
	"go.domainledger.dev/node/runtime"
	"go.domainledger.dev/node/staking"
	"go.domainledger.dev/node/storagefund"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketMeta                = []byte("meta")
	bucketRuntimeRegistry     = []byte("runtime_registry")
	bucketScheduledUpgrades   = []byte("scheduled_runtime_upgrades")
	bucketOperatorOwner       = []byte("operator_id_owner")
	bucketOperatorSigningKey  = []byte("operator_signing_key")
	bucketStakingSummary      = []byte("domain_staking_summary")
	bucketPendingSwitches     = []byte("pending_operator_switches")
	bucketPendingSlashes      = []byte("pending_slashes")
	bucketPendingRewards      = []byte("pending_rewards")
	bucketPendingOpCount      = []byte("pending_staking_operation_count")
	bucketDomainRegistry      = []byte("domain_registry")
	bucketBlockTrees          = []byte("block_trees")
	bucketHeadExtended        = []byte("head_receipt_extended")
	bucketConsensusBlockHash  = []byte("consensus_block_hash")
	bucketExecutionInbox      = []byte("execution_inbox")
	bucketInboxedAuthor       = []byte("inboxed_bundle_author")
	bucketHeadDomainNumber    = []byte("head_domain_number")
	bucketLastEpochDist       = []byte("last_epoch_staking_distribution")
	bucketLatestConfirmed     = []byte("latest_confirmed_domain_block")
	bucketLatestSubmittedER   = []byte("latest_submitted_er")
	bucketPermissionedAction  = []byte("permissioned_action_allowed_by")
	bucketTxRangeState        = []byte("domain_tx_range_state")
	bucketSuccessfulBundles   = []byte("successful_bundles")
	bucketSuccessfulFP        = []byte("successful_fraud_proofs")
	bucketLedgerSnapshot      = []byte("staking_ledger_snapshot")
	bucketFundSnapshot        = []byte("bundle_storage_fund_snapshot")
)

var allBuckets = [][]byte{
	bucketMeta, bucketRuntimeRegistry, bucketScheduledUpgrades,
	bucketOperatorOwner, bucketOperatorSigningKey, bucketStakingSummary,
	bucketPendingSwitches, bucketPendingSlashes, bucketPendingRewards, bucketPendingOpCount,
	bucketDomainRegistry, bucketBlockTrees, bucketHeadExtended,
	bucketConsensusBlockHash, bucketExecutionInbox, bucketInboxedAuthor,
	bucketHeadDomainNumber, bucketLastEpochDist, bucketLatestConfirmed,
	bucketLatestSubmittedER, bucketPermissionedAction, bucketTxRangeState,
	bucketSuccessfulBundles, bucketSuccessfulFP, bucketLedgerSnapshot,
	bucketFundSnapshot,
}

// DB wraps a bbolt file holding one domain-control module's full state.
type DB struct {
	db *bolt.DB
}

// Open creates (or reopens) the bbolt file under datadir/domain-control.db,
// creating every table bucket if absent, the same CreateBucketIfNotExists
// sweep node/store.Open performs for the UTXO chain's buckets.
func Open(datadir string) (*DB, error) {
	path := filepath.Join(datadir, "domain-control.db")
	bdb, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt: %w", err)
	}
	if err := bdb.Update(func(tx *bolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", string(b), err)
			}
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, err
	}
	return &DB{db: bdb}, nil
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func u64key(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func putJSON(b *bolt.Bucket, key []byte, v interface{}) error {
	enc, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, enc)
}

// meta is the snapshot of runtime.State's scalar id counters and tunables
// (spec §6 NextRuntimeId / NextEVMChainId / NextOperatorId / NextDomainId).
type meta struct {
	NextRuntimeId  consensus.RuntimeId
	NextEVMChainId consensus.EVMChainId
	NextOperatorId consensus.OperatorId
	NextDomainId   consensus.DomainId

	StakeEpochDuration uint64
	PruningDepth       uint64
	BundleLongevity    uint64
	TotalStake         uint64
	SlotProbability    [2]uint64
}

type inboxEntry struct {
	Domain               consensus.DomainId
	DomainBlockNumber    uint64
	ConsensusBlockNumber uint64
	Digests              []consensus.BundleDigest
}

type latestERentry struct {
	Domain   consensus.DomainId
	Operator consensus.OperatorId
	Number   uint64
}

// Save writes every table of s into its bucket inside a single bbolt
// transaction, so a crash mid-write leaves the previous commit intact
// (spec §9 atomicity note, applied to the persistence layer rather than
// a single dispatch call).
func (d *DB) Save(s *runtime.State) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		if err := putJSON(tx.Bucket(bucketMeta), []byte("meta"), meta{
			NextRuntimeId: s.NextRuntimeId, NextEVMChainId: s.NextEVMChainId,
			NextOperatorId: s.NextOperatorId, NextDomainId: s.NextDomainId,
			StakeEpochDuration: s.StakeEpochDuration, PruningDepth: s.PruningDepth,
			BundleLongevity: s.BundleLongevity, TotalStake: s.TotalStake,
			SlotProbability: s.SlotProbability,
		}); err != nil {
			return fmt.Errorf("save meta: %w", err)
		}

		rr := tx.Bucket(bucketRuntimeRegistry)
		for id, entry := range s.RuntimeRegistry {
			if err := putJSON(rr, u64key(uint64(id)), entry); err != nil {
				return fmt.Errorf("save runtime registry %d: %w", id, err)
			}
		}

		su := tx.Bucket(bucketScheduledUpgrades)
		for bn, ups := range s.ScheduledRuntimeUpgrades {
			if err := putJSON(su, u64key(bn), ups); err != nil {
				return fmt.Errorf("save scheduled upgrades %d: %w", bn, err)
			}
		}

		oo := tx.Bucket(bucketOperatorOwner)
		for id, owner := range s.OperatorIdOwner {
			if err := putJSON(oo, u64key(uint64(id)), owner); err != nil {
				return fmt.Errorf("save operator owner %d: %w", id, err)
			}
		}

		osk := tx.Bucket(bucketOperatorSigningKey)
		for key, id := range s.OperatorSigningKey {
			if err := putJSON(osk, key[:], id); err != nil {
				return fmt.Errorf("save operator signing key: %w", err)
			}
		}

		dss := tx.Bucket(bucketStakingSummary)
		for domain, summary := range s.DomainStakingSummary {
			if err := putJSON(dss, u64key(uint64(domain)), summary); err != nil {
				return fmt.Errorf("save staking summary %d: %w", domain, err)
			}
		}

		pos := tx.Bucket(bucketPendingSwitches)
		for domain, ops := range s.PendingOperatorSwitches {
			if err := putJSON(pos, u64key(uint64(domain)), ops); err != nil {
				return fmt.Errorf("save pending switches %d: %w", domain, err)
			}
		}

		psl := tx.Bucket(bucketPendingSlashes)
		for domain, entries := range s.PendingSlashes {
			if err := putJSON(psl, u64key(uint64(domain)), entries); err != nil {
				return fmt.Errorf("save pending slashes %d: %w", domain, err)
			}
		}

		prw := tx.Bucket(bucketPendingRewards)
		for domain, byOperator := range s.PendingRewards {
			if err := putJSON(prw, u64key(uint64(domain)), byOperator); err != nil {
				return fmt.Errorf("save pending rewards %d: %w", domain, err)
			}
		}

		poc := tx.Bucket(bucketPendingOpCount)
		for domain, n := range s.PendingStakingOperationCount {
			if err := putJSON(poc, u64key(uint64(domain)), n); err != nil {
				return fmt.Errorf("save pending op count %d: %w", domain, err)
			}
		}

		dr := tx.Bucket(bucketDomainRegistry)
		for domain, entry := range s.DomainRegistry {
			if err := putJSON(dr, u64key(uint64(domain)), entry); err != nil {
				return fmt.Errorf("save domain registry %d: %w", domain, err)
			}
		}

		bt := tx.Bucket(bucketBlockTrees)
		for domain, tree := range s.BlockTrees {
			if err := putJSON(bt, u64key(uint64(domain)), tree.Snapshot()); err != nil {
				return fmt.Errorf("save block tree %d: %w", domain, err)
			}
		}

		he := tx.Bucket(bucketHeadExtended)
		for domain, v := range s.HeadReceiptExtended {
			if err := putJSON(he, u64key(uint64(domain)), v); err != nil {
				return fmt.Errorf("save head extended %d: %w", domain, err)
			}
		}

		cbh := tx.Bucket(bucketConsensusBlockHash)
		for domain, byHeight := range s.ConsensusBlockHash {
			if err := putJSON(cbh, u64key(uint64(domain)), byHeight); err != nil {
				return fmt.Errorf("save consensus block hash %d: %w", domain, err)
			}
		}

		inbox := tx.Bucket(bucketExecutionInbox)
		i := 0
		for key, digests := range s.ExecutionInbox {
			entry := inboxEntry{Domain: key.Domain, DomainBlockNumber: key.DomainBlockNumber, ConsensusBlockNumber: key.ConsensusBlockNumber, Digests: digests}
			if err := putJSON(inbox, u64key(uint64(i)), entry); err != nil {
				return fmt.Errorf("save execution inbox entry %d: %w", i, err)
			}
			i++
		}

		iba := tx.Bucket(bucketInboxedAuthor)
		for hash, op := range s.InboxedBundleAuthor {
			if err := putJSON(iba, hash[:], op); err != nil {
				return fmt.Errorf("save inboxed bundle author: %w", err)
			}
		}

		hdn := tx.Bucket(bucketHeadDomainNumber)
		for domain, n := range s.HeadDomainNumber {
			if err := putJSON(hdn, u64key(uint64(domain)), n); err != nil {
				return fmt.Errorf("save head domain number %d: %w", domain, err)
			}
		}

		led := tx.Bucket(bucketLastEpochDist)
		for domain, dist := range s.LastEpochStakingDistribution {
			if err := putJSON(led, u64key(uint64(domain)), dist); err != nil {
				return fmt.Errorf("save last epoch distribution %d: %w", domain, err)
			}
		}

		lcd := tx.Bucket(bucketLatestConfirmed)
		for domain, n := range s.LatestConfirmedDomainBlock {
			if err := putJSON(lcd, u64key(uint64(domain)), n); err != nil {
				return fmt.Errorf("save latest confirmed %d: %w", domain, err)
			}
		}

		lse := tx.Bucket(bucketLatestSubmittedER)
		j := 0
		for key, n := range s.LatestSubmittedER {
			entry := latestERentry{Domain: key.Domain, Operator: key.Operator, Number: n}
			if err := putJSON(lse, u64key(uint64(j)), entry); err != nil {
				return fmt.Errorf("save latest submitted ER %d: %w", j, err)
			}
			j++
		}

		pa := tx.Bucket(bucketPermissionedAction)
		for action, allowed := range s.PermissionedActionAllowedBy {
			if err := putJSON(pa, []byte(action), allowed); err != nil {
				return fmt.Errorf("save permissioned action %s: %w", action, err)
			}
		}

		trs := tx.Bucket(bucketTxRangeState)
		for domain, state := range s.DomainTxRangeState {
			if err := putJSON(trs, u64key(uint64(domain)), state); err != nil {
				return fmt.Errorf("save tx range state %d: %w", domain, err)
			}
		}

		sb := tx.Bucket(bucketSuccessfulBundles)
		for domain, hashes := range s.SuccessfulBundles {
			if err := putJSON(sb, u64key(uint64(domain)), hashes); err != nil {
				return fmt.Errorf("save successful bundles %d: %w", domain, err)
			}
		}

		sfp := tx.Bucket(bucketSuccessfulFP)
		for domain, hashes := range s.SuccessfulFraudProofs {
			if err := putJSON(sfp, u64key(uint64(domain)), hashes); err != nil {
				return fmt.Errorf("save successful fraud proofs %d: %w", domain, err)
			}
		}

		if s.Ledger != nil {
			if err := putJSON(tx.Bucket(bucketLedgerSnapshot), []byte("snapshot"), s.Ledger.Snapshot()); err != nil {
				return fmt.Errorf("save staking ledger: %w", err)
			}
		}
		if s.Fund != nil {
			if err := putJSON(tx.Bucket(bucketFundSnapshot), []byte("snapshot"), s.Fund.Snapshot()); err != nil {
				return fmt.Errorf("save bundle storage fund: %w", err)
			}
		}
		return nil
	})
}

// Load rebuilds a runtime.State from every bucket. Ledger and Fund must
// already exist (they carry Config the store does not own) and are
// restored in place via their own Restore methods.
func (d *DB) Load(ledger *staking.Ledger, fund *storagefund.Fund) (*runtime.State, error) {
	// Params are overwritten immediately below from the persisted meta
	// bucket (or left zero if this is a fresh, empty DB); NewState's own
	// defaulting is irrelevant on the load path.
	s := runtime.NewState(ledger, fund, runtime.Params{})

	err := d.db.View(func(tx *bolt.Tx) error {
		var m meta
		if v := tx.Bucket(bucketMeta).Get([]byte("meta")); v != nil {
			if err := json.Unmarshal(v, &m); err != nil {
				return fmt.Errorf("load meta: %w", err)
			}
			s.NextRuntimeId, s.NextEVMChainId = m.NextRuntimeId, m.NextEVMChainId
			s.NextOperatorId, s.NextDomainId = m.NextOperatorId, m.NextDomainId
			s.StakeEpochDuration, s.PruningDepth = m.StakeEpochDuration, m.PruningDepth
			s.BundleLongevity, s.TotalStake = m.BundleLongevity, m.TotalStake
			s.SlotProbability = m.SlotProbability
		}

		if err := tx.Bucket(bucketRuntimeRegistry).ForEach(func(k, v []byte) error {
			var entry runtime.RuntimeRegistryEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			s.RuntimeRegistry[consensus.RuntimeId(binary.BigEndian.Uint64(k))] = entry
			return nil
		}); err != nil {
			return fmt.Errorf("load runtime registry: %w", err)
		}

		if err := tx.Bucket(bucketScheduledUpgrades).ForEach(func(k, v []byte) error {
			var ups []runtime.ScheduledUpgrade
			if err := json.Unmarshal(v, &ups); err != nil {
				return err
			}
			s.ScheduledRuntimeUpgrades[binary.BigEndian.Uint64(k)] = ups
			return nil
		}); err != nil {
			return fmt.Errorf("load scheduled upgrades: %w", err)
		}

		if err := tx.Bucket(bucketOperatorOwner).ForEach(func(k, v []byte) error {
			var owner consensus.AccountId
			if err := json.Unmarshal(v, &owner); err != nil {
				return err
			}
			s.OperatorIdOwner[consensus.OperatorId(binary.BigEndian.Uint64(k))] = owner
			return nil
		}); err != nil {
			return fmt.Errorf("load operator owner: %w", err)
		}

		if err := tx.Bucket(bucketOperatorSigningKey).ForEach(func(k, v []byte) error {
			var id consensus.OperatorId
			if err := json.Unmarshal(v, &id); err != nil {
				return err
			}
			var key consensus.PublicKey
			copy(key[:], k)
			s.OperatorSigningKey[key] = id
			return nil
		}); err != nil {
			return fmt.Errorf("load operator signing key: %w", err)
		}

		if err := tx.Bucket(bucketStakingSummary).ForEach(func(k, v []byte) error {
			var summary consensus.StakingSummary
			if err := json.Unmarshal(v, &summary); err != nil {
				return err
			}
			s.DomainStakingSummary[consensus.DomainId(binary.BigEndian.Uint64(k))] = &summary
			return nil
		}); err != nil {
			return fmt.Errorf("load staking summary: %w", err)
		}

		if err := tx.Bucket(bucketPendingSwitches).ForEach(func(k, v []byte) error {
			var ops []consensus.OperatorId
			if err := json.Unmarshal(v, &ops); err != nil {
				return err
			}
			s.PendingOperatorSwitches[consensus.DomainId(binary.BigEndian.Uint64(k))] = ops
			return nil
		}); err != nil {
			return fmt.Errorf("load pending switches: %w", err)
		}

		if err := tx.Bucket(bucketPendingSlashes).ForEach(func(k, v []byte) error {
			var entries []runtime.SlashEntry
			if err := json.Unmarshal(v, &entries); err != nil {
				return err
			}
			s.PendingSlashes[consensus.DomainId(binary.BigEndian.Uint64(k))] = entries
			return nil
		}); err != nil {
			return fmt.Errorf("load pending slashes: %w", err)
		}

		if err := tx.Bucket(bucketPendingRewards).ForEach(func(k, v []byte) error {
			var byOperator map[consensus.OperatorId]uint64
			if err := json.Unmarshal(v, &byOperator); err != nil {
				return err
			}
			s.PendingRewards[consensus.DomainId(binary.BigEndian.Uint64(k))] = byOperator
			return nil
		}); err != nil {
			return fmt.Errorf("load pending rewards: %w", err)
		}

		if err := tx.Bucket(bucketPendingOpCount).ForEach(func(k, v []byte) error {
			var n uint64
			if err := json.Unmarshal(v, &n); err != nil {
				return err
			}
			s.PendingStakingOperationCount[consensus.DomainId(binary.BigEndian.Uint64(k))] = n
			return nil
		}); err != nil {
			return fmt.Errorf("load pending op count: %w", err)
		}

		if err := tx.Bucket(bucketDomainRegistry).ForEach(func(k, v []byte) error {
			var entry runtime.DomainRegistryEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			s.DomainRegistry[consensus.DomainId(binary.BigEndian.Uint64(k))] = entry
			return nil
		}); err != nil {
			return fmt.Errorf("load domain registry: %w", err)
		}

		if err := tx.Bucket(bucketBlockTrees).ForEach(func(k, v []byte) error {
			var snap consensus.Snapshot
			if err := json.Unmarshal(v, &snap); err != nil {
				return err
			}
			s.BlockTrees[consensus.DomainId(binary.BigEndian.Uint64(k))] = consensus.RestoreBlockTree(snap, s)
			return nil
		}); err != nil {
			return fmt.Errorf("load block trees: %w", err)
		}

		if err := tx.Bucket(bucketHeadExtended).ForEach(func(k, v []byte) error {
			var b bool
			if err := json.Unmarshal(v, &b); err != nil {
				return err
			}
			s.HeadReceiptExtended[consensus.DomainId(binary.BigEndian.Uint64(k))] = b
			return nil
		}); err != nil {
			return fmt.Errorf("load head extended: %w", err)
		}

		if err := tx.Bucket(bucketConsensusBlockHash).ForEach(func(k, v []byte) error {
			var byHeight map[uint64][32]byte
			if err := json.Unmarshal(v, &byHeight); err != nil {
				return err
			}
			s.ConsensusBlockHash[consensus.DomainId(binary.BigEndian.Uint64(k))] = byHeight
			return nil
		}); err != nil {
			return fmt.Errorf("load consensus block hash: %w", err)
		}

		if err := tx.Bucket(bucketExecutionInbox).ForEach(func(_ []byte, v []byte) error {
			var entry inboxEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			s.SetExecutionInbox(entry.Domain, entry.DomainBlockNumber, entry.ConsensusBlockNumber, entry.Digests)
			return nil
		}); err != nil {
			return fmt.Errorf("load execution inbox: %w", err)
		}

		if err := tx.Bucket(bucketInboxedAuthor).ForEach(func(k, v []byte) error {
			var op consensus.OperatorId
			if err := json.Unmarshal(v, &op); err != nil {
				return err
			}
			var hash [32]byte
			copy(hash[:], k)
			s.InboxedBundleAuthor[hash] = op
			return nil
		}); err != nil {
			return fmt.Errorf("load inboxed bundle author: %w", err)
		}

		if err := tx.Bucket(bucketHeadDomainNumber).ForEach(func(k, v []byte) error {
			var n uint64
			if err := json.Unmarshal(v, &n); err != nil {
				return err
			}
			s.HeadDomainNumber[consensus.DomainId(binary.BigEndian.Uint64(k))] = n
			return nil
		}); err != nil {
			return fmt.Errorf("load head domain number: %w", err)
		}

		if err := tx.Bucket(bucketLastEpochDist).ForEach(func(k, v []byte) error {
			var dist map[consensus.OperatorId]uint64
			if err := json.Unmarshal(v, &dist); err != nil {
				return err
			}
			s.LastEpochStakingDistribution[consensus.DomainId(binary.BigEndian.Uint64(k))] = dist
			return nil
		}); err != nil {
			return fmt.Errorf("load last epoch distribution: %w", err)
		}

		if err := tx.Bucket(bucketLatestConfirmed).ForEach(func(k, v []byte) error {
			var n uint64
			if err := json.Unmarshal(v, &n); err != nil {
				return err
			}
			s.LatestConfirmedDomainBlock[consensus.DomainId(binary.BigEndian.Uint64(k))] = n
			return nil
		}); err != nil {
			return fmt.Errorf("load latest confirmed: %w", err)
		}

		if err := tx.Bucket(bucketLatestSubmittedER).ForEach(func(_ []byte, v []byte) error {
			var entry latestERentry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			s.SetLatestSubmittedER(entry.Domain, entry.Operator, entry.Number)
			return nil
		}); err != nil {
			return fmt.Errorf("load latest submitted ER: %w", err)
		}

		if err := tx.Bucket(bucketPermissionedAction).ForEach(func(k, v []byte) error {
			var allowed []consensus.AccountId
			if err := json.Unmarshal(v, &allowed); err != nil {
				return err
			}
			s.PermissionedActionAllowedBy[string(k)] = allowed
			return nil
		}); err != nil {
			return fmt.Errorf("load permissioned action: %w", err)
		}

		if err := tx.Bucket(bucketTxRangeState).ForEach(func(k, v []byte) error {
			var state consensus.TxRangeState
			if err := json.Unmarshal(v, &state); err != nil {
				return err
			}
			s.DomainTxRangeState[consensus.DomainId(binary.BigEndian.Uint64(k))] = state
			return nil
		}); err != nil {
			return fmt.Errorf("load tx range state: %w", err)
		}

		if err := tx.Bucket(bucketSuccessfulBundles).ForEach(func(k, v []byte) error {
			var hashes [][32]byte
			if err := json.Unmarshal(v, &hashes); err != nil {
				return err
			}
			s.SuccessfulBundles[consensus.DomainId(binary.BigEndian.Uint64(k))] = hashes
			return nil
		}); err != nil {
			return fmt.Errorf("load successful bundles: %w", err)
		}

		if err := tx.Bucket(bucketSuccessfulFP).ForEach(func(k, v []byte) error {
			var hashes [][32]byte
			if err := json.Unmarshal(v, &hashes); err != nil {
				return err
			}
			s.SuccessfulFraudProofs[consensus.DomainId(binary.BigEndian.Uint64(k))] = hashes
			return nil
		}); err != nil {
			return fmt.Errorf("load successful fraud proofs: %w", err)
		}

		if v := tx.Bucket(bucketLedgerSnapshot).Get([]byte("snapshot")); v != nil && ledger != nil {
			var snap staking.Snapshot
			if err := json.Unmarshal(v, &snap); err != nil {
				return fmt.Errorf("load staking ledger: %w", err)
			}
			ledger.Restore(snap)
		}
		if v := tx.Bucket(bucketFundSnapshot).Get([]byte("snapshot")); v != nil && fund != nil {
			var snap storagefund.Snapshot
			if err := json.Unmarshal(v, &snap); err != nil {
				return fmt.Errorf("load bundle storage fund: %w", err)
			}
			fund.Restore(snap)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}
