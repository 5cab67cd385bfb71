// Command domain-node is the CLI entrypoint for the domain-control module,
// built on the standard flag package exactly like the teacher's
// cmd/rubin-node: a single run(args, stdout, stderr) int that parses flags,
// opens the on-disk store, prints an effective-config/state summary, and
// then idles until SIGINT/SIGTERM (spec §1, "OUT OF SCOPE... CLI").
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.domainledger.dev/node/consensus"
	"go.domainledger.dev/node/runtime"
	"go.domainledger.dev/node/runtime/store"
	"go.domainledger.dev/node/staking"
	"go.domainledger.dev/node/storagefund"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	defaults := runtime.DefaultParams()
	params := defaults

	fs := flag.NewFlagSet("domain-node", flag.ContinueOnError)
	fs.SetOutput(stderr)

	dataDir := fs.String("datadir", "./domain-node-data", "node data directory")
	fs.Uint64Var(&params.ConfirmationDepth, "confirmation-depth", defaults.ConfirmationDepth, "pruning depth K at which a receipt confirms")
	fs.Uint64Var(&params.StakeEpochDuration, "stake-epoch-duration", defaults.StakeEpochDuration, "domain blocks per staking epoch")
	fs.Uint64Var(&params.BundleLongevity, "bundle-longevity", defaults.BundleLongevity, "max slots a bundle may lag behind current slot")
	fs.Uint64Var(&params.MaxBundleSize, "max-bundle-size", defaults.MaxBundleSize, "max bundle size in bytes")
	fs.Uint64Var(&params.StorageFeeChargePerByte, "storage-fee-per-byte", defaults.StorageFeeChargePerByte, "per-byte bundle storage fee")
	dryRun := fs.Bool("dry-run", false, "print effective params and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if err := runtime.Validate(params); err != nil {
		_, _ = fmt.Fprintf(stderr, "invalid params: %v\n", err)
		return 2
	}
	if err := printParams(stdout, params); err != nil {
		_, _ = fmt.Fprintf(stderr, "params encode failed: %v\n", err)
		return 1
	}
	if *dryRun {
		return 0
	}

	if err := os.MkdirAll(*dataDir, 0o750); err != nil {
		_, _ = fmt.Fprintf(stderr, "datadir create failed: %v\n", err)
		return 2
	}

	db, err := store.Open(*dataDir)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "store open failed: %v\n", err)
		return 2
	}
	defer func() { _ = db.Close() }()

	ledger, err := staking.NewLedger(staking.Config{
		MinOperatorStake:           params.MinOperatorStake,
		MinNominatorStake:          params.MinNominatorStake,
		MaxNominators:              params.MaxNominators,
		MaxNominationTax:           consensus.NominationTax(params.MaxNominationTax),
		WithdrawalLockDomainBlocks: params.WithdrawalLockDomainBlocks,
	})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "ledger init failed: %v\n", err)
		return 2
	}
	fund := storagefund.NewFund(storagefund.Config{
		ChargePerByte:            params.StorageFeeChargePerByte,
		ProtocolShareNumerator:   params.ProtocolShareNumerator,
		ProtocolShareDenominator: params.ProtocolShareDenominator,
	})

	state, err := db.Load(ledger, fund)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "state load failed: %v\n", err)
		return 2
	}
	if err := db.Save(state); err != nil {
		_, _ = fmt.Fprintf(stderr, "state save failed: %v\n", err)
		return 2
	}

	_, _ = fmt.Fprintf(stdout, "state: domains=%d runtimes=%d next_operator_id=%d next_domain_id=%d\n",
		len(state.DomainRegistry), len(state.RuntimeRegistry), state.NextOperatorId, state.NextDomainId)
	for domain, tree := range state.BlockTrees {
		_, _ = fmt.Fprintf(stdout, "domain %d: head_receipt=%d latest_confirmed=%d\n",
			domain, tree.HeadReceiptNumber(), tree.LatestConfirmed())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_, _ = fmt.Fprintln(stdout, "domain-node running")
	<-ctx.Done()
	_, _ = fmt.Fprintln(stdout, "domain-node stopped")
	return 0
}

func printParams(w io.Writer, p runtime.Params) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}
