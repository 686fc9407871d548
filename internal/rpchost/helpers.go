package rpchost

import (
	"time"

	"github.com/OmentaElvis/pesa-playground-sub000/internal/ledger"
)

// shutdownGrace bounds how long rpcStopSandbox waits for a sandbox's HTTP
// server to drain before Manager.Stop forces the listener closed.
const shutdownGrace = 10 * time.Second

// durationMillis adapts the RPC surface's millisecond integers (easier to
// serialize over JSON-RPC than a Go duration string) to time.Duration.
func durationMillis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// ledgerNotesFor is the host-originated rpcTransfer/rpcReverse path's notes
// builder. Host-driven transfers (seeding balances, admin corrections) carry
// no structured API-originating note the way a pipeline-driven transfer
// does (§3: notes describe "the originating API"); only the currency tag
// defaults here.
func ledgerNotesFor(kind string) ledger.Notes {
	return ledger.Notes{}
}
