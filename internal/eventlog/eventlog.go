// Package eventlog implements the append-only audit log of applied ledger
// operations.
//
// The log begins with a well-known genesis record whose Hash equals
// GenesisHash (64 hex zeros). Every subsequent record carries the BLAKE2b-256
// hash of its predecessor, so rewriting any past record is detectable via
// Verify.
//
// Two implementations of the Log interface are provided:
//   - MemoryLog: in-process, for tests and single-process deployments.
//   - PostgresLog: durable, for production use.
package eventlog

import (
	"context"
	"errors"
	"iter"
)

// KindGenesis is the kind of the record at sequence 0.
const KindGenesis = "genesis"

var (
	// ErrNotFound is returned by Get for sequence numbers past the tip.
	ErrNotFound = errors.New("eventlog: record not found")
	// ErrCorrupt is returned by Verify when the hash chain does not hold.
	ErrCorrupt = errors.New("eventlog: chain corrupt")
)

// Log is the append-only event log. Both MemoryLog and PostgresLog implement
// this interface.
type Log interface {
	// Append adds a record chained to the previous one. payload is
	// JSON-marshalled and its BLAKE2b-256 is stored as DataHash.
	Append(ctx context.Context, kind, subject, actor string, payload any) (*Record, error)

	// Get returns the record with the given sequence number. Sequence 0 is
	// the genesis record.
	Get(ctx context.Context, seq int) (*Record, error)

	// Len returns the number of records, including genesis.
	Len(ctx context.Context) (int, error)

	// All yields the appended records in insertion order, genesis excluded.
	// Records are read as the sequence is consumed; each call starts over.
	All(ctx context.Context) iter.Seq2[*Record, error]

	// Verify walks the whole chain and checks hash consistency.
	Verify(ctx context.Context) error

	// Root returns the hash of the most recent record.
	Root(ctx context.Context) (string, error)
}
