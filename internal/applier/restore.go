package applier

import (
	"context"
	"fmt"

	"github.com/jmerrifield20/memoryledger/internal/eventlog"
	"github.com/jmerrifield20/memoryledger/internal/ledger"
)

// Restore rebuilds state from the events already in log and returns how many
// were replayed. state must be freshly created with the initial owner, and
// Restore must finish before an Applier over the same state and log accepts
// transactions. Each event must have been signed by the owner of its time.
func Restore(ctx context.Context, state *ledger.State, log eventlog.Log) (int, error) {
	n := 0
	for rec, err := range log.All(ctx) {
		if err != nil {
			return n, fmt.Errorf("read event log: %w", err)
		}
		if owner := state.Owner().String(); rec.Actor != owner {
			return n, fmt.Errorf("event %d: actor %s is not the owner %s: %w", rec.Sequence, rec.Actor, owner, ledger.ErrReplay)
		}
		if err := state.Replay(ledger.EventKind(rec.Kind), rec.Payload); err != nil {
			return n, fmt.Errorf("event %d: %w", rec.Sequence, err)
		}
		n++
	}
	return n, nil
}
