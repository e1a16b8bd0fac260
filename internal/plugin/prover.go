package plugin

import (
	"context"
	"fmt"
	"time"

	"github.com/jmerrifield20/memoryledger/internal/field"
	"github.com/jmerrifield20/memoryledger/internal/proofchain"
	"github.com/jmerrifield20/memoryledger/pkg/client"
	"github.com/jmerrifield20/memoryledger/pkg/wire"
)

// ProofSource produces the proof for a new memory entry. prev is the proof of
// the character's latest entry, or nil for its first entry. Proof generation
// is idempotent, so callers may retry it.
type ProofSource interface {
	Prove(ctx context.Context, in proofchain.Input, prev *proofchain.Proof) (*proofchain.Proof, error)
}

// LocalProver proves in-process with the prover key.
type LocalProver struct {
	Prover *proofchain.Prover
	Now    func() time.Time
}

// Prove implements ProofSource.
func (l LocalProver) Prove(_ context.Context, in proofchain.Input, prev *proofchain.Proof) (*proofchain.Proof, error) {
	now := l.Now
	if now == nil {
		now = time.Now
	}
	return l.Prover.Prove(in, prev, field.New(uint64(now().UnixMilli())))
}

// RemoteProver asks a ledgerd prover endpoint for proofs.
type RemoteProver struct {
	Client *client.Client
}

// Prove implements ProofSource.
func (r RemoteProver) Prove(ctx context.Context, in proofchain.Input, prev *proofchain.Proof) (*proofchain.Proof, error) {
	req := wire.ProveRequest{
		CommitmentHash: in.Hash.String(),
		Timestamp:      in.Timestamp.String(),
		CharacterID:    in.CharacterID.String(),
	}
	var (
		encoded string
		err     error
	)
	if prev == nil {
		encoded, err = r.Client.ProveBase(ctx, req)
	} else {
		req.Previous = prev.Encode()
		encoded, err = r.Client.ProveExtension(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	p, err := proofchain.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode prover response: %w", err)
	}
	return p, nil
}
