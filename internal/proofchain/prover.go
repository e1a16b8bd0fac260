package proofchain

import (
	"fmt"

	"github.com/jmerrifield20/memoryledger/internal/field"
	"github.com/jmerrifield20/memoryledger/internal/signature"
)

// Prover generates proofs. Like any sound prover it refuses to produce a
// proof for a statement that does not hold. Proof generation is
// deterministic: proving the same statement twice yields identical proofs, so
// callers may retry freely.
type Prover struct {
	key      signature.PrivateKey
	verifier *Verifier
}

// NewProver creates a Prover that seals with key.
func NewProver(key signature.PrivateKey) *Prover {
	return &Prover{key: key, verifier: NewVerifier(key.Public())}
}

// VerificationKey returns the key verifiers must be configured with.
func (p *Prover) VerificationKey() signature.PublicKey { return p.key.Public() }

// ProveBase proves in as the first link of a chain.
func (p *Prover) ProveBase(in Input, bound field.Element) (*Proof, error) {
	if err := checkBase(in, bound); err != nil {
		return nil, err
	}
	proof := &Proof{Kind: KindBase, Input: in}
	proof.Seal = p.key.SignDigest(proof.Statement())
	return proof, nil
}

// ProveExtension proves in as the link following prev.
func (p *Prover) ProveExtension(in Input, prev *Proof) (*Proof, error) {
	if prev == nil {
		return nil, fmt.Errorf("%w: nil predecessor", ErrMalformedProof)
	}
	handle := prev.Handle()
	if err := p.verifier.verify(handle, field.Element{}, false); err != nil {
		return nil, fmt.Errorf("previous proof: %w", err)
	}
	if err := checkExtension(handle.Input, in); err != nil {
		return nil, err
	}
	proof := &Proof{
		Kind:     KindExtension,
		Input:    in,
		Parent:   handle.Digest(),
		Previous: handle,
	}
	proof.Seal = p.key.SignDigest(proof.Statement())
	return proof, nil
}

// Prove picks the variant: base when prev is nil, extension otherwise.
func (p *Prover) Prove(in Input, prev *Proof, bound field.Element) (*Proof, error) {
	if prev == nil {
		return p.ProveBase(in, bound)
	}
	return p.ProveExtension(in, prev)
}
