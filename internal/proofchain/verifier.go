package proofchain

import (
	"fmt"

	"github.com/jmerrifield20/memoryledger/internal/field"
	"github.com/jmerrifield20/memoryledger/internal/signature"
)

// Verifier checks proofs sealed by the prover holding the verification key.
// It is stateless and safe for concurrent use.
type Verifier struct {
	key signature.PublicKey
}

// NewVerifier creates a Verifier for proofs sealed by the private half of key.
func NewVerifier(key signature.PublicKey) *Verifier {
	return &Verifier{key: key}
}

// Key returns the verification key.
func (v *Verifier) Key() signature.PublicKey { return v.key }

// VerifyBase accepts p as the first link of a chain for the declared input.
func (v *Verifier) VerifyBase(in Input, p *Proof, bound field.Element) error {
	if p == nil {
		return fmt.Errorf("%w: nil proof", ErrMalformedProof)
	}
	if p.Kind != KindBase {
		return fmt.Errorf("%w: expected base proof, got %s", ErrMalformedProof, p.Kind)
	}
	if !p.Input.Equal(in) {
		return fmt.Errorf("%w: proof input does not match declared input", ErrInvariantViolation)
	}
	return v.Verify(p, bound)
}

// VerifyExtension accepts p as the link following prev, which must be the
// already verified proof of the preceding entry.
func (v *Verifier) VerifyExtension(in Input, p, prev *Proof) error {
	if p == nil || prev == nil {
		return fmt.Errorf("%w: nil proof", ErrMalformedProof)
	}
	if p.Kind != KindExtension {
		return fmt.Errorf("%w: expected extension proof, got %s", ErrMalformedProof, p.Kind)
	}
	if !p.Input.Equal(in) {
		return fmt.Errorf("%w: proof input does not match declared input", ErrInvariantViolation)
	}
	if p.Parent != prev.Digest() {
		return fmt.Errorf("%w: proof does not extend the latest link", ErrInvariantViolation)
	}
	// Extension rules carry no time bound; the predecessor's bound was
	// enforced when it was accepted.
	return v.Verify(p, field.Element{})
}

// Verify checks p against its own public input. Base proofs are checked
// against bound; extension proofs are checked against their predecessor.
func (v *Verifier) Verify(p *Proof, bound field.Element) error {
	return v.verify(p, bound, true)
}

// verify dispatches on the proof variant. With linked unset only the seal and
// shape of p are checked: that is how a predecessor handle is verified.
func (v *Verifier) verify(p *Proof, bound field.Element, linked bool) error {
	if err := p.validate(linked); err != nil {
		return err
	}
	if !signature.VerifyDigest(v.key, p.Statement(), p.Seal) {
		return fmt.Errorf("%w: %s proof", ErrInvalidSeal, p.Kind)
	}
	if !linked {
		return nil
	}

	switch p.Kind {
	case KindBase:
		return checkBase(p.Input, bound)
	case KindExtension:
		if err := v.verify(p.Previous, bound, false); err != nil {
			return fmt.Errorf("previous proof: %w", err)
		}
		return checkExtension(p.Previous.Input, p.Input)
	}
	return fmt.Errorf("%w: unknown kind %d", ErrMalformedProof, p.Kind)
}
