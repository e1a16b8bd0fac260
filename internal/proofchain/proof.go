// Package proofchain implements the per-character proof chain that gates
// memory appends.
//
// A Proof is either a Base proof, attesting a single public input on its own,
// or an Extension proof, attesting a public input together with the proof of
// the immediately preceding link. Every proof carries a seal: the prover's
// signature over a statement binding the proof kind, its public input and the
// digest of its predecessor. Verifying an extension therefore only checks the
// predecessor's seal, which already attests the predecessor's own relation,
// plus the new monotonic relation. Verification work per append is constant in
// the length of the chain.
package proofchain

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/jmerrifield20/memoryledger/internal/field"
	"github.com/jmerrifield20/memoryledger/internal/signature"
	"golang.org/x/crypto/blake2b"
)

const statementTag = "memoryledger/proof-statement/v1"

var (
	// ErrMalformedProof is returned when a proof cannot be decoded or has an
	// impossible shape.
	ErrMalformedProof = errors.New("proofchain: malformed proof")
	// ErrInvalidSeal is returned when a proof's seal was not produced by the
	// prover for its statement.
	ErrInvalidSeal = errors.New("proofchain: invalid proof seal")
	// ErrInvariantViolation is returned when a well-formed proof attests a
	// statement that breaks the chain rules.
	ErrInvariantViolation = errors.New("proofchain: invariant violation")
)

// Kind tags the Proof variant.
type Kind uint8

const (
	// KindBase proofs depend on no other proof.
	KindBase Kind = 1
	// KindExtension proofs extend the proof of the preceding link.
	KindExtension Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindBase:
		return "base"
	case KindExtension:
		return "extension"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Input is the public input of one link.
type Input struct {
	Hash        field.Element `json:"hash"`
	Timestamp   field.Element `json:"timestamp"`
	CharacterID field.Element `json:"characterId"`
}

// Equal reports whether both inputs carry the same values.
func (in Input) Equal(o Input) bool {
	return in.Hash.Equal(o.Hash) && in.Timestamp.Equal(o.Timestamp) && in.CharacterID.Equal(o.CharacterID)
}

// Digest identifies a proof.
type Digest [32]byte

// IsZero reports whether d is unset.
func (d Digest) IsZero() bool { return d == Digest{} }

// Proof is one link of a chain.
type Proof struct {
	Kind   Kind
	Input  Input
	Parent Digest // digest of Previous; zero for base proofs
	Seal   signature.Signature

	// Previous is the predecessor handle carried by extension proofs. A
	// handle never carries its own Previous.
	Previous *Proof
}

// Statement returns the digest the prover seals.
func (p *Proof) Statement() Digest {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(statementTag))
	h.Write([]byte{byte(p.Kind)})
	for _, e := range []field.Element{p.Input.Hash, p.Input.Timestamp, p.Input.CharacterID} {
		b := e.Bytes()
		h.Write(b[:])
	}
	h.Write(p.Parent[:])
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// Digest identifies p by its statement and seal.
func (p *Proof) Digest() Digest {
	h, _ := blake2b.New256(nil)
	st := p.Statement()
	h.Write(st[:])
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(p.Seal)))
	h.Write(n[:])
	h.Write(p.Seal)
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// Handle returns a copy of p without its predecessor, suitable for embedding
// in the next extension proof.
func (p *Proof) Handle() *Proof {
	return &Proof{
		Kind:   p.Kind,
		Input:  p.Input,
		Parent: p.Parent,
		Seal:   append(signature.Signature(nil), p.Seal...),
	}
}

// Clone returns a deep copy of p.
func (p *Proof) Clone() *Proof {
	if p == nil {
		return nil
	}
	c := p.Handle()
	if p.Previous != nil {
		c.Previous = p.Previous.Handle()
	}
	return c
}

// validate checks the shape of p. Linked proofs must carry their predecessor;
// handles must not.
func (p *Proof) validate(linked bool) error {
	if p == nil {
		return fmt.Errorf("%w: nil proof", ErrMalformedProof)
	}
	if len(p.Seal) == 0 {
		return fmt.Errorf("%w: missing seal", ErrMalformedProof)
	}
	switch p.Kind {
	case KindBase:
		if !p.Parent.IsZero() || p.Previous != nil {
			return fmt.Errorf("%w: base proof references a predecessor", ErrMalformedProof)
		}
	case KindExtension:
		if p.Parent.IsZero() {
			return fmt.Errorf("%w: extension proof without parent digest", ErrMalformedProof)
		}
		if !linked {
			if p.Previous != nil {
				return fmt.Errorf("%w: predecessor handle carries its own predecessor", ErrMalformedProof)
			}
			return nil
		}
		if p.Previous == nil {
			return fmt.Errorf("%w: extension proof without predecessor", ErrMalformedProof)
		}
		if p.Previous.Digest() != p.Parent {
			return fmt.Errorf("%w: parent digest does not match predecessor", ErrMalformedProof)
		}
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrMalformedProof, p.Kind)
	}
	return nil
}

// checkBase enforces the rules of a chain's first link.
func checkBase(in Input, bound field.Element) error {
	if in.Hash.IsZero() {
		return fmt.Errorf("%w: memory hash must be greater than 0", ErrInvariantViolation)
	}
	if bound.Less(in.Timestamp) {
		return fmt.Errorf("%w: timestamp %s is after bound %s", ErrInvariantViolation, in.Timestamp, bound)
	}
	if in.CharacterID.IsZero() {
		return fmt.Errorf("%w: invalid character id", ErrInvariantViolation)
	}
	return nil
}

// checkExtension enforces the relation between consecutive links.
func checkExtension(prev, next Input) error {
	if !prev.Hash.Less(next.Hash) {
		return fmt.Errorf("%w: memory hash %s must be greater than previous %s", ErrInvariantViolation, next.Hash, prev.Hash)
	}
	if !prev.Timestamp.Less(next.Timestamp) {
		return fmt.Errorf("%w: timestamp %s must be after previous %s", ErrInvariantViolation, next.Timestamp, prev.Timestamp)
	}
	if !prev.CharacterID.Equal(next.CharacterID) {
		return fmt.Errorf("%w: must be same character", ErrInvariantViolation)
	}
	return nil
}
