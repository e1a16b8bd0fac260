package proofchain_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/jmerrifield20/memoryledger/internal/field"
	"github.com/jmerrifield20/memoryledger/internal/proofchain"
	"github.com/jmerrifield20/memoryledger/internal/signature"
	"pgregory.net/rapid"
)

var (
	charID = field.FromText("c1")
	bound  = field.New(10_000)
)

func newProver(t testing.TB) *proofchain.Prover {
	t.Helper()
	k, err := signature.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	return proofchain.NewProver(k)
}

func input(hash, ts uint64) proofchain.Input {
	return proofchain.Input{Hash: field.New(hash), Timestamp: field.New(ts), CharacterID: charID}
}

func TestBase_valid(t *testing.T) {
	p := newProver(t)
	v := proofchain.NewVerifier(p.VerificationKey())

	proof, err := p.ProveBase(input(5, 1001), bound)
	if err != nil {
		t.Fatalf("ProveBase() error: %v", err)
	}
	if err := v.VerifyBase(input(5, 1001), proof, bound); err != nil {
		t.Errorf("VerifyBase() error: %v", err)
	}
}

func TestBase_rules(t *testing.T) {
	p := newProver(t)
	tests := []struct {
		name string
		in   proofchain.Input
	}{
		{"zero hash", input(0, 1001)},
		{"future timestamp", input(5, 10_001)},
		{"zero character", proofchain.Input{Hash: field.New(5), Timestamp: field.New(1), CharacterID: field.Empty}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := p.ProveBase(tc.in, bound); !errors.Is(err, proofchain.ErrInvariantViolation) {
				t.Errorf("got %v, want ErrInvariantViolation", err)
			}
		})
	}
}

func TestBase_timestampEqualToBound(t *testing.T) {
	p := newProver(t)
	v := proofchain.NewVerifier(p.VerificationKey())
	proof, err := p.ProveBase(input(1, 10_000), bound)
	if err != nil {
		t.Fatal(err)
	}
	if err := v.VerifyBase(input(1, 10_000), proof, bound); err != nil {
		t.Errorf("timestamp equal to bound should pass: %v", err)
	}
	// The same proof re-checked against an earlier bound fails.
	if err := v.VerifyBase(input(1, 10_000), proof, field.New(9_999)); !errors.Is(err, proofchain.ErrInvariantViolation) {
		t.Errorf("got %v, want ErrInvariantViolation", err)
	}
}

func TestVerifyBase_inputMismatch(t *testing.T) {
	p := newProver(t)
	v := proofchain.NewVerifier(p.VerificationKey())
	proof, _ := p.ProveBase(input(5, 1001), bound)
	if err := v.VerifyBase(input(6, 1001), proof, bound); !errors.Is(err, proofchain.ErrInvariantViolation) {
		t.Errorf("got %v, want ErrInvariantViolation", err)
	}
}

func TestVerify_foreignProver(t *testing.T) {
	honest, rogue := newProver(t), newProver(t)
	v := proofchain.NewVerifier(honest.VerificationKey())
	proof, _ := rogue.ProveBase(input(5, 1001), bound)
	if err := v.VerifyBase(input(5, 1001), proof, bound); !errors.Is(err, proofchain.ErrInvalidSeal) {
		t.Errorf("got %v, want ErrInvalidSeal", err)
	}
}

func TestVerify_forgedStatement(t *testing.T) {
	p := newProver(t)
	v := proofchain.NewVerifier(p.VerificationKey())
	proof, _ := p.ProveBase(input(5, 1001), bound)
	proof.Input.Hash = field.New(500)
	if err := v.Verify(proof, bound); !errors.Is(err, proofchain.ErrInvalidSeal) {
		t.Errorf("got %v, want ErrInvalidSeal", err)
	}
}

func TestExtension_valid(t *testing.T) {
	p := newProver(t)
	v := proofchain.NewVerifier(p.VerificationKey())

	first, _ := p.ProveBase(input(5, 1001), bound)
	second, err := p.ProveExtension(input(7, 1002), first)
	if err != nil {
		t.Fatalf("ProveExtension() error: %v", err)
	}
	if err := v.VerifyExtension(input(7, 1002), second, first); err != nil {
		t.Errorf("VerifyExtension() error: %v", err)
	}

	third, err := p.ProveExtension(input(9, 1003), second)
	if err != nil {
		t.Fatal(err)
	}
	if third.Previous.Previous != nil {
		t.Error("predecessor handle must not carry its own predecessor")
	}
	if err := v.VerifyExtension(input(9, 1003), third, second); err != nil {
		t.Errorf("VerifyExtension() third link: %v", err)
	}
}

func TestExtension_rules(t *testing.T) {
	p := newProver(t)
	first, _ := p.ProveBase(input(5, 1001), bound)
	tests := []struct {
		name string
		in   proofchain.Input
	}{
		{"hash decreased", input(3, 1002)},
		{"hash equal", input(5, 1002)},
		{"timestamp equal", input(6, 1001)},
		{"timestamp decreased", input(6, 900)},
		{"other character", proofchain.Input{Hash: field.New(6), Timestamp: field.New(1002), CharacterID: field.FromText("c2")}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := p.ProveExtension(tc.in, first); !errors.Is(err, proofchain.ErrInvariantViolation) {
				t.Errorf("got %v, want ErrInvariantViolation", err)
			}
		})
	}
}

func TestVerifyExtension_staleParent(t *testing.T) {
	p := newProver(t)
	v := proofchain.NewVerifier(p.VerificationKey())

	first, _ := p.ProveBase(input(5, 1001), bound)
	second, _ := p.ProveExtension(input(7, 1002), first)
	// A fork from the first link must not be accepted after the second.
	fork, _ := p.ProveExtension(input(8, 1003), first)
	if err := v.VerifyExtension(input(8, 1003), fork, second); !errors.Is(err, proofchain.ErrInvariantViolation) {
		t.Errorf("got %v, want ErrInvariantViolation", err)
	}
}

func TestVerifyExtension_wrongVariant(t *testing.T) {
	p := newProver(t)
	v := proofchain.NewVerifier(p.VerificationKey())
	first, _ := p.ProveBase(input(5, 1001), bound)
	base, _ := p.ProveBase(input(6, 1002), bound)
	if err := v.VerifyExtension(input(6, 1002), base, first); !errors.Is(err, proofchain.ErrMalformedProof) {
		t.Errorf("got %v, want ErrMalformedProof", err)
	}
	second, _ := p.ProveExtension(input(7, 1002), first)
	if err := v.VerifyBase(input(7, 1002), second, bound); !errors.Is(err, proofchain.ErrMalformedProof) {
		t.Errorf("got %v, want ErrMalformedProof", err)
	}
}

func TestProveExtension_rejectsForeignPredecessor(t *testing.T) {
	honest, rogue := newProver(t), newProver(t)
	forged, _ := rogue.ProveBase(input(5, 1001), bound)
	if _, err := honest.ProveExtension(input(6, 1002), forged); !errors.Is(err, proofchain.ErrInvalidSeal) {
		t.Errorf("got %v, want ErrInvalidSeal", err)
	}
}

func TestProve_deterministic(t *testing.T) {
	p := newProver(t)
	a, _ := p.ProveBase(input(5, 1001), bound)
	b, _ := p.ProveBase(input(5, 1001), bound)
	if a.Digest() != b.Digest() {
		t.Error("proving the same statement twice should yield the same proof")
	}
}

func TestCodec_roundTrip(t *testing.T) {
	p := newProver(t)
	first, _ := p.ProveBase(input(5, 1001), bound)
	second, _ := p.ProveExtension(input(7, 1002), first)

	for _, proof := range []*proofchain.Proof{first, second} {
		decoded, err := proofchain.Decode(proof.Encode())
		if err != nil {
			t.Fatalf("Decode() error: %v", err)
		}
		if decoded.Digest() != proof.Digest() {
			t.Errorf("%s proof digest changed across encoding", proof.Kind)
		}
		a, _ := proof.MarshalBinary()
		b, _ := decoded.MarshalBinary()
		if !bytes.Equal(a, b) {
			t.Errorf("%s proof encoding is not canonical", proof.Kind)
		}
	}

	v := proofchain.NewVerifier(p.VerificationKey())
	decoded, _ := proofchain.Decode(second.Encode())
	if err := v.VerifyExtension(input(7, 1002), decoded, first); err != nil {
		t.Errorf("decoded proof should verify: %v", err)
	}
}

func TestCodec_malformed(t *testing.T) {
	p := newProver(t)
	first, _ := p.ProveBase(input(5, 1001), bound)
	second, _ := p.ProveExtension(input(7, 1002), first)
	third, _ := p.ProveExtension(input(9, 1003), second)

	// Nest the full second proof (which carries its own predecessor) as a handle.
	deep := third.Clone()
	deep.Previous = second
	deepBytes, _ := deep.MarshalBinary()

	good, _ := first.MarshalBinary()
	cases := map[string][]byte{
		"empty":          nil,
		"garbage":        {0xff, 0xff, 0xff},
		"truncated":      good[:len(good)-3],
		"nested too far": deepBytes,
	}
	for name, b := range cases {
		if _, err := proofchain.UnmarshalProof(b); !errors.Is(err, proofchain.ErrMalformedProof) {
			t.Errorf("%s: got %v, want ErrMalformedProof", name, err)
		}
	}
	if _, err := proofchain.Decode("!!not base64!!"); !errors.Is(err, proofchain.ErrMalformedProof) {
		t.Errorf("bad base64: got %v", err)
	}
}

func TestVerify_malformedShape(t *testing.T) {
	p := newProver(t)
	v := proofchain.NewVerifier(p.VerificationKey())
	first, _ := p.ProveBase(input(5, 1001), bound)
	second, _ := p.ProveExtension(input(7, 1002), first)

	noPrev := second.Clone()
	noPrev.Previous = nil
	noSeal := first.Clone()
	noSeal.Seal = nil
	badKind := first.Clone()
	badKind.Kind = 9

	for name, proof := range map[string]*proofchain.Proof{
		"nil":          nil,
		"missing prev": noPrev,
		"missing seal": noSeal,
		"unknown kind": badKind,
	} {
		if err := v.Verify(proof, bound); !errors.Is(err, proofchain.ErrMalformedProof) {
			t.Errorf("%s: got %v, want ErrMalformedProof", name, err)
		}
	}
}

// TestChain_monotonicProperty builds chains of random length and checks that
// strictly increasing links always verify while any non-increasing candidate
// is refused.
func TestChain_monotonicProperty(t *testing.T) {
	p := newProver(t)
	v := proofchain.NewVerifier(p.VerificationKey())

	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 20).Draw(rt, "links")
		hash := rapid.Uint64Range(1, 1000).Draw(rt, "hash0")
		ts := rapid.Uint64Range(1, 1000).Draw(rt, "ts0")
		limit := field.New(1 << 40)

		prev, err := p.ProveBase(input(hash, ts), limit)
		if err != nil {
			rt.Fatalf("base: %v", err)
		}
		if err := v.VerifyBase(input(hash, ts), prev, limit); err != nil {
			rt.Fatalf("verify base: %v", err)
		}
		for i := 1; i < n; i++ {
			hash += rapid.Uint64Range(1, 50).Draw(rt, "dh")
			ts += rapid.Uint64Range(1, 50).Draw(rt, "dt")
			next, err := p.ProveExtension(input(hash, ts), prev)
			if err != nil {
				rt.Fatalf("link %d: %v", i, err)
			}
			if err := v.VerifyExtension(input(hash, ts), next, prev); err != nil {
				rt.Fatalf("verify link %d: %v", i, err)
			}
			prev = next
		}

		badHash := hash - rapid.Uint64Range(0, hash-1).Draw(rt, "back")
		if _, err := p.ProveExtension(input(badHash, ts+1), prev); !errors.Is(err, proofchain.ErrInvariantViolation) {
			rt.Fatalf("non-increasing hash accepted: %v", err)
		}
		badTs := ts - rapid.Uint64Range(0, ts-1).Draw(rt, "backTs")
		if _, err := p.ProveExtension(input(hash+1, badTs), prev); !errors.Is(err, proofchain.ErrInvariantViolation) {
			rt.Fatalf("non-increasing timestamp accepted: %v", err)
		}
	})
}
