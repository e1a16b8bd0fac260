// Package signature verifies detached owner signatures over ordered tuples of
// domain values.
//
// The signed message is the BLAKE2b-256 digest of a domain tag, the tuple
// length and the canonical 32-byte encoding of every element, in order.
// Signatures are Ed25519.
package signature

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/jmerrifield20/memoryledger/internal/field"
	"golang.org/x/crypto/blake2b"
)

// messageTag separates owner signatures from every other digest in the system.
const messageTag = "memoryledger/owner-signature/v1"

var (
	// ErrEmptyTuple is returned when asked to sign an empty field tuple.
	ErrEmptyTuple = errors.New("signature: field tuple must not be empty")
	// ErrInvalidKey is returned for keys of the wrong length or encoding.
	ErrInvalidKey = errors.New("signature: invalid key")
	// ErrInvalidSignature is returned for signatures that cannot be decoded.
	ErrInvalidSignature = errors.New("signature: invalid signature encoding")
)

// Verifier checks a signature over an ordered tuple against a public key.
// Implementations fail closed: any malformed input yields false.
type Verifier interface {
	Verify(signer PublicKey, fields []field.Element, sig Signature) bool
}

// Ed25519Verifier is the default Verifier.
type Ed25519Verifier struct{}

// Verify implements Verifier.
func (Ed25519Verifier) Verify(signer PublicKey, fields []field.Element, sig Signature) bool {
	return Verify(signer, fields, sig)
}

// PublicKey is an Ed25519 public key. It is comparable and usable as a map key.
type PublicKey [ed25519.PublicKeySize]byte

// ParsePublicKey decodes a hex-encoded public key.
func ParsePublicKey(s string) (PublicKey, error) {
	var pk PublicKey
	b, err := hex.DecodeString(s)
	if err != nil {
		return pk, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(b) != len(pk) {
		return pk, fmt.Errorf("%w: public key must be %d bytes, got %d", ErrInvalidKey, len(pk), len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

// String returns the lowercase hex encoding.
func (p PublicKey) String() string { return hex.EncodeToString(p[:]) }

// IsZero reports whether p is the all-zero key.
func (p PublicKey) IsZero() bool { return p == PublicKey{} }

// Fields splits the key into two 16-byte halves so it can appear in a signed
// tuple.
func (p PublicKey) Fields() []field.Element {
	var hi, lo [field.Size]byte
	copy(hi[16:], p[:16])
	copy(lo[16:], p[16:])
	h, _ := field.FromCanonical(hi[:])
	l, _ := field.FromCanonical(lo[:])
	return []field.Element{h, l}
}

// MarshalText implements encoding.TextMarshaler.
func (p PublicKey) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *PublicKey) UnmarshalText(b []byte) error {
	pk, err := ParsePublicKey(string(b))
	if err != nil {
		return err
	}
	*p = pk
	return nil
}

// PrivateKey is an Ed25519 signing key.
type PrivateKey struct {
	key ed25519.PrivateKey
}

// GenerateKey creates a new key from r, or crypto/rand when r is nil.
func GenerateKey(r io.Reader) (PrivateKey, error) {
	if r == nil {
		r = rand.Reader
	}
	_, priv, err := ed25519.GenerateKey(r)
	if err != nil {
		return PrivateKey{}, fmt.Errorf("generate ed25519 key: %w", err)
	}
	return PrivateKey{key: priv}, nil
}

// ParsePrivateKey decodes a hex-encoded 32-byte seed.
func ParsePrivateKey(s string) (PrivateKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return PrivateKey{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(b) != ed25519.SeedSize {
		return PrivateKey{}, fmt.Errorf("%w: seed must be %d bytes, got %d", ErrInvalidKey, ed25519.SeedSize, len(b))
	}
	return PrivateKey{key: ed25519.NewKeyFromSeed(b)}, nil
}

// Seed returns the hex-encoded seed accepted by ParsePrivateKey.
func (k PrivateKey) Seed() string { return hex.EncodeToString(k.key.Seed()) }

// Public returns the matching public key.
func (k PrivateKey) Public() PublicKey {
	var pk PublicKey
	copy(pk[:], k.key.Public().(ed25519.PublicKey))
	return pk
}

// SignDigest signs an arbitrary 32-byte digest. Used by the prover, whose
// statements are not owner tuples.
func (k PrivateKey) SignDigest(digest [32]byte) Signature {
	return Signature(ed25519.Sign(k.key, digest[:]))
}

// Signature is a detached Ed25519 signature.
type Signature []byte

// ParseSignature decodes a hex-encoded signature.
func ParseSignature(s string) (Signature, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if len(b) != ed25519.SignatureSize {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidSignature, ed25519.SignatureSize, len(b))
	}
	return Signature(b), nil
}

// Lenient decodes s like ParseSignature but returns nil instead of an error.
// A nil signature never verifies, so malformed input fails closed at Verify.
func Lenient(s string) Signature {
	sig, err := ParseSignature(s)
	if err != nil {
		return nil
	}
	return sig
}

// String returns the lowercase hex encoding.
func (s Signature) String() string { return hex.EncodeToString(s) }

// MarshalText implements encoding.TextMarshaler.
func (s Signature) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Signature) UnmarshalText(b []byte) error {
	sig, err := ParseSignature(string(b))
	if err != nil {
		return err
	}
	*s = sig
	return nil
}

// Message returns the digest that is signed for fields.
func Message(fields []field.Element) [32]byte {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(messageTag))
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(fields)))
	h.Write(n[:])
	for _, f := range fields {
		b := f.Bytes()
		h.Write(b[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Sign signs the ordered tuple fields with k.
func Sign(k PrivateKey, fields []field.Element) (Signature, error) {
	if len(fields) == 0 {
		return nil, ErrEmptyTuple
	}
	if len(k.key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: uninitialised private key", ErrInvalidKey)
	}
	return k.SignDigest(Message(fields)), nil
}

// Verify reports whether sig was produced by the holder of signer's private
// key over exactly fields. It never panics.
func Verify(signer PublicKey, fields []field.Element, sig Signature) bool {
	if len(fields) == 0 || len(sig) != ed25519.SignatureSize || signer.IsZero() {
		return false
	}
	msg := Message(fields)
	return VerifyDigest(signer, msg, sig)
}

// VerifyDigest checks a signature produced by SignDigest.
func VerifyDigest(signer PublicKey, digest [32]byte, sig Signature) bool {
	if len(sig) != ed25519.SignatureSize || signer.IsZero() {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(signer[:]), digest[:], sig)
}
