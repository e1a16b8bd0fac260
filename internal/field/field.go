// Package field implements the domain values used for identifiers, hashes,
// timestamps and descriptive text throughout the ledger.
//
// An Element is an integer in [0, Modulus), where Modulus is the Pallas base
// field prime. Elements are immutable; the zero value is the field zero and
// doubles as the "empty" commitment sentinel.
package field

import (
	"errors"
	"fmt"
	"math/big"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// Size is the length in bytes of the canonical big-endian encoding.
const Size = 32

// maxPackedText is the longest string FromText stores reversibly.
// 31 bytes always fit below Modulus.
const maxPackedText = 31

// Modulus is the Pallas base field prime.
var Modulus, _ = new(big.Int).SetString(
	"28948022309329048855892746252171976963363056481941560715954676764349967630337", 10)

var (
	// ErrOutOfRange is returned when an integer is negative or not below Modulus.
	ErrOutOfRange = errors.New("field: value out of range")
	// ErrInvalidDecimal is returned when a string is not a base-10 integer.
	ErrInvalidDecimal = errors.New("field: invalid decimal string")
)

// Element is a single domain value.
type Element struct {
	v *big.Int // nil means zero
}

// Empty is the sentinel commitment of a character without memories.
var Empty = Element{}

// New returns the element with the given small integer value.
func New(n uint64) Element {
	if n == 0 {
		return Element{}
	}
	return Element{v: new(big.Int).SetUint64(n)}
}

// FromBig converts n, rejecting values outside [0, Modulus).
func FromBig(n *big.Int) (Element, error) {
	if n == nil || n.Sign() == 0 {
		return Element{}, nil
	}
	if n.Sign() < 0 || n.Cmp(Modulus) >= 0 {
		return Element{}, fmt.Errorf("%w: %s", ErrOutOfRange, n.String())
	}
	return Element{v: new(big.Int).Set(n)}, nil
}

// FromDecimal parses a base-10 string such as those produced by String.
func FromDecimal(s string) (Element, error) {
	if s == "" {
		return Element{}, fmt.Errorf("%w: empty", ErrInvalidDecimal)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return Element{}, fmt.Errorf("%w: %q", ErrInvalidDecimal, s)
		}
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Element{}, fmt.Errorf("%w: %q", ErrInvalidDecimal, s)
	}
	return FromBig(n)
}

// MustDecimal is like FromDecimal but panics on error. Intended for constants
// and tests.
func MustDecimal(s string) Element {
	e, err := FromDecimal(s)
	if err != nil {
		panic(err)
	}
	return e
}

// FromText encodes a UTF-8 string. Strings of up to 31 bytes are packed
// big-endian and can be recovered with Text; longer strings are hashed.
func FromText(s string) Element {
	if len(s) <= maxPackedText {
		return fromBytes([]byte(s))
	}
	return Hash([]byte(s))
}

// FromUUID packs the 16 bytes of u.
func FromUUID(u uuid.UUID) Element {
	return fromBytes(u[:])
}

// FromCanonical decodes the 32-byte big-endian form produced by Bytes.
func FromCanonical(b []byte) (Element, error) {
	if len(b) != Size {
		return Element{}, fmt.Errorf("%w: canonical encoding must be %d bytes, got %d", ErrOutOfRange, Size, len(b))
	}
	return FromBig(new(big.Int).SetBytes(b))
}

// Hash maps arbitrary bytes into the field with BLAKE2b-256 reduced modulo
// Modulus.
func Hash(data []byte) Element {
	sum := blake2b.Sum256(data)
	n := new(big.Int).SetBytes(sum[:])
	n.Mod(n, Modulus)
	if n.Sign() == 0 {
		return Element{}
	}
	return Element{v: n}
}

func fromBytes(b []byte) Element {
	n := new(big.Int).SetBytes(b)
	if n.Sign() == 0 {
		return Element{}
	}
	return Element{v: n}
}

func (e Element) big() *big.Int {
	if e.v == nil {
		return new(big.Int)
	}
	return e.v
}

// IsZero reports whether e is the field zero.
func (e Element) IsZero() bool { return e.v == nil || e.v.Sign() == 0 }

// Cmp compares e and o as integers.
func (e Element) Cmp(o Element) int { return e.big().Cmp(o.big()) }

// Less reports whether e < o.
func (e Element) Less(o Element) bool { return e.Cmp(o) < 0 }

// Equal reports whether e == o.
func (e Element) Equal(o Element) bool { return e.Cmp(o) == 0 }

// Uint64 returns e as a uint64 when it fits.
func (e Element) Uint64() (uint64, bool) {
	b := e.big()
	if !b.IsUint64() {
		return 0, false
	}
	return b.Uint64(), true
}

// Big returns a copy of e as a big.Int.
func (e Element) Big() *big.Int { return new(big.Int).Set(e.big()) }

// Bytes returns the canonical 32-byte big-endian encoding.
func (e Element) Bytes() [Size]byte {
	var out [Size]byte
	e.big().FillBytes(out[:])
	return out
}

// String returns the decimal representation.
func (e Element) String() string { return e.big().String() }

// Text reverses FromText for packed strings. Elements that do not decode to
// valid UTF-8 are rendered in decimal.
func (e Element) Text() string {
	if e.IsZero() {
		return ""
	}
	b := e.v.Bytes()
	if len(b) > maxPackedText || !utf8.Valid(b) {
		return e.String()
	}
	return string(b)
}

// MarshalText encodes e as a decimal string, so JSON carries domain values as
// strings.
func (e Element) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText decodes a decimal string.
func (e *Element) UnmarshalText(b []byte) error {
	v, err := FromDecimal(string(b))
	if err != nil {
		return err
	}
	*e = v
	return nil
}

// Texts encodes each string with FromText.
func Texts(ss []string) []Element {
	if ss == nil {
		return nil
	}
	out := make([]Element, len(ss))
	for i, s := range ss {
		out[i] = FromText(s)
	}
	return out
}

// Decimals renders each element with String.
func Decimals(es []Element) []string {
	if es == nil {
		return nil
	}
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.String()
	}
	return out
}

// ParseDecimals parses each string with FromDecimal.
func ParseDecimals(ss []string) ([]Element, error) {
	if ss == nil {
		return nil, nil
	}
	out := make([]Element, len(ss))
	for i, s := range ss {
		e, err := FromDecimal(s)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = e
	}
	return out, nil
}

// EqualSlices reports whether a and b hold equal elements in the same order.
func EqualSlices(a, b []Element) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
