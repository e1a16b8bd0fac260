package proofchain

import (
	"encoding/base64"
	"fmt"

	"github.com/jmerrifield20/memoryledger/internal/field"
	"github.com/jmerrifield20/memoryledger/internal/signature"
	"google.golang.org/protobuf/encoding/protowire"
)

// Wire field numbers. The layout is a protobuf message:
//
//	message Proof {
//	  uint32 kind        = 1;
//	  bytes  hash        = 2;
//	  bytes  timestamp   = 3;
//	  bytes  character   = 4;
//	  bytes  parent      = 5;
//	  bytes  seal        = 6;
//	  Proof  previous    = 7;
//	}
const (
	fieldKind      protowire.Number = 1
	fieldHash      protowire.Number = 2
	fieldTimestamp protowire.Number = 3
	fieldCharacter protowire.Number = 4
	fieldParent    protowire.Number = 5
	fieldSeal      protowire.Number = 6
	fieldPrevious  protowire.Number = 7
)

// MarshalBinary encodes p in its protobuf wire form.
func (p *Proof) MarshalBinary() ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil proof", ErrMalformedProof)
	}
	return p.appendWire(nil), nil
}

func (p *Proof) appendWire(b []byte) []byte {
	b = protowire.AppendTag(b, fieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.Kind))
	for _, f := range []struct {
		num protowire.Number
		val field.Element
	}{
		{fieldHash, p.Input.Hash},
		{fieldTimestamp, p.Input.Timestamp},
		{fieldCharacter, p.Input.CharacterID},
	} {
		enc := f.val.Bytes()
		b = protowire.AppendTag(b, f.num, protowire.BytesType)
		b = protowire.AppendBytes(b, enc[:])
	}
	if !p.Parent.IsZero() {
		b = protowire.AppendTag(b, fieldParent, protowire.BytesType)
		b = protowire.AppendBytes(b, p.Parent[:])
	}
	b = protowire.AppendTag(b, fieldSeal, protowire.BytesType)
	b = protowire.AppendBytes(b, p.Seal)
	if p.Previous != nil {
		b = protowire.AppendTag(b, fieldPrevious, protowire.BytesType)
		b = protowire.AppendBytes(b, p.Previous.appendWire(nil))
	}
	return b
}

// UnmarshalProof decodes a proof produced by MarshalBinary. Any decoding
// failure is reported as ErrMalformedProof.
func UnmarshalProof(b []byte) (*Proof, error) {
	return unmarshal(b, 0)
}

// A decoded proof may embed one predecessor handle, never more.
const maxNesting = 1

func unmarshal(b []byte, depth int) (*Proof, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty encoding", ErrMalformedProof)
	}
	p := &Proof{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformedProof, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldKind && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: kind: %v", ErrMalformedProof, protowire.ParseError(n))
			}
			if v > 255 {
				return nil, fmt.Errorf("%w: kind %d out of range", ErrMalformedProof, v)
			}
			p.Kind = Kind(v)
			b = b[n:]

		case typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrMalformedProof, num, protowire.ParseError(n))
			}
			b = b[n:]
			if err := p.setBytes(num, v, depth); err != nil {
				return nil, err
			}

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrMalformedProof, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return p, nil
}

func (p *Proof) setBytes(num protowire.Number, v []byte, depth int) error {
	var err error
	switch num {
	case fieldHash:
		p.Input.Hash, err = field.FromCanonical(v)
	case fieldTimestamp:
		p.Input.Timestamp, err = field.FromCanonical(v)
	case fieldCharacter:
		p.Input.CharacterID, err = field.FromCanonical(v)
	case fieldParent:
		if len(v) != len(p.Parent) {
			return fmt.Errorf("%w: parent digest must be %d bytes", ErrMalformedProof, len(p.Parent))
		}
		copy(p.Parent[:], v)
	case fieldSeal:
		p.Seal = append(signature.Signature(nil), v...)
	case fieldPrevious:
		if depth >= maxNesting {
			return fmt.Errorf("%w: predecessor nested too deeply", ErrMalformedProof)
		}
		p.Previous, err = unmarshal(v, depth+1)
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: field %d: %v", ErrMalformedProof, num, err)
	}
	return nil
}

// Encode returns the base64 form of p used in JSON payloads.
func (p *Proof) Encode() string {
	b, _ := p.MarshalBinary()
	return base64.StdEncoding.EncodeToString(b)
}

// Decode parses the base64 form produced by Encode.
func Decode(s string) (*Proof, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedProof, err)
	}
	return UnmarshalProof(b)
}

// MarshalText implements encoding.TextMarshaler.
func (p *Proof) MarshalText() ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil proof", ErrMalformedProof)
	}
	return []byte(p.Encode()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Proof) UnmarshalText(b []byte) error {
	d, err := Decode(string(b))
	if err != nil {
		return err
	}
	*p = *d
	return nil
}
