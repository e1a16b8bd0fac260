package eventlog

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"
)

// GenesisHash is the hash of the genesis record. All chains start from this
// constant rather than from a computed value.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Record is one entry of the event log.
type Record struct {
	Sequence int             `json:"sequence"`
	Time     time.Time       `json:"time"`
	Kind     string          `json:"kind"`
	Subject  string          `json:"subject,omitempty"`
	Actor    string          `json:"actor,omitempty"` // signer public key, hex
	Payload  json.RawMessage `json:"payload,omitempty"`
	DataHash string          `json:"dataHash"`
	PrevHash string          `json:"prevHash"`
	Hash     string          `json:"hash"`
}

func genesis(at time.Time) *Record {
	return &Record{
		Time:     at,
		Kind:     KindGenesis,
		DataHash: GenesisHash,
		PrevHash: GenesisHash,
		Hash:     GenesisHash,
	}
}

// hashRecord must never be called on the genesis record.
func hashRecord(r *Record) string {
	h, _ := blake2b.New256(nil)
	fmt.Fprintf(h, "%d|%s|%s|%s|%s|%s|%s",
		r.Sequence, r.Time.Format(time.RFC3339Nano),
		r.Kind, r.Subject, r.Actor, r.DataHash, r.PrevHash,
	)
	return hex.EncodeToString(h.Sum(nil))
}

func dataHash(payload []byte) string {
	sum := blake2b.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func marshalPayload(payload any) ([]byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return b, nil
}

// link builds the record following prev.
func link(prev *Record, at time.Time, kind, subject, actor string, payload []byte) *Record {
	r := &Record{
		Sequence: prev.Sequence + 1,
		Time:     at,
		Kind:     kind,
		Subject:  subject,
		Actor:    actor,
		Payload:  payload,
		DataHash: dataHash(payload),
		PrevHash: prev.Hash,
	}
	r.Hash = hashRecord(r)
	return r
}

// check validates curr as the successor of prev, or as genesis when prev is
// nil.
func check(prev, curr *Record) error {
	if prev == nil {
		if curr.Sequence != 0 || curr.Hash != GenesisHash {
			return fmt.Errorf("%w: genesis record has hash %q", ErrCorrupt, curr.Hash)
		}
		return nil
	}
	switch {
	case curr.Sequence != prev.Sequence+1:
		return fmt.Errorf("%w: gap after sequence %d", ErrCorrupt, prev.Sequence)
	case curr.PrevHash != prev.Hash:
		return fmt.Errorf("%w: chain broken at sequence %d", ErrCorrupt, curr.Sequence)
	case curr.DataHash != dataHash(curr.Payload):
		return fmt.Errorf("%w: payload of sequence %d altered", ErrCorrupt, curr.Sequence)
	case curr.Hash != hashRecord(curr):
		return fmt.Errorf("%w: record %d has invalid hash", ErrCorrupt, curr.Sequence)
	}
	return nil
}
