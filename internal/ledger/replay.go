package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrReplay is returned when a recorded event cannot be re-applied to the
// state being rebuilt.
var ErrReplay = errors.New("ledger: event does not replay")

// Replay re-runs a recorded operation from its JSON payload and applies it.
// Signatures and proofs are not checked again: the event log is trusted once
// its hash chain verifies.
func (s *State) Replay(kind EventKind, payload []byte) error {
	tr, err := s.replay(kind, payload)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrReplay, kind, err)
	}
	s.Apply(tr)
	return nil
}

func (s *State) replay(kind EventKind, payload []byte) (*Transition, error) {
	switch kind {
	case EventCharacterStored:
		var p CharacterStored
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, err
		}
		if p.CharacterCount != s.characterCount+1 {
			return nil, fmt.Errorf("character count %d after %d", p.CharacterCount, s.characterCount)
		}
		return s.StoreCharacter(p.Record, p.At)

	case EventMemoryUpdated:
		var p MemoryUpdated
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, err
		}
		if n := len(s.memories[key(p.Entry.CharacterID)]); p.Sequence != n {
			return nil, fmt.Errorf("memory sequence %d, log has %d entries", p.Sequence, n)
		}
		return s.AppendMemory(p.Entry.CharacterID, p.Entry, p.At)

	case EventTokensTransferred:
		var p TokensTransferred
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, err
		}
		return s.TransferValue(p.To, p.Amount, p.At)

	case EventTokensDeposited:
		var p TokensDeposited
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, err
		}
		return s.Deposit(p.Amount, p.At)

	case EventOwnershipTransferred:
		var p OwnershipTransferred
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, err
		}
		if p.PreviousOwner != s.owner {
			return nil, fmt.Errorf("owner %s, event expects %s", s.owner, p.PreviousOwner)
		}
		return s.ChangeOwner(p.NewOwner, p.At)
	}
	return nil, errors.New("unknown event kind")
}
