// Package ledger holds the authenticated state of characters and their
// memory logs.
//
// State is a pure state container. Mutating operations validate their input
// against the current state and return a Transition; nothing changes until the
// Transition is passed to Apply, and Apply cannot fail. The ledger performs no
// authorization: callers check the owner signature and proof chain first.
//
// State is not safe for concurrent use. The transaction applier serializes
// writers and guards readers.
package ledger

import (
	"errors"
	"fmt"
	"math"

	"github.com/jmerrifield20/memoryledger/internal/field"
	"github.com/jmerrifield20/memoryledger/internal/signature"
)

var (
	// ErrDuplicateID is returned when storing a character whose id exists.
	ErrDuplicateID = errors.New("ledger: duplicate character id")
	// ErrUnknownCharacter is returned when appending to an absent character.
	ErrUnknownCharacter = errors.New("ledger: unknown character")
	// ErrNotFound is returned by queries for absent characters.
	ErrNotFound = errors.New("ledger: not found")
	// ErrInsufficientBalance is returned when a transfer exceeds the balance.
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	// ErrOverflow is returned when a credit would overflow a balance.
	ErrOverflow = errors.New("ledger: balance overflow")
	// ErrNonMonotonic is returned when an entry does not strictly extend the
	// character's latest entry.
	ErrNonMonotonic = errors.New("ledger: memory entry does not extend the log")
	// ErrInvalidRecord is returned for records that can never be stored.
	ErrInvalidRecord = errors.New("ledger: invalid record")
)

// State is the full ledger state.
type State struct {
	owner          signature.PublicKey
	characterCount uint64
	lastUpdateTime field.Element
	balance        uint64
	nonce          uint64

	credits    map[signature.PublicKey]uint64
	characters map[string]CharacterRecord
	order      []string // character keys in insertion order
	memories   map[string][]MemoryEntry
}

// New initializes a ledger owned by owner, with no characters and a zero
// balance.
func New(owner signature.PublicKey) *State {
	return &State{
		owner:      owner,
		credits:    make(map[signature.PublicKey]uint64),
		characters: make(map[string]CharacterRecord),
		memories:   make(map[string][]MemoryEntry),
	}
}

func key(id field.Element) string { return id.String() }

// Overview is a snapshot of the ledger-wide counters.
type Overview struct {
	Owner          signature.PublicKey `json:"owner"`
	CharacterCount uint64              `json:"characterCount"`
	LastUpdateTime field.Element       `json:"lastUpdateTime"`
	Balance        uint64              `json:"balance"`
	Nonce          uint64              `json:"nonce"`
}

// Overview returns the ledger-wide counters.
func (s *State) Overview() Overview {
	return Overview{
		Owner:          s.owner,
		CharacterCount: s.characterCount,
		LastUpdateTime: s.lastUpdateTime,
		Balance:        s.balance,
		Nonce:          s.nonce,
	}
}

// Owner returns the key that authorizes mutations.
func (s *State) Owner() signature.PublicKey { return s.owner }

// CharacterCount returns the number of stored characters.
func (s *State) CharacterCount() uint64 { return s.characterCount }

// LastUpdateTime returns the time of the latest applied mutation.
func (s *State) LastUpdateTime() field.Element { return s.lastUpdateTime }

// Balance returns the ledger's own balance.
func (s *State) Balance() uint64 { return s.balance }

// Nonce returns the number of applied value and ownership operations. It is
// part of their signed tuples so a signature cannot be replayed.
func (s *State) Nonce() uint64 { return s.nonce }

// CreditOf returns the value transferred to k so far.
func (s *State) CreditOf(k signature.PublicKey) uint64 { return s.credits[k] }

// Character returns a copy of the character with the given id.
func (s *State) Character(id field.Element) (CharacterRecord, error) {
	rec, ok := s.characters[key(id)]
	if !ok {
		return CharacterRecord{}, fmt.Errorf("character %s: %w", id, ErrNotFound)
	}
	return rec.Clone(), nil
}

// Characters returns copies of all characters in insertion order.
func (s *State) Characters() []CharacterRecord {
	out := make([]CharacterRecord, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.characters[k].Clone())
	}
	return out
}

// Memories returns copies of a character's entries in insertion order.
func (s *State) Memories(characterID field.Element) ([]MemoryEntry, error) {
	k := key(characterID)
	if _, ok := s.characters[k]; !ok {
		return nil, fmt.Errorf("character %s: %w", characterID, ErrNotFound)
	}
	entries := s.memories[k]
	out := make([]MemoryEntry, len(entries))
	for i, e := range entries {
		out[i] = e.Clone()
	}
	return out, nil
}

// LastMemory returns the latest entry of a character, if any.
func (s *State) LastMemory(characterID field.Element) (MemoryEntry, bool) {
	entries := s.memories[key(characterID)]
	if len(entries) == 0 {
		return MemoryEntry{}, false
	}
	return entries[len(entries)-1].Clone(), true
}

// Transition is a validated mutation that has not been applied yet.
type Transition struct {
	Event Event
	apply func(*State)
}

// Apply commits t. Transitions must be applied to the state that produced
// them, before any other transition.
func (s *State) Apply(t *Transition) {
	t.apply(s)
}

// StoreCharacter inserts rec and advances the character count.
func (s *State) StoreCharacter(rec CharacterRecord, now field.Element) (*Transition, error) {
	if rec.ID.IsZero() {
		return nil, fmt.Errorf("%w: character id must be non-zero", ErrInvalidRecord)
	}
	k := key(rec.ID)
	if _, exists := s.characters[k]; exists {
		return nil, fmt.Errorf("character %s: %w", rec.ID, ErrDuplicateID)
	}
	rec = rec.Clone()
	return &Transition{
		Event: Event{
			Kind:    EventCharacterStored,
			Subject: k,
			Payload: CharacterStored{Record: rec.Clone(), CharacterCount: s.characterCount + 1, At: now},
		},
		apply: func(s *State) {
			s.characters[k] = rec
			s.order = append(s.order, k)
			s.characterCount++
			s.lastUpdateTime = now
		},
	}, nil
}

// AppendMemory appends entry to the log of characterID and moves the
// character's commitment to the entry's hash.
func (s *State) AppendMemory(characterID field.Element, entry MemoryEntry, now field.Element) (*Transition, error) {
	k := key(characterID)
	rec, ok := s.characters[k]
	if !ok {
		return nil, fmt.Errorf("character %s: %w", characterID, ErrUnknownCharacter)
	}
	if !entry.CharacterID.Equal(characterID) {
		return nil, fmt.Errorf("%w: entry belongs to character %s, not %s", ErrInvalidRecord, entry.CharacterID, characterID)
	}
	log := s.memories[k]
	if n := len(log); n > 0 {
		last := log[n-1]
		if !last.CommitmentHash.Less(entry.CommitmentHash) || !last.Timestamp.Less(entry.Timestamp) {
			return nil, fmt.Errorf("character %s: %w", characterID, ErrNonMonotonic)
		}
	} else if entry.CommitmentHash.IsZero() {
		return nil, fmt.Errorf("character %s: %w", characterID, ErrNonMonotonic)
	}

	entry = entry.Clone()
	rec = rec.Clone()
	rec.MemoryCommitment = entry.CommitmentHash
	rec.LastUpdated = now
	rec.IsVerified = entry.IsVerified
	return &Transition{
		Event: Event{
			Kind:    EventMemoryUpdated,
			Subject: k,
			Payload: MemoryUpdated{Entry: entry.Clone(), Sequence: len(log), At: now},
		},
		apply: func(s *State) {
			s.memories[k] = append(s.memories[k], entry)
			s.characters[k] = rec
			s.lastUpdateTime = now
		},
	}, nil
}

// TransferValue moves amount from the ledger balance to the credit of to.
func (s *State) TransferValue(to signature.PublicKey, amount uint64, now field.Element) (*Transition, error) {
	if to.IsZero() {
		return nil, fmt.Errorf("%w: recipient key must be set", ErrInvalidRecord)
	}
	if amount > s.balance {
		return nil, fmt.Errorf("transfer %d with balance %d: %w", amount, s.balance, ErrInsufficientBalance)
	}
	if s.credits[to] > math.MaxUint64-amount {
		return nil, fmt.Errorf("credit of %s: %w", to, ErrOverflow)
	}
	remaining := s.balance - amount
	return &Transition{
		Event: Event{
			Kind:    EventTokensTransferred,
			Subject: to.String(),
			Payload: TokensTransferred{To: to, Amount: amount, Balance: remaining, At: now},
		},
		apply: func(s *State) {
			s.balance = remaining
			s.credits[to] += amount
			s.nonce++
			s.lastUpdateTime = now
		},
	}, nil
}

// Deposit credits amount to the ledger balance.
func (s *State) Deposit(amount uint64, now field.Element) (*Transition, error) {
	if s.balance > math.MaxUint64-amount {
		return nil, fmt.Errorf("deposit %d: %w", amount, ErrOverflow)
	}
	total := s.balance + amount
	return &Transition{
		Event: Event{
			Kind:    EventTokensDeposited,
			Payload: TokensDeposited{Amount: amount, Balance: total, At: now},
		},
		apply: func(s *State) {
			s.balance = total
			s.nonce++
			s.lastUpdateTime = now
		},
	}, nil
}

// ChangeOwner replaces the owner key.
func (s *State) ChangeOwner(newOwner signature.PublicKey, now field.Element) (*Transition, error) {
	if newOwner.IsZero() {
		return nil, fmt.Errorf("%w: owner key must be set", ErrInvalidRecord)
	}
	prev := s.owner
	return &Transition{
		Event: Event{
			Kind:    EventOwnershipTransferred,
			Subject: newOwner.String(),
			Payload: OwnershipTransferred{PreviousOwner: prev, NewOwner: newOwner, At: now},
		},
		apply: func(s *State) {
			s.owner = newOwner
			s.nonce++
			s.lastUpdateTime = now
		},
	}, nil
}
