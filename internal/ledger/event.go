package ledger

import (
	"github.com/jmerrifield20/memoryledger/internal/field"
	"github.com/jmerrifield20/memoryledger/internal/signature"
)

// EventKind identifies the type of an applied operation.
type EventKind string

const (
	// EventCharacterStored records a new character.
	EventCharacterStored EventKind = "character-stored"
	// EventMemoryUpdated records an appended memory entry.
	EventMemoryUpdated EventKind = "memory-updated"
	// EventTokensTransferred records a value transfer out of the ledger.
	EventTokensTransferred EventKind = "tokens-transferred"
	// EventTokensDeposited records value credited to the ledger.
	EventTokensDeposited EventKind = "tokens-deposited"
	// EventOwnershipTransferred records an owner key change.
	EventOwnershipTransferred EventKind = "ownership-transferred"
)

// Event is the record a transition emits once applied.
type Event struct {
	Kind    EventKind
	Subject string // character id or recipient key; empty for ledger-wide events
	Payload any
}

// Payloads carry everything needed to re-run the operation; see Replay.
// At is the ledger time the operation was applied at.

// CharacterStored is the payload of EventCharacterStored.
type CharacterStored struct {
	Record         CharacterRecord `json:"record"`
	CharacterCount uint64          `json:"characterCount"`
	At             field.Element   `json:"at"`
}

// MemoryUpdated is the payload of EventMemoryUpdated.
type MemoryUpdated struct {
	Entry    MemoryEntry   `json:"entry"`
	Sequence int           `json:"sequence"` // position in the character's log
	At       field.Element `json:"at"`
}

// TokensTransferred is the payload of EventTokensTransferred.
type TokensTransferred struct {
	To      signature.PublicKey `json:"to"`
	Amount  uint64              `json:"amount"`
	Balance uint64              `json:"balance"`
	At      field.Element       `json:"at"`
}

// TokensDeposited is the payload of EventTokensDeposited.
type TokensDeposited struct {
	Amount  uint64        `json:"amount"`
	Balance uint64        `json:"balance"`
	At      field.Element `json:"at"`
}

// OwnershipTransferred is the payload of EventOwnershipTransferred.
type OwnershipTransferred struct {
	PreviousOwner signature.PublicKey `json:"previousOwner"`
	NewOwner      signature.PublicKey `json:"newOwner"`
	At            field.Element       `json:"at"`
}
