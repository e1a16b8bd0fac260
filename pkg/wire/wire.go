// Package wire defines the JSON transfer format shared by ledgerd, its Go
// client and external collaborators.
//
// Every domain value is a decimal string and booleans are JSON true/false.
// Proofs travel as base64 strings; keys and signatures as hex.
package wire

import (
	"encoding/json"
	"time"
)

// Style groups the stylistic prompts of a character.
type Style struct {
	All  []string `json:"all"`
	Chat []string `json:"chat"`
	Post []string `json:"post"`
}

// Character is the transfer form of a character record.
type Character struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	MemoryCommitment string   `json:"memoryCommitment"`
	LastUpdated      string   `json:"lastUpdated"`
	IsVerified       bool     `json:"isVerified"`
	Bio              []string `json:"bio"`
	Lore             []string `json:"lore"`
	Knowledge        []string `json:"knowledge"`
	Style            Style    `json:"style"`
}

// Memory is the transfer form of a memory entry.
type Memory struct {
	ID                string   `json:"id"`
	CharacterID       string   `json:"characterId"`
	ContentCommitment string   `json:"contentCommitment"`
	Timestamp         string   `json:"timestamp"`
	CommitmentHash    string   `json:"commitmentHash"`
	Proof             string   `json:"proof"`
	IsVerified        bool     `json:"isVerified"`
	Type              string   `json:"type"`
	Context           string   `json:"context"`
	Associations      []string `json:"associations"`
}

// MemoryUpdate asks to append one memory entry. ID, ContentCommitment,
// Context and Associations are optional; an absent ID is assigned by the
// submitter.
type MemoryUpdate struct {
	ID                string   `json:"id,omitempty"`
	CharacterID       string   `json:"characterId"`
	CommitmentHash    string   `json:"commitmentHash"`
	Proof             string   `json:"proof"`
	Timestamp         string   `json:"timestamp"`
	Type              string   `json:"type"`
	ContentCommitment string   `json:"contentCommitment,omitempty"`
	Context           string   `json:"context,omitempty"`
	Associations      []string `json:"associations,omitempty"`
}

// TransactionResult reports the outcome of one mutation.
type TransactionResult struct {
	TransactionHash string `json:"transactionHash"`
	Success         bool   `json:"success"`
	Error           string `json:"error,omitempty"`
}

// StoreCharacterRequest is the body of POST /api/v1/characters.
type StoreCharacterRequest struct {
	Character Character `json:"character"`
	Signature string    `json:"signature"`
}

// AppendMemoryRequest is the body of POST /api/v1/characters/:id/memories.
type AppendMemoryRequest struct {
	Update    MemoryUpdate `json:"update"`
	Signature string       `json:"signature"`
}

// TransferRequest is the body of POST /api/v1/transfers.
type TransferRequest struct {
	To        string `json:"to"`
	Amount    string `json:"amount"`
	Signature string `json:"signature"`
}

// DepositRequest is the body of POST /api/v1/deposits.
type DepositRequest struct {
	Amount    string `json:"amount"`
	Signature string `json:"signature"`
}

// ChangeOwnerRequest is the body of POST /api/v1/owner.
type ChangeOwnerRequest struct {
	NewOwner  string `json:"newOwner"`
	Signature string `json:"signature"`
}

// Ledger is the transfer form of the ledger-wide counters.
type Ledger struct {
	Owner          string `json:"owner"`
	CharacterCount string `json:"characterCount"`
	LastUpdateTime string `json:"lastUpdateTime"`
	Balance        string `json:"balance"`
	Nonce          string `json:"nonce"`
	EventCount     int    `json:"eventCount"`
	EventRoot      string `json:"eventRoot"`
}

// Receipt is returned by every successful mutation.
type Receipt struct {
	TransactionResult
	Sequence int    `json:"sequence"`
	Ledger   Ledger `json:"ledger"`
}

// ProveRequest is the body of POST /api/v1/prover/base and
// /api/v1/prover/extension. Previous, a base64 proof, is required for
// extensions only.
type ProveRequest struct {
	CommitmentHash string `json:"commitmentHash"`
	Timestamp      string `json:"timestamp"`
	CharacterID    string `json:"characterId"`
	Previous       string `json:"previous,omitempty"`
}

// ProveResponse carries a base64 proof.
type ProveResponse struct {
	Proof string `json:"proof"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Event is one record of the event log.
type Event struct {
	Sequence int             `json:"sequence"`
	Time     time.Time       `json:"time"`
	Kind     string          `json:"kind"`
	Subject  string          `json:"subject,omitempty"`
	Actor    string          `json:"actor,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	DataHash string          `json:"dataHash"`
	PrevHash string          `json:"prevHash"`
	Hash     string          `json:"hash"`
}

// EventPage is the body of GET /api/v1/events.
type EventPage struct {
	Events []Event `json:"events"`
	Next   int     `json:"next,omitempty"` // 0 when there are no more events
}

// Verification is the body of GET /api/v1/events/verify.
type Verification struct {
	Valid   bool   `json:"valid"`
	Records int    `json:"records"`
	Root    string `json:"root"`
	Error   string `json:"error,omitempty"`
}
