package applier

import (
	"github.com/jmerrifield20/memoryledger/internal/eventlog"
	"github.com/jmerrifield20/memoryledger/internal/field"
	"github.com/jmerrifield20/memoryledger/internal/ledger"
	"github.com/jmerrifield20/memoryledger/internal/signature"
)

// Op names a mutating operation.
type Op string

const (
	OpStoreCharacter Op = "storeCharacter"
	OpAppendMemory   Op = "appendMemory"
	OpTransferValue  Op = "transferValue"
	OpDeposit        Op = "deposit"
	OpChangeOwner    Op = "changeOwner"
)

// StoreCharacter asks to insert a new character. Signature covers
// Record.SignedFields().
type StoreCharacter struct {
	Record    ledger.CharacterRecord
	Signature signature.Signature
}

// AppendMemory asks to extend a character's memory log. Signature covers
// Entry.SignedFields(); Entry.Proof must be a base proof for the first entry
// and an extension of the latest entry's proof otherwise. ProofErr records a
// submitted proof that did not decode; it is reported as InvalidProofChain
// once the signature has been checked.
type AppendMemory struct {
	CharacterID field.Element
	Entry       ledger.MemoryEntry
	ProofErr    error
	Signature   signature.Signature
}

// TransferValue asks to move value out of the ledger balance. Signature
// covers TransferTuple(To, Amount, nonce).
type TransferValue struct {
	To        signature.PublicKey
	Amount    uint64
	Signature signature.Signature
}

// Deposit asks to credit the ledger balance. Signature covers
// DepositTuple(Amount, nonce).
type Deposit struct {
	Amount    uint64
	Signature signature.Signature
}

// ChangeOwner asks to replace the owner key. Signature, by the current
// owner, covers OwnerTuple(NewOwner, nonce).
type ChangeOwner struct {
	NewOwner  signature.PublicKey
	Signature signature.Signature
}

// TransferTuple is the signed tuple of a transfer at the given ledger nonce.
func TransferTuple(to signature.PublicKey, amount, nonce uint64) []field.Element {
	return append(to.Fields(), field.New(amount), field.New(nonce))
}

// DepositTuple is the signed tuple of a deposit at the given ledger nonce.
func DepositTuple(amount, nonce uint64) []field.Element {
	return []field.Element{field.New(amount), field.New(nonce)}
}

// OwnerTuple is the signed tuple of an owner change at the given ledger
// nonce.
func OwnerTuple(newOwner signature.PublicKey, nonce uint64) []field.Element {
	return append(newOwner.Fields(), field.New(nonce))
}

// Receipt describes an applied transaction.
type Receipt struct {
	Op              Op               `json:"op"`
	TransactionHash string           `json:"transactionHash"`
	Event           *eventlog.Record `json:"event"`
	Ledger          ledger.Overview  `json:"ledger"`
}
