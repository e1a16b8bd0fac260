package ledger

import (
	"github.com/jmerrifield20/memoryledger/internal/field"
	"github.com/jmerrifield20/memoryledger/internal/proofchain"
)

// Style groups the stylistic prompts of a character.
type Style struct {
	All  []field.Element `json:"all"`
	Chat []field.Element `json:"chat"`
	Post []field.Element `json:"post"`
}

// CharacterRecord is the identity and metadata of one character.
type CharacterRecord struct {
	ID               field.Element   `json:"id"`
	Name             field.Element   `json:"name"`
	MemoryCommitment field.Element   `json:"memoryCommitment"`
	LastUpdated      field.Element   `json:"lastUpdated"`
	IsVerified       bool            `json:"isVerified"`
	Bio              []field.Element `json:"bio"`
	Lore             []field.Element `json:"lore"`
	Knowledge        []field.Element `json:"knowledge"`
	Style            Style           `json:"style"`
}

// SignedFields returns the tuple the owner signs to store the record.
func (c CharacterRecord) SignedFields() []field.Element {
	return []field.Element{c.ID, c.Name, c.MemoryCommitment, c.LastUpdated}
}

// Clone returns a deep copy of c.
func (c CharacterRecord) Clone() CharacterRecord {
	c.Bio = cloneElements(c.Bio)
	c.Lore = cloneElements(c.Lore)
	c.Knowledge = cloneElements(c.Knowledge)
	c.Style = Style{
		All:  cloneElements(c.Style.All),
		Chat: cloneElements(c.Style.Chat),
		Post: cloneElements(c.Style.Post),
	}
	return c
}

// Equal reports whether every field of c and o matches.
func (c CharacterRecord) Equal(o CharacterRecord) bool {
	return c.ID.Equal(o.ID) &&
		c.Name.Equal(o.Name) &&
		c.MemoryCommitment.Equal(o.MemoryCommitment) &&
		c.LastUpdated.Equal(o.LastUpdated) &&
		c.IsVerified == o.IsVerified &&
		field.EqualSlices(c.Bio, o.Bio) &&
		field.EqualSlices(c.Lore, o.Lore) &&
		field.EqualSlices(c.Knowledge, o.Knowledge) &&
		field.EqualSlices(c.Style.All, o.Style.All) &&
		field.EqualSlices(c.Style.Chat, o.Style.Chat) &&
		field.EqualSlices(c.Style.Post, o.Style.Post)
}

// MemoryEntry is one immutable item of a character's memory log.
type MemoryEntry struct {
	ID                field.Element     `json:"id"`
	CharacterID       field.Element     `json:"characterId"`
	ContentCommitment field.Element     `json:"contentCommitment"`
	Timestamp         field.Element     `json:"timestamp"`
	CommitmentHash    field.Element     `json:"commitmentHash"`
	Proof             *proofchain.Proof `json:"proof"`
	IsVerified        bool              `json:"isVerified"`
	Type              field.Element     `json:"type"`
	Context           field.Element     `json:"context"`
	Associations      []field.Element   `json:"associations"`
}

// SignedFields returns the tuple the owner signs to append the entry.
func (m MemoryEntry) SignedFields() []field.Element {
	return []field.Element{m.ID, m.CharacterID, m.CommitmentHash, m.Timestamp}
}

// PublicInput returns the proof-chain input the entry declares.
func (m MemoryEntry) PublicInput() proofchain.Input {
	return proofchain.Input{
		Hash:        m.CommitmentHash,
		Timestamp:   m.Timestamp,
		CharacterID: m.CharacterID,
	}
}

// Clone returns a deep copy of m.
func (m MemoryEntry) Clone() MemoryEntry {
	m.Proof = m.Proof.Clone()
	m.Associations = cloneElements(m.Associations)
	return m
}

func cloneElements(es []field.Element) []field.Element {
	if es == nil {
		return nil
	}
	return append([]field.Element(nil), es...)
}
