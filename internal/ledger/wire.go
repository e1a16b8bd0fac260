package ledger

import (
	"fmt"
	"strconv"

	"github.com/jmerrifield20/memoryledger/internal/field"
	"github.com/jmerrifield20/memoryledger/internal/proofchain"
	"github.com/jmerrifield20/memoryledger/pkg/wire"
)

// Wire renders c in the transfer format.
func (c CharacterRecord) Wire() wire.Character {
	return wire.Character{
		ID:               c.ID.String(),
		Name:             c.Name.String(),
		MemoryCommitment: c.MemoryCommitment.String(),
		LastUpdated:      c.LastUpdated.String(),
		IsVerified:       c.IsVerified,
		Bio:              field.Decimals(c.Bio),
		Lore:             field.Decimals(c.Lore),
		Knowledge:        field.Decimals(c.Knowledge),
		Style: wire.Style{
			All:  field.Decimals(c.Style.All),
			Chat: field.Decimals(c.Style.Chat),
			Post: field.Decimals(c.Style.Post),
		},
	}
}

// CharacterFromWire parses the transfer form of a character.
func CharacterFromWire(w wire.Character) (CharacterRecord, error) {
	var (
		c   = CharacterRecord{IsVerified: w.IsVerified}
		err error
	)
	scalars := []struct {
		name string
		src  string
		dst  *field.Element
	}{
		{"id", w.ID, &c.ID},
		{"name", w.Name, &c.Name},
		{"memoryCommitment", w.MemoryCommitment, &c.MemoryCommitment},
		{"lastUpdated", w.LastUpdated, &c.LastUpdated},
	}
	for _, s := range scalars {
		if *s.dst, err = decimalOrZero(s.src); err != nil {
			return CharacterRecord{}, fmt.Errorf("%s: %w", s.name, err)
		}
	}
	lists := []struct {
		name string
		src  []string
		dst  *[]field.Element
	}{
		{"bio", w.Bio, &c.Bio},
		{"lore", w.Lore, &c.Lore},
		{"knowledge", w.Knowledge, &c.Knowledge},
		{"style.all", w.Style.All, &c.Style.All},
		{"style.chat", w.Style.Chat, &c.Style.Chat},
		{"style.post", w.Style.Post, &c.Style.Post},
	}
	for _, l := range lists {
		if *l.dst, err = field.ParseDecimals(l.src); err != nil {
			return CharacterRecord{}, fmt.Errorf("%s: %w", l.name, err)
		}
	}
	return c, nil
}

// Wire renders m in the transfer format.
func (m MemoryEntry) Wire() wire.Memory {
	w := wire.Memory{
		ID:                m.ID.String(),
		CharacterID:       m.CharacterID.String(),
		ContentCommitment: m.ContentCommitment.String(),
		Timestamp:         m.Timestamp.String(),
		CommitmentHash:    m.CommitmentHash.String(),
		IsVerified:        m.IsVerified,
		Type:              m.Type.String(),
		Context:           m.Context.String(),
		Associations:      field.Decimals(m.Associations),
	}
	if m.Proof != nil {
		w.Proof = m.Proof.Encode()
	}
	return w
}

// EntryFromUpdate parses a memory update into an entry. A proof that does
// not decode is not a parse failure: the entry comes back without a proof
// and proofErr, wrapping proofchain.ErrMalformedProof, says why.
func EntryFromUpdate(u wire.MemoryUpdate) (m MemoryEntry, proofErr, err error) {
	scalars := []struct {
		name string
		src  string
		dst  *field.Element
	}{
		{"id", u.ID, &m.ID},
		{"characterId", u.CharacterID, &m.CharacterID},
		{"commitmentHash", u.CommitmentHash, &m.CommitmentHash},
		{"timestamp", u.Timestamp, &m.Timestamp},
		{"type", u.Type, &m.Type},
		{"contentCommitment", u.ContentCommitment, &m.ContentCommitment},
		{"context", u.Context, &m.Context},
	}
	for _, s := range scalars {
		if *s.dst, err = decimalOrZero(s.src); err != nil {
			return MemoryEntry{}, nil, fmt.Errorf("%s: %w", s.name, err)
		}
	}
	if m.Associations, err = field.ParseDecimals(u.Associations); err != nil {
		return MemoryEntry{}, nil, fmt.Errorf("associations: %w", err)
	}
	if u.Proof != "" {
		if m.Proof, proofErr = proofchain.Decode(u.Proof); proofErr != nil {
			return m, fmt.Errorf("proof: %w", proofErr), nil
		}
	}
	return m, nil, nil
}

// Wire renders o in the transfer format.
func (o Overview) Wire() wire.Ledger {
	return wire.Ledger{
		Owner:          o.Owner.String(),
		CharacterCount: strconv.FormatUint(o.CharacterCount, 10),
		LastUpdateTime: o.LastUpdateTime.String(),
		Balance:        strconv.FormatUint(o.Balance, 10),
		Nonce:          strconv.FormatUint(o.Nonce, 10),
	}
}

func decimalOrZero(s string) (field.Element, error) {
	if s == "" {
		return field.Empty, nil
	}
	return field.FromDecimal(s)
}
