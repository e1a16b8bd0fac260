package plugin

import (
	"github.com/google/uuid"
	"github.com/jmerrifield20/memoryledger/internal/field"
	"github.com/jmerrifield20/memoryledger/internal/ledger"
	"github.com/jmerrifield20/memoryledger/pkg/wire"
)

// Profile is a character as an agent framework describes it: plain text.
type Profile struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Bio       []string `json:"bio"`
	Lore      []string `json:"lore"`
	Knowledge []string `json:"knowledge"`
	Style     struct {
		All  []string `json:"all"`
		Chat []string `json:"chat"`
		Post []string `json:"post"`
	} `json:"style"`
}

// CharacterID maps a profile id onto the ledger: UUIDs are packed, any
// other string is encoded as text.
func CharacterID(id string) field.Element {
	if u, err := uuid.Parse(id); err == nil {
		return field.FromUUID(u)
	}
	return field.FromText(id)
}

// Record encodes the profile. Strings longer than 31 bytes are stored as
// hashes and cannot be read back.
func (p Profile) Record() ledger.CharacterRecord {
	return ledger.CharacterRecord{
		ID:        CharacterID(p.ID),
		Name:      field.FromText(p.Name),
		Bio:       field.Texts(p.Bio),
		Lore:      field.Texts(p.Lore),
		Knowledge: field.Texts(p.Knowledge),
		Style: ledger.Style{
			All:  field.Texts(p.Style.All),
			Chat: field.Texts(p.Style.Chat),
			Post: field.Texts(p.Style.Post),
		},
	}
}

// DecodeProfile renders the text fields of a stored character. The id stays
// in decimal form.
func DecodeProfile(c wire.Character) (Profile, error) {
	rec, err := ledger.CharacterFromWire(c)
	if err != nil {
		return Profile{}, err
	}
	p := Profile{
		ID:        c.ID,
		Name:      rec.Name.Text(),
		Bio:       texts(rec.Bio),
		Lore:      texts(rec.Lore),
		Knowledge: texts(rec.Knowledge),
	}
	p.Style.All = texts(rec.Style.All)
	p.Style.Chat = texts(rec.Style.Chat)
	p.Style.Post = texts(rec.Style.Post)
	return p, nil
}

func texts(es []field.Element) []string {
	if es == nil {
		return nil
	}
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.Text()
	}
	return out
}
