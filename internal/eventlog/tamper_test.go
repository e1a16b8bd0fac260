package eventlog

import (
	"context"
	"errors"
	"testing"
)

func TestVerify_detectsTampering(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name   string
		tamper func(l *MemoryLog)
	}{
		{"payload", func(l *MemoryLog) { l.records[1].Payload = []byte(`{"amount":999}`) }},
		{"kind", func(l *MemoryLog) { l.records[2].Kind = "ownership-transferred" }},
		{"prev hash", func(l *MemoryLog) { l.records[2].PrevHash = GenesisHash }},
		{"genesis", func(l *MemoryLog) { l.records[0].Hash = "ff" }},
		{"dropped record", func(l *MemoryLog) { l.records = append(l.records[:1], l.records[2:]...) }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l := NewMemory()
			_, _ = l.Append(ctx, "tokens-deposited", "", "owner", map[string]int{"amount": 10})
			_, _ = l.Append(ctx, "tokens-transferred", "bob", "owner", map[string]int{"amount": 5})

			tc.tamper(l)
			if err := l.Verify(ctx); !errors.Is(err, ErrCorrupt) {
				t.Errorf("Verify() = %v, want ErrCorrupt", err)
			}
		})
	}
}
