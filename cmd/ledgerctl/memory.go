package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/jmerrifield20/memoryledger/internal/field"
	"github.com/jmerrifield20/memoryledger/internal/ledger"
	"github.com/jmerrifield20/memoryledger/internal/signature"
	"github.com/jmerrifield20/memoryledger/pkg/client"
	"github.com/jmerrifield20/memoryledger/pkg/wire"
	"github.com/spf13/cobra"
)

func (c *cli) memoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "memory",
		Aliases: []string{"mem"},
		Short:   "Append and inspect memory entries",
	}

	var u wire.MemoryUpdate
	appendCmd := &cobra.Command{
		Use:   "append <character-id>",
		Short: "Append a memory entry",
		Long: `Append signs and submits one memory entry.

Without --proof, the proof is requested from the server's prover: a base
proof for the first entry, an extension of the latest entry's proof
otherwise. The commitment hash must exceed the latest entry's.

  ledgerctl memory append aria --hash 17 --type 1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := c.signer()
			if err != nil {
				return err
			}
			upd := u
			upd.CharacterID = characterID(args[0]).String()
			if upd.ID == "" {
				upd.ID = field.FromUUID(uuid.New()).String()
			}
			if upd.Timestamp == "" {
				upd.Timestamp = c.millis().String()
			}

			cl, err := c.client()
			if err != nil {
				return err
			}
			ctx, cancel := c.withTimeout()
			defer cancel()
			if upd.Proof == "" {
				if upd.Proof, err = requestProof(ctx, cl, upd); err != nil {
					return err
				}
			}

			entry, proofErr, err := ledger.EntryFromUpdate(upd)
			if err != nil {
				return err
			}
			if proofErr != nil {
				return proofErr
			}
			sig, err := signature.Sign(key, entry.SignedFields())
			if err != nil {
				return err
			}
			r, err := cl.AppendMemory(ctx, wire.AppendMemoryRequest{Update: upd, Signature: sig.String()})
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "✓ Memory appended\n\n")
			fmt.Fprintf(c.out, "  ID:          %s\n", upd.ID)
			fmt.Fprintf(c.out, "  Commitment:  %s\n", upd.CommitmentHash)
			fmt.Fprintf(c.out, "  Transaction: %s\n", r.TransactionHash)
			return nil
		},
	}
	f := appendCmd.Flags()
	f.StringVar(&u.CommitmentHash, "hash", "", "commitment hash, decimal (required)")
	f.StringVar(&u.Type, "type", "0", "memory type, decimal")
	f.StringVar(&u.ID, "id", "", "entry id, decimal (default: random UUID)")
	f.StringVar(&u.Timestamp, "timestamp", "", "Unix milliseconds (default: now)")
	f.StringVar(&u.ContentCommitment, "content", "", "content commitment, decimal")
	f.StringVar(&u.Context, "context", "", "context, decimal")
	f.StringArrayVar(&u.Associations, "association", nil, "associated entry id (repeatable)")
	f.StringVar(&u.Proof, "proof", "", "base64 proof (default: request one from the server)")
	_ = appendCmd.MarkFlagRequired("hash")

	list := &cobra.Command{
		Use:   "list <character-id>",
		Short: "List a character's memory entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := c.client()
			if err != nil {
				return err
			}
			ctx, cancel := c.withTimeout()
			defer cancel()
			mems, err := cl.ListMemories(ctx, characterID(args[0]).String())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTIMESTAMP\tCOMMITMENT\tTYPE\tVERIFIED")
			for _, m := range mems {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n", m.ID, m.Timestamp, m.CommitmentHash, m.Type, m.IsVerified)
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(appendCmd, list)
	return cmd
}

// requestProof asks the server to prove upd, extending the character's
// latest proof when it has one.
func requestProof(ctx context.Context, cl *client.Client, upd wire.MemoryUpdate) (string, error) {
	mems, err := cl.ListMemories(ctx, upd.CharacterID)
	if err != nil {
		return "", err
	}
	req := wire.ProveRequest{
		CommitmentHash: upd.CommitmentHash,
		Timestamp:      upd.Timestamp,
		CharacterID:    upd.CharacterID,
	}
	if len(mems) == 0 {
		return cl.ProveBase(ctx, req)
	}
	req.Previous = mems[len(mems)-1].Proof
	return cl.ProveExtension(ctx, req)
}
