package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/jmerrifield20/memoryledger/internal/plugin"
	"github.com/jmerrifield20/memoryledger/internal/signature"
	"github.com/jmerrifield20/memoryledger/pkg/wire"
	"github.com/spf13/cobra"
)

func (c *cli) characterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "character",
		Aliases: []string{"char"},
		Short:   "Store and inspect characters",
	}

	var (
		file    string
		profile plugin.Profile
	)
	store := &cobra.Command{
		Use:   "store",
		Short: "Store a character from a profile file or flags",
		Long: `Store signs and submits a new character.

The profile is either a JSON file:

  ledgerctl character store --file aria.json

or given inline:

  ledgerctl character store --id aria --name Aria --bio "an archivist"

Text longer than 31 bytes is stored as a hash and cannot be read back.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := profile
			if file != "" {
				b, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				if err := json.Unmarshal(b, &p); err != nil {
					return fmt.Errorf("parse %s: %w", file, err)
				}
			}
			if p.ID == "" || p.Name == "" {
				return fmt.Errorf("a character needs an id and a name")
			}
			key, err := c.signer()
			if err != nil {
				return err
			}
			rec := p.Record()
			rec.LastUpdated = c.millis()
			sig, err := signature.Sign(key, rec.SignedFields())
			if err != nil {
				return err
			}

			cl, err := c.client()
			if err != nil {
				return err
			}
			ctx, cancel := c.withTimeout()
			defer cancel()
			r, err := cl.StoreCharacter(ctx, wire.StoreCharacterRequest{Character: rec.Wire(), Signature: sig.String()})
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "✓ Character stored\n\n")
			fmt.Fprintf(c.out, "  ID:          %s\n", rec.ID)
			fmt.Fprintf(c.out, "  Transaction: %s\n", r.TransactionHash)
			fmt.Fprintf(c.out, "  Sequence:    %d\n", r.Sequence)
			return nil
		},
	}
	store.Flags().StringVar(&file, "file", "", "profile JSON file")
	store.Flags().StringVar(&profile.ID, "id", "", "character id: UUID, text or decimal")
	store.Flags().StringVar(&profile.Name, "name", "", "character name")
	store.Flags().StringArrayVar(&profile.Bio, "bio", nil, "bio line (repeatable)")
	store.Flags().StringArrayVar(&profile.Lore, "lore", nil, "lore line (repeatable)")
	store.Flags().StringArrayVar(&profile.Knowledge, "knowledge", nil, "knowledge line (repeatable)")

	var decode bool
	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one character",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := c.client()
			if err != nil {
				return err
			}
			ctx, cancel := c.withTimeout()
			defer cancel()
			ch, err := cl.GetCharacter(ctx, characterID(args[0]).String())
			if err != nil {
				return err
			}
			if !decode {
				return c.printJSON(ch)
			}
			p, err := plugin.DecodeProfile(*ch)
			if err != nil {
				return err
			}
			return c.printJSON(p)
		},
	}
	get.Flags().BoolVar(&decode, "decode", false, "render text fields instead of field elements")

	list := &cobra.Command{
		Use:   "list",
		Short: "List all characters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := c.client()
			if err != nil {
				return err
			}
			ctx, cancel := c.withTimeout()
			defer cancel()
			chars, err := cl.ListCharacters(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tCOMMITMENT\tVERIFIED")
			for _, ch := range chars {
				name := ch.Name
				if p, err := plugin.DecodeProfile(ch); err == nil && p.Name != "" {
					name = p.Name
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", ch.ID, name, ch.MemoryCommitment, ch.IsVerified)
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(store, get, list)
	return cmd
}
