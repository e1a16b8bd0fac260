package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/jmerrifield20/memoryledger/pkg/wire"
	"github.com/spf13/cobra"
)

func (c *cli) eventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect the event log",
	}

	var (
		from, limit int
		all         bool
		format      string
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List event log records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := c.client()
			if err != nil {
				return err
			}
			ctx, cancel := c.withTimeout()
			defer cancel()

			var events []wire.Event
			for next := from; ; {
				page, err := cl.Events(ctx, next, limit)
				if err != nil {
					return err
				}
				events = append(events, page.Events...)
				if !all || page.Next == 0 {
					break
				}
				next = page.Next
			}

			if format == "json" {
				return c.printJSON(events)
			}
			w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SEQ\tTIME\tKIND\tSUBJECT\tHASH")
			for _, e := range events {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", e.Sequence, e.Time.Format(time.RFC3339), e.Kind, e.Subject, e.Hash)
			}
			return w.Flush()
		},
	}
	list.Flags().IntVar(&from, "from", 1, "first sequence number")
	list.Flags().IntVar(&limit, "limit", 50, "records per page")
	list.Flags().BoolVar(&all, "all", false, "follow pages to the end of the log")
	list.Flags().StringVar(&format, "format", "text", "output format: text or json")

	verify := &cobra.Command{
		Use:   "verify",
		Short: "Check the integrity of the event log hash chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := c.client()
			if err != nil {
				return err
			}
			ctx, cancel := c.withTimeout()
			defer cancel()
			v, err := cl.VerifyEvents(ctx)
			if err != nil {
				return err
			}
			if !v.Valid {
				return fmt.Errorf("event log corrupt after %d records: %s", v.Records, v.Error)
			}
			fmt.Fprintf(c.out, "✓ %d records, root %s\n", v.Records, v.Root)
			return nil
		},
	}

	cmd.AddCommand(list, verify)
	return cmd
}

func (c *cli) proveCmd() *cobra.Command {
	var (
		req    wire.ProveRequest
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "prove <character-id>",
		Short: "Request a proof from the server's prover",
		Long: `Prove requests a base proof, or an extension of --previous when set,
and prints it base64-encoded.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := req
			r.CharacterID = characterID(args[0]).String()
			if r.Timestamp == "" {
				r.Timestamp = c.millis().String()
			}
			cl, err := c.client()
			if err != nil {
				return err
			}
			ctx, cancel := c.withTimeout()
			defer cancel()
			var proof string
			if r.Previous == "" {
				proof, err = cl.ProveBase(ctx, r)
			} else {
				proof, err = cl.ProveExtension(ctx, r)
			}
			if err != nil {
				return err
			}
			if asJSON {
				return c.printJSON(map[string]string{"proof": proof, "timestamp": r.Timestamp})
			}
			fmt.Fprintln(c.out, proof)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.CommitmentHash, "hash", "", "commitment hash, decimal (required)")
	cmd.Flags().StringVar(&req.Timestamp, "timestamp", "", "Unix milliseconds (default: now)")
	cmd.Flags().StringVar(&req.Previous, "previous", "", "base64 proof to extend")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the proof with its timestamp as JSON")
	_ = cmd.MarkFlagRequired("hash")
	return cmd
}
