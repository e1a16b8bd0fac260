package main

import (
	"fmt"
	"strconv"

	"github.com/jmerrifield20/memoryledger/internal/applier"
	"github.com/jmerrifield20/memoryledger/internal/field"
	"github.com/jmerrifield20/memoryledger/internal/signature"
	"github.com/jmerrifield20/memoryledger/pkg/client"
	"github.com/jmerrifield20/memoryledger/pkg/wire"
	"github.com/spf13/cobra"
)

// signAtNonce fetches the ledger nonce, builds the tuple for it and signs it.
func (c *cli) signAtNonce(cl *client.Client, tuple func(nonce uint64) []field.Element) (signature.Signature, error) {
	key, err := c.signer()
	if err != nil {
		return nil, err
	}
	ctx, cancel := c.withTimeout()
	defer cancel()
	l, err := cl.Ledger(ctx)
	if err != nil {
		return nil, err
	}
	nonce, err := strconv.ParseUint(l.Nonce, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("ledger nonce %q: %w", l.Nonce, err)
	}
	return signature.Sign(key, tuple(nonce))
}

func (c *cli) printReceipt(what string, r *wire.Receipt) {
	fmt.Fprintf(c.out, "✓ %s\n\n", what)
	fmt.Fprintf(c.out, "  Transaction: %s\n", r.TransactionHash)
	fmt.Fprintf(c.out, "  Balance:     %s\n", r.Ledger.Balance)
	fmt.Fprintf(c.out, "  Nonce:       %s\n", r.Ledger.Nonce)
}

func (c *cli) transferCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transfer <recipient-key> <amount>",
		Short: "Transfer value from the ledger balance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, err := signature.ParsePublicKey(args[0])
			if err != nil {
				return fmt.Errorf("recipient: %w", err)
			}
			amount, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("amount %q: %w", args[1], err)
			}
			cl, err := c.client()
			if err != nil {
				return err
			}
			sig, err := c.signAtNonce(cl, func(nonce uint64) []field.Element {
				return applier.TransferTuple(to, amount, nonce)
			})
			if err != nil {
				return err
			}
			ctx, cancel := c.withTimeout()
			defer cancel()
			r, err := cl.Transfer(ctx, wire.TransferRequest{To: to.String(), Amount: args[1], Signature: sig.String()})
			if err != nil {
				return err
			}
			c.printReceipt("Transferred "+args[1], r)
			return nil
		},
	}
}

func (c *cli) depositCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deposit <amount>",
		Short: "Credit the ledger balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("amount %q: %w", args[0], err)
			}
			cl, err := c.client()
			if err != nil {
				return err
			}
			sig, err := c.signAtNonce(cl, func(nonce uint64) []field.Element {
				return applier.DepositTuple(amount, nonce)
			})
			if err != nil {
				return err
			}
			ctx, cancel := c.withTimeout()
			defer cancel()
			r, err := cl.Deposit(ctx, wire.DepositRequest{Amount: args[0], Signature: sig.String()})
			if err != nil {
				return err
			}
			c.printReceipt("Deposited "+args[0], r)
			return nil
		},
	}
}

func (c *cli) ownerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "owner <new-owner-key>",
		Short: "Hand the ledger to a new owner key",
		Long: `Owner signs the change with the current owner key. Every later
mutation must be signed by the new owner.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			newOwner, err := signature.ParsePublicKey(args[0])
			if err != nil {
				return fmt.Errorf("new owner: %w", err)
			}
			cl, err := c.client()
			if err != nil {
				return err
			}
			sig, err := c.signAtNonce(cl, func(nonce uint64) []field.Element {
				return applier.OwnerTuple(newOwner, nonce)
			})
			if err != nil {
				return err
			}
			ctx, cancel := c.withTimeout()
			defer cancel()
			r, err := cl.ChangeOwner(ctx, wire.ChangeOwnerRequest{NewOwner: newOwner.String(), Signature: sig.String()})
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "✓ Owner changed to %s\n", r.Ledger.Owner)
			return nil
		},
	}
}
