// Command ledgerctl signs and submits memory-ledger operations to a ledgerd
// server, and inspects its state and event log.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/jmerrifield20/memoryledger/internal/field"
	"github.com/jmerrifield20/memoryledger/internal/plugin"
	"github.com/jmerrifield20/memoryledger/internal/signature"
	"github.com/jmerrifield20/memoryledger/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is overridden with -ldflags "-X main.version=...".
var version = "dev"

const defaultServer = "http://localhost:8080"

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

// cli holds the settings shared by every subcommand.
type cli struct {
	out     io.Writer
	v       *viper.Viper
	cfgFile string
	server  string
	key     string
	timeout time.Duration
	now     func() time.Time
}

func newRootCmd(out io.Writer) *cobra.Command {
	return (&cli{out: out, v: viper.New(), now: time.Now}).rootCmd()
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Memory ledger CLI",
		Long: `ledgerctl is the command-line interface for a ledgerd server.

Mutations are signed locally with the owner key (a hex ed25519 seed) given
by --key, LEDGERCTL_KEY or the "key" entry of the config file.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.loadConfig()
		},
	}
	root.SetOut(c.out)

	pf := root.PersistentFlags()
	pf.StringVar(&c.cfgFile, "config", "", "config file (default ~/.ledgerctl/config.yaml)")
	pf.StringVar(&c.server, "server", "", "ledgerd base URL (default "+defaultServer+")")
	pf.StringVar(&c.key, "key", "", "owner private key, hex seed")
	pf.DurationVar(&c.timeout, "timeout", 30*time.Second, "request timeout")

	root.AddCommand(
		c.keygenCmd(),
		c.ledgerCmd(),
		c.characterCmd(),
		c.memoryCmd(),
		c.transferCmd(),
		c.depositCmd(),
		c.ownerCmd(),
		c.eventsCmd(),
		c.proveCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the ledgerctl version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(c.out, "ledgerctl %s\n", version)
			},
		},
	)
	return root
}

func (c *cli) loadConfig() error {
	if c.cfgFile != "" {
		c.v.SetConfigFile(c.cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			c.v.AddConfigPath(filepath.Join(home, ".ledgerctl"))
		}
		c.v.SetConfigName("config")
		c.v.SetConfigType("yaml")
	}
	c.v.SetEnvPrefix("ledgerctl")
	c.v.AutomaticEnv()
	if err := c.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if c.cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	if c.server == "" {
		c.server = c.v.GetString("server")
	}
	if c.server == "" {
		c.server = defaultServer
	}
	if c.key == "" {
		c.key = c.v.GetString("key")
	}
	return nil
}

func (c *cli) client() (*client.Client, error) {
	return client.New(c.server, client.WithTimeout(c.timeout))
}

func (c *cli) signer() (signature.PrivateKey, error) {
	if c.key == "" {
		return signature.PrivateKey{}, errors.New("an owner key is required: use --key or LEDGERCTL_KEY")
	}
	return signature.ParsePrivateKey(c.key)
}

func (c *cli) withTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), c.timeout)
}

func (c *cli) millis() field.Element {
	return field.New(uint64(c.now().UnixMilli()))
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// characterID accepts a decimal field element, a UUID or a plain-text id.
func characterID(s string) field.Element {
	if e, err := field.FromDecimal(s); err == nil {
		return e
	}
	return plugin.CharacterID(s)
}

// ── keygen ───────────────────────────────────────────────────────────────────

func (c *cli) keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate an owner key pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := signature.GenerateKey(nil)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "private key: %s\n", k.Seed())
			fmt.Fprintf(c.out, "public key:  %s\n", k.Public())
			return nil
		},
	}
}

// ── ledger ───────────────────────────────────────────────────────────────────

func (c *cli) ledgerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ledger",
		Short: "Show the ledger-wide counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := c.client()
			if err != nil {
				return err
			}
			ctx, cancel := c.withTimeout()
			defer cancel()
			l, err := cl.Ledger(ctx)
			if err != nil {
				return err
			}
			return c.printJSON(l)
		},
	}
}
