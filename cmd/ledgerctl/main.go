package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/svwenlabs/svwen-ledger/pkg/client"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL string
	tokenFlag string
	cfgFile   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ledgerctl",
	Short: "SVWEN ledger CLI",
	Long: `ledgerctl is the command-line interface for the SVWEN ledger.

It lets you log in, inspect your wallet, send value to other users,
and browse or verify the block chain.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".svwen"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server_url")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8080"
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.svwen/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "ledger server URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&tokenFlag, "token", "", "session token (default from ~/.svwen/token)")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(meCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(transactionsCmd)
	rootCmd.AddCommand(chainCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(tamperCmd)
	rootCmd.AddCommand(integrityCmd)
	rootCmd.AddCommand(versionCmd)
}

// tokenPath is where login persists the session token.
func tokenPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".svwen", "token"), nil
}

// newClient builds an API client, attaching the session token from the
// --token flag or the persisted token file.
func newClient(needToken bool) (*client.Client, error) {
	token := tokenFlag
	if token == "" {
		if path, err := tokenPath(); err == nil {
			if data, err := os.ReadFile(path); err == nil {
				token = string(data)
			}
		}
	}
	if needToken && token == "" {
		return nil, fmt.Errorf("not logged in; run 'ledgerctl login <username>' first")
	}
	return client.New(serverURL, client.WithToken(token))
}

// ── login ────────────────────────────────────────────────────────────────────

var loginCmd = &cobra.Command{
	Use:   "login <username>",
	Short: "Authenticate and store a session token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		username := args[0]

		fmt.Print("Password: ")
		pw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}

		c, err := client.New(serverURL)
		if err != nil {
			return err
		}
		result, err := c.Login(context.Background(), username, string(pw))
		if err != nil {
			return err
		}

		path, err := tokenPath()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
		if err := os.WriteFile(path, []byte(result.Token), 0o600); err != nil {
			return fmt.Errorf("save token: %w", err)
		}

		fmt.Printf("✓ Logged in as %s (%s)\n", result.Username, result.Role)
		return nil
	},
}

// ── me ───────────────────────────────────────────────────────────────────────

var meCmd = &cobra.Command{
	Use:   "me",
	Short: "Show the authenticated account and wallet",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(true)
		if err != nil {
			return err
		}
		p, err := c.Me(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("Username: %s\n", p.Username)
		fmt.Printf("Role:     %s\n", p.Role)
		fmt.Printf("Wallet:   %s\n", p.WalletAddress)
		fmt.Printf("Balance:  %.2f\n", p.Balance)
		return nil
	},
}

// ── send ─────────────────────────────────────────────────────────────────────

var (
	sendToAddress  string
	sendToUsername string
)

var sendCmd = &cobra.Command{
	Use:   "send <amount>",
	Short: "Send value to another wallet",
	Long: `Send transfers value from your wallet and records it on the chain.

The receiver is named either by wallet address or by username:

  ledgerctl send 250.50 --to 4f2a9c...
  ledgerctl send 250.50 --to-user bob`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount := args[0]
		if (sendToAddress == "") == (sendToUsername == "") {
			return fmt.Errorf("exactly one of --to or --to-user is required")
		}

		c, err := newClient(true)
		if err != nil {
			return err
		}

		ctx := context.Background()
		var receipt *client.TransferReceipt
		if sendToAddress != "" {
			receipt, err = c.Send(ctx, sendToAddress, amount)
		} else {
			receipt, err = c.SendByUsername(ctx, sendToUsername, amount)
		}
		if err != nil {
			return err
		}

		fmt.Printf("✓ Transfer recorded\n\n")
		fmt.Printf("  Tx Hash:  %s\n", receipt.TxHash)
		fmt.Printf("  Amount:   %s\n", receipt.Amount)
		fmt.Printf("  To:       %s\n", receipt.ReceiverWalletAddress)
		fmt.Printf("  Block:    %d\n", receipt.BlockIndex)
		fmt.Printf("  Balance:  %.2f\n", receipt.SenderBalance)
		return nil
	},
}

func init() {
	sendCmd.Flags().StringVar(&sendToAddress, "to", "", "receiver wallet address")
	sendCmd.Flags().StringVar(&sendToUsername, "to-user", "", "receiver username")
}

// ── transactions ─────────────────────────────────────────────────────────────

var (
	txSearch string
	txFormat string
)

var transactionsCmd = &cobra.Command{
	Use:   "transactions",
	Short: "List your chain transactions",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(true)
		if err != nil {
			return err
		}

		ctx := context.Background()
		var txs []client.Transaction
		if txSearch != "" {
			txs, err = c.SearchTransactions(ctx, txSearch)
		} else {
			txs, err = c.Transactions(ctx)
		}
		if err != nil {
			return err
		}

		if txFormat == "json" {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(txs)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "BLOCK\tTIME\tFROM\tTO\tAMOUNT")
		for _, tx := range txs {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
				tx.BlockIndex, tx.Timestamp,
				short(tx.Record["From"]), short(tx.Record["To"]), tx.Record["Amount"])
		}
		return w.Flush()
	},
}

func init() {
	transactionsCmd.Flags().StringVar(&txSearch, "search", "", "filter by substring or counterparty username")
	transactionsCmd.Flags().StringVar(&txFormat, "format", "text", "Output format: text or json")
}

// short truncates a wallet address for table display.
func short(addr string) string {
	if len(addr) > 12 {
		return addr[:12] + "…"
	}
	return addr
}

// ── chain ────────────────────────────────────────────────────────────────────

var chainCmd = &cobra.Command{
	Use:   "chain [index]",
	Short: "Show the block chain, or a single block by index",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(true)
		if err != nil {
			return err
		}
		ctx := context.Background()

		if len(args) == 1 {
			idx, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("index must be an integer")
			}
			b, err := c.Block(ctx, idx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(b)
		}

		blocks, err := c.Chain(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "INDEX\tTIME\tHASH\tDATA")
		for _, b := range blocks {
			data := b.Data
			if len(data) > 48 {
				data = data[:48] + "…"
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", b.Index, b.Timestamp, short(b.Hash), data)
		}
		return w.Flush()
	},
}

// ── verify / tamper / integrity ──────────────────────────────────────────────

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Re-verify the whole chain (tester role)",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(true)
		if err != nil {
			return err
		}
		result, err := c.Verify(context.Background())
		if err != nil {
			return err
		}
		if result.Valid {
			fmt.Println("✓ Chain is valid")
			return nil
		}
		fmt.Printf("✗ Chain is INVALID: %s\n", result.Report)
		return nil
	},
}

var tamperCmd = &cobra.Command{
	Use:   "tamper <index> <data>",
	Short: "Tamper a block in memory to demonstrate detection (tester role)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("index must be an integer")
		}
		c, err := newClient(true)
		if err != nil {
			return err
		}
		if err := c.Tamper(context.Background(), idx, args[1]); err != nil {
			return err
		}
		fmt.Printf("✓ Block %d tampered; run 'ledgerctl verify' to see detection\n", idx)
		return nil
	},
}

var integrityCmd = &cobra.Command{
	Use:   "integrity",
	Short: "Show the cached chain validity flag (tester role)",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(true)
		if err != nil {
			return err
		}
		valid, err := c.Integrity(context.Background())
		if err != nil {
			return err
		}
		if valid {
			fmt.Println("chain status: valid")
		} else {
			fmt.Println("chain status: INVALID")
		}
		return nil
	},
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the ledgerctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ledgerctl %s\n", version)
	},
}
