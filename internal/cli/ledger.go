package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var ledgerJSON bool

func init() {
	ledgerCmd.AddCommand(ledgerListCmd, ledgerCleanupCmd, ledgerCheckCmd)
	ledgerListCmd.Flags().BoolVar(&ledgerJSON, "json", false, "print entries as JSON")
	rootCmd.AddCommand(ledgerCmd)
}

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect and maintain the penalty ledger",
}

var ledgerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List blacklist entries and pending failure records",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := build(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer c.Close()

		entries := c.ledger.Entries(cmd.Context())
		failures := c.ledger.Failures(cmd.Context())
		if ledgerJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{"blacklist": entries, "failures": failures})
		}

		now := time.Now()
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CLIENT\tSTATE\tREASON\tATTEMPTS\tEXPIRES")
		for _, e := range entries {
			state := "blacklisted"
			if !e.Active(now) {
				state = "expired"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", e.ClientID, state, e.Reason, len(e.Attempts), e.ExpiresAt.Format(time.RFC3339))
		}
		for _, f := range failures {
			reason := ""
			if n := len(f.Attempts); n > 0 {
				reason = f.Attempts[n-1].Reason
			}
			fmt.Fprintf(w, "%s\tfailing\t%s\t%d\t-\n", f.ClientID, reason, f.Count)
		}
		return w.Flush()
	},
}

var ledgerCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove expired blacklist entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := build(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer c.Close()

		fmt.Printf("Removed %d expired entries\n", c.ledger.CleanupExpired(cmd.Context()))
		return nil
	},
}

var ledgerCheckCmd = &cobra.Command{
	Use:   "check <clientId>",
	Short: "Report whether a client is blacklisted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := build(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer c.Close()

		if c.ledger.IsBlacklisted(cmd.Context(), args[0]) {
			fmt.Printf("%s is blacklisted\n", args[0])
			return nil
		}
		fmt.Printf("%s is not blacklisted\n", args[0])
		return nil
	},
}
