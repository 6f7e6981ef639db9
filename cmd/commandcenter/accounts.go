package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	authgoogle "github.com/pysugar/command-center/internal/auth/google"
	"github.com/spf13/cobra"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage connected Google accounts",
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every connected account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		list, err := a.registry.ListAll(cmd.Context())
		if err != nil {
			return err
		}
		if len(list) == 0 {
			cmd.Println("No accounts connected.")
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "EMAIL\tNAME\tSTATUS\tEXPIRES")
		for _, acc := range list {
			expires := "-"
			if !acc.ExpiresAt.IsZero() {
				expires = acc.ExpiresAt.Local().Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", acc.Email, acc.Name, acc.Status, expires)
		}
		return w.Flush()
	},
}

var accountsRemoveCmd = &cobra.Command{
	Use:   "remove <email>",
	Short: "Disconnect an account and delete its tokens",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		if _, err := a.registry.Remove(cmd.Context(), "", args[0]); err != nil {
			return err
		}
		cmd.Printf("Removed %s\n", args[0])
		return nil
	},
}

var connectPort int

var accountsConnectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect an account through a browser consent page",
	Long: `Starts a temporary callback server on 127.0.0.1 and prints the Google
consent URL. Open it in a browser on this machine; the account is stored
once consent completes. The OAuth client must allow loopback redirects.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		if err := a.cfg.Validate(); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		lb := &authgoogle.Loopback{
			OAuth:    a.oauth,
			Registry: a.registry,
			Secret:   a.secret,
			Port:     connectPort,
		}
		authURL, result, cleanup, err := lb.Start(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		cmd.Printf("Open this URL to connect an account:\n\n  %s\n\n", authURL)
		select {
		case res := <-result:
			if res.Err != nil {
				return res.Err
			}
			cmd.Printf("Connected %s\n", res.Account.Email)
			return nil
		case <-ctx.Done():
			return context.Cause(ctx)
		}
	},
}

func init() {
	accountsConnectCmd.Flags().IntVar(&connectPort, "port", 0, "callback port (0 picks a free one)")
	accountsCmd.AddCommand(accountsListCmd, accountsRemoveCmd, accountsConnectCmd)
	rootCmd.AddCommand(accountsCmd)
}
