package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/gcsync/internal/app"
)

func newAccountCommand(flags *globalFlags) *cobra.Command {
	accountCmd := &cobra.Command{
		Use:   "account",
		Short: "Link bank accounts to ledger bank accounts",
	}
	accountCmd.AddCommand(newAccountStoreCommand(flags))
	accountCmd.AddCommand(newAccountChangeCommand(flags))
	accountCmd.AddCommand(newAccountListCommand(flags))
	accountCmd.AddCommand(newAccountDataCommand(flags))
	return accountCmd
}

func newAccountStoreCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "store <bank> <account>",
		Short: "Create a ledger bank account for a bank account and link them",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app.App) error {
				volatileNote(cmd, a)
				name, err := a.Accounts.StoreBankAccount(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s linked to %s\n", args[1], name)
				return nil
			})
		},
	}
}

func newAccountChangeCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "change <bank> <account> <bank-account>",
		Short: "Link a bank account to an existing ledger bank account",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app.App) error {
				volatileNote(cmd, a)
				if err := a.Accounts.ChangeBankAccount(ctx, args[0], args[1], args[2]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s linked to %s\n", args[1], args[2])
				return nil
			})
		},
	}
}

func newAccountListCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List ledger bank accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app.App) error {
				list, err := a.Accounts.ListBankAccounts(ctx)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "NAME\tBANK\tCOMPANY\tIBAN\tDEFAULT")
				for _, acc := range list {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n", acc.Name, acc.Bank, acc.Company, acc.IBAN, acc.IsDefault)
				}
				return w.Flush()
			})
		},
	}
}

func newAccountDataCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "data <bank-account>",
		Short: "Show the sync state of a ledger bank account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app.App) error {
				data, err := a.Accounts.GetBankAccountData(ctx, args[0])
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(data)
			})
		},
	}
}
