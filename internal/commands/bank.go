package commands

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cleared-dev/gcsync/internal/app"
	"github.com/cleared-dev/gcsync/internal/bank"
	"github.com/cleared-dev/gcsync/internal/model"
)

func newMigrateCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(_ context.Context, a *app.App) error {
				if !a.Persistent() {
					fmt.Fprintln(cmd.OutOrStdout(), "No database configured, nothing to migrate")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Database is up to date")
				return nil
			})
		},
	}
}

func newBanksCommand(flags *globalFlags) *cobra.Command {
	var company string

	cmd := &cobra.Command{
		Use:   "banks",
		Short: "List the institutions available to a company",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app.App) error {
				return runBanks(ctx, cmd, a, company)
			})
		},
	}
	cmd.Flags().StringVar(&company, "company", "", "company (required)")
	_ = cmd.MarkFlagRequired("company")
	return cmd
}

func runBanks(ctx context.Context, cmd *cobra.Command, a *app.App, company string) error {
	list, err := a.Banks.GetBanks(ctx, company)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tBIC\tDAYS")
	for _, inst := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", inst.ID, inst.Name, inst.BIC, inst.TransactionTotalDays)
	}
	return w.Flush()
}

func newBankCommand(flags *globalFlags) *cobra.Command {
	bankCmd := &cobra.Command{
		Use:   "bank",
		Short: "Manage linked banks",
	}
	bankCmd.AddCommand(newBankCreateCommand(flags))
	bankCmd.AddCommand(newBankNameCommand(flags, "submit", "Submit a draft bank", func(ctx context.Context, a *app.App, name string) (string, error) {
		return "submitted", a.Banks.SubmitBank(ctx, name)
	}))
	bankCmd.AddCommand(newBankLinkCommand(flags))
	bankCmd.AddCommand(newBankAuthorizeCommand(flags))
	bankCmd.AddCommand(newBankNameCommand(flags, "sync", "Sync the accounts of a bank", func(ctx context.Context, a *app.App, name string) (string, error) {
		return "accounts synced", a.Banks.SyncBank(ctx, name)
	}))
	bankCmd.AddCommand(newBankNameCommand(flags, "cancel", "Cancel a bank and delete its requisition", func(ctx context.Context, a *app.App, name string) (string, error) {
		return "cancelled", a.Banks.CancelBank(ctx, name)
	}))
	bankCmd.AddCommand(newBankNameCommand(flags, "delete", "Delete a draft or cancelled bank and clean what was synced for it", func(ctx context.Context, a *app.App, name string) (string, error) {
		return "deleted", a.Banks.DeleteBank(ctx, name)
	}))
	return bankCmd
}

// newBankNameCommand builds a command running fn on the bank named by its
// only argument and printing the returned word.
func newBankNameCommand(flags *globalFlags, use, short string, fn func(context.Context, *app.App, string) (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <bank>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app.App) error {
				volatileNote(cmd, a)
				done, err := fn(ctx, a, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", args[0], done)
				return nil
			})
		},
	}
}

func newBankCreateCommand(flags *globalFlags) *cobra.Command {
	var b model.Bank
	var submit bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a bank for a company",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app.App) error {
				volatileNote(cmd, a)
				created, err := a.Banks.CreateBank(ctx, b)
				if err != nil {
					return err
				}
				if submit {
					if err := a.Banks.SubmitBank(ctx, created.Name); err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%s, %d days of history)\n", created.Name, created.BankID, created.TransactionDays)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&b.Name, "name", "", "bank name (default \"<bank> - <company>\")")
	cmd.Flags().StringVar(&b.Company, "company", "", "company (required)")
	cmd.Flags().StringVar(&b.BankName, "bank", "", "institution name (required)")
	cmd.Flags().BoolVar(&b.AutoSync, "auto-sync", false, "sync transactions on schedule")
	cmd.Flags().BoolVar(&submit, "submit", false, "submit the bank once created")
	_ = cmd.MarkFlagRequired("company")
	_ = cmd.MarkFlagRequired("bank")
	return cmd
}

func newBankLinkCommand(flags *globalFlags) *cobra.Command {
	var ref string

	cmd := &cobra.Command{
		Use:   "link <bank>",
		Short: "Create a requisition and print the authorization link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app.App) error {
				b, err := a.Store.Bank(ctx, args[0])
				if err != nil {
					return fmt.Errorf("gocardless bank %q: %w", args[0], err)
				}
				if ref == "" {
					ref = uuid.NewString()
				}
				link, err := a.Banks.GetBankAuth(ctx, bank.AuthRequest{
					Name:            b.Name,
					RefID:           ref,
					Company:         b.Company,
					Bank:            b.BankName,
					BankID:          b.BankID,
					TransactionDays: b.Days(),
				})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Link:        %s\n", link.Link)
				fmt.Fprintf(out, "Requisition: %s\n", link.ID)
				fmt.Fprintf(out, "Valid for:   %d days\n", link.AccessValidForDays)
				fmt.Fprintf(out, "Once authorized run: gcsync bank authorize %q --auth-id %s --valid-days %d\n", b.Name, link.ID, link.AccessValidForDays)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&ref, "ref", "", "requisition reference (default random)")
	return cmd
}

func newBankAuthorizeCommand(flags *globalFlags) *cobra.Command {
	var authID, expiry string
	var validDays int

	cmd := &cobra.Command{
		Use:   "authorize <bank>",
		Short: "Store an authorized requisition and sync the bank's accounts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var until time.Time
			switch {
			case expiry != "":
				t, err := time.Parse(time.DateOnly, expiry)
				if err != nil {
					return fmt.Errorf("parsing --expiry: %w", err)
				}
				until = t
			case validDays > 0:
				until = model.TruncateDay(time.Now()).AddDate(0, 0, validDays)
			default:
				return fmt.Errorf("one of --expiry or --valid-days is required")
			}

			return withApp(cmd, flags, func(ctx context.Context, a *app.App) error {
				volatileNote(cmd, a)
				b, err := a.Store.Bank(ctx, args[0])
				if err != nil {
					return fmt.Errorf("gocardless bank %q: %w", args[0], err)
				}
				if err := a.Banks.SaveBankAuth(ctx, b.Name, b.BankName, b.BankID, authID, until); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s authorized until %s\n", b.Name, until.Format(time.DateOnly))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&authID, "auth-id", "", "requisition id (required)")
	cmd.Flags().StringVar(&expiry, "expiry", "", "authorization expiry date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&validDays, "valid-days", 0, "days the authorization is valid from today")
	_ = cmd.MarkFlagRequired("auth-id")
	return cmd
}
