package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	creditsAccount   string
	creditsAmount    int
	creditsReference string
	creditsSession   string
	creditsLimit     int
)

var creditsCmd = &cobra.Command{
	Use:   "credits",
	Short: "Inspect and manage search credits",
}

var creditsBalanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show the credits an account can spend",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer env.Close()

		account := creditsAccountOrDefault()
		bal, err := env.Gate.Balance(cmd.Context(), account)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d credits\n", account, bal)
		return nil
	},
}

var creditsGrantCmd = &cobra.Command{
	Use:   "grant",
	Short: "Add credits to an account",
	RunE: func(cmd *cobra.Command, args []string) error {
		if creditsAmount <= 0 {
			return eris.New("--amount must be positive")
		}
		env, err := initApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer env.Close()

		account := creditsAccountOrDefault()
		granted, err := env.Gate.Grant(cmd.Context(), account, creditsAmount, creditsReference)
		if err != nil {
			return err
		}
		if !granted {
			fmt.Fprintf(cmd.OutOrStdout(), "reference %q already applied, nothing granted\n", creditsReference)
			return nil
		}
		bal, err := env.Gate.Balance(cmd.Context(), account)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "granted %d credits, %s now has %d\n", creditsAmount, account, bal)
		return nil
	},
}

var creditsCheckoutCmd = &cobra.Command{
	Use:   "checkout",
	Short: "Open a checkout session for a credit pack",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("checkout"); err != nil {
			return err
		}
		env, err := initApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer env.Close()

		sess, err := env.Gate.StartCheckout(cmd.Context(), creditsAccountOrDefault())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "session %s\npay at: %s\nthen run: leadmap credits fulfill --session %s\n",
			sess.ID, sess.URL, sess.ID)
		return nil
	},
}

var creditsFulfillCmd = &cobra.Command{
	Use:   "fulfill",
	Short: "Credit a paid checkout session",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("checkout"); err != nil {
			return err
		}
		env, err := initApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer env.Close()

		f, err := env.Gate.Fulfill(cmd.Context(), creditsAccountOrDefault(), creditsSession)
		if err != nil {
			return err
		}
		if f.Granted {
			fmt.Fprintf(cmd.OutOrStdout(), "pack credited, %s now has %d credits\n", f.Account, f.Balance)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "session already credited, %s has %d credits\n", f.Account, f.Balance)
		}
		return nil
	},
}

var creditsHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent ledger entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer env.Close()

		entries, err := env.Gate.History(cmd.Context(), creditsAccountOrDefault(), creditsLimit)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TIME\tDELTA\tREASON\tREFERENCE")
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%+d\t%s\t%s\n", e.CreatedAt.Format("2006-01-02 15:04:05"), e.Delta, e.Reason, e.Reference)
		}
		return tw.Flush()
	},
}

func creditsAccountOrDefault() string {
	if creditsAccount != "" {
		return creditsAccount
	}
	return cfg.Credits.DefaultAccount
}

func init() {
	creditsCmd.PersistentFlags().StringVar(&creditsAccount, "account", "", "credit account (default from config)")
	creditsGrantCmd.Flags().IntVar(&creditsAmount, "amount", 0, "credits to add")
	creditsGrantCmd.Flags().StringVar(&creditsReference, "reference", "", "idempotency reference; a repeated reference grants nothing")
	creditsFulfillCmd.Flags().StringVar(&creditsSession, "session", "", "checkout session ID")
	_ = creditsFulfillCmd.MarkFlagRequired("session")
	creditsHistoryCmd.Flags().IntVar(&creditsLimit, "limit", 20, "entries to show")

	creditsCmd.AddCommand(creditsBalanceCmd, creditsGrantCmd, creditsCheckoutCmd, creditsFulfillCmd, creditsHistoryCmd)
	rootCmd.AddCommand(creditsCmd)
}
