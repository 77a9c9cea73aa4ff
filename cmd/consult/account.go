package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/astroveda/consult/internal/apiclient"
	"github.com/astroveda/consult/internal/billing"
	"github.com/astroveda/consult/internal/dtos"
)

const requestTimeout = 15 * time.Second

func newSessionsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List your active sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := apiFromProfile(opts)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			sessions, err := api.ActiveSessions(ctx)
			if err != nil {
				return err
			}
			printSessions(cmd.OutOrStdout(), sessions, time.Now())
			return nil
		},
	}
}

func newWalletCmd(opts *rootOptions) *cobra.Command {
	var add float64

	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Show your wallet balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := apiFromProfile(opts)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			out := cmd.OutOrStdout()
			if add > 0 {
				resp, err := api.AddFunds(ctx, add)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s New balance: %.2f\n", resp.Message, resp.NewBalance)
				return nil
			}

			wallet, err := api.WalletBalance(ctx)
			if err != nil {
				return err
			}
			printWallet(out, wallet)
			return nil
		},
	}

	cmd.Flags().Float64Var(&add, "add", 0, "add funds before showing the balance")
	return cmd
}

func apiFromProfile(opts *rootOptions) (*apiclient.Client, error) {
	profile, err := LoadProfile(opts.profilePath)
	if err != nil {
		return nil, err
	}
	return apiclient.New(profile.APIURL, profile.Token)
}

func printSessions(out io.Writer, sessions []dtos.SessionResponse, now time.Time) {
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No active sessions.")
		return
	}
	for _, s := range sessions {
		name := "-"
		if s.Astrologer != nil && s.Astrologer.Name != "" {
			name = s.Astrologer.Name
		}
		elapsed := int64(now.Sub(s.StartTime).Seconds())
		trial := ""
		if s.IsFreeTrial {
			trial = " (free trial)"
		}
		fmt.Fprintf(out, "%s\t%s\t%s\t%s%s\n", s.ID, name, s.Type, billing.FormatDuration(elapsed), trial)
	}
}

func printWallet(out io.Writer, wallet *dtos.WalletBalanceResponse) {
	currency := wallet.Currency
	if currency == "" {
		currency = "INR"
	}
	fmt.Fprintf(out, "Balance: %.2f %s\n", wallet.Balance, currency)
	for _, tx := range wallet.Transactions {
		fmt.Fprintf(out, "  %s  %+9.2f  %s\n", tx.Timestamp.Format("2006-01-02 15:04"), tx.Amount, tx.Description)
	}
}
