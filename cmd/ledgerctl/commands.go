package main

import (
	"context"
	"fmt"
	"io"

	"ledger-service/internal/application"
	"ledger-service/internal/bootstrap"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

type initFunc func(ctx context.Context) (*application.LedgerService, func(), error)

func newRootCmd() *cobra.Command {
	return newRootCmdWith(bootstrap.InitService)
}

func newRootCmdWith(initSvc initFunc) *cobra.Command {
	root := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Run ledger units of work against the configured store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		probeCmd(initSvc),
		balanceCmd(initSvc),
		openCmd(initSvc),
		transferCmd(initSvc),
	)
	return root
}

func withService(cmd *cobra.Command, initSvc initFunc, fn func(ctx context.Context, svc *application.LedgerService, out io.Writer) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	svc, cleanup, err := initSvc(ctx)
	if err != nil {
		return err
	}
	defer cleanup()
	return fn(ctx, svc, cmd.OutOrStdout())
}

func probeCmd(initSvc initFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Run select-one twice in one transaction and print the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, initSvc, func(ctx context.Context, svc *application.LedgerService, out io.Writer) error {
				v, err := svc.Probe(ctx)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, v)
				return err
			})
		},
	}
}

func balanceCmd(initSvc initFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <account>",
		Short: "Print an account balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, initSvc, func(ctx context.Context, svc *application.LedgerService, out io.Writer) error {
				acc, err := svc.Balance(ctx, args[0])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(out, "%s %s\n", acc.ID, acc.Balance.StringFixed(2))
				return err
			})
		},
	}
}

func openCmd(initSvc initFunc) *cobra.Command {
	var initial string
	cmd := &cobra.Command{
		Use:   "open <account>",
		Short: "Open an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(initial)
			if err != nil {
				return fmt.Errorf("invalid balance %q: %w", initial, err)
			}
			return withService(cmd, initSvc, func(ctx context.Context, svc *application.LedgerService, out io.Writer) error {
				acc, err := svc.OpenAccount(ctx, args[0], amount)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(out, "%s %s\n", acc.ID, acc.Balance.StringFixed(2))
				return err
			})
		},
	}
	cmd.Flags().StringVar(&initial, "balance", "0", "initial balance")
	return cmd
}

func transferCmd(initSvc initFunc) *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "transfer <from> <to> <amount>",
		Short: "Move money between two accounts in one transaction",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(args[2])
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[2], err)
			}
			return withService(cmd, initSvc, func(ctx context.Context, svc *application.LedgerService, out io.Writer) error {
				tr, err := svc.TransferOnce(ctx, key, args[0], args[1], amount)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(out, "%s %s %s -> %s %s\n", tr.ID, tr.From.ID, tr.From.Balance.StringFixed(2), tr.To.ID, tr.To.Balance.StringFixed(2))
				return err
			})
		},
	}
	cmd.Flags().StringVar(&key, "idempotency-key", "", "reject a repeated transfer with the same key")
	return cmd
}
